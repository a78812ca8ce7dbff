package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"volumetiles/pkg/tiling"
)

// NormalizationFile holds the feature statistics of a normalized dataset
const NormalizationFile = "normalization.bin"

var normMagic = [4]byte{'V', 'N', 'R', 'M'}

type normHeader struct {
	Magic   [4]byte
	Version uint32
	Cols    uint64
}

// WriteNormalization writes the per-feature mean followed by the standard deviation
func WriteNormalization(w io.Writer, n *tiling.Normalization) error {
	if len(n.Mean) != len(n.Std) {
		return fmt.Errorf("mean has %d features, std has %d", len(n.Mean), len(n.Std))
	}

	bw := bufio.NewWriter(w)
	h := normHeader{Magic: normMagic, Version: formatVersion, Cols: uint64(len(n.Mean))}
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, n.Mean); err != nil {
		return fmt.Errorf("failed to write mean: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, n.Std); err != nil {
		return fmt.Errorf("failed to write std: %w", err)
	}
	return bw.Flush()
}

// ReadNormalization reads statistics written by WriteNormalization
func ReadNormalization(r io.Reader) (*tiling.Normalization, error) {
	br := bufio.NewReader(r)
	var h normHeader
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.Magic != normMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadFormat, h.Magic[:])
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, h.Version)
	}
	if h.Cols > math.MaxInt/16 {
		return nil, fmt.Errorf("%w: %d features exceeds addressable size", ErrBadFormat, h.Cols)
	}

	mean, err := readFloats(br, int(h.Cols))
	if err != nil {
		return nil, fmt.Errorf("failed to read mean: %w", err)
	}
	std, err := readFloats(br, int(h.Cols))
	if err != nil {
		return nil, fmt.Errorf("failed to read std: %w", err)
	}
	return &tiling.Normalization{Mean: mean, Std: std}, nil
}

// SaveNormalization writes normalization.bin into dir
func SaveNormalization(dir string, n *tiling.Normalization) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return writeFile(filepath.Join(dir, NormalizationFile), func(w io.Writer) error {
		return WriteNormalization(w, n)
	})
}

// LoadNormalization reads normalization.bin from dir
func LoadNormalization(dir string) (*tiling.Normalization, error) {
	file, err := os.Open(filepath.Join(dir, NormalizationFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadNormalization(file)
}
