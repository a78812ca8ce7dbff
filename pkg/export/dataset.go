// Package export writes tile sets and their slice labels to disk so that a
// downstream training process can consume them.
package export

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"volumetiles/pkg/tiling"
)

const (
	// TilesFile and LabelsFile are the names used by SaveDataset
	TilesFile  = "tiles.bin"
	LabelsFile = "labels.csv"

	formatVersion uint32 = 1

	// readChunk is the number of samples decoded per read
	readChunk = 1 << 16
)

var magic = [4]byte{'V', 'T', 'I', 'L'}

// ErrBadFormat is returned when a tile file has an unexpected header
var ErrBadFormat = errors.New("bad tile file format")

type header struct {
	Magic    [4]byte
	Version  uint32
	Rows     uint64
	Cols     uint64
	TileSize uint32
	GridRows uint32
	GridCols uint32
}

// WriteTiles writes ts as a little-endian header followed by float64 samples
func WriteTiles(w io.Writer, ts *tiling.TileSet) error {
	bw := bufio.NewWriter(w)
	h := header{
		Magic:    magic,
		Version:  formatVersion,
		Rows:     uint64(ts.Rows),
		Cols:     uint64(ts.Cols),
		TileSize: uint32(ts.TileSize),
		GridRows: uint32(ts.GridRows),
		GridCols: uint32(ts.GridCols),
	}
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, ts.Data); err != nil {
		return fmt.Errorf("failed to write tile data: %w", err)
	}
	return bw.Flush()
}

// ReadTiles reads a tile set written by WriteTiles
func ReadTiles(r io.Reader) (*tiling.TileSet, error) {
	br := bufio.NewReader(r)
	var h header
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadFormat, h.Magic[:])
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, h.Version)
	}
	if h.TileSize == 0 || h.Cols != uint64(h.TileSize)*uint64(h.TileSize) {
		return nil, fmt.Errorf("%w: %d columns for tile size %d", ErrBadFormat, h.Cols, h.TileSize)
	}
	if h.Rows > math.MaxInt/8/h.Cols {
		return nil, fmt.Errorf("%w: %d rows of %d columns exceeds addressable size", ErrBadFormat, h.Rows, h.Cols)
	}
	perSlice := uint64(h.GridRows) * uint64(h.GridCols)
	if (perSlice == 0 && h.Rows != 0) || (perSlice != 0 && h.Rows%perSlice != 0) {
		return nil, fmt.Errorf("%w: %d rows is not a multiple of a %dx%d grid", ErrBadFormat, h.Rows, h.GridRows, h.GridCols)
	}

	data, err := readFloats(br, int(h.Rows)*int(h.Cols))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	return &tiling.TileSet{
		Data:     data,
		Rows:     int(h.Rows),
		Cols:     int(h.Cols),
		TileSize: int(h.TileSize),
		GridRows: int(h.GridRows),
		GridCols: int(h.GridCols),
	}, nil
}

// readFloats reads n samples in bounded chunks. A stream shorter than its
// header claims fails with io.ErrUnexpectedEOF.
func readFloats(r io.Reader, n int) ([]float64, error) {
	data := make([]float64, 0, min(n, readChunk))
	buf := make([]float64, min(n, readChunk))
	for len(data) < n {
		chunk := buf[:min(readChunk, n-len(data))]
		if err := binary.Read(r, binary.LittleEndian, chunk); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		data = append(data, chunk...)
	}
	return data, nil
}

// WriteLabels writes labels as CSV rows of tile index and slice index
func WriteLabels(w io.Writer, labels []int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tile", "slice"}); err != nil {
		return err
	}
	for i, label := range labels {
		if err := cw.Write([]string{strconv.Itoa(i), strconv.Itoa(label)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLabels reads labels written by WriteLabels
func ReadLabels(r io.Reader) ([]int, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing labels header", ErrBadFormat)
	}

	labels := make([]int, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 2 {
			return nil, fmt.Errorf("%w: label row %d has %d fields", ErrBadFormat, i, len(rec))
		}
		label, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("invalid label on row %d: %w", i, err)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// SaveDataset writes tiles.bin and labels.csv into dir
func SaveDataset(dir string, ts *tiling.TileSet, labels []int) error {
	if len(labels) != ts.Rows {
		return fmt.Errorf("label count %d does not match tile count %d", len(labels), ts.Rows)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeFile(filepath.Join(dir, TilesFile), func(w io.Writer) error {
		return WriteTiles(w, ts)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, LabelsFile), func(w io.Writer) error {
		return WriteLabels(w, labels)
	})
}

// LoadDataset reads a dataset written by SaveDataset
func LoadDataset(dir string) (*tiling.TileSet, []int, error) {
	tf, err := os.Open(filepath.Join(dir, TilesFile))
	if err != nil {
		return nil, nil, err
	}
	defer tf.Close()
	ts, err := ReadTiles(tf)
	if err != nil {
		return nil, nil, err
	}

	lf, err := os.Open(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, nil, err
	}
	defer lf.Close()
	labels, err := ReadLabels(lf)
	if err != nil {
		return nil, nil, err
	}

	if len(labels) != ts.Rows {
		return nil, nil, fmt.Errorf("%w: %d labels for %d tiles", ErrBadFormat, len(labels), ts.Rows)
	}
	return ts, labels, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
