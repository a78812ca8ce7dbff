package visualization

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"volumetiles/pkg/tiling"
)

// mosaicGap is the separator width between tiles, in pixels
const mosaicGap = 1

// Mosaic lays out the tiles of one slice in grid order, separated by a
// black line, so the tiling can be checked against the source slice.
func Mosaic(ts *tiling.TileSet, slice int) (*image.Gray16, error) {
	return mosaic(ts, slice, NewAutoContrastViewer(tiling.Reshape(ts)))
}

func mosaic(ts *tiling.TileSet, slice int, view *Viewer) (*image.Gray16, error) {
	perSlice := ts.TilesPerSlice()
	if perSlice == 0 {
		return nil, fmt.Errorf("tile set has no tiles per slice")
	}
	if slice < 0 || slice >= ts.Rows/perSlice {
		return nil, fmt.Errorf("slice %d out of range [0, %d)", slice, ts.Rows/perSlice)
	}

	t := ts.TileSize
	width := ts.GridCols*(t+mosaicGap) - mosaicGap
	height := ts.GridRows*(t+mosaicGap) - mosaicGap
	img := image.NewGray16(image.Rect(0, 0, width, height))

	tileIndex := slice * perSlice
	for r := 0; r < ts.GridRows; r++ {
		for c := 0; c < ts.GridCols; c++ {
			tile := ts.TileImage(tileIndex)
			x0 := c * (t + mosaicGap)
			y0 := r * (t + mosaicGap)
			for y := 0; y < t; y++ {
				for x := 0; x < t; x++ {
					img.SetGray16(x0+x, y0+y, view.gray(tile[y][x]))
				}
			}
			tileIndex++
		}
	}

	return img, nil
}

// SaveMosaics writes one PNG mosaic per slice into outputDir
func SaveMosaics(ts *tiling.TileSet, outputDir string) error {
	perSlice := ts.TilesPerSlice()
	if perSlice == 0 || ts.Rows == 0 {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	view := NewAutoContrastViewer(tiling.Reshape(ts))
	for s := 0; s < ts.Rows/perSlice; s++ {
		img, err := mosaic(ts, s, view)
		if err != nil {
			return err
		}
		if err := savePNG(img, filepath.Join(outputDir, fmt.Sprintf("mosaic_%03d.png", s))); err != nil {
			return err
		}
	}
	return nil
}

// EncodePNGBase64 encodes an image as base64 PNG for embedding in a web view
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DataURL wraps EncodePNGBase64 in a data URL
func DataURL(img image.Image) (string, error) {
	encoded, err := EncodePNGBase64(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + encoded, nil
}

func savePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
