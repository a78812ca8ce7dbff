package tiling

import (
	"fmt"

	"volumetiles/internal/models"
)

// ReassembleSlice rebuilds the tiled region of one slice from its block of
// tiles. The result is (GridRows*TileSize) x (GridCols*TileSize) in row-major
// order; the remainder dropped during tiling is not recovered.
func ReassembleSlice(ts *TileSet, slice int) ([]float64, int, int, error) {
	perSlice := ts.TilesPerSlice()
	if perSlice == 0 {
		return nil, 0, 0, fmt.Errorf("tile set has no tiles per slice")
	}
	numSlices := ts.Rows / perSlice
	if slice < 0 || slice >= numSlices {
		return nil, 0, 0, fmt.Errorf("slice %d out of range [0, %d)", slice, numSlices)
	}

	t := ts.TileSize
	height := ts.GridRows * t
	width := ts.GridCols * t
	out := make([]float64, height*width)

	tileIndex := slice * perSlice
	for r := 0; r < ts.GridRows; r++ {
		for c := 0; c < ts.GridCols; c++ {
			row := ts.Row(tileIndex)
			for y := 0; y < t; y++ {
				start := (r*t+y)*width + c*t
				copy(out[start:start+t], row[y*t:(y+1)*t])
			}
			tileIndex++
		}
	}

	return out, height, width, nil
}

// Reshape views the tile set as a volume of shape (Rows, TileSize, TileSize),
// one tile per slice. The volume shares storage with the set.
func Reshape(ts *TileSet) *models.Volume {
	return &models.Volume{
		Data:   ts.Data,
		Slices: ts.Rows,
		Height: ts.TileSize,
		Width:  ts.TileSize,
	}
}

// TileImage returns tile i as TileSize rows of TileSize samples
func (ts *TileSet) TileImage(i int) [][]float64 {
	t := ts.TileSize
	row := ts.Row(i)
	out := make([][]float64, t)
	for y := 0; y < t; y++ {
		out[y] = row[y*t : (y+1)*t]
	}
	return out
}
