// Package tiling partitions a volume into non-overlapping square tiles for
// patch-based learning. Each tile is flattened into one feature row and
// labelled with the index of the slice it came from.
package tiling

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"volumetiles/internal/models"
)

// ErrInvalidArgument is returned when the tile size is not positive
var ErrInvalidArgument = errors.New("invalid argument")

// TileSet holds flattened tiles, one per row, in emission order.
//
// Row order is slice, then tile row, then tile column. Each row holds
// TileSize*TileSize samples in row-major order.
type TileSet struct {
	// Data is the Rows x Cols matrix in row-major order
	Data []float64

	// Rows is the number of tiles
	Rows int

	// Cols is the number of samples per tile (TileSize squared)
	Cols int

	// TileSize is the tile edge length
	TileSize int

	// GridRows and GridCols are the tiles per slice along each axis
	GridRows int
	GridCols int
}

// Len returns the number of tiles
func (ts *TileSet) Len() int { return ts.Rows }

// TilesPerSlice returns the number of tiles emitted for each slice
func (ts *TileSet) TilesPerSlice() int { return ts.GridRows * ts.GridCols }

// Row returns the feature row of tile i. The result shares storage with the set.
func (ts *TileSet) Row(i int) []float64 {
	return ts.Data[i*ts.Cols : (i+1)*ts.Cols]
}

// Matrix returns the tiles as a gonum matrix sharing the same storage.
// Empty sets return nil since gonum does not allow zero-sized matrices.
func (ts *TileSet) Matrix() *mat.Dense {
	if ts.Rows == 0 || ts.Cols == 0 {
		return nil
	}
	return mat.NewDense(ts.Rows, ts.Cols, ts.Data)
}

// Grid returns how many whole tiles fit along each axis of a slice.
// Remainder rows and columns are dropped.
func Grid(height, width, tileSize int) (rows, cols int) {
	if tileSize <= 0 {
		return 0, 0
	}
	return height / tileSize, width / tileSize
}

// Tile partitions every slice of vol into tileSize x tileSize tiles.
// It returns the tiles and, for each tile, the index of its source slice.
//
// A tile size larger than the slice height or width yields an empty set.
func Tile(vol *models.Volume, tileSize int) (*TileSet, []int, error) {
	ts, labels, err := allocate(vol, tileSize)
	if err != nil {
		return nil, nil, err
	}

	for s := 0; s < vol.Slices; s++ {
		tileSlice(vol, ts, s)
		fillLabels(ts, labels, s)
	}

	return ts, labels, nil
}

// TileParallel produces the same result as Tile, processing slices on up to
// numCores goroutines. Each slice writes into its own block of the output
// so row order does not depend on completion order.
func TileParallel(vol *models.Volume, tileSize, numCores int) (*TileSet, []int, error) {
	ts, labels, err := allocate(vol, tileSize)
	if err != nil {
		return nil, nil, err
	}
	if ts.Rows == 0 {
		return ts, labels, nil
	}

	if numCores <= 0 {
		numCores = runtime.NumCPU()
	}
	if numCores > vol.Slices {
		numCores = vol.Slices
	}

	sliceChan := make(chan int, vol.Slices)
	for s := 0; s < vol.Slices; s++ {
		sliceChan <- s
	}
	close(sliceChan)

	var wg sync.WaitGroup
	for w := 0; w < numCores; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range sliceChan {
				tileSlice(vol, ts, s)
				fillLabels(ts, labels, s)
			}
		}()
	}
	wg.Wait()

	return ts, labels, nil
}

// allocate validates the arguments and sizes the output
func allocate(vol *models.Volume, tileSize int) (*TileSet, []int, error) {
	if tileSize <= 0 {
		return nil, nil, fmt.Errorf("%w: tile size must be positive, got %d", ErrInvalidArgument, tileSize)
	}
	if err := vol.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	gridRows, gridCols := Grid(vol.Height, vol.Width, tileSize)
	rows := vol.Slices * gridRows * gridCols
	cols := tileSize * tileSize

	ts := &TileSet{
		Data:     make([]float64, rows*cols),
		Rows:     rows,
		Cols:     cols,
		TileSize: tileSize,
		GridRows: gridRows,
		GridCols: gridCols,
	}
	return ts, make([]int, rows), nil
}

// tileSlice copies every tile of slice s into its rows of ts
func tileSlice(vol *models.Volume, ts *TileSet, s int) {
	t := ts.TileSize
	src := vol.Slice(s)
	tileIndex := s * ts.TilesPerSlice()

	for r := 0; r < ts.GridRows; r++ {
		for c := 0; c < ts.GridCols; c++ {
			row := ts.Row(tileIndex)
			rowOffset := r * t
			columnOffset := c * t
			for y := 0; y < t; y++ {
				start := (rowOffset+y)*vol.Width + columnOffset
				copy(row[y*t:(y+1)*t], src[start:start+t])
			}
			tileIndex++
		}
	}
}

func fillLabels(ts *TileSet, labels []int, s int) {
	perSlice := ts.TilesPerSlice()
	for i := s * perSlice; i < (s+1)*perSlice; i++ {
		labels[i] = s
	}
}
