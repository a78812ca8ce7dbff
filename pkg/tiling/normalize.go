package tiling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Normalization holds per-feature statistics used to standardize tiles
type Normalization struct {
	Mean []float64
	Std  []float64
}

// TileStats summarizes the samples of a single tile
type TileStats struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Normalize standardizes every feature column of ts in place to zero mean and
// unit variance. Columns with zero variance are only centered.
func Normalize(ts *TileSet) (*Normalization, error) {
	if ts.Rows == 0 {
		return nil, fmt.Errorf("cannot normalize an empty tile set")
	}

	n := &Normalization{
		Mean: make([]float64, ts.Cols),
		Std:  make([]float64, ts.Cols),
	}

	column := make([]float64, ts.Rows)
	for j := 0; j < ts.Cols; j++ {
		for i := 0; i < ts.Rows; i++ {
			column[i] = ts.Data[i*ts.Cols+j]
		}
		// Population deviation keeps single-tile sets finite
		mean := stat.Mean(column, nil)
		n.Mean[j] = mean
		n.Std[j] = math.Sqrt(stat.MomentAbout(2, column, mean, nil))
	}

	n.Apply(ts)
	return n, nil
}

// Apply standardizes ts in place using the stored statistics
func (n *Normalization) Apply(ts *TileSet) {
	for i := 0; i < ts.Rows; i++ {
		row := ts.Row(i)
		floats.Sub(row, n.Mean)
		for j := range row {
			if n.Std[j] > 0 {
				row[j] /= n.Std[j]
			}
		}
	}
}

// Invert maps standardized tiles back to the original sample range
func (n *Normalization) Invert(ts *TileSet) {
	for i := 0; i < ts.Rows; i++ {
		row := ts.Row(i)
		for j := range row {
			if n.Std[j] > 0 {
				row[j] *= n.Std[j]
			}
		}
		floats.Add(row, n.Mean)
	}
}

// Stats computes summary statistics for every tile
func Stats(ts *TileSet) []TileStats {
	out := make([]TileStats, ts.Rows)
	for i := range out {
		row := ts.Row(i)
		mean, std := stat.MeanStdDev(row, nil)
		if len(row) < 2 {
			std = 0
		}
		out[i] = TileStats{
			Mean: mean,
			Std:  std,
			Min:  floats.Min(row),
			Max:  floats.Max(row),
		}
	}
	return out
}
