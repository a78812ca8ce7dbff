package models

import (
	"fmt"
	"image"
)

// Slice represents a single image slice loaded from disk
type Slice struct {
	// Image is the decoded slice image
	Image image.Image

	// Index is the position of this slice in the stack
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Volume represents a stack of 2D slices with shape (Slices, Height, Width)
type Volume struct {
	// Data holds the samples in row-major order: slice, then row, then column
	Data []float64

	// Slices is the number of 2D slices in the stack
	Slices int

	// Height is the number of rows in each slice
	Height int

	// Width is the number of columns in each slice
	Width int
}

// NewVolume allocates a zeroed volume of the given shape
func NewVolume(slices, height, width int) *Volume {
	return &Volume{
		Data:   make([]float64, slices*height*width),
		Slices: slices,
		Height: height,
		Width:  width,
	}
}

// Validate checks that the dimensions are positive and match the data length
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("volume is nil")
	}
	if v.Slices < 1 || v.Height < 1 || v.Width < 1 {
		return fmt.Errorf("invalid volume shape (%d, %d, %d)", v.Slices, v.Height, v.Width)
	}
	if len(v.Data) != v.Slices*v.Height*v.Width {
		return fmt.Errorf("volume data length %d does not match shape (%d, %d, %d)",
			len(v.Data), v.Slices, v.Height, v.Width)
	}
	return nil
}

// At returns the sample at slice s, row y, column x
func (v *Volume) At(s, y, x int) float64 {
	return v.Data[s*v.Height*v.Width+y*v.Width+x]
}

// Set stores a sample at slice s, row y, column x
func (v *Volume) Set(s, y, x int, value float64) {
	v.Data[s*v.Height*v.Width+y*v.Width+x] = value
}

// Slice returns the samples of slice s. The result shares storage with the volume.
func (v *Volume) Slice(s int) []float64 {
	size := v.Height * v.Width
	return v.Data[s*size : (s+1)*size]
}

// Shape returns (slices, height, width)
func (v *Volume) Shape() (int, int, int) {
	return v.Slices, v.Height, v.Width
}
