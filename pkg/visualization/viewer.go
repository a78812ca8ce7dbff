package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"volumetiles/internal/models"
)

// Viewer extracts 2D planes from a volume for inspection. It is used both on
// input volumes and on tile stacks reshaped to (tiles, T, T).
type Viewer struct {
	vol *models.Volume

	// low and high map samples to the gray range
	low  float64
	high float64
}

// NewViewer creates a viewer that maps [0, 1] samples to the full gray range
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol, low: 0, high: 1}
}

// NewAutoContrastViewer creates a viewer whose gray range spans the volume's
// minimum and maximum sample, ignoring NaN. Useful for normalized tiles.
func NewAutoContrastViewer(vol *models.Volume) *Viewer {
	low, high := math.Inf(1), math.Inf(-1)
	for _, v := range vol.Data {
		if math.IsNaN(v) {
			continue
		}
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	if !(high > low) || math.IsInf(high-low, 0) {
		low, high = 0, 1
	}
	return &Viewer{vol: vol, low: low, high: high}
}

// gray maps a sample to the viewer's range. NaN is rendered black.
func (v *Viewer) gray(value float64) color.Gray16 {
	if math.IsNaN(value) {
		return color.Gray16{}
	}
	scaled := (value - v.low) / (v.high - v.low)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, scaled*65535)))}
}

// ExtractSlice extracts a 2D plane from the volume along the specified axis.
// Axis z returns slice images, x and y return cross sections through the stack.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	depth, height, width := v.vol.Shape()
	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, width)
		}

		img = image.NewGray16(image.Rect(0, 0, depth, height))
		for y := 0; y < height; y++ {
			for z := 0; z < depth; z++ {
				img.SetGray16(z, y, v.gray(v.vol.At(z, y, position)))
			}
		}

	case "y", "Y":
		if position >= height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, height)
		}

		img = image.NewGray16(image.Rect(0, 0, width, depth))
		for z := 0; z < depth; z++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, z, v.gray(v.vol.At(z, position, x)))
			}
		}

	case "z", "Z":
		if position >= depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, depth)
		}

		img = image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, v.gray(v.vol.At(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every plane along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	depth, height, width := v.vol.Shape()
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = width
	case "y", "Y":
		maxPos = height
	case "z", "Z":
		maxPos = depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
