// Package volume loads stacks of 2D slice images into volumes and converts
// between gray images and float samples.
package volume

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"volumetiles/internal/models"
)

// LoadSlices loads every JPEG and PNG image in dir as one slice of a volume.
//
// Files are ordered by the number embedded in their names so that the
// anatomical order of the stack is preserved. All slices must share the
// dimensions of the first one. Samples are gray values in [0, 1].
func LoadSlices(dir string) (*models.Volume, []models.Slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isImageFile(entry.Name()) {
			imageFiles = append(imageFiles, entry.Name())
		}
	}

	if len(imageFiles) == 0 {
		return nil, nil, fmt.Errorf("no JPG or PNG images found in %s", dir)
	}

	// Numbered files first, by their last digit run, then by name
	sort.SliceStable(imageFiles, func(i, j int) bool {
		numI, okI := extractNumber(imageFiles[i])
		numJ, okJ := extractNumber(imageFiles[j])
		if okI != okJ {
			return okI
		}
		if okI && numI != numJ {
			return numI < numJ
		}
		return imageFiles[i] < imageFiles[j]
	})

	slices := make([]models.Slice, 0, len(imageFiles))
	images := make([]image.Image, 0, len(imageFiles))
	for i, filename := range imageFiles {
		img, err := loadImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load image %s: %w", filename, err)
		}
		slices = append(slices, models.Slice{Image: img, Index: i, Filename: filename})
		images = append(images, img)
	}

	vol, err := FromImages(images)
	if err != nil {
		return nil, nil, err
	}
	return vol, slices, nil
}

// FromImages stacks images into a volume. All images must have the same size.
func FromImages(images []image.Image) (*models.Volume, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to stack")
	}

	bounds := images[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("first image is empty")
	}

	vol := models.NewVolume(len(images), height, width)
	for i, img := range images {
		b := img.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("slice %d has dimensions %dx%d, expected %dx%d",
				i, b.Dx(), b.Dy(), width, height)
		}
		copy(vol.Slice(i), ImageToFloat(img))
	}

	return vol, nil
}

// ImageToFloat converts an image to gray samples in [0, 1], row-major
func ImageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			result[y*width+x] = float64(gray.Y) / 65535.0
		}
	}

	return result
}

// FloatToImage converts samples in [0, 1] to a 16-bit gray image.
// Values outside the range are clamped and NaN maps to black.
func FloatToImage(data []float64, width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if idx < len(data) {
				img.SetGray16(x, y, color.Gray16{Y: toGray16(data[idx])})
			}
		}
	}

	return img
}

func toGray16(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 65535
	}
	return uint16(v*65535.0 + 0.5)
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// extractNumber returns the last run of digits in a filename, ignoring the
// extension. It reports false when there is none or it does not fit an int.
func extractNumber(filename string) (int, bool) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	end := strings.LastIndexFunc(base, isDigit)
	if end < 0 {
		return 0, false
	}
	start := end
	for start > 0 && isDigit(rune(base[start-1])) {
		start--
	}

	num, err := strconv.Atoi(base[start : end+1])
	if err != nil {
		return 0, false
	}
	return num, true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// loadImage decodes a JPEG or PNG file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Decode(file)
	default:
		return jpeg.Decode(file)
	}
}
