package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"volumetiles/pkg/config"
	"volumetiles/pkg/export"
	"volumetiles/pkg/tiling"
)

// createTestSlices writes numbered PNG slices with a gradient that varies per slice
func createTestSlices(t *testing.T, dir string, count, width, height int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create input dir: %v", err)
	}
	for s := 0; s < count; s++ {
		img := image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16((s*997 + y*131 + x*17) % 65535)})
			}
		}
		file, err := os.Create(filepath.Join(dir, fmt.Sprintf("slice_%02d.png", s)))
		if err != nil {
			t.Fatalf("Failed to create slice: %v", err)
		}
		if err := png.Encode(file, img); err != nil {
			file.Close()
			t.Fatalf("Failed to encode slice: %v", err)
		}
		file.Close()
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Input.Dir = filepath.Join(root, "input")
	cfg.Output.Dir = filepath.Join(root, "output")
	cfg.Output.Verbose = false
	cfg.Tiling.TileSize = 4
	cfg.Tiling.NumCores = 2
	createTestSlices(t, cfg.Input.Dir, 3, 10, 9)
	return cfg
}

// TestRun runs the full workflow and checks its outputs
func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full pipeline test in short mode")
	}

	cfg := testConfig(t)
	cfg.Output.SaveTileImages = true
	cfg.Output.SaveMosaics = true
	cfg.Similarity.Neighbors = 3

	store := config.NewMemoryStore()
	result, err := Run(context.Background(), cfg, store)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 3 slices of 9x10 with tile 4 -> 2x2 tiles per slice
	if result.Tiles.Rows != 12 || result.Tiles.Cols != 16 {
		t.Fatalf("Expected 12x16 tile set, got %dx%d", result.Tiles.Rows, result.Tiles.Cols)
	}
	wantLabels := []int{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2}
	if !reflect.DeepEqual(result.Labels, wantLabels) {
		t.Errorf("Expected labels %v, got %v", wantLabels, result.Labels)
	}

	ts, labels, err := export.LoadDataset(cfg.Output.Dir)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if !reflect.DeepEqual(ts, result.Tiles) || !reflect.DeepEqual(labels, result.Labels) {
		t.Error("Exported dataset does not match the run result")
	}

	tileImages, err := os.ReadDir(filepath.Join(cfg.Output.Dir, TileImagesDir))
	if err != nil || len(tileImages) != 12 {
		t.Errorf("Expected 12 tile images, got %d (%v)", len(tileImages), err)
	}
	mosaics, err := os.ReadDir(filepath.Join(cfg.Output.Dir, MosaicsDir))
	if err != nil || len(mosaics) != 3 {
		t.Errorf("Expected 3 mosaics, got %d (%v)", len(mosaics), err)
	}

	if len(result.Neighbors) != 3 {
		t.Fatalf("Expected neighbors for 3 slices, got %d", len(result.Neighbors))
	}
	for s, matches := range result.Neighbors {
		if len(matches) != 3 {
			t.Errorf("Expected 3 matches for slice %d, got %d", s, len(matches))
		}
		// Center tile of a 2x2 grid is tile 3
		if matches[0].Tile != s*4+3 || matches[0].Distance != 0 {
			t.Errorf("Expected slice %d center tile first, got %+v", s, matches[0])
		}
	}

	if v, err := store.Get(config.KeyTileSize); err != nil || v != "4" {
		t.Errorf("Expected persisted tile size 4, got %q (%v)", v, err)
	}
}

// TestRunNormalize verifies normalization statistics are exported and map
// the exported tiles back to the raw samples
func TestRunNormalize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tiling.Normalize = true

	result, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Normalization == nil || len(result.Normalization.Mean) != 16 {
		t.Fatal("Expected normalization statistics for 16 features")
	}

	norm, err := export.LoadNormalization(cfg.Output.Dir)
	if err != nil {
		t.Fatalf("LoadNormalization failed: %v", err)
	}
	ts, _, err := export.LoadDataset(cfg.Output.Dir)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	norm.Invert(ts)

	raw, _, err := tiling.Tile(result.Volume, cfg.Tiling.TileSize)
	if err != nil {
		t.Fatalf("Tile failed: %v", err)
	}
	for i := range raw.Data {
		if math.Abs(ts.Data[i]-raw.Data[i]) > 1e-9 {
			t.Fatalf("Sample %d: expected %v after inversion, got %v", i, raw.Data[i], ts.Data[i])
		}
	}

	// A later run without normalization must not leave stale statistics behind
	cfg.Tiling.Normalize = false
	if _, err := Run(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.Dir, export.NormalizationFile)); !os.IsNotExist(err) {
		t.Errorf("Expected normalization file to be removed, got %v", err)
	}
}

// TestRunOversizedTile verifies an oversized tile yields an empty dataset, not an error
func TestRunOversizedTile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tiling.TileSize = 64
	cfg.Output.SaveMosaics = true
	cfg.Similarity.Neighbors = 2

	result, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Tiles.Rows != 0 || len(result.Labels) != 0 {
		t.Errorf("Expected empty output, got %d tiles", result.Tiles.Rows)
	}
	if result.Neighbors != nil {
		t.Error("Expected no neighbor search on an empty tile set")
	}
}

func TestRunErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tiling.TileSize = 0
	if _, err := Run(context.Background(), cfg, nil); err == nil {
		t.Error("Expected error for zero tile size")
	}

	cfg = testConfig(t)
	cfg.Input.Dir = filepath.Join(t.TempDir(), "missing")
	if _, err := Run(context.Background(), cfg, nil); err == nil {
		t.Error("Expected error for missing input directory")
	}

	cfg = testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, cfg, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
