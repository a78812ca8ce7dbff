// Package pipeline runs the complete tiling workflow: loading a slice stack,
// tiling it, optionally normalizing, exporting the dataset and writing the
// requested previews.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"volumetiles/internal/models"
	"volumetiles/pkg/config"
	"volumetiles/pkg/export"
	"volumetiles/pkg/similarity"
	"volumetiles/pkg/tiling"
	"volumetiles/pkg/visualization"
	"volumetiles/pkg/volume"
)

// Output subdirectories
const (
	TileImagesDir = "tile_images"
	MosaicsDir    = "mosaics"
	ParamsFile    = "params.yaml"
)

// Result describes a completed run
type Result struct {
	// Volume is the loaded input
	Volume *models.Volume

	// Tiles and Labels are the tiling output, normalized if requested
	Tiles  *tiling.TileSet
	Labels []int

	// Normalization is set when tiles were standardized
	Normalization *tiling.Normalization

	// Neighbors maps a slice index to the tiles nearest its center tile
	Neighbors map[int][]similarity.Match

	// Duration is the wall time of the run
	Duration time.Duration
}

// Run executes the workflow described by cfg. Parameters are recorded in
// store when it is non-nil. Cancellation is checked between stages.
func Run(ctx context.Context, cfg *config.Config, store config.Store) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	start := time.Now()
	logf := func(format string, args ...interface{}) {
		if cfg.Output.Verbose {
			fmt.Printf(format, args...)
		}
	}

	// Step 1: Load slices
	logf("Step 1: Loading input slices...\n")
	vol, _, err := volume.LoadSlices(cfg.Input.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load slices: %w", err)
	}
	logf("Loaded %d slices with dimensions %dx%d\n", vol.Slices, vol.Width, vol.Height)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: Tile
	logf("Step 2: Tiling with tile size %d on %d cores...\n", cfg.Tiling.TileSize, cfg.Tiling.NumCores)
	ts, labels, err := tiling.TileParallel(vol, cfg.Tiling.TileSize, cfg.Tiling.NumCores)
	if err != nil {
		return nil, fmt.Errorf("failed to tile volume: %w", err)
	}
	logf("Produced %d tiles of %d samples (%dx%d per slice)\n", ts.Rows, ts.Cols, ts.GridRows, ts.GridCols)
	if ts.Rows == 0 {
		logf("Warning: tile size %d exceeds slice dimensions %dx%d, no tiles produced\n",
			cfg.Tiling.TileSize, vol.Width, vol.Height)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Volume: vol, Tiles: ts, Labels: labels}

	// Step 3: Normalize
	if cfg.Tiling.Normalize && ts.Rows > 0 {
		logf("Step 3: Normalizing tile features...\n")
		norm, err := tiling.Normalize(ts)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize tiles: %w", err)
		}
		result.Normalization = norm
	}

	// Step 4: Export
	logf("Step 4: Exporting dataset to %s...\n", cfg.Output.Dir)
	if err := export.SaveDataset(cfg.Output.Dir, ts, labels); err != nil {
		return nil, fmt.Errorf("failed to export dataset: %w", err)
	}
	normPath := filepath.Join(cfg.Output.Dir, export.NormalizationFile)
	if result.Normalization != nil {
		if err := export.SaveNormalization(cfg.Output.Dir, result.Normalization); err != nil {
			return nil, fmt.Errorf("failed to export normalization: %w", err)
		}
	} else if err := os.Remove(normPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Statistics left by an earlier normalized run would not match these tiles
		return nil, fmt.Errorf("failed to remove stale normalization: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 5: Previews
	if cfg.Output.SaveTileImages && ts.Rows > 0 {
		dir := filepath.Join(cfg.Output.Dir, TileImagesDir)
		logf("Step 5: Saving tile images to %s...\n", dir)
		viewer := visualization.NewAutoContrastViewer(tiling.Reshape(ts))
		if err := viewer.SaveSliceSequence("z", dir); err != nil {
			return nil, fmt.Errorf("failed to save tile images: %w", err)
		}
	}
	if cfg.Output.SaveMosaics && ts.Rows > 0 {
		dir := filepath.Join(cfg.Output.Dir, MosaicsDir)
		logf("Step 5: Saving tile mosaics to %s...\n", dir)
		if err := visualization.SaveMosaics(ts, dir); err != nil {
			return nil, fmt.Errorf("failed to save mosaics: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 6: Similarity
	if cfg.Similarity.Neighbors > 0 && ts.Rows > 0 {
		logf("Step 6: Finding %d nearest tiles per slice...\n", cfg.Similarity.Neighbors)
		neighbors, err := findNeighbors(ctx, ts, labels, cfg.Similarity.Neighbors)
		if err != nil {
			return nil, fmt.Errorf("failed to search similar tiles: %w", err)
		}
		result.Neighbors = neighbors
	}

	if store != nil {
		if err := config.SaveParams(store, cfg); err != nil {
			return nil, fmt.Errorf("failed to persist parameters: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// findNeighbors queries the center tile of every slice
func findNeighbors(ctx context.Context, ts *tiling.TileSet, labels []int, k int) (map[int][]similarity.Match, error) {
	index, err := similarity.NewIndex(ts, labels)
	if err != nil {
		return nil, err
	}

	perSlice := ts.TilesPerSlice()
	center := (ts.GridRows/2)*ts.GridCols + ts.GridCols/2
	out := make(map[int][]similarity.Match, ts.Rows/perSlice)
	for s := 0; s < ts.Rows/perSlice; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := index.Nearest(ts.Row(s*perSlice+center), k)
		if err != nil {
			return nil, err
		}
		out[s] = matches
	}
	return out, nil
}
