package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"volumetiles/pkg/config"
	"volumetiles/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "volumetiles.yaml", "Path to the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	inputDir := flag.String("input", "", "Directory containing 2D slice images")
	outputDir := flag.String("output", "", "Directory for the exported tiles")
	tileSize := flag.Int("tile", 0, "Tile edge length in pixels")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	normalize := flag.Bool("normalize", false, "Standardize tile features")
	neighbors := flag.Int("neighbors", -1, "Nearest tiles to report per slice")
	saveTiles := flag.Bool("save-tiles", false, "Save every tile as an image")
	saveMosaics := flag.Bool("save-mosaics", false, "Save one tile mosaic per slice")
	quiet := flag.Bool("quiet", false, "Suppress progress output")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Dir = *inputDir
		case "output":
			cfg.Output.Dir = *outputDir
		case "tile":
			cfg.Tiling.TileSize = *tileSize
		case "cores":
			cfg.Tiling.NumCores = *numCores
		case "normalize":
			cfg.Tiling.Normalize = *normalize
		case "neighbors":
			cfg.Similarity.Neighbors = *neighbors
		case "save-tiles":
			cfg.Output.SaveTileImages = *saveTiles
		case "save-mosaics":
			cfg.Output.SaveMosaics = *saveMosaics
		case "quiet":
			cfg.Output.Verbose = !*quiet
		}
	})

	if cfg.Input.Dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	store, err := config.NewFileStore(filepath.Join(cfg.Output.Dir, pipeline.ParamsFile))
	if err != nil {
		log.Fatalf("Failed to open parameter store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := pipeline.Run(ctx, cfg, store)
	if err != nil {
		log.Fatalf("Tiling failed: %v", err)
	}

	if !cfg.Output.Verbose {
		return
	}

	fmt.Printf("\nTiling completed in %.2f seconds\n", result.Duration.Seconds())
	fmt.Printf("Volume: %d slices of %dx%d\n", result.Volume.Slices, result.Volume.Width, result.Volume.Height)
	fmt.Printf("Tiles: %d x %d features\n", result.Tiles.Rows, result.Tiles.Cols)
	fmt.Printf("Dataset saved to: %s\n", cfg.Output.Dir)

	for s := 0; s < len(result.Neighbors); s++ {
		fmt.Printf("Slice %d center tile neighbors:", s)
		for _, m := range result.Neighbors[s] {
			fmt.Printf(" tile %d (slice %d, d=%.4f)", m.Tile, m.Slice, m.Distance)
		}
		fmt.Println()
	}
}
