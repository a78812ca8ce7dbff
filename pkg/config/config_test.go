package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Tiling.TileSize != 16 {
		t.Errorf("Expected default tile size 16, got %d", cfg.Tiling.TileSize)
	}
	if cfg.Tiling.NumCores <= 0 {
		t.Errorf("Expected positive default core count, got %d", cfg.Tiling.NumCores)
	}
	if !cfg.Output.Verbose {
		t.Error("Expected verbose output by default")
	}
}

// TestLoadConfigMissingFile verifies defaults are returned for a missing file
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Error("Expected default configuration for missing file")
	}
}

// TestConfigRoundTrip verifies SaveConfig output loads back unchanged
func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Tiling.TileSize = 32
	cfg.Tiling.Normalize = true
	cfg.Input.Dir = "/data/slices"
	cfg.Similarity.Neighbors = 5

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("Expected %+v, got %+v", cfg, loaded)
	}
}

// TestLoadConfigPartial verifies unspecified fields keep their defaults
func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tiling:\n  tileSize: 8\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Tiling.TileSize != 8 {
		t.Errorf("Expected tile size 8, got %d", cfg.Tiling.TileSize)
	}
	if cfg.Output.Dir != DefaultConfig().Output.Dir {
		t.Errorf("Expected default output dir, got %q", cfg.Output.Dir)
	}

	if err := os.WriteFile(path, []byte("tiling: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file to exist: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Input.Dir = "in"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"zero tile size":     func(c *Config) { c.Tiling.TileSize = 0 },
		"negative cores":     func(c *Config) { c.Tiling.NumCores = -1 },
		"missing input":      func(c *Config) { c.Input.Dir = "" },
		"missing output":     func(c *Config) { c.Output.Dir = "" },
		"negative neighbors": func(c *Config) { c.Similarity.Neighbors = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

// TestStores exercises both store implementations with the same checks
func TestStores(t *testing.T) {
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "params.yaml"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
			if err := store.Put("b", "2"); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Put("a", "1"); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			v, err := store.Get("a")
			if err != nil || v != "1" {
				t.Errorf("Expected a=1, got %q (%v)", v, err)
			}
			if keys := store.Keys(); !reflect.DeepEqual(keys, []string{"a", "b"}) {
				t.Errorf("Expected sorted keys [a b], got %v", keys)
			}
		})
	}
}

// TestFileStorePersists verifies values survive reopening the store
func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Put(KeyTileSize, "24"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	v, err := reopened.Get(KeyTileSize)
	if err != nil || v != "24" {
		t.Errorf("Expected persisted tile size 24, got %q (%v)", v, err)
	}
}

// TestParamsRoundTrip verifies SaveParams/LoadParams restore a configuration
func TestParamsRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tiling.TileSize = 12
	cfg.Tiling.NumCores = 3
	cfg.Tiling.Normalize = true
	cfg.Input.Dir = "in"
	cfg.Output.Dir = "out"
	cfg.Output.SaveMosaics = true
	cfg.Similarity.Neighbors = 4

	store := NewMemoryStore()
	if err := SaveParams(store, cfg); err != nil {
		t.Fatalf("SaveParams failed: %v", err)
	}

	restored := DefaultConfig()
	if err := LoadParams(store, restored); err != nil {
		t.Fatalf("LoadParams failed: %v", err)
	}
	if !reflect.DeepEqual(restored, cfg) {
		t.Errorf("Expected %+v, got %+v", cfg, restored)
	}
}

func TestLoadParamsPartialAndInvalid(t *testing.T) {
	store := NewMemoryStore()
	store.Put(KeyTileSize, "20")

	cfg := DefaultConfig()
	if err := LoadParams(store, cfg); err != nil {
		t.Fatalf("LoadParams failed: %v", err)
	}
	if cfg.Tiling.TileSize != 20 {
		t.Errorf("Expected tile size 20, got %d", cfg.Tiling.TileSize)
	}
	if cfg.Output.Dir != DefaultConfig().Output.Dir {
		t.Errorf("Expected output dir untouched, got %q", cfg.Output.Dir)
	}

	store.Put(KeyNormalize, "maybe")
	if err := LoadParams(store, cfg); err == nil {
		t.Error("Expected error for invalid boolean")
	}
}
