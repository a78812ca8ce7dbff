package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by a Store when a key has no value
var ErrNotFound = errors.New("not found")

// Store persists run parameters as string key/value pairs
type Store interface {
	Get(key string) (string, error)
	Put(key, value string) error
	Keys() []string
}

// Parameter keys written by SaveParams
const (
	KeyTileSize       = "tiling.tileSize"
	KeyNumCores       = "tiling.numCores"
	KeyNormalize      = "tiling.normalize"
	KeyInputDir       = "input.dir"
	KeyOutputDir      = "output.dir"
	KeySaveTileImages = "output.saveTileImages"
	KeySaveMosaics    = "output.saveMosaics"
	KeyNeighbors      = "similarity.neighbors"
)

// MemoryStore keeps parameters in memory
type MemoryStore struct {
	lk   sync.Mutex
	data map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]string{}}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (s *MemoryStore) Put(key, value string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Keys() []string {
	s.lk.Lock()
	defer s.lk.Unlock()
	return sortedKeys(s.data)
}

// FileStore keeps parameters in a YAML file, rewritten on every Put
type FileStore struct {
	lk   sync.Mutex
	path string
	data map[string]string
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens the store at path, loading existing values if the file exists
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading parameter file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("error parsing parameter file: %w", err)
	}
	if s.data == nil {
		s.data = map[string]string{}
	}
	return s, nil
}

func (s *FileStore) Get(key string) (string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (s *FileStore) Put(key, value string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = value

	out, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("error marshaling parameters: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("error creating parameter directory: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0644); err != nil {
		return fmt.Errorf("error writing parameter file: %w", err)
	}
	return nil
}

func (s *FileStore) Keys() []string {
	s.lk.Lock()
	defer s.lk.Unlock()
	return sortedKeys(s.data)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveParams writes the run parameters of cfg into store
func SaveParams(store Store, cfg *Config) error {
	params := map[string]string{
		KeyTileSize:       strconv.Itoa(cfg.Tiling.TileSize),
		KeyNumCores:       strconv.Itoa(cfg.Tiling.NumCores),
		KeyNormalize:      strconv.FormatBool(cfg.Tiling.Normalize),
		KeyInputDir:       cfg.Input.Dir,
		KeyOutputDir:      cfg.Output.Dir,
		KeySaveTileImages: strconv.FormatBool(cfg.Output.SaveTileImages),
		KeySaveMosaics:    strconv.FormatBool(cfg.Output.SaveMosaics),
		KeyNeighbors:      strconv.Itoa(cfg.Similarity.Neighbors),
	}
	for _, key := range sortedKeys(params) {
		if err := store.Put(key, params[key]); err != nil {
			return err
		}
	}
	return nil
}

// LoadParams overrides cfg with every parameter present in store.
// Missing keys leave the current value untouched.
func LoadParams(store Store, cfg *Config) error {
	ints := map[string]*int{
		KeyTileSize:  &cfg.Tiling.TileSize,
		KeyNumCores:  &cfg.Tiling.NumCores,
		KeyNeighbors: &cfg.Similarity.Neighbors,
	}
	bools := map[string]*bool{
		KeyNormalize:      &cfg.Tiling.Normalize,
		KeySaveTileImages: &cfg.Output.SaveTileImages,
		KeySaveMosaics:    &cfg.Output.SaveMosaics,
	}
	strs := map[string]*string{
		KeyInputDir:  &cfg.Input.Dir,
		KeyOutputDir: &cfg.Output.Dir,
	}

	for key, dst := range ints {
		v, err := lookup(store, key)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		n, err := strconv.Atoi(*v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = n
	}
	for key, dst := range bools {
		v, err := lookup(store, key)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		b, err := strconv.ParseBool(*v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = b
	}
	for key, dst := range strs {
		v, err := lookup(store, key)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		*dst = *v
	}
	return nil
}

// lookup returns nil when the key is absent
func lookup(store Store, key string) (*string, error) {
	v, err := store.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
