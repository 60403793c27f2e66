// Package scales loads clinical scale definitions (Braden, Glasgow, EVA...)
// from a directory of JSON or YAML files.
package scales

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("scale not found")

// Definition is a scale document as written on disk. The registry does not
// interpret it beyond decoding.
type Definition map[string]any

type Registry struct {
	byName map[string]Definition
}

// Load reads every *.json, *.yaml and *.yml file in dir. A scale is named by
// its lower-cased file stem. A missing dir yields an empty registry.
func Load(dir string, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{byName: make(map[string]Definition)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("scales directory missing", zap.String("dir", dir))
			return r, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := readDefinition(path, ext)
		if err != nil {
			return nil, fmt.Errorf("scale %s: %w", path, err)
		}
		name := strings.ToLower(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("scale %q defined twice", name)
		}
		r.byName[name] = def
	}
	log.Info("scales loaded", zap.Int("count", len(r.byName)), zap.String("dir", dir))
	return r, nil
}

// NewRegistry builds a registry from in-memory definitions.
func NewRegistry(defs map[string]Definition) *Registry {
	r := &Registry{byName: make(map[string]Definition, len(defs))}
	for name, def := range defs {
		r.byName[strings.ToLower(name)] = def
	}
	return r
}

func readDefinition(path, ext string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if ext == ".json" {
		err = json.Unmarshal(data, &def)
	} else {
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return nil, err
	}
	if def == nil {
		def = Definition{}
	}
	return def, nil
}

// List returns the scale names in order.
func (r *Registry) List() []string {
	if r == nil {
		return []string{}
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Get(name string) (Definition, error) {
	if r != nil {
		if def, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
