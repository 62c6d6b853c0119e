// Package configsvc implements the external configuration/property-tree
// service of spec.md §6: node registration, an observer callback fired
// on change, and typed string/string-list get/set over "/"-separated
// paths (spec.md §6's property table: data_registry/mapping_ddl_file_paths,
// clock/step_size, ...).
//
// The teacher loads a single static YAML document into a fixed Go
// struct (internal/config.Config); the core instead needs a dynamic
// path-addressed tree (components register nodes at arbitrary paths at
// runtime, spec.md §4.6 "create: register RPC service, register
// configuration node"). This package keeps the teacher's YAML loading
// library (gopkg.in/yaml.v3) but generalizes the destination from a
// fixed struct to a flattened path→value tree, observer callbacks
// included.
package configsvc

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Tree is an in-memory property tree implementing registry.ConfigSource
// (GetString/GetStringList) plus mutation and change-observation.
type Tree struct {
	mu        sync.RWMutex
	values    map[string]string
	lists     map[string][]string
	observers map[string][]func(string)
}

// New constructs an empty Tree.
func New() *Tree {
	return &Tree{
		values:    make(map[string]string),
		lists:     make(map[string][]string),
		observers: make(map[string][]func(string)),
	}
}

// LoadYAML parses a nested YAML document into a Tree, flattening nested
// maps into "/"-separated paths (e.g. `data_registry:\n  renaming_input: "a:b"`
// becomes path "data_registry/renaming_input"). Sequences of scalars
// become string lists; everything else becomes its YAML scalar string
// form.
func LoadYAML(data []byte) (*Tree, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("configsvc: parse yaml: %w", err)
	}
	t := New()
	t.flattenInto("", root)
	return t, nil
}

func (t *Tree) flattenInto(prefix string, node map[string]any) {
	for key, val := range node {
		path := key
		if prefix != "" {
			path = prefix + "/" + key
		}
		switch v := val.(type) {
		case map[string]any:
			t.flattenInto(path, v)
		case []any:
			list := make([]string, 0, len(v))
			for _, item := range v {
				list = append(list, scalarToString(item))
			}
			t.lists[path] = list
		default:
			t.values[path] = scalarToString(val)
		}
	}
}

func scalarToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

// GetString returns the string value registered at path.
func (t *Tree) GetString(path string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[path]
	return v, ok
}

// GetStringList returns the string-list value registered at path.
func (t *Tree) GetStringList(path string) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.lists[path]
	if !ok {
		return nil, false
	}
	out := make([]string, len(v))
	copy(out, v)
	return out, true
}

// SetString registers or updates path's string value, firing any
// observers registered on path (spec.md §6 "observer callback on
// change").
func (t *Tree) SetString(path, value string) {
	t.mu.Lock()
	t.values[path] = value
	cbs := append([]func(string){}, t.observers[path]...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(value)
	}
}

// SetStringList registers or updates path's string-list value.
func (t *Tree) SetStringList(path string, values []string) {
	t.mu.Lock()
	t.lists[path] = append([]string{}, values...)
	t.mu.Unlock()
}

// Observe registers cb to be called with the new value whenever
// SetString is called on path (spec.md §6 "node registration, observer
// callback on change").
func (t *Tree) Observe(path string, cb func(newValue string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers[path] = append(t.observers[path], cb)
}

// Paths returns every registered string-value path, sorted, for
// diagnostics.
func (t *Tree) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.values))
	for p := range t.values {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
