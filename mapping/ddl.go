// Package mapping implements the DDL description manager and the
// trigger-driven synthesis engine of spec.md §4.6 (C5): loadDDL/mergeDDL,
// resolveType (memoized), and a mapping Engine that produces target
// samples whenever a configured trigger source produces one, with
// non-trigger sources cached "last-seen".
//
// DDL ("Data Definition Language") is FEP3's struct/field description
// format (see original_source/src/fep3/native_components/data_registry
// /ddl_manager.{h,cpp}); it is expressed here as a small XML dialect
// parsed with the stdlib encoding/xml (no third-party XML library
// appears anywhere in the example pack — see DESIGN.md).
package mapping

import (
	"encoding/xml"
	"fmt"
	"sort"
	"sync"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
)

// Field is one named, typed member of a DDL struct.
type Field struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

// Struct is one DDL struct description: a name plus an ordered field
// list. Field order matters for layout, so it is preserved verbatim
// from the source document.
type Struct struct {
	Name   string  `xml:"name,attr"`
	Fields []Field `xml:"element"`
}

// document is the on-the-wire shape of a DDL description.
type document struct {
	XMLName xml.Name `xml:"ddl"`
	Structs []Struct `xml:"structs>struct"`
}

func (s Struct) equal(other Struct) bool {
	if s.Name != other.Name || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// DDLManager owns the participant's current DDL description (spec.md
// §4.6 "DDL management"). Zero value is ready to use.
type DDLManager struct {
	mu      sync.RWMutex
	order   []string
	structs map[string]Struct

	resolveMu    sync.Mutex
	resolveCache map[string]string
}

// NewDDLManager returns an empty manager.
func NewDDLManager() *DDLManager {
	return &DDLManager{
		structs:      make(map[string]Struct),
		resolveCache: make(map[string]string),
	}
}

// LoadDDL replaces the internal description wholesale (spec.md §4.6
// "loadDDL(text) (replace)").
func (m *DDLManager) LoadDDL(text string) error {
	doc, err := parseDocument(text)
	if err != nil {
		return coreerr.New(coreerr.InvalidArg, "load DDL: "+err.Error())
	}

	m.mu.Lock()
	m.order = nil
	m.structs = make(map[string]Struct, len(doc.Structs))
	for _, s := range doc.Structs {
		m.order = append(m.order, s.Name)
		m.structs[s.Name] = s
	}
	m.mu.Unlock()

	m.clearResolveCache()
	return nil
}

// MergeDDL adds doc's structs to the existing description (spec.md
// §4.6 "mergeDDL(text) (additive; duplicate datatype/struct names that
// conflict fail with ERR_INVALID_ARG including the offender's name)").
// A struct of the same name with identical fields is a no-op, not a
// conflict.
func (m *DDLManager) MergeDDL(text string) error {
	doc, err := parseDocument(text)
	if err != nil {
		return coreerr.New(coreerr.InvalidArg, "merge DDL: "+err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range doc.Structs {
		existing, ok := m.structs[s.Name]
		if ok {
			if existing.equal(s) {
				continue
			}
			return coreerr.New(coreerr.InvalidArg, fmt.Sprintf("merge DDL: conflicting definition for %q", s.Name))
		}
		m.order = append(m.order, s.Name)
		m.structs[s.Name] = s
	}
	m.clearResolveCache()
	return nil
}

// ResolveType returns a minimal self-contained DDL description string
// containing only structName and the structs it transitively
// references, memoized across calls (spec.md §4.6 "it memoizes").
func (m *DDLManager) ResolveType(structName string) (string, error) {
	m.resolveMu.Lock()
	if cached, ok := m.resolveCache[structName]; ok {
		m.resolveMu.Unlock()
		return cached, nil
	}
	m.resolveMu.Unlock()

	m.mu.RLock()
	root, ok := m.structs[structName]
	if !ok {
		m.mu.RUnlock()
		return "", coreerr.New(coreerr.NotFound, "resolve type: "+structName)
	}
	closure := m.transitiveClosureLocked(root)
	m.mu.RUnlock()

	out, err := xml.MarshalIndent(document{Structs: closure}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal resolved type %s: %w", structName, err)
	}
	result := string(out)

	m.resolveMu.Lock()
	m.resolveCache[structName] = result
	m.resolveMu.Unlock()
	return result, nil
}

func (m *DDLManager) transitiveClosureLocked(root Struct) []Struct {
	seen := map[string]bool{}
	var closure []Struct
	var visit func(s Struct)
	visit = func(s Struct) {
		if seen[s.Name] {
			return
		}
		seen[s.Name] = true
		closure = append(closure, s)
		for _, f := range s.Fields {
			if dep, ok := m.structs[f.Type]; ok {
				visit(dep)
			}
		}
	}
	visit(root)
	sort.Slice(closure, func(i, j int) bool { return closure[i].Name < closure[j].Name })
	return closure
}

func (m *DDLManager) clearResolveCache() {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()
	m.clearResolveCacheLocked()
}

func (m *DDLManager) clearResolveCacheLocked() {
	m.resolveCache = make(map[string]string)
}

// StructNames returns the currently known struct names in load/merge
// order.
func (m *DDLManager) StructNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Lookup returns the struct description for name, if known.
func (m *DDLManager) Lookup(name string) (Struct, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.structs[name]
	return s, ok
}

func parseDocument(text string) (document, error) {
	var doc document
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}
