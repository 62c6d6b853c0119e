// Package streamtype implements the stream-type metadata model of
// spec.md §4.1 (C1): a meta-type name plus an ordered bag of
// name → (value, type) properties.
package streamtype

// Well-known meta-type names (spec.md §3). The set is open for user
// extension — these are conventions, not an enumeration.
const (
	MetaAnonymous       = "anonymous"
	MetaPlainCType      = "plain-ctype"
	MetaPlainArrayCType = "plain-array-ctype"
	MetaASCIIString     = "ascii-string"
	MetaVideo           = "video"
	MetaAudio           = "audio"
	MetaDDL             = "ddl"
	MetaDDLFileRef      = "ddl-fileref"
	MetaDDLArray        = "ddl-array"
	MetaDDLFileRefArray = "ddl-fileref-array"

	// MetaHook is the sentinel meta-type name returned by
	// Registry.GetStreamType for a signal that is not registered
	// (spec.md §4.6 getStreamType; grounded on
	// original_source/.../data_registry.cpp returning
	// base::StreamType{base::StreamMetaType{"hook"}} for the same case).
	MetaHook = "hook"
)

// property holds one name's value and type tag. Kept as a struct (not a
// bare map value) so insertion order can be preserved separately from
// the map used for O(1) lookup.
type property struct {
	name  string
	value string
	typ   string
}

// Properties is an ordered name → (value, type) bag. Order is the
// insertion order, preserved for stable enumeration over RPC
// (spec.md §4.1).
type Properties struct {
	order []string
	byName map[string]property
}

// NewProperties returns an empty, ready-to-use property bag.
func NewProperties() *Properties {
	return &Properties{byName: make(map[string]property)}
}

// SetProperty upserts name's value and type tag. An existing name keeps
// its original position in enumeration order; a new name is appended.
func (p *Properties) SetProperty(name, value, typ string) {
	if p.byName == nil {
		p.byName = make(map[string]property)
	}
	if _, exists := p.byName[name]; !exists {
		p.order = append(p.order, name)
	}
	p.byName[name] = property{name: name, value: value, typ: typ}
}

// GetProperty returns name's value, or "" if absent.
func (p *Properties) GetProperty(name string) string {
	return p.byName[name].value
}

// GetPropertyType returns name's type tag, or "" if absent.
func (p *Properties) GetPropertyType(name string) string {
	return p.byName[name].typ
}

// GetPropertyNames returns all property names in insertion order.
func (p *Properties) GetPropertyNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// CopyTo deep-copies every property of p into other, in order.
func (p *Properties) CopyTo(other *Properties) {
	for _, name := range p.order {
		prop := p.byName[name]
		other.SetProperty(prop.name, prop.value, prop.typ)
	}
}

// IsEqual reports unidirectional subset equality: every property of p
// is present in other with an identical value (spec.md §4.1). Type tags
// are not compared — only the value, matching the spec's definition.
func (p *Properties) IsEqual(other *Properties) bool {
	if other == nil {
		return len(p.order) == 0
	}
	for _, name := range p.order {
		want := p.byName[name].value
		got, ok := other.byName[name]
		if !ok || got.value != want {
			return false
		}
	}
	return true
}

// StreamType is a (meta_type_name, properties) tuple (spec.md §3).
type StreamType struct {
	MetaType string
	Props    *Properties
}

// New constructs a StreamType with an empty property bag.
func New(metaType string) *StreamType {
	return &StreamType{MetaType: metaType, Props: NewProperties()}
}

// NewFrom deep-copies an existing StreamType via Properties.CopyTo, per
// spec.md §4.1's "construction from an interface reference must
// deep-copy properties via copyTo".
func NewFrom(other *StreamType) *StreamType {
	st := New(other.MetaType)
	other.Props.CopyTo(st.Props)
	return st
}

// IsEqual is stream-type equality: meta-type names equal and every
// property of s occurs in other with an identical value (spec.md §4.1:
// "Equality of two stream types holds when meta-type names are equal
// and all properties of the left occur with identical values in the
// right"). This is unidirectional, matching operator== in
// fep3::base::StreamType, which calls only lhs.isEqual(rhs).
func (s *StreamType) IsEqual(other *StreamType) bool {
	if other == nil {
		return false
	}
	if s.MetaType != other.MetaType {
		return false
	}
	return s.Props.IsEqual(other.Props)
}

// DDLStruct returns the "ddlstruct" property value, used by the
// registry to decide same-family DDL compatibility on re-registration
// (spec.md §4.6, P2).
func (s *StreamType) DDLStruct() string {
	return s.Props.GetProperty("ddlstruct")
}

// IsDDLFamily reports whether MetaType is one of the four DDL-derived
// meta-types (spec.md §3).
func (s *StreamType) IsDDLFamily() bool {
	switch s.MetaType {
	case MetaDDL, MetaDDLFileRef, MetaDDLArray, MetaDDLFileRefArray:
		return true
	default:
		return false
	}
}
