package types

import (
	"encoding/json"
	"strings"
)

// ValueKind discriminates the Value union.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindList
)

// Value is a prop value: either a single piece of text or an ordered list of
// text items. Attribute values always arrive as scalars; lists come from
// callers that already hold structured data.
type Value struct {
	kind   ValueKind
	scalar string
	list   []string
}

// Scalar returns a scalar value.
func Scalar(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// List returns a list value. The slice is copied.
func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)

	return Value{kind: KindList, list: cp}
}

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind {
	return v.kind
}

// String renders v as text. Lists are joined with commas.
func (v Value) String() string {
	if v.kind == KindList {
		return strings.Join(v.list, ",")
	}

	return v.scalar
}

// Items returns the elements a loop iterates over. A scalar is split on
// commas; there is no escaping, so a scalar containing a literal comma
// always yields several items.
func (v Value) Items() []string {
	if v.kind == KindList {
		cp := make([]string, len(v.list))
		copy(cp, v.list)

		return cp
	}

	return strings.Split(v.scalar, ",")
}

// MarshalJSON encodes scalars as strings and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindList {
		if v.list == nil {
			return []byte("[]"), nil
		}

		return json.Marshal(v.list)
	}

	return json.Marshal(v.scalar)
}

// Prop is one named value.
type Prop struct {
	Name  string
	Value Value
}

// Props is an insertion-ordered prop mapping.
type Props struct {
	entries []Prop
	index   map[string]int
}

// NewProps builds Props from alternating name/value string pairs, mostly for
// tests and literals.
func NewProps(pairs ...string) Props {
	var p Props
	for i := 0; i+1 < len(pairs); i += 2 {
		p.Set(pairs[i], Scalar(pairs[i+1]))
	}

	return p
}

// Set assigns name. A new name is appended; an existing one keeps its
// position and takes the new value.
func (p *Props) Set(name string, v Value) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[name]; ok {
		p.entries[i].Value = v

		return
	}
	p.index[name] = len(p.entries)
	p.entries = append(p.entries, Prop{Name: name, Value: v})
}

// Get looks up name.
func (p Props) Get(name string) (Value, bool) {
	i, ok := p.index[name]
	if !ok {
		return Value{}, false
	}

	return p.entries[i].Value, true
}

// Len returns the number of props.
func (p Props) Len() int {
	return len(p.entries)
}

// Entries returns the props in insertion order.
func (p Props) Entries() []Prop {
	cp := make([]Prop, len(p.entries))
	copy(cp, p.entries)

	return cp
}

// Serialize returns a deterministic encoding of p that preserves insertion
// order: a JSON array of [name, value] pairs. Two Props serialize equally
// iff they hold the same names, in the same order, with equal values.
func (p Props) Serialize() string {
	pairs := make([][2]interface{}, len(p.entries))
	for i, e := range p.entries {
		pairs[i] = [2]interface{}{e.Name, e.Value}
	}

	b, err := json.Marshal(pairs)
	if err != nil {
		// Strings and string slices always marshal.
		panic(err)
	}

	return string(b)
}
