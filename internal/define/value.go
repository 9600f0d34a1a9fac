// Copyright 2017 Teriks
//
// Package define implements the Define Store's tagged-value type: the
// literal grammar accepted by the engine's "-D name=value" command-line
// definitions and carried across the subpake process boundary.
//
// Values are immutable once constructed. Every constructor here produces a
// Value whose Serialize output re-Parses to an equal Value, which is the
// round-trip invariant the subpake bridge depends on.
package define

import "fmt"

// Kind identifies which alternative of the literal grammar a Value holds.
type Kind int

const (
	Int Kind = iota
	Float
	Bool
	String
	Sequence
	Set
	Mapping
	Tuple
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Set:
		return "set"
	case Mapping:
		return "mapping"
	case Tuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Entry is one key/value pair of a Mapping value.
type Entry struct {
	Key Value
	Val Value
}

// Value is a tagged union over the literal grammar described in spec.md §4.7:
// integer, floating-point, boolean, string, ordered sequence, set, mapping,
// and tuple. The zero Value is the integer 0.
type Value struct {
	kind Kind

	i   int64
	f   float64
	b   bool
	s   string
	seq []Value // Sequence, Set, Tuple
	m   []Entry // Mapping
}

// Kind reports which grammar alternative v holds.
func (v Value) Kind() Kind { return v.kind }

func NewInt(i int64) Value        { return Value{kind: Int, i: i} }
func NewFloat(f float64) Value    { return Value{kind: Float, f: f} }
func NewBool(b bool) Value        { return Value{kind: Bool, b: b} }
func NewString(s string) Value    { return Value{kind: String, s: s} }
func NewSequence(v []Value) Value { return Value{kind: Sequence, seq: append([]Value(nil), v...)} }
func NewSet(v []Value) Value      { return Value{kind: Set, seq: append([]Value(nil), v...)} }
func NewTuple(v []Value) Value    { return Value{kind: Tuple, seq: append([]Value(nil), v...)} }
func NewMapping(e []Entry) Value  { return Value{kind: Mapping, m: append([]Entry(nil), e...)} }

// Int returns the wrapped integer and whether v holds one.
func (v Value) Int() (int64, bool) {
	if v.kind != Int {
		return 0, false
	}
	return v.i, true
}

// Float returns the wrapped float and whether v holds one.
func (v Value) Float() (float64, bool) {
	if v.kind != Float {
		return 0, false
	}
	return v.f, true
}

// Bool returns the wrapped bool and whether v holds one.
func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// String_ returns the wrapped string and whether v holds one.
func (v Value) String_() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Elems returns the elements of a Sequence, Set, or Tuple value.
func (v Value) Elems() ([]Value, bool) {
	switch v.kind {
	case Sequence, Set, Tuple:
		return append([]Value(nil), v.seq...), true
	default:
		return nil, false
	}
}

// Entries returns the key/value pairs of a Mapping value.
func (v Value) Entries() ([]Entry, bool) {
	if v.kind != Mapping {
		return nil, false
	}
	return append([]Entry(nil), v.m...), true
}

// Equal reports whether v and other denote the same value. Sequence and
// Tuple comparisons are order-sensitive; Set comparison is not (a set is
// unordered by definition), and Mapping comparison is order-sensitive on
// keys since mapping literals in this grammar are ordered by occurrence.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case Bool:
		return a.b == b.b
	case String:
		return a.s == b.s
	case Sequence, Tuple:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case Set:
		return setEqual(a.seq, b.seq)
	case Mapping:
		if len(a.m) != len(b.m) {
			return false
		}
		for i := range a.m {
			if !Equal(a.m[i].Key, b.m[i].Key) || !Equal(a.m[i].Val, b.m[i].Val) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("define: unhandled kind %v", a.kind))
	}
}

func setEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for j, bv := range b {
			if used[j] {
				continue
			}
			if Equal(av, bv) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
