// Copyright 2017 Teriks
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package define

import (
	"fmt"
	"sync"
)

// Store is a name->Value map populated from command-line "-D" definitions
// or parsed from a subpake parent's exported defines. It is read-mostly
// during a run: the engine mutates it only between runs, and a subpake
// child mutates it once at startup when it parses its inherited mapping.
type Store struct {
	mu     sync.RWMutex
	order  []string
	values map[string]Value
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{values: map[string]Value{}}
}

// Set stores name=value, overwriting any previous value for name.
func (s *Store) Set(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		s.order = append(s.order, name)
	}
	s.values[name] = v
}

// Unset removes a previously set value, if any.
func (s *Store) Unset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the value of name and whether it is set.
func (s *Store) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the defined names in the order they were first set.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// AsMapping renders the whole store as a Mapping Value, keyed by string
// names, in insertion order.
func (s *Store) AsMapping() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.order))
	for _, n := range s.order {
		entries = append(entries, Entry{Key: NewString(n), Val: s.values[n]})
	}
	return NewMapping(entries)
}

// SerializeMapping renders the store as the single-line literal mapping
// written to a subpake child's stdin.
func (s *Store) SerializeMapping() string {
	return s.AsMapping().Serialize()
}

// ParseMapping parses the wire-format line written by SerializeMapping (or
// any mapping literal with string keys) into a new Store.
func ParseMapping(input string) (*Store, error) {
	v, err := Parse(input)
	if err != nil {
		return nil, err
	}
	entries, ok := v.Entries()
	if !ok {
		return nil, fmt.Errorf("define: expected a mapping literal, got a %v", v.Kind())
	}
	s := NewStore()
	for _, e := range entries {
		name, ok := e.Key.String_()
		if !ok {
			return nil, fmt.Errorf("define: mapping keys must be strings, got a %v", e.Key.Kind())
		}
		s.Set(name, e.Val)
	}
	return s, nil
}

// ParseDefineFlag parses one "-D" command-line token of the form
// "name[=value]". A bare name (no "=value") maps to boolean true.
func ParseDefineFlag(token string) (name string, value Value, err error) {
	for i := 0; i < len(token); i++ {
		if token[i] == '=' {
			name = token[:i]
			v, err := Parse(token[i+1:])
			if err != nil {
				return "", Value{}, err
			}
			return name, v, nil
		}
	}
	return token, NewBool(true), nil
}
