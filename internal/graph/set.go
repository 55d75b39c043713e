package graph

import (
	"encoding/json"
	"sort"
)

// Set is a string set encoded in JSON as a sorted array.
type Set map[string]struct{}

func (s Set) Has(k string) bool {
	_, ok := s[k]
	return ok
}

func (s Set) Add(k string) { s[k] = struct{}{} }

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	*s = make(Set, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return nil
}
