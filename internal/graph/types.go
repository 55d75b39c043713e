package graph

import (
	"fmt"
	"strings"
	"sync"
)

// FieldType names the type carried by an invocation field: "any", a scalar
// name such as "int", or "list[T]". Values are kept in canonical form so
// they can be compared with ==.
type FieldType string

const (
	Any    FieldType = "any"
	Int    FieldType = "int"
	Float  FieldType = "float"
	String FieldType = "string"
	Bool   FieldType = "bool"
)

// ListOf returns the list type with element t.
func ListOf(t FieldType) FieldType {
	return FieldType("list[" + string(t) + "]")
}

// IsList reports whether t is a list type.
func (t FieldType) IsList() bool {
	return strings.HasPrefix(string(t), "list[") && strings.HasSuffix(string(t), "]")
}

// Elem returns the element type of a list, or "" for non-lists.
func (t FieldType) Elem() FieldType {
	if !t.IsList() {
		return ""
	}
	return FieldType(string(t)[len("list[") : len(t)-1])
}

func (t FieldType) String() string { return string(t) }

// ParseFieldType parses and canonicalizes a type expression such as
// "list[ int ]".
func ParseFieldType(s string) (FieldType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty field type")
	}
	if strings.HasPrefix(s, "list[") {
		if !strings.HasSuffix(s, "]") {
			return "", fmt.Errorf("field type %q: unclosed list", s)
		}
		elem, err := ParseFieldType(s[len("list[") : len(s)-1])
		if err != nil {
			return "", err
		}
		return ListOf(elem), nil
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", fmt.Errorf("field type %q: invalid character %q", s, r)
		}
	}
	return FieldType(s), nil
}

var (
	typesMu sync.RWMutex
	parents = map[FieldType]FieldType{}
)

// RegisterType declares name as a subtype of parent. Registering a scalar
// without a parent is not needed; unknown scalars are their own root.
func RegisterType(name, parent FieldType) {
	typesMu.Lock()
	defer typesMu.Unlock()
	parents[name] = parent
}

// IsSubtype reports whether a is b or derives from b. Every type is a
// subtype of Any; list types are covariant in their element.
func IsSubtype(a, b FieldType) bool {
	if a == b || b == Any {
		return true
	}
	if a.IsList() || b.IsList() {
		return a.IsList() && b.IsList() && IsSubtype(a.Elem(), b.Elem())
	}

	typesMu.RLock()
	defer typesMu.RUnlock()

	seen := map[FieldType]bool{}
	for cur, ok := parents[a]; ok && !seen[cur]; cur, ok = parents[cur] {
		if cur == b {
			return true
		}
		seen[cur] = true
	}
	return false
}

// Compatible reports whether an output of type from may feed an input of type to.
func Compatible(from, to FieldType) bool {
	if from == "" || to == "" {
		return false
	}
	if from == to || from == Any || to == Any {
		return true
	}
	if from.IsList() && to.IsList() {
		return Compatible(from.Elem(), to.Elem())
	}
	if from.IsList() || to.IsList() {
		return false
	}
	return IsSubtype(from, to)
}

func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

func (t *FieldType) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
