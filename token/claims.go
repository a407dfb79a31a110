package token

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

type Claim struct {
	Type  string
	Value any
}

// ClaimSet is an ordered claim bag keyed by claim type. Setting a type that
// is already present replaces its value in place, so the last write wins.
type ClaimSet []Claim

// ClaimSetFromMap builds a set from a map, ordering the types alphabetically.
func ClaimSetFromMap(m map[string]any) ClaimSet {
	if len(m) == 0 {
		return nil
	}
	types := make([]string, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Strings(types)

	set := make(ClaimSet, 0, len(m))
	for _, t := range types {
		set = append(set, Claim{Type: t, Value: m[t]})
	}
	return set
}

func (s ClaimSet) Get(claimType string) (any, bool) {
	for _, c := range s {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return nil, false
}

// String returns a string claim, or "" when absent or not a string.
func (s ClaimSet) String(claimType string) string {
	v, _ := s.Get(claimType)
	str, _ := v.(string)
	return str
}

// With returns a copy of the set with claimType set to value.
func (s ClaimSet) With(claimType string, value any) ClaimSet {
	out := make(ClaimSet, len(s), len(s)+1)
	copy(out, s)
	for i := range out {
		if out[i].Type == claimType {
			out[i].Value = value
			return out
		}
	}
	return append(out, Claim{Type: claimType, Value: value})
}

// Merge returns a copy of s overridden by every claim of other.
func (s ClaimSet) Merge(other ClaimSet) ClaimSet {
	out := make(ClaimSet, len(s), len(s)+len(other))
	copy(out, s)
	for _, c := range other {
		out = out.With(c.Type, c.Value)
	}
	return out
}

// Contains reports whether every claim of other is present in s with an
// equal value.
func (s ClaimSet) Contains(other ClaimSet) bool {
	for _, c := range other {
		v, ok := s.Get(c.Type)
		if !ok || !claimValuesEqual(v, c.Value) {
			return false
		}
	}
	return true
}

func (s ClaimSet) Map() jwt.MapClaims {
	m := make(jwt.MapClaims, len(s))
	for _, c := range s {
		m[c.Type] = c.Value
	}
	return m
}

// MarshalJSON writes the set as a JSON object in claim order.
func (s ClaimSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Type)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *ClaimSet) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = ClaimSetFromMap(m)
	return nil
}

// claimValuesEqual compares values by their JSON form, so a stored []any
// equals the []string it was created from.
func claimValuesEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
