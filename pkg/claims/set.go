// Package claims implements the claim store: key-unique claim sets with a
// canonical JSON encoding that doubles as the signing input.
package claims

import (
	"bytes"
	"sort"

	"github.com/turtacn/littlejwt/pkg/errors"
)

// Set is a key-unique mapping of claim names to values. A mutable Set is used
// while building; Freeze returns the immutable form handed out afterwards.
// Values are held by reference and are not deep-copied.
type Set struct {
	values    map[string]interface{}
	immutable bool
}

// NewSet returns an empty mutable set.
func NewSet() *Set {
	return &Set{values: make(map[string]interface{})}
}

// NewSetFrom returns a mutable set holding a copy of values.
func NewSetFrom(values map[string]interface{}) *Set {
	s := &Set{values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// NewImmutableSet returns an immutable set holding a copy of values.
func NewImmutableSet(values map[string]interface{}) *Set {
	s := NewSetFrom(values)
	s.immutable = true
	return s
}

// Get returns the value stored under key.
func (s *Set) Get(key string) (interface{}, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil.
func (s *Set) Value(key string) interface{} {
	v, _ := s.Get(key)
	return v
}

// Has reports whether key is present.
func (s *Set) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores value under key.
func (s *Set) Set(key string, value interface{}) error {
	if s.immutable {
		return errors.MutationOfImmutable(key)
	}
	s.values[key] = value
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Set) Remove(key string) error {
	if s.immutable {
		return errors.MutationOfImmutable(key)
	}
	delete(s.values, key)
	return nil
}

// Merge copies every claim of other into s, overriding existing keys.
func (s *Set) Merge(other *Set) error {
	if other == nil {
		return nil
	}
	for _, k := range other.Keys() {
		if err := s.Set(k, other.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the claim names in sorted order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of claims.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// All returns a shallow copy of the claims.
func (s *Set) All() map[string]interface{} {
	out := make(map[string]interface{}, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// IsImmutable reports whether writes are rejected.
func (s *Set) IsImmutable() bool {
	return s != nil && s.immutable
}

// Freeze returns an immutable copy. An immutable set is returned as is.
func (s *Set) Freeze() *Set {
	if s == nil {
		return NewImmutableSet(nil)
	}
	if s.immutable {
		return s
	}
	return NewImmutableSet(s.values)
}

// Mutable returns a mutable copy.
func (s *Set) Mutable() *Set {
	if s == nil {
		return NewSet()
	}
	return NewSetFrom(s.values)
}

// JSON returns the canonical encoding. A value that cannot be encoded yields
// an InvalidClaimValue error naming the first offending key.
func (s *Set) JSON() ([]byte, error) {
	if s == nil || len(s.values) == 0 {
		return []byte("{}"), nil
	}
	for _, k := range s.Keys() {
		if _, err := marshal(s.values[k]); err != nil {
			return nil, errors.InvalidClaimValue(k, s.values[k], err)
		}
	}
	out, err := CanonicalJSON(s.values)
	if err != nil {
		return nil, errors.InvalidClaimValue("", s.values, err)
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler with the canonical encoding.
func (s *Set) MarshalJSON() ([]byte, error) {
	return s.JSON()
}

// Encode returns base64url(canonical JSON).
func (s *Set) Encode() (string, error) {
	b, err := s.JSON()
	if err != nil {
		return "", err
	}
	return EncodeSegment(b), nil
}

// Equal reports whether both sets encode to the same canonical bytes.
func (s *Set) Equal(other *Set) bool {
	a, errA := s.JSON()
	b, errB := other.JSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// DecodeSet parses a base64url JSON object segment into an immutable set.
func DecodeSet(segment string) (*Set, error) {
	raw, err := DecodeSegment(segment)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCantParseJWT, "segment is not valid base64url")
	}
	values, err := DecodeObject(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCantParseJWT, "segment is not a JSON object")
	}
	s := NewImmutableSet(nil)
	s.values = values
	return s, nil
}
