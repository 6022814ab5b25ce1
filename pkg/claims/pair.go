package claims

// Pair is a header and payload claim set.
type Pair struct {
	Header  *Set
	Payload *Set
}

// NewPair returns a pair, substituting empty mutable sets for nil parts.
func NewPair(header, payload *Set) Pair {
	if header == nil {
		header = NewSet()
	}
	if payload == nil {
		payload = NewSet()
	}
	return Pair{Header: header, Payload: payload}
}

// Merge folds pairs left to right into a new mutable pair. Later pairs
// override earlier ones per key, per part.
func Merge(pairs ...Pair) Pair {
	out := NewPair(nil, nil)
	for _, p := range pairs {
		// out is mutable so Merge cannot fail here
		_ = out.Header.Merge(p.Header)
		_ = out.Payload.Merge(p.Payload)
	}
	return out
}

// Freeze returns the pair with both parts immutable.
func (p Pair) Freeze() Pair {
	return Pair{Header: p.Header.Freeze(), Payload: p.Payload.Freeze()}
}

// IsImmutable reports whether both parts reject writes.
func (p Pair) IsImmutable() bool {
	return p.Header.IsImmutable() && p.Payload.IsImmutable()
}
