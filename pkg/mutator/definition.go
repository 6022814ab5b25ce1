// Package mutator converts rich claim values to wire-safe JSON values and back.
// A definition names a built-in primitive ("date", "decimal:2", ...), a
// caller-registered tag, or carries a Handler directly.
package mutator

import (
	"context"
	"strings"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/token"
)

// Target describes the claim a handler is applied to.
type Target struct {
	Key  string
	Args []string
	Part constants.Part
	// Token is the token being parsed, or nil while building.
	Token token.Claims
}

// Handler is a reversible claim transform.
type Handler interface {
	Serialize(ctx context.Context, target Target, value interface{}) (interface{}, error)
	Unserialize(ctx context.Context, target Target, value interface{}) (interface{}, error)
}

// HandlerFuncs adapts a pair of functions to Handler. A nil function is the identity.
type HandlerFuncs struct {
	SerializeFunc   func(ctx context.Context, target Target, value interface{}) (interface{}, error)
	UnserializeFunc func(ctx context.Context, target Target, value interface{}) (interface{}, error)
}

func (h HandlerFuncs) Serialize(ctx context.Context, target Target, value interface{}) (interface{}, error) {
	if h.SerializeFunc == nil {
		return value, nil
	}
	return h.SerializeFunc(ctx, target, value)
}

func (h HandlerFuncs) Unserialize(ctx context.Context, target Target, value interface{}) (interface{}, error) {
	if h.UnserializeFunc == nil {
		return value, nil
	}
	return h.UnserializeFunc(ctx, target, value)
}

// Definition is either a tag string with optional arguments or a handler.
type Definition struct {
	raw     string
	handler Handler
}

// Tag returns a definition for "tag" or "tag:arg1,arg2".
func Tag(def string) Definition {
	return Definition{raw: strings.TrimSpace(def)}
}

// Custom returns a definition backed by h.
func Custom(h Handler) Definition {
	return Definition{handler: h}
}

// Parse splits the definition into its tag and arguments. Only the first
// colon separates the tag, so arguments may themselves contain colons.
func (d Definition) Parse() (tag string, args []string) {
	tag, rest, found := strings.Cut(d.raw, ":")
	tag = strings.TrimSpace(tag)
	if !found || rest == "" {
		return tag, nil
	}
	return tag, strings.Split(rest, ",")
}

// Handler returns the handler of a custom definition.
func (d Definition) Handler() Handler {
	return d.handler
}

// IsZero reports whether the definition names nothing.
func (d Definition) IsZero() bool {
	return d.raw == "" && d.handler == nil
}

func (d Definition) String() string {
	if d.handler != nil {
		return "custom"
	}
	return d.raw
}

// Set holds the global, header-scoped and payload-scoped definitions. Build it
// once and treat it as read-only afterwards; it is then safe to share.
type Set struct {
	global  map[string]Definition
	header  map[string]Definition
	payload map[string]Definition
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{
		global:  make(map[string]Definition),
		header:  make(map[string]Definition),
		payload: make(map[string]Definition),
	}
}

// SetFromConfig builds a set from definition strings.
func SetFromConfig(cfg config.MutatorConfig) *Set {
	s := NewSet()
	for k, v := range cfg.Global {
		s.Global(k, Tag(v))
	}
	for k, v := range cfg.Header {
		s.Header(k, Tag(v))
	}
	for k, v := range cfg.Payload {
		s.Payload(k, Tag(v))
	}
	return s
}

// Global applies def to key in both parts unless a scoped definition exists.
func (s *Set) Global(key string, def Definition) *Set {
	s.global[key] = def
	return s
}

// Header applies def to key in the header only.
func (s *Set) Header(key string, def Definition) *Set {
	s.header[key] = def
	return s
}

// Payload applies def to key in the payload only.
func (s *Set) Payload(key string, def Definition) *Set {
	s.payload[key] = def
	return s
}

// Lookup returns the definition for key in part: the scoped one first, then global.
func (s *Set) Lookup(part constants.Part, key string) (Definition, bool) {
	if s == nil {
		return Definition{}, false
	}
	scoped := s.payload
	if part == constants.PartHeader {
		scoped = s.header
	}
	if def, ok := scoped[key]; ok {
		return def, true
	}
	def, ok := s.global[key]
	return def, ok
}

// Len returns the number of definitions across all scopes.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.global) + len(s.header) + len(s.payload)
}
