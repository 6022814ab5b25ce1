// Package validation runs ordered rules against a token and reports every
// failure by rule identifier.
package validation

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/signing"
	"github.com/turtacn/littlejwt/pkg/token"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// Rule is a single check. Identifier keys the failure in a Result.
type Rule interface {
	Identifier() string
	Message() string
	Passes(ctx context.Context, tok token.Claims) bool
}

type claimRef struct {
	claim string
	part  constants.Part
}

func (c claimRef) set(tok token.Claims) *claims.Set {
	if c.part == constants.PartHeader {
		return tok.Header()
	}
	return tok.Payload()
}

func (c claimRef) get(tok token.Claims) (interface{}, bool) {
	return c.set(tok).Get(c.claim)
}

func (c claimRef) id(rule string) string {
	if c.part == constants.PartHeader {
		return rule + ":header." + c.claim
	}
	return rule + ":" + c.claim
}

// ================================================================================
// Signature
// ================================================================================

type validSignature struct {
	engine *signing.Engine
	key    *keys.Key
}

// ValidSignature passes when tok carries a wire signature that verifies under key.
func ValidSignature(engine *signing.Engine, key *keys.Key) Rule {
	return validSignature{engine: engine, key: key}
}

func (validSignature) Identifier() string { return "ValidSignature" }
func (validSignature) Message() string    { return "The token signature is invalid" }

func (r validSignature) Passes(_ context.Context, tok token.Claims) bool {
	signed, ok := token.Signed(tok)
	if !ok {
		return false
	}
	valid, err := r.engine.VerifyToken(signed, r.key)
	return err == nil && valid
}

type validSignatureFrom struct {
	engine   *signing.Engine
	resolver keys.Resolver
}

// ValidSignatureFrom resolves the key named by the kid header and passes when
// the key's algorithm matches the alg header and the signature verifies.
func ValidSignatureFrom(engine *signing.Engine, resolver keys.Resolver) Rule {
	return validSignatureFrom{engine: engine, resolver: resolver}
}

func (validSignatureFrom) Identifier() string { return "ValidSignature" }
func (validSignatureFrom) Message() string    { return "The token signature is invalid" }

func (r validSignatureFrom) Passes(ctx context.Context, tok token.Claims) bool {
	signed, ok := token.Signed(tok)
	if !ok {
		return false
	}
	kid, _ := signed.Header().Value(constants.HeaderKeyID).(string)
	key, err := r.resolver.Resolve(ctx, kid)
	if err != nil {
		return false
	}
	if alg, _ := signed.Header().Value(constants.HeaderAlgorithm).(string); alg != string(key.Algorithm()) {
		return false
	}
	valid, err := r.engine.VerifyToken(signed, key)
	return err == nil && valid
}

// ================================================================================
// Presence
// ================================================================================

type containsClaims struct {
	keys     []string
	inHeader bool
	strict   bool
}

// ContainsClaims passes when every key is in the payload. Strict additionally
// requires that the payload holds no other claims.
func ContainsClaims(keys []string, strict bool) Rule {
	return containsClaims{keys: keys, strict: strict}
}

// ContainsHeaderClaims is ContainsClaims for the header.
func ContainsHeaderClaims(keys []string, strict bool) Rule {
	return containsClaims{keys: keys, inHeader: true, strict: strict}
}

func (r containsClaims) Identifier() string {
	if r.inHeader {
		return "ContainsHeaderClaims"
	}
	return "ContainsClaims"
}

func (r containsClaims) Message() string {
	where := "payload"
	if r.inHeader {
		where = "header"
	}
	if r.strict {
		return fmt.Sprintf("The token %s must contain exactly the claims: %s", where, strings.Join(r.keys, ", "))
	}
	return fmt.Sprintf("The token %s is missing required claims: %s", where, strings.Join(r.keys, ", "))
}

func (r containsClaims) Passes(_ context.Context, tok token.Claims) bool {
	set := tok.Payload()
	if r.inHeader {
		set = tok.Header()
	}
	present := 0
	for _, k := range r.keys {
		if set.Has(k) {
			present++
		}
	}
	if present != len(r.keys) {
		return false
	}
	return !r.strict || set.Len() == len(r.keys)
}

// ================================================================================
// Equality
// ================================================================================

type equals struct {
	claimRef
	expected interface{}
	strict   bool
}

// Equals passes when the payload claim equals expected. Strict compares type
// and value; loose compares numbers by value and everything else by string form.
func Equals(claim string, expected interface{}, strict bool) Rule {
	return equals{claimRef: claimRef{claim: claim}, expected: expected, strict: strict}
}

// HeaderEquals is Equals for a header claim.
func HeaderEquals(claim string, expected interface{}, strict bool) Rule {
	return equals{claimRef: claimRef{claim: claim, part: constants.PartHeader}, expected: expected, strict: strict}
}

func (r equals) Identifier() string { return r.id("Equals") }
func (r equals) Message() string {
	return fmt.Sprintf("The claim %q does not match the expected value", r.claim)
}

func (r equals) Passes(_ context.Context, tok token.Claims) bool {
	v, ok := r.get(tok)
	return ok && valuesEqual(v, r.expected, r.strict)
}

type secureEquals struct {
	claimRef
	expected string
}

// SecureEquals compares the string form of a payload claim in constant time.
func SecureEquals(claim, expected string) Rule {
	return secureEquals{claimRef: claimRef{claim: claim}, expected: expected}
}

func (r secureEquals) Identifier() string { return r.id("SecureEquals") }
func (r secureEquals) Message() string {
	return fmt.Sprintf("The claim %q does not match the expected value", r.claim)
}

func (r secureEquals) Passes(_ context.Context, tok token.Claims) bool {
	v, ok := r.get(tok)
	if !ok {
		return false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s), []byte(r.expected)) == 1
}

type oneOf struct {
	claimRef
	values []interface{}
	strict bool
}

// OneOf passes when the payload claim equals one of values.
func OneOf(claim string, values []interface{}, strict bool) Rule {
	return oneOf{claimRef: claimRef{claim: claim}, values: values, strict: strict}
}

func (r oneOf) Identifier() string { return r.id("OneOf") }
func (r oneOf) Message() string {
	return fmt.Sprintf("The claim %q is not one of the allowed values", r.claim)
}

func (r oneOf) Passes(_ context.Context, tok token.Claims) bool {
	v, ok := r.get(tok)
	if !ok {
		return false
	}
	for _, want := range r.values {
		if valuesEqual(v, want, r.strict) {
			return true
		}
	}
	return false
}

type arrayEquals struct {
	claimRef
	expected []interface{}
	strict   bool
}

// ArrayEquals passes when the payload claim is an array equal element by
// element, in order, to expected.
func ArrayEquals(claim string, expected []interface{}, strict bool) Rule {
	return arrayEquals{claimRef: claimRef{claim: claim}, expected: expected, strict: strict}
}

func (r arrayEquals) Identifier() string { return r.id("ArrayEquals") }
func (r arrayEquals) Message() string {
	return fmt.Sprintf("The claim %q does not match the expected array", r.claim)
}

func (r arrayEquals) Passes(_ context.Context, tok token.Claims) bool {
	v, ok := r.get(tok)
	if !ok {
		return false
	}
	got, ok := asSlice(v)
	if !ok || len(got) != len(r.expected) {
		return false
	}
	for i := range got {
		if !valuesEqual(got[i], r.expected[i], r.strict) {
			return false
		}
	}
	return true
}

type includes struct {
	claimRef
	value  interface{}
	strict bool
}

// Includes passes when the payload claim is value or an array containing it.
// It suits aud, which may be a string or an array.
func Includes(claim string, value interface{}, strict bool) Rule {
	return includes{claimRef: claimRef{claim: claim}, value: value, strict: strict}
}

func (r includes) Identifier() string { return r.id("Includes") }
func (r includes) Message() string {
	return fmt.Sprintf("The claim %q does not include %v", r.claim, r.value)
}

func (r includes) Passes(_ context.Context, tok token.Claims) bool {
	v, ok := r.get(tok)
	if !ok {
		return false
	}
	items, isSlice := asSlice(v)
	if !isSlice {
		return valuesEqual(v, r.value, r.strict)
	}
	for _, item := range items {
		if valuesEqual(item, r.value, r.strict) {
			return true
		}
	}
	return false
}

func asSlice(v interface{}) ([]interface{}, bool) {
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func valuesEqual(a, b interface{}, strict bool) bool {
	if strict {
		return reflect.DeepEqual(a, b)
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	if isNumber(a) && isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		return errA == nil && errB == nil && fa == fb
	}
	sa, errA := cast.ToStringE(a)
	sb, errB := cast.ToStringE(b)
	return errA == nil && errB == nil && sa == sb
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// ================================================================================
// Temporal
// ================================================================================

type temporalKind int

const (
	past temporalKind = iota
	future
	before
	after
)

func (k temporalKind) String() string {
	return [...]string{"Past", "Future", "Before", "After"}[k]
}

// temporal compares a time claim with now or a fixed reference. A missing
// claim passes; one that is not a time fails.
type temporal struct {
	claimRef
	kind   temporalKind
	ref    time.Time
	leeway time.Duration
	clock  utils.Clock
}

// Past passes when the claim is at or before now plus leeway.
func Past(claim string, leeway time.Duration, clock utils.Clock) Rule {
	return temporal{claimRef: claimRef{claim: claim}, kind: past, leeway: leeway, clock: utils.ClockOrSystem(clock)}
}

// Future passes when the claim is after now minus leeway.
func Future(claim string, leeway time.Duration, clock utils.Clock) Rule {
	return temporal{claimRef: claimRef{claim: claim}, kind: future, leeway: leeway, clock: utils.ClockOrSystem(clock)}
}

// Before passes when the claim is at or before ref plus leeway.
func Before(claim string, ref time.Time, leeway time.Duration) Rule {
	return temporal{claimRef: claimRef{claim: claim}, kind: before, ref: ref, leeway: leeway}
}

// After passes when the claim is after ref minus leeway.
func After(claim string, ref time.Time, leeway time.Duration) Rule {
	return temporal{claimRef: claimRef{claim: claim}, kind: after, ref: ref, leeway: leeway}
}

func (r temporal) Identifier() string { return r.id(r.kind.String()) }

func (r temporal) Message() string {
	switch r.kind {
	case past:
		return fmt.Sprintf("The claim %q must be in the past", r.claim)
	case future:
		return fmt.Sprintf("The claim %q must be in the future", r.claim)
	case before:
		return fmt.Sprintf("The claim %q must be before %s", r.claim, r.ref.UTC().Format(time.RFC3339))
	default:
		return fmt.Sprintf("The claim %q must be after %s", r.claim, r.ref.UTC().Format(time.RFC3339))
	}
}

func (r temporal) Passes(_ context.Context, tok token.Claims) bool {
	v, ok := r.get(tok)
	if !ok {
		return true
	}
	t, ok := claimTime(v)
	if !ok {
		return false
	}
	ref := r.ref
	if r.kind == past || r.kind == future {
		ref = r.clock.Now()
	}
	switch r.kind {
	case past, before:
		return !t.After(ref.Add(r.leeway))
	default:
		return t.After(ref.Add(-r.leeway))
	}
}

// claimTime reads unix seconds, numeric strings and unserialized times.
func claimTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)), true
	case bool, nil:
		return time.Time{}, false
	}
	secs, err := cast.ToInt64E(v)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// ================================================================================
// Revocation
// ================================================================================

type allowed struct {
	store revocation.Store
}

// Allowed passes when tok is not revoked. A store error fails the rule.
func Allowed(store revocation.Store) Rule {
	return allowed{store: store}
}

func (allowed) Identifier() string { return "Allowed" }
func (allowed) Message() string    { return "The token has been revoked" }

func (r allowed) Passes(ctx context.Context, tok token.Claims) bool {
	revoked, err := r.store.IsRevoked(ctx, tok)
	return err == nil && !revoked
}

// ================================================================================
// Callbacks
// ================================================================================

type callback struct {
	id      string
	message string
	fn      func(ctx context.Context, tok token.Claims) bool
}

// Callback adapts fn to a Rule.
func Callback(id, message string, fn func(ctx context.Context, tok token.Claims) bool) Rule {
	return callback{id: id, message: message, fn: fn}
}

func (r callback) Identifier() string { return r.id }
func (r callback) Message() string    { return r.message }

func (r callback) Passes(ctx context.Context, tok token.Claims) bool {
	return r.fn(ctx, tok)
}

type named struct {
	Rule
	id      string
	message string
}

// Named overrides the identifier and, when message is not empty, the message of rule.
func Named(id, message string, rule Rule) Rule {
	return named{Rule: rule, id: id, message: message}
}

func (r named) Identifier() string { return r.id }

func (r named) Message() string {
	if r.message == "" {
		return r.Rule.Message()
	}
	return r.message
}
