package mutator

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/token"
)

type user struct {
	ID   int64
	Name string
}

func (u *user) PrimaryKey() interface{} { return u.ID }

type userRepo map[int64]*user

func (r userRepo) Find(_ context.Context, id interface{}) (interface{}, error) {
	n, ok := id.(int64)
	if !ok {
		return nil, stderrors.New("bad id")
	}
	u, ok := r[n]
	if !ok {
		return nil, stderrors.New("not found")
	}
	return u, nil
}

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	enc, err := NewXChaChaEncrypter(testKey())
	require.NoError(t, err)
	opts = append([]Option{
		WithEncrypter(enc),
		WithModelRepository("user", userRepo{7: {ID: 7, Name: "alice"}}),
	}, opts...)
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	return e
}

// throughWire serializes value, pushes it through JSON and unserializes it.
func throughWire(t *testing.T, e *Engine, def string, value interface{}) (interface{}, interface{}) {
	t.Helper()
	ctx := context.Background()
	wire, err := e.Serialize(ctx, "claim", Tag(def), value, nil)
	require.NoError(t, err)

	set := claims.NewSetFrom(map[string]interface{}{"claim": wire})
	encoded, err := set.Encode()
	require.NoError(t, err)
	decoded, err := claims.DecodeSet(encoded)
	require.NoError(t, err)

	out, err := e.Unserialize(ctx, "claim", Tag(def), decoded.Value("claim"), nil)
	require.NoError(t, err)
	return wire, out
}

func TestDefinitionParse(t *testing.T) {
	tag, args := Tag("decimal:2").Parse()
	assert.Equal(t, "decimal", tag)
	assert.Equal(t, []string{"2"}, args)

	tag, args = Tag("bool").Parse()
	assert.Equal(t, "bool", tag)
	assert.Empty(t, args)

	tag, args = Tag("custom_datetime:02 Jan 2006, 15:04").Parse()
	assert.Equal(t, "custom_datetime", tag)
	assert.Equal(t, []string{"02 Jan 2006", " 15:04"}, args)

	assert.True(t, Definition{}.IsZero())
	assert.Equal(t, "custom", Custom(HandlerFuncs{}).String())
}

func TestBuiltinRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	leap := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	moment := time.Date(2024, 2, 29, 13, 45, 30, 0, time.UTC)

	tests := []struct {
		name  string
		def   string
		value interface{}
		wire  interface{}
		want  interface{}
	}{
		{"bool", "bool", true, true, true},
		{"int", "int", int64(42), int64(42), int64(42)},
		{"array", "array", []interface{}{"a", int64(1)}, []interface{}{"a", int64(1)}, []interface{}{"a", int64(1)}},
		{"json", "json", []interface{}{int64(1), "x"}, `[1,"x"]`, []interface{}{int64(1), "x"}},
		{"object", "object", map[string]interface{}{"b": int64(2), "a": "x"}, `{"a":"x","b":2}`, map[string]interface{}{"a": "x", "b": int64(2)}},
		{"double", "double", 1.5, "1.5", 1.5},
		{"float", "float", math.Inf(1), "Infinity", math.Inf(1)},
		{"real", "real", math.Inf(-1), "-Infinity", math.Inf(-1)},
		{"decimal", "decimal:2", 12.5, "12.50", 12.5},
		{"decimal default places", "decimal", 3.0, "3", 3.0},
		{"date", "date", leap, "2024-02-29", leap},
		{"datetime", "datetime", moment, "2024-02-29T13:45:30Z", moment},
		{"custom_datetime", "custom_datetime:02 Jan 2006, 15:04:05", moment, "29 Feb 2024, 13:45:30", moment},
		{"timestamp", "timestamp", moment, moment.Unix(), moment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, out := throughWire(t, e, tt.def, tt.value)
			assert.Equal(t, tt.wire, wire)
			if want, ok := tt.want.(time.Time); ok {
				got, ok := out.(time.Time)
				require.True(t, ok, "got %T", out)
				assert.True(t, want.Equal(got), "want %s got %s", want, got)
				return
			}
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestFloatNaN(t *testing.T) {
	e := newTestEngine(t)
	wire, out := throughWire(t, e, "float", math.NaN())
	assert.Equal(t, "NaN", wire)
	f, ok := out.(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
}

func TestLooseUnserializeCasts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Unserialize(ctx, "k", Tag("bool"), "true", nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = e.Unserialize(ctx, "k", Tag("int"), "17", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(17), v)

	v, err = e.Unserialize(ctx, "k", Tag("array"), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"x"}, v)

	v, err = e.Unserialize(ctx, "k", Tag("array"), []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, v)

	v, err = e.Unserialize(ctx, "k", Tag("double"), int64(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestDateNormalizesToStartOfDay(t *testing.T) {
	e := newTestEngine(t)
	_, out := throughWire(t, e, "date", time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), out)
}

func TestObjectRejectsNonObjects(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Unserialize(context.Background(), "k", Tag("object"), `[1,2]`, nil)
	assert.True(t, errors.IsCode(err, errors.CodeCantParseJWT))

	v, err := e.Unserialize(context.Background(), "k", Tag("json"), `[1,2]`, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, v)
}

func TestEncrypted(t *testing.T) {
	e := newTestEngine(t)
	secret := map[string]interface{}{"card": "4111"}

	wire, out := throughWire(t, e, "encrypted", secret)
	s, ok := wire.(string)
	require.True(t, ok)
	assert.NotContains(t, s, "4111")
	assert.Equal(t, secret, out)

	// nonces are random
	again, err := e.Serialize(context.Background(), "claim", Tag("encrypted"), secret, nil)
	require.NoError(t, err)
	assert.NotEqual(t, wire, again)

	raw, err := claims.DecodeSegment(s)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	_, err = e.Unserialize(context.Background(), "claim", Tag("encrypted"), claims.EncodeSegment(raw), nil)
	assert.True(t, errors.IsCode(err, errors.CodeCantParseJWT))
}

func TestEncryptedWithoutEncrypter(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	_, err = e.Serialize(context.Background(), "k", Tag("encrypted"), "x", nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidClaimValue))
}

func TestModel(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	wire, out := throughWire(t, e, "model:user", &user{ID: 7})
	assert.Equal(t, int64(7), wire)
	assert.Equal(t, &user{ID: 7, Name: "alice"}, out)

	// lookup failures hand back the raw key
	v, err := e.Unserialize(ctx, "k", Tag("model:user"), int64(99), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)

	v, err = e.Unserialize(ctx, "k", Tag("model:group"), int64(7), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestUnresolvedPassesThrough(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Serialize(ctx, "k", Tag("uuid"), "raw", nil)
	require.NoError(t, err)
	assert.Equal(t, "raw", v)

	v, err = e.Unserialize(ctx, "k", Tag("uuid"), "raw", nil)
	require.NoError(t, err)
	assert.Equal(t, "raw", v)

	_, _, err = e.Resolve(Tag("uuid"))
	assert.True(t, errors.IsCode(err, errors.CodeCantResolveMutator))
}

func TestSerializeFailureIsInvalidClaimValue(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Serialize(context.Background(), "born", Tag("timestamp"), "not a time", nil)
	require.Error(t, err)
	jwtErr, ok := errors.AsJWTError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidClaimValue, jwtErr.Code())
	assert.Equal(t, "born", jwtErr.Metadata()["claim"])
}

func TestCustomHandlerShadowsBuiltin(t *testing.T) {
	upper := HandlerFuncs{
		SerializeFunc: func(_ context.Context, target Target, v interface{}) (interface{}, error) {
			return target.Key + ":" + v.(string), nil
		},
	}
	e := newTestEngine(t, WithHandler("bool", upper))

	v, err := e.Serialize(context.Background(), "k", Tag("bool"), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "k:x", v)

	// nil UnserializeFunc is the identity
	v, err = e.Unserialize(context.Background(), "k", Tag("bool"), "k:x", nil)
	require.NoError(t, err)
	assert.Equal(t, "k:x", v)

	v, err = e.Serialize(context.Background(), "k", Custom(upper), "y", nil)
	require.NoError(t, err)
	assert.Equal(t, "k:y", v)
}

func TestResolveCachesDefinitions(t *testing.T) {
	e := newTestEngine(t, WithCacheSize(4))
	for i := 0; i < 3; i++ {
		_, args, err := e.Resolve(Tag("decimal:3"))
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, args)
	}
	assert.Equal(t, 1, e.cache.Len())
}

func TestSetScopes(t *testing.T) {
	set := NewSet().
		Global("x", Tag("int")).
		Header("x", Tag("bool")).
		Payload("y", Tag("date"))

	def, ok := set.Lookup(constants.PartHeader, "x")
	require.True(t, ok)
	assert.Equal(t, "bool", def.String())

	def, ok = set.Lookup(constants.PartPayload, "x")
	require.True(t, ok)
	assert.Equal(t, "int", def.String())

	_, ok = set.Lookup(constants.PartHeader, "y")
	assert.False(t, ok)
	assert.Equal(t, 3, set.Len())

	var nilSet *Set
	_, ok = nilSet.Lookup(constants.PartPayload, "x")
	assert.False(t, ok)
}

func TestSetFromConfig(t *testing.T) {
	set := SetFromConfig(config.MutatorConfig{
		Global:  map[string]string{"born": "date"},
		Payload: map[string]string{"price": "decimal:2"},
	})
	def, ok := set.Lookup(constants.PartPayload, "price")
	require.True(t, ok)
	assert.Equal(t, "decimal:2", def.String())
	_, ok = set.Lookup(constants.PartHeader, "born")
	assert.True(t, ok)
}

func TestSerializePairAndMutate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	born := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	set := NewSet().Payload("born", Tag("date")).Header("ver", Tag("int"))

	pair := claims.NewPair(
		claims.NewSetFrom(map[string]interface{}{"alg": "HS256", "ver": "3"}),
		claims.NewSetFrom(map[string]interface{}{"born": born, "sub": "alice"}),
	)
	out, err := e.SerializePair(ctx, pair, set)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", out.Payload.Value("born"))
	assert.Equal(t, "alice", out.Payload.Value("sub"))
	assert.Equal(t, "3", out.Header.Value("ver"))

	header, err := out.Header.Encode()
	require.NoError(t, err)
	payload, err := out.Payload.Encode()
	require.NoError(t, err)
	wire := header + "." + payload + ".c2ln"
	signed, err := token.Parse(wire)
	require.NoError(t, err)

	mutated, err := e.Mutate(ctx, signed, set)
	require.NoError(t, err)
	assert.Equal(t, born, mutated.Payload().Value("born"))
	assert.Equal(t, int64(3), mutated.Header().Value("ver"))
	assert.True(t, mutated.Payload().IsImmutable())
	assert.Equal(t, wire, mutated.String())
	assert.Same(t, signed, mutated.Original())
}

func TestMutateFailureIsParseError(t *testing.T) {
	e := newTestEngine(t)
	payload, err := claims.NewSetFrom(map[string]interface{}{"born": "yesterday"}).Encode()
	require.NoError(t, err)
	signed, err := token.Parse("e30." + payload + ".")
	require.NoError(t, err)

	_, err = e.Mutate(context.Background(), signed, NewSet().Payload("born", Tag("date")))
	assert.True(t, errors.IsCode(err, errors.CodeCantParseJWT))
}
