package builder

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/mutator"
	"github.com/turtacn/littlejwt/pkg/utils"
)

var epoch = time.Unix(1700000000, 0).UTC()

func TestRouting(t *testing.T) {
	b := New()
	b.AddClaim("alg", "HS256").
		AddClaim("kid", "k1").
		AddClaim("sub", "alice").
		AddClaim("role", "admin").
		AddClaim("typ", "JWT")

	pair := b.Build()
	assert.Equal(t, []string{"alg", "kid", "typ"}, pair.Header.Keys())
	assert.Equal(t, []string{"role", "sub"}, pair.Payload.Keys())
}

func TestRoutingPayloadWinsOverlap(t *testing.T) {
	b := New(WithHeaderKeys("alg", "iss"))
	assert.Equal(t, constants.PartHeader, b.Route("alg"))
	// iss is also a reserved payload key
	assert.Equal(t, constants.PartPayload, b.Route("iss"))

	b = New(WithHeaderKeys("iss"), WithPayloadKeys())
	assert.Equal(t, constants.PartHeader, b.Route("iss"))
}

func TestExplicitPart(t *testing.T) {
	b := New()
	b.AddClaim("alg", "custom", constants.PartPayload).AddClaim("tenant", "t1", constants.PartHeader)

	assert.True(t, b.HasClaim("alg", constants.PartPayload))
	assert.False(t, b.HasClaim("alg"))
	v, ok := b.GetClaim("tenant", constants.PartHeader)
	require.True(t, ok)
	assert.Equal(t, "t1", v)
}

func TestRemove(t *testing.T) {
	b := New()
	b.AddClaim("x", 1, constants.PartHeader).AddClaim("x", 2)
	b.Remove("x", constants.PartHeader)
	assert.False(t, b.HasClaim("x", constants.PartHeader))
	assert.True(t, b.HasClaim("x"))

	b.AddClaim("x", 1, constants.PartHeader).Remove("x")
	pair := b.Build()
	assert.Zero(t, pair.Header.Len())
	assert.Zero(t, pair.Payload.Len())
	// absent keys are not an error
	b.Remove("missing")
}

func TestFluentSetters(t *testing.T) {
	b := New()
	b.IssuedAt(epoch).NotBefore(epoch).ExpiresAt(epoch.Add(time.Hour)).
		Issuer("issuer").Subject("alice").Audience("a", "b").ID("id-1").
		Type("JWT").KeyID("k1").ContentType("JWT")

	pair := b.Build()
	assert.Equal(t, int64(1700000000), pair.Payload.Value("iat"))
	assert.Equal(t, int64(1700003600), pair.Payload.Value("exp"))
	assert.Equal(t, []interface{}{"a", "b"}, pair.Payload.Value("aud"))
	assert.Equal(t, "id-1", pair.Payload.Value("jti"))
	assert.Equal(t, []string{"cty", "kid", "typ"}, pair.Header.Keys())

	b.Audience("only")
	v, _ := b.GetClaim("aud")
	assert.Equal(t, "only", v)
}

func TestBuildReturnsCopies(t *testing.T) {
	b := New().AddClaim("sub", "alice")
	pair := b.Build()
	require.NoError(t, pair.Payload.Set("sub", "bob"))
	v, _ := b.GetClaim("sub")
	assert.Equal(t, "alice", v)
}

func TestStackRunsInOrder(t *testing.T) {
	var order []string
	stack, err := Compose(
		func(b *Builder) { order = append(order, "plain"); b.AddClaim("n", 1) },
		BuildableFunc(func(b *Builder) error { order = append(order, "func"); b.AddClaim("n", 2); return nil }),
		nil,
		Stack{BuildableFunc(func(b *Builder) error { order = append(order, "nested"); return nil })},
		func(b *Builder) error { order = append(order, "errfunc"); return nil },
	)
	require.NoError(t, err)

	b := New()
	require.NoError(t, stack.Build(b))
	assert.Equal(t, []string{"plain", "func", "nested", "errfunc"}, order)
	v, _ := b.GetClaim("n")
	assert.Equal(t, 2, v)
}

func TestComposeRejectsUnknown(t *testing.T) {
	_, err := Compose(42)
	assert.Error(t, err)
}

func TestStackStopsOnError(t *testing.T) {
	boom := stderrors.New("boom")
	called := false
	stack := Stack{
		BuildableFunc(func(*Builder) error { return boom }),
		BuildableFunc(func(*Builder) error { called = true; return nil }),
	}
	assert.ErrorIs(t, stack.Build(New()), boom)
	assert.False(t, called)
}

func TestDefaultClaims(t *testing.T) {
	clock := utils.NewMockClock(epoch)
	d := NewDefaultClaims(config.BuilderConfig{TTL: 10 * time.Minute, Issuer: "me", Audience: "api, web"}, clock)

	b := New()
	require.NoError(t, d.Build(b))
	pair := b.Build()
	assert.Equal(t, epoch.Unix(), pair.Payload.Value("iat"))
	assert.Equal(t, epoch.Unix(), pair.Payload.Value("nbf"))
	assert.Equal(t, epoch.Add(10*time.Minute).Unix(), pair.Payload.Value("exp"))
	assert.Equal(t, "me", pair.Payload.Value("iss"))
	assert.Equal(t, []interface{}{"api", "web"}, pair.Payload.Value("aud"))
	jti, _ := pair.Payload.Value("jti").(string)
	assert.True(t, utils.IsUUID(jti))

	// each build gets a fresh id
	b2 := New()
	require.NoError(t, d.Build(b2))
	jti2, _ := b2.GetClaim("jti")
	assert.NotEqual(t, jti, jti2)
}

func TestDefaultClaimsDefaultTTL(t *testing.T) {
	b := New()
	require.NoError(t, DefaultClaims{Clock: utils.NewMockClock(epoch)}.Build(b))
	exp, _ := b.GetClaim("exp")
	assert.Equal(t, epoch.Add(constants.DefaultTokenTTL).Unix(), exp)
}

func fixedDefaults() DefaultClaims {
	return DefaultClaims{
		TTL:   time.Hour,
		Clock: utils.NewMockClock(epoch),
		NewID: func() string { return "fixed" },
	}
}

func TestFactoryModes(t *testing.T) {
	caller := BuildableFunc(func(b *Builder) error {
		b.ID("caller").Subject("alice")
		return nil
	})

	tests := []struct {
		mode    constants.DefaultsMode
		wantJTI interface{}
		wantIAT bool
	}{
		{constants.DefaultsBefore, "caller", true},
		{constants.DefaultsAfter, "fixed", true},
		{constants.DefaultsDisabled, "caller", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := NewFactory(WithDefaults(fixedDefaults()), WithMode(tt.mode))
			pair, err := f.Build(context.Background(), caller)
			require.NoError(t, err)
			assert.True(t, pair.IsImmutable())
			assert.Equal(t, tt.wantJTI, pair.Payload.Value("jti"))
			assert.Equal(t, tt.wantIAT, pair.Payload.Has("iat"))
			assert.Equal(t, "alice", pair.Payload.Value("sub"))
		})
	}
}

func TestFactoryTTLScenario(t *testing.T) {
	f := NewFactory(WithDefaults(fixedDefaults()))
	pair, err := f.Build(context.Background())
	require.NoError(t, err)
	iat := pair.Payload.Value("iat").(int64)
	exp := pair.Payload.Value("exp").(int64)
	assert.Equal(t, int64(3600), exp-iat)
}

func TestFactoryDeterministic(t *testing.T) {
	f := NewFactory(WithDefaults(fixedDefaults()))
	forward := BuildableFunc(func(b *Builder) error {
		b.AddClaim("a", 1).AddClaim("b", "two").AddClaim("c", []interface{}{3})
		return nil
	})
	backward := BuildableFunc(func(b *Builder) error {
		b.AddClaim("c", []interface{}{3}).AddClaim("b", "two").AddClaim("a", 1)
		return nil
	})

	p1, err := f.Build(context.Background(), forward)
	require.NoError(t, err)
	p2, err := f.Build(context.Background(), backward)
	require.NoError(t, err)

	e1, err := p1.Payload.Encode()
	require.NoError(t, err)
	e2, err := p2.Payload.Encode()
	require.NoError(t, err)
	assert.Equal(t, e1, e2)
}

func TestFactoryRejectsUnencodable(t *testing.T) {
	f := NewFactory(WithMode(constants.DefaultsDisabled))
	_, err := f.Build(context.Background(), BuildableFunc(func(b *Builder) error {
		b.AddClaim("ch", make(chan int))
		return nil
	}))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidClaimValue))
}

func TestFactoryAppliesMutators(t *testing.T) {
	engine, err := mutator.NewEngine()
	require.NoError(t, err)
	set := mutator.NewSet().Payload("born", mutator.Tag("date"))
	f := NewFactory(WithMode(constants.DefaultsDisabled), WithMutators(engine, set))

	pair, err := f.Build(context.Background(), BuildableFunc(func(b *Builder) error {
		b.AddClaim("born", time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC))
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", pair.Payload.Value("born"))

	_, err = f.Build(context.Background(), BuildableFunc(func(b *Builder) error {
		b.AddClaim("born", "not a date")
		return nil
	}))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidClaimValue))
}

func TestFactoryStackOrder(t *testing.T) {
	f := NewFactory(WithMode(constants.DefaultsAfter))
	caller := BuildableFunc(func(*Builder) error { return nil })
	stack := f.Stack(caller)
	require.Len(t, stack, 2)
	_, isDefault := stack[1].(DefaultClaims)
	assert.True(t, isDefault)
}
