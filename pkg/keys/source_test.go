package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/errors"
)

func pemBlock(t *testing.T, typ string, der []byte) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
}

func pkcs8(t *testing.T, key interface{}) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pemBlock(t, "PRIVATE KEY", der)
}

func pkixPEM(t *testing.T, key interface{}) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return pemBlock(t, "PUBLIC KEY", der)
}

func TestFromPEM(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey := ecdsaKey(t)
	edPub, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cases := []struct {
		name    string
		alg     Algorithm
		data    []byte
		canSign bool
	}{
		{"rsa pkcs1 private", RS256, pemBlock(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)), true},
		{"rsa pkcs8 private", PS256, pkcs8(t, rsaKey), true},
		{"rsa public", RS512, pkixPEM(t, &rsaKey.PublicKey), false},
		{"ec private", ES256, pkcs8(t, ecKey), true},
		{"ec public", ES256, pkixPEM(t, &ecKey.PublicKey), false},
		{"ed private", EdDSA, pkcs8(t, edKey), true},
		{"ed public", EdDSA, pkixPEM(t, edPub), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, err := FromPEM(tc.alg, tc.data, "")
			require.NoError(t, err)
			assert.Equal(t, tc.canSign, k.CanSign())
		})
	}
}

func TestFromPEMErrors(t *testing.T) {
	ecKey := ecdsaKey(t)

	_, err := FromPEM(RS256, pkcs8(t, ecKey), "")
	assert.True(t, errors.Is(err, errors.ErrIncompatibleKeyAlgorithm), "got %v", err)

	_, err = FromPEM(ES256, []byte("not pem"), "")
	assert.True(t, errors.Is(err, errors.ErrInvalidKey))

	_, err = FromPEM(HS256, pkcs8(t, ecKey), "")
	assert.True(t, errors.Is(err, errors.ErrIncompatibleKeyAlgorithm))

	_, err = FromPEM(ES256, pkcs8(t, ecKey), "secret")
	assert.True(t, errors.Is(err, errors.ErrInvalidKey))

	_, err = FromPEM(ES256, nil, "")
	assert.True(t, errors.Is(err, errors.ErrMissingKey))
}

func TestFromCertificatePEM(t *testing.T) {
	ecKey := ecdsaKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "littlejwt"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &ecKey.PublicKey, ecKey)
	require.NoError(t, err)

	k, err := FromCertificatePEM(ES256, pemBlock(t, "CERTIFICATE", der))
	require.NoError(t, err)
	assert.False(t, k.CanSign())
	assert.True(t, ecKey.PublicKey.Equal(k.VerificationMaterial()))

	_, err = FromCertificatePEM(ES256, pkixPEM(t, &ecKey.PublicKey))
	assert.True(t, errors.Is(err, errors.ErrInvalidKey))
}

func TestFromPKCS12Errors(t *testing.T) {
	_, err := FromPKCS12(RS256, nil, "pw")
	assert.True(t, errors.Is(err, errors.ErrMissingKey))

	_, err = FromPKCS12(RS256, []byte("garbage"), "pw")
	assert.True(t, errors.Is(err, errors.ErrInvalidKey))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	secret := strings.Repeat("s", 32)

	k, err := Load(ctx, "HS256", &config.KeyConfig{Source: "secret", ID: "main", Secret: config.SecretKeyConfig{Phrase: secret}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "main", k.ID())

	_, err = Load(ctx, "HS256", &config.KeyConfig{Source: "secret"}, nil)
	assert.True(t, errors.Is(err, errors.ErrMissingKey))

	_, err = Load(ctx, "HS256", &config.KeyConfig{Source: "secret", Secret: config.SecretKeyConfig{AllowEmpty: true}}, nil)
	assert.NoError(t, err)

	k, err = Load(ctx, "ES384", &config.KeyConfig{Source: "random"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ES384, k.Algorithm())

	k, err = Load(ctx, "none", &config.KeyConfig{Source: "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, None, k.Algorithm())

	_, err = Load(ctx, "none", &config.KeyConfig{Source: "random"}, nil)
	assert.True(t, errors.Is(err, errors.ErrIncompatibleKeyAlgorithm))
	_, err = Load(ctx, "HS256", &config.KeyConfig{Source: "none"}, nil)
	assert.True(t, errors.Is(err, errors.ErrIncompatibleKeyAlgorithm))

	_, err = Load(ctx, "", &config.KeyConfig{Source: "random"}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidHashAlgorithm))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ec.pem")
	require.NoError(t, os.WriteFile(path, pkcs8(t, ecdsaKey(t)), 0o600))

	k, err := Load(context.Background(), "ES256", &config.KeyConfig{Source: "file", File: config.FileKeyConfig{Path: path, Type: "pem"}}, nil)
	require.NoError(t, err)
	assert.True(t, k.CanSign())

	_, err = Load(context.Background(), "ES256", &config.KeyConfig{Source: "file", File: config.FileKeyConfig{Path: filepath.Join(dir, "absent.pem")}}, nil)
	assert.True(t, errors.Is(err, errors.ErrMissingKey))
}

func vaultServer(t *testing.T, data map[string]interface{}, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/v1/secret/data/littlejwt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultSource(t *testing.T) {
	var hits int32
	secret := strings.Repeat("v", 48)
	srv := vaultServer(t, map[string]interface{}{"key": secret}, &hits)

	cfg := &config.KeyConfig{
		Source: "vault",
		Vault:  config.VaultKeyConfig{Address: srv.URL, Token: "root", Path: "secret/data/littlejwt", Field: "key"},
	}
	k, err := Load(context.Background(), "HS384", cfg, nil)
	require.NoError(t, err)
	material, _ := k.SigningMaterial()
	assert.Equal(t, []byte(secret), material)

	vs, err := NewVaultSource(&cfg.Vault, nil)
	require.NoError(t, err)
	_, err = vs.Fetch(context.Background())
	require.NoError(t, err)
	before := atomic.LoadInt32(&hits)
	_, err = vs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, atomic.LoadInt32(&hits), "second fetch should be served from cache")

	vs.Invalidate()
	_, err = vs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, atomic.LoadInt32(&hits))
}

func TestVaultSourceJWKAndMissing(t *testing.T) {
	var hits int32
	ecKey := ecdsaKey(t)
	signing, err := NewPrivate(ES256, ecKey)
	require.NoError(t, err)
	srv := vaultServer(t, map[string]interface{}{"jwk": signing.JWK()}, &hits)

	vs, err := NewVaultSource(&config.VaultKeyConfig{Address: srv.URL, Path: "secret/data/littlejwt", Field: "jwk"}, nil)
	require.NoError(t, err)
	k, err := vs.Load(context.Background(), ES256)
	require.NoError(t, err)
	assert.True(t, ecKey.PublicKey.Equal(k.VerificationMaterial()))

	missing, err := NewVaultSource(&config.VaultKeyConfig{Address: srv.URL, Path: "secret/data/other"}, nil)
	require.NoError(t, err)
	_, err = missing.Fetch(context.Background())
	assert.True(t, errors.Is(err, errors.ErrMissingKey))
}

func TestVaultSourceConcurrentMissesShareOneRead(t *testing.T) {
	var hits int32
	srv := vaultServer(t, map[string]interface{}{"key": strings.Repeat("c", 32)}, &hits)
	vs, err := NewVaultSource(&config.VaultKeyConfig{Address: srv.URL, Path: "secret/data/littlejwt"}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			material, err := vs.Fetch(context.Background())
			assert.NoError(t, err)
			assert.Len(t, material, 32)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
