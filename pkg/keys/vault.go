package keys

import (
	"context"
	"encoding/json"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// VaultSource reads key material from one field of a Vault secret. Reads are
// cached in memory for CacheTTL and concurrent misses share one request.
type VaultSource struct {
	client *vault.Client
	cache  *cache.Cache
	sf     singleflight.Group
	path   string
	field  string
	log    logger.Logger
}

// NewVaultSource creates a Vault client for cfg. No request is made until Fetch.
func NewVaultSource(cfg *config.VaultKeyConfig, log logger.Logger) (*VaultSource, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "cannot create vault client")
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = constants.DefaultVaultCacheTTL
	}
	field := cfg.Field
	if field == "" {
		field = "key"
	}
	if log == nil {
		log = logger.L()
	}

	return &VaultSource{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
		path:   cfg.Path,
		field:  field,
		log:    log.WithComponent("keys.vault"),
	}, nil
}

// Fetch returns the raw bytes stored in the configured field. KV v2 secrets,
// whose fields sit under a nested data member, are unwrapped.
func (s *VaultSource) Fetch(ctx context.Context) ([]byte, error) {
	cacheKey := s.path + "#" + s.field
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.([]byte), nil
	}

	material, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		if cached, found := s.cache.Get(cacheKey); found {
			return cached.([]byte), nil
		}
		material, err := s.read(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(cacheKey, material, cache.DefaultExpiration)
		return material, nil
	})
	if err != nil {
		return nil, err
	}
	return material.([]byte), nil
}

func (s *VaultSource) read(ctx context.Context) ([]byte, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		s.log.Error(ctx, "vault read failed", err, logger.String("path", s.path))
		return nil, errors.Wrap(err, errors.CodeMissingKey, "cannot read vault secret %s", s.path)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.MissingKey(fmt.Sprintf("vault secret %s not found", s.path))
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	var material []byte
	switch v := data[s.field].(type) {
	case string:
		material = []byte(v)
	case nil:
		return nil, errors.MissingKey(fmt.Sprintf("vault secret %s has no field %s", s.path, s.field))
	default:
		// JWK objects are stored as JSON
		material, err = json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidKey, "vault field %s cannot be encoded", s.field)
		}
	}

	s.log.Debug(ctx, "key material fetched from vault", logger.String("path", s.path))
	return material, nil
}

// Load fetches the material and builds a key for alg: HMAC material is the
// secret itself, asymmetric material is PEM or a JWK object.
func (s *VaultSource) Load(ctx context.Context, alg Algorithm, opts ...Option) (*Key, error) {
	material, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if alg.IsMAC() {
		return NewSecret(alg, material, opts...)
	}
	if len(material) > 0 && material[0] == '{' {
		var jwk map[string]interface{}
		if err := json.Unmarshal(material, &jwk); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidKey, "vault JWK is not valid JSON")
		}
		if _, ok := jwk["alg"]; !ok {
			jwk["alg"] = string(alg)
		}
		return FromJWK(jwk, opts...)
	}
	return FromPEM(alg, material, "", opts...)
}

// Invalidate drops cached material so the next Fetch reads Vault again.
func (s *VaultSource) Invalidate() {
	s.cache.Flush()
}
