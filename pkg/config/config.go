// Package config holds the immutable configuration value every littlejwt
// engine is constructed from.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// Config holds the library configuration.
type Config struct {
	Algorithm  string           `mapstructure:"algorithm" validate:"required,oneof=HS256 HS384 HS512 RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512 EdDSA none"`
	Key        KeyConfig        `mapstructure:"key"`
	Builder    BuilderConfig    `mapstructure:"builder"`
	Validator  ValidatorConfig  `mapstructure:"validator"`
	Mutators   MutatorConfig    `mapstructure:"mutators"`
	Revocation RevocationConfig `mapstructure:"revocation"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// KeyConfig selects and parameterizes the key source.
type KeyConfig struct {
	Source string          `mapstructure:"source" validate:"required,oneof=secret file random none vault"`
	ID     string          `mapstructure:"id"`
	Secret SecretKeyConfig `mapstructure:"secret"`
	File   FileKeyConfig   `mapstructure:"file"`
	Random RandomKeyConfig `mapstructure:"random"`
	Vault  VaultKeyConfig  `mapstructure:"vault"`
}

type SecretKeyConfig struct {
	Phrase     string `mapstructure:"phrase"`
	AllowEmpty bool   `mapstructure:"allow_empty"`
}

type FileKeyConfig struct {
	Path       string `mapstructure:"path"`
	Type       string `mapstructure:"type" validate:"omitempty,oneof=pem p12 cert"`
	Passphrase string `mapstructure:"passphrase"`
}

type RandomKeyConfig struct {
	Size int `mapstructure:"size" validate:"gte=0"`
}

// VaultKeyConfig reads key material from a Vault secret field. Path is the
// full logical path, e.g. secret/data/littlejwt for a KV v2 mount.
type VaultKeyConfig struct {
	Address  string        `mapstructure:"address"`
	Token    string        `mapstructure:"token"`
	Path     string        `mapstructure:"path"`
	Field    string        `mapstructure:"field"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// BuilderConfig holds the default claims applied to every issued token.
type BuilderConfig struct {
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Defaults string        `mapstructure:"defaults" validate:"omitempty,oneof=before after disabled"`
}

// ValidatorConfig holds the default validation rules.
type ValidatorConfig struct {
	RequiredHeader    []string      `mapstructure:"required_header"`
	RequiredPayload   []string      `mapstructure:"required_payload"`
	Leeway            time.Duration `mapstructure:"leeway" validate:"gte=0"`
	ExpectedAlgorithm string        `mapstructure:"expected_algorithm"`
	ExpectedIssuer    string        `mapstructure:"expected_issuer"`
	ExpectedAudience  string        `mapstructure:"expected_audience"`
	JWKSURL           string        `mapstructure:"jwks_url" validate:"omitempty,url"`
	StopOnFailure     bool          `mapstructure:"stop_on_failure"`
	Defaults          string        `mapstructure:"defaults" validate:"omitempty,oneof=before after disabled"`
}

// MutatorConfig maps claim names to definition strings per scope.
type MutatorConfig struct {
	Global  map[string]string `mapstructure:"global"`
	Header  map[string]string `mapstructure:"header"`
	Payload map[string]string `mapstructure:"payload"`
	// EncryptionKey is the hex encoded 32-byte key for the encrypted mutator.
	EncryptionKey string `mapstructure:"encryption_key"`
	CacheSize     int    `mapstructure:"cache_size" validate:"gte=0"`
}

// RevocationConfig selects the revocation store.
type RevocationConfig struct {
	Driver     string          `mapstructure:"driver" validate:"omitempty,oneof=cache redis database none"`
	DefaultTTL time.Duration   `mapstructure:"default_ttl" validate:"gte=0"`
	Cache      CacheConfig     `mapstructure:"cache"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Broadcast  BroadcastConfig `mapstructure:"broadcast"`
}

// BroadcastConfig shares revocations between instances over a Kafka topic.
// An empty GroupID gives every instance its own consumer group so each one
// sees every event.
type BroadcastConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type CacheConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Table        string `mapstructure:"table"`
	IDColumn     string `mapstructure:"id_column"`
	ExpiryColumn string `mapstructure:"expiry_column"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns DSN when set, otherwise a postgres keyword/value DSN.
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
	// JaegerEndpoint is the collector URL, e.g. http://localhost:14268/api/traces.
	// Spans are only exported when it is set or an exporter is passed in code.
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" validate:"omitempty,url"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Algorithm: constants.DefaultAlgorithm,
		Key: KeyConfig{
			Source: string(constants.KeySourceSecret),
			File:   FileKeyConfig{Type: string(constants.KeyFilePEM)},
			Random: RandomKeyConfig{Size: constants.DefaultRandomKeySize},
			Vault:  VaultKeyConfig{Field: "key", CacheTTL: constants.DefaultVaultCacheTTL},
		},
		Builder: BuilderConfig{
			TTL:      constants.DefaultTokenTTL,
			Defaults: string(constants.DefaultsBefore),
		},
		Validator: ValidatorConfig{
			RequiredHeader:  []string{constants.HeaderAlgorithm, constants.HeaderType},
			RequiredPayload: []string{constants.ClaimIssuedAt, constants.ClaimNotBefore, constants.ClaimExpiresAt, constants.ClaimID},
			StopOnFailure:   true,
			Defaults:        string(constants.DefaultsBefore),
		},
		Mutators: MutatorConfig{CacheSize: constants.DefaultMutatorCacheSize},
		Revocation: RevocationConfig{
			Driver:     string(constants.RevocationDriverCache),
			DefaultTTL: constants.DefaultRevocationTTL,
			Cache:      CacheConfig{CleanupInterval: 10 * time.Minute},
			Redis:      RedisConfig{Addr: "localhost:6379", KeyPrefix: constants.DefaultRedisKeyPrefix},
			Database: DatabaseConfig{
				Driver:       "sqlite",
				DSN:          "file::memory:?cache=shared",
				Table:        constants.DefaultRevocationTable,
				IDColumn:     constants.DefaultRevocationIDColumn,
				ExpiryColumn: constants.DefaultRevocationExpiryColumn,
				AutoMigrate:  true,
			},
			Broadcast: BroadcastConfig{Topic: constants.DefaultRevocationTopic},
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Namespace: constants.ServiceName},
		Tracing: TracingConfig{ServiceName: constants.ServiceName, SamplingRate: 1},
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	isNone := c.Algorithm == "none"
	sourceNone := c.Key.Source == string(constants.KeySourceNone)
	if isNone != sourceNone {
		return errors.Config("algorithm none and key source none must be configured together")
	}

	switch constants.KeySource(c.Key.Source) {
	case constants.KeySourceFile:
		if c.Key.File.Path == "" {
			return errors.Config("key.file.path is required for the file key source")
		}
	case constants.KeySourceVault:
		if c.Key.Vault.Address == "" || c.Key.Vault.Path == "" {
			return errors.Config("key.vault.address and key.vault.path are required for the vault key source")
		}
	}

	switch constants.RevocationDriver(c.Revocation.Driver) {
	case constants.RevocationDriverRedis:
		if c.Revocation.Redis.Addr == "" {
			return errors.Config("revocation.redis.addr is required for the redis driver")
		}
	case constants.RevocationDriverDatabase:
		db := c.Revocation.Database
		if db.Driver == "" || db.Table == "" || db.IDColumn == "" || db.ExpiryColumn == "" {
			return errors.Config("revocation.database driver, table, id_column and expiry_column are required")
		}
	}

	if b := c.Revocation.Broadcast; b.Enabled && (len(b.Brokers) == 0 || b.Topic == "") {
		return errors.Config("revocation.broadcast brokers and topic are required when broadcasting is enabled")
	}

	if c.Mutators.EncryptionKey != "" && len(c.Mutators.EncryptionKey) != 64 {
		return errors.Config("mutators.encryption_key must be 32 bytes hex encoded")
	}
	return nil
}
