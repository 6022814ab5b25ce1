package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/littlejwt/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. LITTLEJWT_KEY_SECRET_PHRASE.
const EnvPrefix = "LITTLEJWT"

// LoadConfig loads the configuration from defaults, an optional yaml file and
// environment variables, in increasing precedence. An empty path searches
// ./littlejwt.yaml and /etc/littlejwt/littlejwt.yaml; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// WatchConfig loads path and calls onChange with the re-validated
// configuration every time the file is written. Reloads that fail validation
// are passed to onError and the previous configuration stays in effect.
// The returned stop function detaches the callbacks.
func WatchConfig(path string, onChange func(*Config), onError func(error)) (*Config, func(), error) {
	if path == "" {
		return nil, nil, errors.Config("config watching requires an explicit file path")
	}
	v, err := newViper(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	stopped := false
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(next)
	})
	v.WatchConfig()

	stop := func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
	}
	return cfg, stop, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("littlejwt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/littlejwt/")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, errors.CodeConfig, "failed to read config")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every leaf of d so AutomaticEnv can override keys that
// the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("algorithm", d.Algorithm)

	v.SetDefault("key.source", d.Key.Source)
	v.SetDefault("key.id", d.Key.ID)
	v.SetDefault("key.secret.phrase", d.Key.Secret.Phrase)
	v.SetDefault("key.secret.allow_empty", d.Key.Secret.AllowEmpty)
	v.SetDefault("key.file.path", d.Key.File.Path)
	v.SetDefault("key.file.type", d.Key.File.Type)
	v.SetDefault("key.file.passphrase", d.Key.File.Passphrase)
	v.SetDefault("key.random.size", d.Key.Random.Size)
	v.SetDefault("key.vault.address", d.Key.Vault.Address)
	v.SetDefault("key.vault.token", d.Key.Vault.Token)
	v.SetDefault("key.vault.path", d.Key.Vault.Path)
	v.SetDefault("key.vault.field", d.Key.Vault.Field)
	v.SetDefault("key.vault.cache_ttl", d.Key.Vault.CacheTTL)

	v.SetDefault("builder.ttl", d.Builder.TTL)
	v.SetDefault("builder.issuer", d.Builder.Issuer)
	v.SetDefault("builder.audience", d.Builder.Audience)
	v.SetDefault("builder.defaults", d.Builder.Defaults)

	v.SetDefault("validator.required_header", d.Validator.RequiredHeader)
	v.SetDefault("validator.required_payload", d.Validator.RequiredPayload)
	v.SetDefault("validator.leeway", d.Validator.Leeway)
	v.SetDefault("validator.expected_algorithm", d.Validator.ExpectedAlgorithm)
	v.SetDefault("validator.expected_issuer", d.Validator.ExpectedIssuer)
	v.SetDefault("validator.expected_audience", d.Validator.ExpectedAudience)
	v.SetDefault("validator.jwks_url", d.Validator.JWKSURL)
	v.SetDefault("validator.stop_on_failure", d.Validator.StopOnFailure)
	v.SetDefault("validator.defaults", d.Validator.Defaults)

	v.SetDefault("mutators.encryption_key", d.Mutators.EncryptionKey)
	v.SetDefault("mutators.cache_size", d.Mutators.CacheSize)

	v.SetDefault("revocation.driver", d.Revocation.Driver)
	v.SetDefault("revocation.default_ttl", d.Revocation.DefaultTTL)
	v.SetDefault("revocation.cache.cleanup_interval", d.Revocation.Cache.CleanupInterval)
	v.SetDefault("revocation.redis.addr", d.Revocation.Redis.Addr)
	v.SetDefault("revocation.redis.password", d.Revocation.Redis.Password)
	v.SetDefault("revocation.redis.db", d.Revocation.Redis.DB)
	v.SetDefault("revocation.redis.pool_size", d.Revocation.Redis.PoolSize)
	v.SetDefault("revocation.redis.key_prefix", d.Revocation.Redis.KeyPrefix)
	v.SetDefault("revocation.database.driver", d.Revocation.Database.Driver)
	v.SetDefault("revocation.database.dsn", d.Revocation.Database.DSN)
	v.SetDefault("revocation.database.table", d.Revocation.Database.Table)
	v.SetDefault("revocation.database.id_column", d.Revocation.Database.IDColumn)
	v.SetDefault("revocation.database.expiry_column", d.Revocation.Database.ExpiryColumn)
	v.SetDefault("revocation.database.auto_migrate", d.Revocation.Database.AutoMigrate)
	v.SetDefault("revocation.broadcast.enabled", d.Revocation.Broadcast.Enabled)
	v.SetDefault("revocation.broadcast.brokers", d.Revocation.Broadcast.Brokers)
	v.SetDefault("revocation.broadcast.topic", d.Revocation.Broadcast.Topic)
	v.SetDefault("revocation.broadcast.group_id", d.Revocation.Broadcast.GroupID)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.jaeger_endpoint", d.Tracing.JaegerEndpoint)
}
