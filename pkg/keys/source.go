package keys

import (
	"context"
	"os"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// Load builds the key described by cfg for the algorithm id algID. It is the
// single entry point used by the facade and the CLI.
func Load(ctx context.Context, algID string, cfg *config.KeyConfig, log logger.Logger) (*Key, error) {
	alg, err := ParseAlgorithm(algID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.L()
	}
	opts := []Option{WithLogger(log)}
	if cfg.ID != "" {
		opts = append(opts, WithKeyID(cfg.ID))
	}

	source := constants.KeySource(cfg.Source)
	if (alg == None) != (source == constants.KeySourceNone) {
		return nil, errors.New(errors.CodeIncompatibleKeyAlgorithm, "algorithm %s cannot be used with the %s key source", algID, cfg.Source)
	}

	switch source {
	case constants.KeySourceSecret:
		if cfg.Secret.AllowEmpty {
			opts = append(opts, AllowEmptySecret())
		}
		return NewSecret(alg, []byte(cfg.Secret.Phrase), opts...)
	case constants.KeySourceFile:
		return loadFile(alg, &cfg.File, opts)
	case constants.KeySourceRandom:
		size := cfg.Random.Size
		if size == 0 {
			size = constants.DefaultRandomKeySize
		}
		return NewRandom(alg, size, opts...)
	case constants.KeySourceNone:
		return NewNone(opts...), nil
	case constants.KeySourceVault:
		vs, err := NewVaultSource(&cfg.Vault, log)
		if err != nil {
			return nil, err
		}
		return vs.Load(ctx, alg, opts...)
	default:
		return nil, errors.Config("unknown key source %q", cfg.Source)
	}
}

func loadFile(alg Algorithm, cfg *config.FileKeyConfig, opts []Option) (*Key, error) {
	if cfg.Path == "" {
		return nil, errors.MissingKey("key file path is empty")
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMissingKey, "cannot read key file %s", cfg.Path)
	}

	switch constants.KeyFileType(cfg.Type) {
	case constants.KeyFilePEM, "":
		return FromPEM(alg, data, cfg.Passphrase, opts...)
	case constants.KeyFileP12:
		return FromPKCS12(alg, data, cfg.Passphrase, opts...)
	case constants.KeyFileCert:
		return FromCertificatePEM(alg, data, opts...)
	default:
		return nil, errors.Config("unknown key file type %q", cfg.Type)
	}
}
