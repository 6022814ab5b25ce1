// Package cli implements the jwtctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/littlejwt"
	"github.com/turtacn/littlejwt/internal/infrastructure/monitoring"
	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/logger"
)

type rootOptions struct {
	configPath string
	output     string
	verbose    bool
}

// NewRootCommand builds the jwtctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jwtctl",
		Short: "Create, inspect, validate and revoke JSON Web Tokens.",
		Long: `jwtctl drives littlejwt from the command line. Keys, default claims,
validation rules, mutators and the revocation store all come from the
configuration file and LITTLEJWT_ environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != outputJSON && opts.output != outputYAML {
				return fmt.Errorf("unsupported output format %q", opts.output)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the littlejwt.yaml configuration")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputJSON, "output format: json or yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(
		newCreateCommand(opts),
		newParseCommand(opts),
		newValidateCommand(opts),
		newRevokeCommand(opts),
		newPurgeCommand(opts),
	)
	return cmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// open loads the configuration and builds the toolkit. Logging stays quiet
// unless --verbose is set so command output remains machine readable.
func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*littlejwt.LittleJWT, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	log := logger.NewNoopLogger()
	if o.verbose {
		if log, err = monitoring.NewZapLoggerTo(cfg.Log, stderr); err != nil {
			return nil, err
		}
	}
	return littlejwt.New(ctx, cfg, littlejwt.WithLogger(log))
}
