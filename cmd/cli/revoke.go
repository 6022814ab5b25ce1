package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/littlejwt/pkg/revocation"
)

func newRevokeCommand(root *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Add a token to the revocation store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jwt, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer jwt.Close()

			signed, err := jwt.Parse(args[0])
			if err != nil {
				return err
			}
			if err := jwt.Revoke(ctx, signed, ttl); err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), map[string]interface{}{
				"revoked": revocation.ID(signed),
				"driver":  jwt.Config().Revocation.Driver,
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", -1, "how long the entry is kept, 0 keeps it forever, negative uses revocation.default_ttl")
	return cmd
}

func newPurgeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired revocation entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jwt, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer jwt.Close()

			if err := jwt.Purge(ctx); err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), map[string]interface{}{"purged": true})
		},
	}
}
