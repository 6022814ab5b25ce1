package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/littlejwt/pkg/token"
)

func newParseCommand(root *rootOptions) *cobra.Command {
	var mutated bool
	cmd := &cobra.Command{
		Use:   "parse <token>",
		Short: "Decode a token without validating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jwt, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer jwt.Close()

			var tok token.Claims
			if mutated {
				tok, err = jwt.ParseMutated(ctx, args[0])
			} else {
				tok, err = jwt.Parse(args[0])
			}
			if err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), map[string]interface{}{
				"header":  tok.Header().All(),
				"payload": tok.Payload().All(),
			})
		},
	}
	cmd.Flags().BoolVar(&mutated, "mutated", false, "apply the configured mutators to the decoded claims")
	return cmd
}
