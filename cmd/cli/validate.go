package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// errInvalidToken makes the command exit non-zero after printing the report.
var errInvalidToken = errors.New("token is not valid")

func newValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <token>",
		Short: "Validate a token against the configured rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jwt, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer jwt.Close()

			result, err := jwt.ValidateString(ctx, args[0])
			if err != nil {
				return err
			}
			failed := result.Failed
			if failed == nil {
				failed = []string{}
			}
			if err := root.print(cmd.OutOrStdout(), map[string]interface{}{
				"passed": result.Passed,
				"failed": failed,
				"errors": result.Errors,
			}); err != nil {
				return err
			}
			if !result.Passed {
				return errInvalidToken
			}
			return nil
		},
	}
}
