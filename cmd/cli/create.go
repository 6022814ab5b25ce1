package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/littlejwt/pkg/builder"
	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/constants"
)

type createOptions struct {
	subject  string
	audience []string
	ttl      time.Duration
	claims   []string
	headers  []string
}

func newCreateCommand(root *rootOptions) *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and sign a token",
		Example: `  jwtctl create --sub alice --claim role=admin --claim 'scopes=["read","write"]'
  jwtctl create --ttl 15m --header kid=2024-05`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := opts.buildable()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			jwt, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer jwt.Close()

			signed, err := jwt.Create(ctx, extra)
			if err != nil {
				return err
			}
			return root.print(cmd.OutOrStdout(), map[string]interface{}{
				"token":   signed.String(),
				"header":  signed.Header().All(),
				"payload": signed.Payload().All(),
			})
		},
	}

	cmd.Flags().StringVar(&opts.subject, "sub", "", "subject claim")
	cmd.Flags().StringSliceVar(&opts.audience, "aud", nil, "audience, repeatable")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "lifetime overriding builder.ttl")
	cmd.Flags().StringArrayVar(&opts.claims, "claim", nil, "payload claim as key=value, value parsed as JSON when possible")
	cmd.Flags().StringArrayVar(&opts.headers, "header", nil, "header claim as key=value")
	return cmd
}

// buildable turns the flags into one buildable that runs after the defaults.
func (o *createOptions) buildable() (builder.Buildable, error) {
	payload, err := parseAssignments(o.claims)
	if err != nil {
		return nil, err
	}
	header, err := parseAssignments(o.headers)
	if err != nil {
		return nil, err
	}

	return builder.BuildableFunc(func(b *builder.Builder) error {
		if o.subject != "" {
			b.Subject(o.subject)
		}
		if len(o.audience) > 0 {
			b.Audience(o.audience...)
		}
		if o.ttl > 0 {
			iat, ok := b.GetClaim(constants.ClaimIssuedAt)
			start := time.Now()
			if n, isInt := iat.(int64); ok && isInt {
				start = time.Unix(n, 0)
			}
			b.ExpiresAt(start.Add(o.ttl))
		}
		for k, v := range payload {
			b.AddClaim(k, v, constants.PartPayload)
		}
		for k, v := range header {
			b.AddClaim(k, v, constants.PartHeader)
		}
		return nil
	}), nil
}

func parseAssignments(items []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(items))
	for _, item := range items {
		key, raw, ok := strings.Cut(item, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", item)
		}
		if v, err := claims.DecodeValue([]byte(raw)); err == nil {
			out[key] = v
		} else {
			out[key] = raw
		}
	}
	return out, nil
}
