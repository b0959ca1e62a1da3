package routecheck

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"absence/internal/domain/auth"
	"absence/internal/domain/workflow"
	"absence/internal/domain/workflow/memstore"
)

// New returns the `routecheck` root command.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "routecheck",
		Short:         "Inspect approval routing against an organisation fixture",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newResolveCmd(), newTokenCmd())
	return root
}

func newResolveCmd() *cobra.Command {
	var fixture, userID, projectID, requestType string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the policies, workflow and initial outcome for a requester",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := memstore.Open(fixture)
			if err != nil {
				return err
			}
			engine := workflow.NewEngine(store)
			res, err := engine.Resolve(cmd.Context(), userID, projectID, requestType)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "organisation fixture (YAML)")
	cmd.Flags().StringVar(&userID, "user", "", "requester user id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&requestType, "type", workflow.RequestTypeLeave, "request type")
	_ = cmd.MarkFlagRequired("fixture")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var secret, userID, companyID string
	var admin bool
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken(secret, auth.Claims{UserID: userID, CompanyID: companyID, IsAdmin: admin}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&companyID, "company", "", "company id")
	cmd.Flags().BoolVar(&admin, "admin", false, "mark the caller as company admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string) error {
	root := New()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
