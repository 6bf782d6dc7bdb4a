package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/establishment-api/internal/app"
	"github.com/jwalitptl/establishment-api/pkg/auth"
)

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Migrate(ctx)
			})
		},
	}
}

func newMigrateAffiliationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-affiliations",
		Short: "Copy legacy professional affiliations into establishment staff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Authz.MigrateLegacyAffiliations(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Reset establishments stuck in claim_pending without a pending claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				ids, err := a.Claims.Reconcile(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"reset": ids})
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.csv",
		Short: "Import establishments from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Directory.Import(ctx, f, uuid.Nil)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newIssueInvitationCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "issue-invitation ESTABLISHMENT_ID",
		Short: "Issue a single-use claim invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			establishmentID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid establishment ID: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				issued, err := a.Invitations.Issue(ctx, establishmentID, uuid.Nil, notify)
				if err != nil {
					return err
				}
				return printJSON(cmd, issued)
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "email the link to the establishment")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		email string
		role  string
	)
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Sign an access token, for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user ID: %w", err)
			}
			if role != auth.RoleProfessional && role != auth.RoleSuperAdmin {
				return fmt.Errorf("role must be %s or %s", auth.RoleProfessional, auth.RoleSuperAdmin)
			}
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				token, err := a.Tokens.GenerateAccessToken(userID, email, role)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", auth.RoleProfessional, "professional or super_admin")
	return cmd
}
