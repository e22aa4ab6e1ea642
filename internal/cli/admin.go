package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bellvik/transport-planner/internal/app"
	"github.com/bellvik/transport-planner/internal/storage"
)

// passwordEnv lets scripts pass the password without exposing it in argv.
const passwordEnv = "PLANNER_ADMIN_PASSWORD"

func newAdminCommand(e *env) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage maintenance API accounts",
	}
	adminCmd.AddCommand(newAdminCreateCommand(e))
	return adminCmd
}

func newAdminCreateCommand(e *env) *cobra.Command {
	var (
		password string
		fullName string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an admin or viewer account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return errors.New("cli: password is required (--password or " + passwordEnv + ")")
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				admin, err := a.Auth.CreateAdmin(cmd.Context(), args[0], password, fullName, role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", admin.Role, admin.Username, admin.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (default $"+passwordEnv+")")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&role, "role", storage.RoleAdmin, "admin or viewer")
	return cmd
}
