package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rollcall/internal/app"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an admin account",
	Example: `  # Password from the environment
  ROLLCTL_PASSWORD=s3cret rollctl admin create alice --role admin`,
	Args: cobra.ExactArgs(1),
	RunE: runAdminCreate,
}

var adminResetPasswordCmd = &cobra.Command{
	Use:   "reset-password <username>",
	Short: "Set a new password without the old one",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminResetPassword,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd, adminResetPasswordCmd)

	adminCreateCmd.Flags().String("role", "admin", "Role to grant")
	adminCreateCmd.Flags().String("email", "", "Contact email")
	for _, c := range []*cobra.Command{adminCreateCmd, adminResetPasswordCmd} {
		c.Flags().String("password", "", "Password (defaults to $ROLLCTL_PASSWORD)")
	}
}

func passwordFlag(cmd *cobra.Command) (string, error) {
	pw, _ := cmd.Flags().GetString("password")
	if pw == "" {
		pw = os.Getenv("ROLLCTL_PASSWORD")
	}
	if pw == "" {
		return "", errors.New("--password or ROLLCTL_PASSWORD is required")
	}
	return pw, nil
}

func runAdminCreate(cmd *cobra.Command, args []string) error {
	pw, err := passwordFlag(cmd)
	if err != nil {
		return err
	}
	role, _ := cmd.Flags().GetString("role")
	email, _ := cmd.Flags().GetString("email")
	return withApp(cmd.Context(), func(a *app.App) error {
		adm, err := a.Admins.Add(cmd.Context(), args[0], pw, role, email)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", adm.Username, adm.Role)
		return nil
	})
}

func runAdminResetPassword(cmd *cobra.Command, args []string) error {
	pw, err := passwordFlag(cmd)
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(a *app.App) error {
		if err := a.Admins.ResetPassword(cmd.Context(), args[0], pw); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", args[0])
		return nil
	})
}
