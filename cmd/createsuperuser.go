/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store"
)

// createSuperuserCmd represents the createsuperuser command
var createSuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Creates an administrator account",
	Long: `Creates a superuser with the admin role. The account signs in like any
other user, through /auth/signup and /auth/token. Usage:

	yamdb createsuperuser --username admin --email admin@example.com
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")

		cfg := config.LoadConfig()
		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer conn.Close()

		user, err := services.NewUserService(store.NewUserRepository(conn)).CreateSuperuser(cmd.Context(), username, email)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created (role %s)\n", user.Username, user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createSuperuserCmd)

	createSuperuserCmd.Flags().String("username", "", "Username of the new superuser")
	createSuperuserCmd.Flags().String("email", "", "Email of the new superuser")
	_ = createSuperuserCmd.MarkFlagRequired("username")
	_ = createSuperuserCmd.MarkFlagRequired("email")
}
