package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wikid82/entitled/internal/api/routes"
)

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <username> <new-password>",
	Short: "Set a new password for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		svc, err := routes.NewServices(db, cfg)
		if err != nil {
			return err
		}
		if err := svc.Auth.ResetPassword(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetPasswordCmd)
}
