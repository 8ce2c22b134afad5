package main

import (
	"github.com/spf13/cobra"

	"github.com/Wikid82/entitled/internal/api/routes"
	"github.com/Wikid82/entitled/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo users and encrypted vault items",
	Long: `Load demo users (employee1-3, admin1-3, auditor) and vault items with
encrypted investment records. Provisioning URIs for new users are printed so
their authenticator apps can be enrolled. Existing users and items are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		svc, err := routes.NewServices(db, cfg)
		if err != nil {
			return err
		}
		s := &seed.Seeder{Auth: svc.Auth, Vault: svc.Vault, Out: cmd.OutOrStdout()}
		return s.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
