package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wikid82/entitled/internal/envelope"
)

var dataKeyCmd = &cobra.Command{
	Use:   "data-key",
	Short: "Manage the envelope encryption key",
}

var dataKeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new random key for ENTITLED_ENCRYPTION_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := envelope.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	dataKeyCmd.AddCommand(dataKeyGenerateCmd)
	rootCmd.AddCommand(dataKeyCmd)
}
