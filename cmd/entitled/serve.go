package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/server"
	"github.com/Wikid82/entitled/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API.

Requires ENTITLED_ENCRYPTION_KEY (base64, 32 bytes) and ENTITLED_JWT_SECRET
(at least 32 characters). Values may also come from a .env file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}

		srv, err := server.New(db, cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log().WithFields(map[string]interface{}{
			"version":     version.Full(),
			"environment": cfg.Environment,
			"port":        cfg.HTTPPort,
		}).Infof("starting %s", version.Name)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
