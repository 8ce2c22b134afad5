package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/config"
	"github.com/Wikid82/entitled/internal/database"
	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "entitled",
	Short:   "Privileged-access vault for sensitive financial records",
	Version: version.Full(),
	// serve is the default action
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration, starts logging and opens the database.
// A missing or malformed encryption key stops here.
func bootstrap() (config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Debug, logger.RotatingWriter(cfg.LogDir, "entitled.log"))

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, db, nil
}
