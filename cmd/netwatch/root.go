package main

import (
	"fmt"
	"os"

	"github.com/rsclarke/netwatch/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

var configPath string

var rootCmd = &cobra.Command{
	Use:   "netwatch",
	Short: "Passive local network monitoring agent",
	Long: `netwatch discovers the active interfaces of the host, sweeps the local
address range for devices, samples traffic on every interface with tcpdump
and serves the collected records over an authenticated HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("NETWATCH_CONFIG", ""), "path to YAML config file (default netwatch.yaml)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
