package main

import (
	"fmt"
	"os"

	"github.com/rsclarke/netwatch/internal/client"
	"github.com/spf13/cobra"
)

type clientConfig struct {
	apiURL      string
	apiUser     string
	apiPassword string
	iface       string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", getEnv("NETWATCH_API_URL", "http://localhost:8081"), "API server URL")
	cmd.Flags().StringVar(&cfg.apiUser, "api-user", getEnv("NETWATCH_API_USER", "admin"), "API username")
	cmd.Flags().StringVar(&cfg.apiPassword, "api-password", os.Getenv("NETWATCH_API_PASSWORD"), "API password")
	cmd.Flags().StringVarP(&cfg.iface, "interface", "i", "", "only show records for this interface")
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or NETWATCH_API_URL env var)")
	}
	if cfg.apiPassword == "" {
		return nil, fmt.Errorf("API password required (use --api-password flag or NETWATCH_API_PASSWORD env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.apiUser, cfg.apiPassword), nil
}
