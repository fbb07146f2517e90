package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rsclarke/netwatch/internal/config"
	"github.com/rsclarke/netwatch/internal/deps"
	"github.com/rsclarke/netwatch/internal/netif"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check dependencies and usable interfaces",
	Long: `Run the startup checks of the agent without starting it: report whether
tcpdump, nmap and the sqlite driver are available and which interfaces
would be monitored.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgErr := cfg.Validate()

	results, depErr := deps.New().Check()
	renderDeps(os.Stdout, results)

	ifaces, ifErr := netif.Discover(cfg.Interfaces)
	for _, iface := range ifaces {
		fmt.Printf("interface: %s\n", iface)
	}

	var errs []error
	if cfgErr != nil {
		errs = append(errs, fmt.Errorf("invalid config: %w", cfgErr))
	}
	return errors.Join(append(errs, depErr, ifErr)...)
}
