package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var scansFlags struct {
	clientConfig
	limit int
}

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List device discovery sweeps",
	Long:  `List recent device discovery sweeps with their device counts, durations and errors.`,
	RunE:  runScans,
}

func init() {
	rootCmd.AddCommand(scansCmd)

	addClientFlags(scansCmd, &scansFlags.clientConfig)
	scansCmd.Flags().IntVarP(&scansFlags.limit, "limit", "n", 20, "maximum number of sweeps (at most 1000)")
}

func runScans(cmd *cobra.Command, args []string) error {
	c, err := scansFlags.newClient()
	if err != nil {
		return err
	}

	scans, err := c.ListScans(scansFlags.iface, scansFlags.limit)
	if err != nil {
		return err
	}

	if len(scans) == 0 {
		fmt.Println("No scans found.")
		return nil
	}
	renderScans(os.Stdout, scans)
	return nil
}
