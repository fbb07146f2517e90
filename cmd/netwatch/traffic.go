package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var trafficFlags struct {
	clientConfig
	limit int
}

var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "List captured traffic records",
	Long:  `List the most recent traffic records of a running agent, newest first.`,
	RunE:  runTraffic,
}

func init() {
	rootCmd.AddCommand(trafficCmd)

	addClientFlags(trafficCmd, &trafficFlags.clientConfig)
	trafficCmd.Flags().IntVarP(&trafficFlags.limit, "limit", "n", 50, "maximum number of records (at most 1000)")
}

func runTraffic(cmd *cobra.Command, args []string) error {
	c, err := trafficFlags.newClient()
	if err != nil {
		return err
	}

	records, err := c.ListTraffic(trafficFlags.iface, trafficFlags.limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No traffic found.")
		return nil
	}
	renderTraffic(os.Stdout, records)
	return nil
}
