package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var devicesFlags struct {
	clientConfig
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List discovered devices",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	addClientFlags(devicesCmd, &devicesFlags.clientConfig)
}

func runDevices(cmd *cobra.Command, args []string) error {
	c, err := devicesFlags.newClient()
	if err != nil {
		return err
	}

	devices, err := c.ListDevices(devicesFlags.iface)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return nil
	}
	renderDevices(os.Stdout, devices)
	return nil
}
