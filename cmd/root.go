package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vkolb/waldb/cmd/serve"
	"github.com/vkolb/waldb/cmd/status"
)

const (
	Version = "1.0.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "waldb",
		Short: "single-host database-access daemon",
		Long: fmt.Sprintf(`waldb (v%s)

A local daemon that coordinates concurrent access to embedded SQLite
databases, routing requests to per-database workers that serialize
writes through a write-ahead log.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of waldb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("waldb v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(status.StatusCmd)
	RootCmd.AddCommand(status.PingCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
