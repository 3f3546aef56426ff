package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/bosswave/cmd/gen"
)

var (
	// Optional TOML config file, overrides the environment
	configFile string
)

var RootCmd = &cobra.Command{
	Use:   "bosswave",
	Short: "BOSSWAVE device client and loopback router",
	Long: `BOSSWAVE device client and loopback router

Devices publish messages made of key/value, payload object and routing
object fields to a router over a persistent TCP connection. This binary
can act as the router, or as a device publishing and listening.
`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "TOML config file, overrides BOSSWAVE_* environment variables")

	RootCmd.AddCommand(RouterCmd)
	RootCmd.AddCommand(PublishCmd)
	RootCmd.AddCommand(ListenCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
