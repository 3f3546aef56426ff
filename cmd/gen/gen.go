package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the bosswave binary",
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
