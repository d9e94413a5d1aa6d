package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	// Version needs no configuration or stores.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}
