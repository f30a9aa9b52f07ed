package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("abathur version %s\n", version.Info())
	},
}
