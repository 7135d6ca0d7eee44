package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and BuildDate are stamped at build time:
//
//	go build -ldflags "-X 'github.com/stormdotcom/invo-gen-fastapi/cmd.Version=0.3.0' \
//	  -X 'github.com/stormdotcom/invo-gen-fastapi/cmd.BuildDate=2024-06-01'"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// shortVersion prints the bare version string.
var shortVersion bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if shortVersion {
			fmt.Fprintln(out, Version)
			return
		}
		fmt.Fprintln(out, "Invoice Generator")
		fmt.Fprintf(out, "Version:    %s\n", Version)
		fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
		fmt.Fprintf(out, "Go Version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&shortVersion, "short", false, "Print only the version")
}
