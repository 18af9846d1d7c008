package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "flowmesh",
	Short: "Inspect, validate and fingerprint flowmesh flow files",
	Long: "Flowmesh works with serialized flow files, the durable wire format\n" +
		"of the orchestration core: validate them against the builtin node set,\n" +
		"inspect their structure and compute their integrity fingerprint.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
