package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/flowmesh/graph"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <flow.json|pattern> ...",
	Short: "Print the integrity fingerprint of flow files",
	Long: "Fingerprint computes the blake3 digest of each flow's canonical\n" +
		"JSON form, the same digest the flow store verifies on load. Output is\n" +
		"one digest and path per line.",
	Args: cobra.MinimumNArgs(1),
	RunE: runFingerprint,
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	files, err := expandArgs(args)
	if err != nil {
		return err
	}

	m := newManager()
	out := cmd.OutOrStdout()

	for _, path := range files {
		flow, err := m.LoadFile(path)
		if err != nil {
			return err
		}

		digest, err := graph.Fingerprint(flow)
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", path, err)
		}

		fmt.Fprintf(out, "%s  %s\n", digest, path)
	}

	return nil
}
