package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var inspectFlags struct {
	asJSON bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <flow.json>",
	Short: "Print the structure of a flow file",
	Long: "Inspect parses a flow file and prints its nodes and edges. It does\n" +
		"not validate, so flows referencing custom node types can be inspected.",
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectFlags.asJSON, "json", false, "Print the flow as indented JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	m := newManager()

	flow, err := m.LoadFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if inspectFlags.asJSON {
		data, err := json.MarshalIndent(flow, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal flow: %w", err)
		}

		fmt.Fprintf(out, "%s\n", data)

		return nil
	}

	fmt.Fprintf(out, "Flow:     %s (%s) v%s\n", flow.ID, flow.Name, flow.Version)
	if flow.Description != "" {
		fmt.Fprintf(out, "About:    %s\n", flow.Description)
	}

	fmt.Fprintf(out, "Modified: %s\n", flow.Meta.Modified.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(out, "Nodes (%d):\n", len(flow.Nodes))
	for _, n := range flow.Nodes {
		if n.Version != "" {
			fmt.Fprintf(out, "  %-16s %s v%s\n", n.ID, n.Type, n.Version)
		} else {
			fmt.Fprintf(out, "  %-16s %s\n", n.ID, n.Type)
		}
	}

	fmt.Fprintf(out, "Edges (%d):\n", len(flow.Edges))
	for _, e := range flow.Edges {
		fmt.Fprintf(out, "  %-16s %s.%s -> %s.%s\n", e.ID, e.Source, e.SourceHandle, e.Target, e.TargetHandle)
	}

	return nil
}
