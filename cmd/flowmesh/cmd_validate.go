package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow.json|pattern> ...",
	Short: "Validate flow files against the builtin node set",
	Long: "Validate parses each flow file and runs the full pre-instantiation\n" +
		"check: structural shape, known node types, version compatibility, edge\n" +
		"endpoints, handle data types and port rules. Custom node types are not\n" +
		"resolvable offline and fail as unknown.",
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := expandArgs(args)
	if err != nil {
		return err
	}

	m := newManager()
	out := cmd.OutOrStdout()

	var failed int

	for _, path := range files {
		flow, err := m.LoadFile(path)
		if err == nil {
			err = m.Validate(flow)
		}

		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %v\n", path, err)

			continue
		}

		fmt.Fprintf(out, "OK    %s\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d flow files failed validation", failed, len(files))
	}

	return nil
}
