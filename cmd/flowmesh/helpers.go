package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hupe1980/flowmesh/graph"
	"github.com/hupe1980/flowmesh/node"
	"github.com/hupe1980/flowmesh/registry"
)

// newManager builds a serialization manager over the builtin node set, the
// only types an offline CLI can resolve.
func newManager() *graph.Manager {
	reg := registry.NewVersioned()
	// A fresh registry holds no types the builtins could collide with.
	_ = node.RegisterBuiltins(reg.Registry)

	return graph.NewManager(func(o *graph.Options) {
		o.Registry = reg
	})
}

// expandArgs resolves the given arguments to a sorted, deduplicated file
// list. Arguments containing glob metacharacters are expanded with **
// support; a pattern matching nothing is an error.
func expandArgs(args []string) ([]string, error) {
	seen := make(map[string]struct{})

	var files []string

	add := func(path string) {
		if _, dup := seen[path]; !dup {
			seen[path] = struct{}{}
			files = append(files, path)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			add(arg)
			continue
		}

		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", arg)
		}

		for _, m := range matches {
			add(m)
		}
	}

	sort.Strings(files)

	return files, nil
}
