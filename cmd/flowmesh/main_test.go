package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/node"
)

func testFlow(mutate func(f *core.Flow)) *core.Flow {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	f := &core.Flow{
		ID:      "flow-1",
		Name:    "echo pipeline",
		Version: "1.0.0",
		Nodes: []core.FlowNode{
			{ID: "a", Type: node.TypeEcho, Data: map[string]any{}, Version: "1.0.0"},
			{ID: "b", Type: node.TypeEcho, Data: map[string]any{}, Version: "1.0.0"},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "a", SourceHandle: "out", Target: "b", TargetHandle: "in"},
		},
		Meta: core.FlowMeta{Created: now, Modified: now},
	}

	if mutate != nil {
		mutate(f)
	}

	return f
}

func writeFlowFile(t *testing.T, path string, flow *core.Flow) {
	t.Helper()
	require.NoError(t, newManager().SaveFile(flow, path))
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	return cmd, &buf
}

func TestExpandArgs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	writeFlowFile(t, filepath.Join(dir, "a.json"), testFlow(nil))
	writeFlowFile(t, filepath.Join(sub, "b.json"), testFlow(nil))

	files, err := expandArgs([]string{filepath.Join(dir, "**", "*.json")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(sub, "b.json")}, files)

	// Literal paths pass through untouched, duplicates collapse.
	files, err = expandArgs([]string{"x.json", "x.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x.json"}, files)

	_, err = expandArgs([]string{filepath.Join(dir, "*.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched no files")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	writeFlowFile(t, good, testFlow(nil))

	cmd, buf := newTestCmd()
	require.NoError(t, runValidate(cmd, []string{good}))
	assert.Contains(t, buf.String(), "OK")

	bad := filepath.Join(dir, "bad.json")
	writeFlowFile(t, bad, testFlow(func(f *core.Flow) {
		f.Nodes[1].Type = "unknown"
	}))

	cmd, buf = newTestCmd()
	err := runValidate(cmd, []string{good, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, buf.String(), "FAIL")
	assert.Contains(t, buf.String(), "unknown")
}

func TestFingerprintCommand(t *testing.T) {
	dir := t.TempDir()

	one := filepath.Join(dir, "one.json")
	two := filepath.Join(dir, "two.json")
	writeFlowFile(t, one, testFlow(nil))
	writeFlowFile(t, two, testFlow(nil))

	cmd, buf := newTestCmd()
	require.NoError(t, runFingerprint(cmd, []string{one, two}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	// Identical flows carry identical digests.
	digest := bytes.Fields(lines[0])[0]
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, bytes.Fields(lines[1])[0])
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "flow.json")
	writeFlowFile(t, path, testFlow(nil))

	cmd, buf := newTestCmd()
	require.NoError(t, runInspect(cmd, []string{path}))
	assert.Contains(t, buf.String(), "echo pipeline")
	assert.Contains(t, buf.String(), "a.out -> b.in")
}

func TestInspectCommandJSON(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "flow.json")
	writeFlowFile(t, path, testFlow(nil))

	inspectFlags.asJSON = true
	defer func() { inspectFlags.asJSON = false }()

	cmd, buf := newTestCmd()
	require.NoError(t, runInspect(cmd, []string{path}))

	var flow core.Flow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &flow))
	assert.Equal(t, "flow-1", flow.ID)
	assert.Len(t, flow.Nodes, 2)
}

func TestInspectCommandSkipsValidation(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "custom.json")
	writeFlowFile(t, path, testFlow(func(f *core.Flow) {
		f.Nodes[0].Type = "my-custom-type"
	}))

	cmd, buf := newTestCmd()
	require.NoError(t, runInspect(cmd, []string{path}))
	assert.Contains(t, buf.String(), "my-custom-type")
}
