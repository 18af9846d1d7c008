package graph

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/hupe1980/flowmesh/core"
)

// Fingerprint returns the hex BLAKE3 digest of a flow's canonical JSON form.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so equal flows digest equally regardless of how they were built.
func Fingerprint(flow *core.Flow) (string, error) {
	if flow == nil {
		return "", &core.ValidationError{Kind: "flow", Reason: "flow is nil"}
	}
	b, err := json.Marshal(flow)
	if err != nil {
		return "", fmt.Errorf("marshal flow %s: %w", flow.ID, err)
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
