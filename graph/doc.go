// Package graph converts between live node instances and the persistable
// flow wire format.
//
// The Manager serializes nodes and edges into a core.Flow and deserializes a
// flow back into instances through a versioned registry. Deserialization
// validates the complete flow first: structural shape, known node types,
// version compatibility, edge endpoints, handle existence and dataType
// matches, and per-handle connection rules. The first violation aborts with
// a ValidationError naming the offending node or edge, and no node is
// instantiated until the whole flow passed.
//
// Flows round-trip exactly through SaveJSON/LoadJSON. Fingerprint digests
// the canonical JSON form with BLAKE3; the Store persists flows through any
// core.StorageProvider and verifies the fingerprint on load.
package graph
