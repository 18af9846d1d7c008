// Package core provides the foundational domain types and interfaces used by
// FlowMesh. It defines the core abstractions for:
//
//   - Nodes (executable units with typed input/output ports and frozen metadata)
//   - Messages (asynchronous, stateful communication records with retry and
//     streaming lifecycles)
//   - Flows (persistable node-and-edge graphs with a fixed JSON wire shape)
//   - The Bus contract connecting nodes to each other
//   - A pluggable StorageProvider contract for key-value persistence
//
// The package intentionally keeps implementation concerns (bus dispatch,
// runtime scheduling, concrete nodes, storage backends) out of scope, exposing
// small interfaces to enable custom backends and extensions. All exported
// identifiers include concise documentation to aid discoverability and
// external consumption.
package core
