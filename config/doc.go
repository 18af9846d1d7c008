// Package config loads runtime configuration for flowmesh processes.
//
// Configuration is resolved in three layers: compiled-in defaults, an
// optional YAML file, and FLOWMESH_* environment variables, each layer
// overriding the previous one. LoadEnv additionally sources a local .env
// file before reading the environment, so development setups can keep
// overrides next to the checkout.
//
// The package only describes configuration; it does not open connections.
// Callers translate StorageConfig into a concrete provider themselves.
package config
