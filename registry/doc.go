// Package registry maps node type names to factories, split into core
// (framework-shipped) and custom (application-provided) categories. A type
// lives in exactly one category; registering through the wrong call is a
// configuration error raised immediately, not at use time.
//
// VersionedRegistry adds a semantic version per type and registry-backed
// construction with a compatibility check: versions are compatible when they
// share a major component. Strict minor mode additionally requires the
// registered minor to be at least the requested one.
package registry
