package registry

import (
	"strings"

	"github.com/coreos/go-semver/semver"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// VersionedOptions holds configuration overrides passed to NewVersioned().
type VersionedOptions struct {
	// Logging services.
	Logger logging.Logger
	// StrictMinor additionally requires the registered minor version to be
	// at least the requested one. Off by default: plain major equality.
	StrictMinor bool
}

// VersionedRegistry couples a Registry with semantic-version aware,
// registry-backed node construction. Factories carry their version; Create
// enforces the compatibility rule before instantiating.
type VersionedRegistry struct {
	*Registry

	strictMinor bool
}

// NewVersioned constructs an empty VersionedRegistry with optional overrides.
func NewVersioned(optFns ...func(o *VersionedOptions)) *VersionedRegistry {
	opts := VersionedOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &VersionedRegistry{
		Registry:    New(func(o *Options) { o.Logger = opts.Logger }),
		strictMinor: opts.StrictMinor,
	}
}

// VersionOf returns the registered version for a node type.
func (r *VersionedRegistry) VersionOf(nodeType string) (string, bool) {
	f, ok := r.Get(nodeType)
	if !ok {
		return "", false
	}
	return f.Version, true
}

// Create constructs a node instance of the given type without a version
// constraint. Unknown types fail with a RegistrationError.
func (r *VersionedRegistry) Create(nodeType, id string, data map[string]any) (core.Node, error) {
	return r.CreateWithVersion(nodeType, id, data, "")
}

// CreateWithVersion constructs a node instance, first checking that the
// registered version is compatible with the requested one. An empty version
// skips the check.
func (r *VersionedRegistry) CreateWithVersion(nodeType, id string, data map[string]any, version string) (core.Node, error) {
	f, ok := r.Get(nodeType)
	if !ok {
		return nil, &core.RegistrationError{NodeType: nodeType, Reason: "unknown node type"}
	}

	if version != "" {
		compatible, err := r.compatible(nodeType, f.Version, version)
		if err != nil {
			return nil, err
		}
		if !compatible {
			return nil, &core.VersionIncompatibilityError{
				NodeType:   nodeType,
				Requested:  version,
				Registered: f.Version,
			}
		}
	}

	return f.New(id, data)
}

// Compatible reports whether the registered and requested versions satisfy
// the registry's compatibility rule. Malformed version strings report false.
func (r *VersionedRegistry) Compatible(registered, requested string) bool {
	ok, err := r.compatible("", registered, requested)
	return err == nil && ok
}

func (r *VersionedRegistry) compatible(nodeType, registered, requested string) (bool, error) {
	reg, err := parseVersion(registered)
	if err != nil {
		return false, &core.ValidationError{Kind: "version", ID: nodeType, Reason: "malformed registered version " + registered}
	}
	req, err := parseVersion(requested)
	if err != nil {
		return false, &core.ValidationError{Kind: "version", ID: nodeType, Reason: "malformed requested version " + requested}
	}

	if reg.Major != req.Major {
		return false, nil
	}
	if r.strictMinor && reg.Minor < req.Minor {
		return false, nil
	}
	return true, nil
}

// parseVersion parses a semantic version, padding missing minor/patch
// components so shorthand forms like "1" or "1.2" resolve.
func parseVersion(s string) (*semver.Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	switch strings.Count(s, ".") {
	case 0:
		s += ".0.0"
	case 1:
		s += ".0"
	}
	return semver.NewVersion(s)
}
