package logquery

import (
	"context"
)

// Scope describes which logger slugs an actor may read. Exactly one of the
// three shapes applies: everything, an explicit slug set (possibly as a
// pre-built SQL fragment from a trusted resolver), or nothing at all. The
// nothing-readable case is an explicit sentinel so the engine never builds
// a degenerate "IN ()" that could read as "no filter".
type Scope struct {
	all     bool
	nothing bool
	slugs   []string

	// fragment is a ready-to-splice SQL list for "logger IN (...)",
	// e.g. "'users','posts'". Only trusted resolvers may supply it; it
	// bypasses parameterization by design of the resolver contract.
	fragment string
}

// ScopeAll grants read access to every logger.
func ScopeAll() Scope {
	return Scope{all: true}
}

// ScopeSlugs grants read access to the given logger slugs. An empty list is
// equivalent to ScopeNothing.
func ScopeSlugs(slugs ...string) Scope {
	if len(slugs) == 0 {
		return ScopeNothing()
	}
	return Scope{slugs: slugs}
}

// ScopeFragment grants read access via a pre-built SQL IN-list fragment.
func ScopeFragment(fragment string) Scope {
	if fragment == "" {
		return ScopeNothing()
	}
	return Scope{fragment: fragment}
}

// ScopeNothing is the explicit "nothing readable" sentinel.
func ScopeNothing() Scope {
	return Scope{nothing: true}
}

// All reports whether the scope covers every logger.
func (s Scope) All() bool { return s.all }

// Nothing reports whether the actor may read no loggers at all.
func (s Scope) Nothing() bool { return s.nothing }

// Slugs returns the readable slugs, if the scope is slug-shaped.
func (s Scope) Slugs() []string { return s.slugs }

// PermissionResolver supplies the set of logger slugs an actor may read.
type PermissionResolver interface {
	ReadableLoggers(ctx context.Context, actor string) Scope
}

// AllowAllResolver grants every actor full read access.
type AllowAllResolver struct{}

// ReadableLoggers implements PermissionResolver.
func (AllowAllResolver) ReadableLoggers(context.Context, string) Scope {
	return ScopeAll()
}

// StaticResolver maps actors to readable logger slugs. Unknown actors can
// read nothing.
type StaticResolver map[string][]string

// ReadableLoggers implements PermissionResolver.
func (r StaticResolver) ReadableLoggers(_ context.Context, actor string) Scope {
	slugs, ok := r[actor]
	if !ok {
		return ScopeNothing()
	}
	return ScopeSlugs(slugs...)
}
