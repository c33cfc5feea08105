// Package core is the orchestration layer.  It composes a connector
// and a capability into a runnable mode and provides a builder that
// assembles that mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  client  →  session / capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete run of httplink: it owns the connection from the
// connect attempt to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
