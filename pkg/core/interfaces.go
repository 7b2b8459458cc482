// Package core defines the contracts shared across Tom: the capability
// module interface every skill implements and the operation descriptor the
// registry exposes to the language model.
package core

import (
	"context"

	"github.com/tom-assistant/tom/pkg/schema"
)

// Handler executes one operation with validated arguments.
// A non-nil error is the single distinguishable failure shape; any returned
// value must be JSON-serializable.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Operation is one callable unit exposed by a module.
type Operation struct {
	// Name is unique within the owning module. It may collide across
	// modules; the registry qualifies colliding names before exposure.
	Name string

	// Description tells the model when to call this operation.
	Description string

	// Params is the structural description of the arguments.
	Params *schema.Object

	// Strict rejects unknown arguments and makes every declared
	// parameter mandatory.
	Strict bool

	// Handler is bound to the owning module's internal state.
	Handler Handler

	// ResponseGuidance optionally instructs the model how to phrase the
	// final answer derived from this operation's result. It is injected
	// only after the operation has actually been invoked.
	ResponseGuidance string
}

// Module is a self-contained capability unit.
//
// Modules are constructed once at startup and immutable thereafter; any
// internal mutable state (caches and the like) is private to the module and
// synchronized by it.
type Module interface {
	// Name uniquely identifies the module within a registry.
	Name() string

	// Description is used by the model to decide relevance during triage.
	Description() string

	// SystemContext is injected into the model's instructions whenever
	// this module is active.
	SystemContext() string

	// Complexity is a priority/cost hint; higher means more expensive.
	Complexity() int

	// Operations returns the module's callable units, in a stable order.
	Operations() []Operation
}
