// Package execctx is the symbolic interpreter that drives one method's
// compilation: it walks a decoded SBIL instruction vector, maintains the
// virtual stack and register allocations, and emits IC10 fragments into
// an outbuf.Buffer. It is the core the rest of the compiler exists to
// support.
package execctx

import (
	"github.com/thomasfn/CsToMips/internal/ic10/regset"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
)

// noLocal marks a local or parameter slot with no backing register
// (⊥ in the data model: reference-typed or wide-value locals).
const noLocal = -1

// ExecutionState is the per-instruction snapshot the branch-consistency
// check compares: two states are consistent when their stacks and
// register allocations agree structurally, irrespective of what either
// side believes about local variables' known constant values.
type ExecutionState struct {
	Stack     symval.Stack
	Registers regset.Set

	// LocalKnown holds, per local variable index, the known symbolic
	// value occupying it if the compiler has one (nil otherwise). This is
	// deliberately excluded from BranchConsistentWith: the data model
	// tolerates a destination with no assumption (⊥) about a local's
	// known state even when the source fragment had one.
	LocalKnown []*symval.Value
}

// BranchConsistentWith reports whether s and other agree on virtual
// stack contents and register allocations, the invariant every emitted
// jump must satisfy between its source's post-state and its target's
// pre-state (§3).
func (s ExecutionState) BranchConsistentWith(other ExecutionState) bool {
	return s.Stack.Equal(other.Stack) && s.Registers == other.Registers
}
