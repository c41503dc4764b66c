// Package diag holds the compiler's typed failure kinds and the
// structured logger threaded explicitly through the driver and core.
package diag

import "fmt"

// CompileError is the contract every fatal core failure satisfies: the
// standard error interface plus an accessor for the offending
// instruction's text form, so callers can render a diagnostic without
// re-deriving it from the wrapped cause.
type CompileError interface {
	error
	Instruction() string
}

// DecoderError is raised when the SBIL byte stream is malformed or
// references a metadata token the resolver cannot bind (§7).
type DecoderError struct {
	instruction string
	Cause       error
}

func NewDecoderError(instruction string, cause error) *DecoderError {
	return &DecoderError{instruction: instruction, Cause: cause}
}
func (e *DecoderError) Error() string       { return fmt.Sprintf("decoder error at %q: %v", e.instruction, e.Cause) }
func (e *DecoderError) Unwrap() error       { return e.Cause }
func (e *DecoderError) Instruction() string { return e.instruction }

// UnsupportedConstruct is raised when SBIL used a shape the core does
// not lower: field access on a non-This target, reading a multicast pin
// via a non-multicast path, a ref-typed local besides DeviceSlots (§7).
type UnsupportedConstruct struct {
	instruction string
	Reason      string
}

func NewUnsupportedConstruct(instruction, reason string) *UnsupportedConstruct {
	return &UnsupportedConstruct{instruction: instruction, Reason: reason}
}
func (e *UnsupportedConstruct) Error() string {
	return fmt.Sprintf("unsupported construct at %q: %s", e.instruction, e.Reason)
}
func (e *UnsupportedConstruct) Instruction() string { return e.instruction }

// RegisterExhausted is raised when first-free register allocation fails
// (§7).
type RegisterExhausted struct {
	instruction string
}

func NewRegisterExhausted(instruction string) *RegisterExhausted {
	return &RegisterExhausted{instruction: instruction}
}
func (e *RegisterExhausted) Error() string {
	return fmt.Sprintf("register file exhausted at %q", e.instruction)
}
func (e *RegisterExhausted) Instruction() string { return e.instruction }

// BranchInconsistent is raised when the post-check finds differing
// virtual-stack or register-allocation sets between the source of a
// jump and its target (§3, §7).
type BranchInconsistent struct {
	instruction string
	Detail      string
}

func NewBranchInconsistent(instruction, detail string) *BranchInconsistent {
	return &BranchInconsistent{instruction: instruction, Detail: detail}
}
func (e *BranchInconsistent) Error() string {
	return fmt.Sprintf("branch inconsistent at %q: %s", e.instruction, e.Detail)
}
func (e *BranchInconsistent) Instruction() string { return e.instruction }

// InternalInvariant is raised when flow analysis sees an unresolvable
// label, the operand parser fails a round trip, or some other assumption
// this compiler depends on turns out false (§7).
type InternalInvariant struct {
	instruction string
	Detail      string
}

func NewInternalInvariant(instruction, detail string) *InternalInvariant {
	return &InternalInvariant{instruction: instruction, Detail: detail}
}
func (e *InternalInvariant) Error() string {
	return fmt.Sprintf("internal invariant violated at %q: %s", e.instruction, e.Detail)
}
func (e *InternalInvariant) Instruction() string { return e.instruction }

var (
	_ CompileError = (*DecoderError)(nil)
	_ CompileError = (*UnsupportedConstruct)(nil)
	_ CompileError = (*RegisterExhausted)(nil)
	_ CompileError = (*BranchInconsistent)(nil)
	_ CompileError = (*InternalInvariant)(nil)
)
