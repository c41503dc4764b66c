package execctx

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/outbuf"
	"github.com/thomasfn/CsToMips/internal/ic10/regset"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

// Options carries everything the execution context needs to resolve
// symbols it does not own: the enclosing class's fields, a way to look
// up another method's IR for call lowering, a way to look up a device
// type's slot count, and the driver's logger. The execution context does
// not log through Logger itself.
type Options struct {
	Class         *ir.Class
	ResolveMethod func(ref ir.MethodRef) (*ir.Method, bool)
	// ResolveDeviceSlotCount answers get_Length on a device interface type,
	// backed by that type's DeviceSlotCount tag (§6).
	ResolveDeviceSlotCount func(deviceTypeName string) (int, bool)
	Logger                 *logrus.Entry
}

// Context is the symbolic interpreter for a single method compile. One
// Context is created per top-level method compile and per inline
// attempt; it is discarded once its Buffer has been folded into the
// caller's output.
type Context struct {
	opts   Options
	method *ir.Method
	inline bool

	labelPrefix string
	out         *outbuf.Buffer
	insns       []sbil.Instruction
	offsetIndex map[int]int

	stack     symval.Stack
	registers regset.Set
	reserved  regset.Set

	paramRegs   []int // noLocal when inline (params live as plain values instead)
	paramValues []symval.Value
	localRegs   []int
	localKnown  []*symval.Value

	returnSink *symval.Value

	states []ExecutionState

	deps map[string]bool

	branchEdges []branchEdge

	// allocatedBeyondReserved tracks registers this Context allocated that
	// were not already in reserved when it started, so an inline caller
	// knows which registers to treat as still-live after splicing this
	// body in (§4.F: "propagate any registers the callee allocated but
	// did not free").
	allocatedBeyondReserved regset.Set

	// inFlight names every method currently being inlined somewhere on
	// this call chain, shared by reference across an entire nested
	// inline attempt. callSite consults it to fall back to call-stack
	// lowering instead of re-entering an inline attempt for a method
	// already being inlined, which would otherwise recurse forever for
	// any directly or mutually recursive user method.
	inFlight map[string]bool
}

// New initialises a Context for compiling method. If inline, the actual
// parameter values are popped off initialStack (the caller's current
// virtual stack) instead of being read from registers; otherwise one
// register is allocated per parameter and the preamble pops each one off
// the runtime stack.
func New(opts Options, reservedRegs regset.Set, method *ir.Method, labelPrefix string, inline bool, initialStack symval.Stack, returnSink *symval.Value) (*Context, error) {
	c := &Context{
		opts:        opts,
		method:      method,
		inline:      inline,
		labelPrefix: labelPrefix,
		registers:   reservedRegs,
		reserved:    reservedRegs,
		returnSink:  returnSink,
		deps:        map[string]bool{},
		inFlight:    map[string]bool{method.Name: true},
	}

	if inline {
		args, rest := initialStack.PopN(len(method.Params))
		// PopN returns top-first; actual parameter order is left-to-right,
		// i.e. the reverse of pop order.
		c.paramValues = make([]symval.Value, len(args))
		for i, a := range args {
			c.paramValues[len(args)-1-i] = a
		}
		c.paramRegs = nil
		c.stack = rest
	} else {
		c.paramRegs = make([]int, len(method.Params))
		for i := range method.Params {
			reg, ok := c.allocate()
			if !ok {
				return nil, diag.NewRegisterExhausted(fmt.Sprintf("param %d of %s", i, method.Name))
			}
			c.paramRegs[i] = reg
		}
		c.stack = symval.Empty
	}

	c.localRegs = make([]int, len(method.Locals))
	c.localKnown = make([]*symval.Value, len(method.Locals))
	for i, l := range method.Locals {
		switch l.Width {
		case 0:
			c.localRegs[i] = noLocal
		case 1:
			reg, ok := c.allocate()
			if !ok {
				return nil, diag.NewRegisterExhausted(fmt.Sprintf("local %d (%s) of %s", i, l.Name, method.Name))
			}
			c.localRegs[i] = reg
		default:
			return nil, diag.NewUnsupportedConstruct(method.Name, fmt.Sprintf("local %q has unsupported width %d", l.Name, l.Width))
		}
	}

	return c, nil
}

func (c *Context) allocate() (int, bool) {
	out, idx, ok := c.registers.Allocate()
	if !ok {
		return 0, false
	}
	c.registers = out
	if !c.reserved.Has(idx) {
		c.allocatedBeyondReserved = c.allocatedBeyondReserved.AllocateAt(idx)
	}
	return idx, true
}

func (c *Context) free(idx int) {
	c.registers = c.registers.Free(idx)
}

// AllocatedBeyondReserved is the set of registers this Context allocated
// that were not already reserved when it started.
func (c *Context) AllocatedBeyondReserved() regset.Set { return c.allocatedBeyondReserved }

// Registers is the Context's current register allocation.
func (c *Context) Registers() regset.Set { return c.registers }

// Compile produces IC10 text for the whole instruction vector, appending
// the preamble/postamble §4.F specifies and verifying branch consistency
// once every instruction has been visited.
func (c *Context) Compile(instructions []sbil.Instruction) (string, error) {
	c.insns = instructions
	c.out = outbuf.New(c.labelPrefix, len(instructions))
	c.states = make([]ExecutionState, len(instructions))

	c.offsetIndex = make(map[int]int, len(instructions))
	for i, insn := range instructions {
		c.offsetIndex[insn.Offset] = i
	}

	if !c.inline {
		// Non-inline preamble: pop actual parameters off the runtime stack
		// into their registers, in reverse-push order.
		for i := len(c.paramRegs) - 1; i >= 0; i-- {
			c.out.AddPreamble(fmt.Sprintf("pop r%d", c.paramRegs[i]))
		}
	}

	for i, insn := range instructions {
		c.states[i] = c.snapshot()
		if err := c.dispatch(i, insn); err != nil {
			return "", err
		}
	}

	if c.inline {
		c.out.AddPostamble(c.labelPrefix + "_end:")
	}

	if err := c.verifyBranchConsistency(); err != nil {
		return "", err
	}

	return c.out.Assemble(), nil
}

// MethodDependencies returns the set of callee method names discovered
// while emitting call sites, for the driver to compile transitively.
func (c *Context) MethodDependencies() map[string]bool { return c.deps }

func (c *Context) snapshot() ExecutionState {
	return ExecutionState{
		Stack:      c.stack,
		Registers:  c.registers,
		LocalKnown: cloneKnown(c.localKnown),
	}
}

func cloneKnown(in []*symval.Value) []*symval.Value {
	out := make([]*symval.Value, len(in))
	copy(out, in)
	return out
}

// verifyBranchConsistency checks, for every jump target label this
// Context required, that the pre-state recorded at the target agrees
// (stack and registers) with the post-state of every fragment that jumps
// to it. Because handlers record RequireLabel only at indices that are
// actual jump targets, and the dispatch loop snapshots pre-states in
// order, the check reduces to: for every recorded branch edge (source
// index, target index), source's post-state (i.e. the next recorded
// pre-state, or the final register/stack state if source is the last
// instruction) must be consistent with target's pre-state.
func (c *Context) verifyBranchConsistency() error {
	for _, edge := range c.branchEdges {
		src := c.postStateOf(edge.from)
		dst := c.states[edge.to]
		if !src.BranchConsistentWith(dst) {
			return diag.NewBranchInconsistent(
				string(c.insns[edge.from].Op),
				fmt.Sprintf("branch to instruction %d: stack/register mismatch", edge.to),
			)
		}
	}
	return nil
}

func (c *Context) postStateOf(i int) ExecutionState {
	if i+1 < len(c.states) {
		return c.states[i+1]
	}
	return c.snapshot()
}

type branchEdge struct{ from, to int }
