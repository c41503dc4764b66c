// Package flow implements the abstract interpretation the IC10
// optimiser's block-reordering pass needs: starting from instruction 0
// with an unknown (⊥) return address, it walks every reachable state,
// records the enter/follow state sets that land on each instruction, and
// partitions the program into blocks along points where control flow
// forks or merges (§4.H).
package flow

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/isa"
)

// unknownReturn is ⊥: "no assumption about the return address".
const unknownReturn = -1

// State is one abstract-interpretation state: the instruction about to
// execute, and the return address known to be on the call stack, if any.
type State struct {
	PC         int
	ReturnAddr int // unknownReturn (⊥) if not known
}

// Edge is one recorded transition between two instructions. Natural
// marks an edge that represents in-order fallthrough, as opposed to
// following a jump.
type Edge struct {
	From, To int
	Natural  bool
}

// Block is a maximal run of instructions with exactly one natural
// entry and one natural exit (§4.H): an instruction starts a new block
// when it has more than one predecessor, or its one predecessor doesn't
// naturally fall into it; it ends a block symmetrically on the
// successor side.
type Block struct {
	Start, End int // instruction range [Start, End)

	// EnterEdges/FollowEdges are every recorded predecessor/successor
	// edge landing on this block's first/last instruction.
	EnterEdges  []Edge
	FollowEdges []Edge
}

// Analysis is the result of Build: the program's block partition plus
// the raw per-instruction edge sets the partition was derived from.
type Analysis struct {
	Program isa.Program
	Blocks  []Block

	preds     map[int][]Edge
	succs     map[int][]Edge
	reachable map[int]bool
}

// Preds returns every recorded edge landing on instruction i.
func (a Analysis) Preds(i int) []Edge { return a.preds[i] }

// Succs returns every recorded edge leaving instruction i.
func (a Analysis) Succs(i int) []Edge { return a.succs[i] }

// Reachable reports whether the abstract interpretation starting at
// instruction 0 ever visited instruction i. A block consisting entirely
// of unreachable instructions is dropped by the control-flow pass.
func (a Analysis) Reachable(i int) bool { return a.reachable[i] }

// Build runs the abstract interpretation described in §4.H over p: a
// classic worklist dataflow keyed by PC alone, not by (PC, return
// address) pairs. Each instruction carries one merged belief about the
// return address on the call stack when it executes; two predecessors
// reaching it with different concrete addresses collapse that belief to
// ⊥ rather than tracking both possibilities context-sensitively. This
// is deliberately less precise than a per-call-site analysis would be —
// it trades tighter tail-call detection for a state space bounded by
// the instruction count alone, regardless of how many call sites share
// a callee.
func Build(p isa.Program) (Analysis, error) {
	preds := map[int][]Edge{}
	succs := map[int][]Edge{}
	knownReturn := map[int]int{} // PC -> merged known return address, once visited
	reachable := map[int]bool{}

	// jumpWithReturnFollows collects every instruction that immediately
	// follows a jump-with-return, used as the worst-case successor set
	// for "j ra" when the return address isn't statically known.
	jumpWithReturnFollows := lo.FilterMap(p.Instructions, func(in isa.Instruction, i int) (int, bool) {
		return i + 1, in.Opcode.Behaviour == isa.BehaviourJumpWithReturn && i+1 < len(p.Instructions)
	})

	addEdge := func(from, to int, natural bool) {
		preds[to] = append(preds[to], Edge{From: from, To: to, Natural: natural})
		succs[from] = append(succs[from], Edge{From: from, To: to, Natural: natural})
	}

	// clearOutgoing drops every edge this PC previously contributed, so a
	// re-visit (triggered by its merged return address changing) doesn't
	// leave stale edges computed under the old belief lying around.
	clearOutgoing := func(pc int) {
		for _, e := range succs[pc] {
			kept := preds[e.To][:0]
			for _, pe := range preds[e.To] {
				if pe.From != pc {
					kept = append(kept, pe)
				}
			}
			preds[e.To] = kept
		}
		succs[pc] = nil
	}

	var worklist []int
	// enqueue merges ret into pc's belief and schedules a (re-)visit only
	// when that belief actually changes.
	enqueue := func(pc, ret int) {
		if existing, seen := knownReturn[pc]; seen {
			if existing == ret || existing == unknownReturn {
				return
			}
			knownReturn[pc] = unknownReturn
		} else {
			knownReturn[pc] = ret
		}
		worklist = append(worklist, pc)
	}

	enqueue(0, unknownReturn)

	for len(worklist) > 0 {
		pc := worklist[0]
		worklist = worklist[1:]
		if pc < 0 || pc >= len(p.Instructions) {
			continue
		}
		reachable[pc] = true
		ret := knownReturn[pc]
		in := p.Instructions[pc]

		postReturn := ret
		if in.Opcode.Behaviour == isa.BehaviourJumpWithReturn {
			postReturn = pc + 1
		}

		targets, natural, err := successors(p, State{PC: pc, ReturnAddr: ret}, in, jumpWithReturnFollows)
		if err != nil {
			return Analysis{}, err
		}

		clearOutgoing(pc)
		for i, target := range targets {
			addEdge(pc, target, natural[i])
			enqueue(target, postReturn)
		}
	}

	blocks := buildBlocks(p, preds, succs)
	return Analysis{Program: p, Blocks: blocks, preds: preds, succs: succs, reachable: reachable}, nil
}

func successors(p isa.Program, state State, in isa.Instruction, jwrFollows []int) (targets []int, natural []bool, err error) {
	fallsThrough := true

	switch in.Opcode.Behaviour {
	case isa.BehaviourJump, isa.BehaviourJumpWithReturn:
		target, ok, err := resolveJumpTarget(p, state, in, jwrFollows)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			for _, t := range target {
				targets = append(targets, t)
				natural = append(natural, false)
			}
		}
		// Unconditional forms (plain j/jal, ConditionNone) never fall
		// through; conditional branches (beq/bge/... and bdse/bdns) do.
		if in.Opcode.Condition == 0 {
			fallsThrough = false
		}
	case isa.BehaviourRelativeJump:
		if len(in.Operands) == 0 || in.Operands[0].Kind != isa.OperandNumeric {
			return nil, nil, diag.NewInternalInvariant(in.String(), "relative jump requires a static offset")
		}
		targets = append(targets, state.PC+int(in.Operands[0].Number))
		natural = append(natural, false)
		fallsThrough = false
	}

	if fallsThrough && state.PC+1 < len(p.Instructions) {
		targets = append(targets, state.PC+1)
		natural = append(natural, true)
	}
	return targets, natural, nil
}

func resolveJumpTarget(p isa.Program, state State, in isa.Instruction, jwrFollows []int) ([]int, bool, error) {
	if len(in.Operands) == 0 {
		return nil, false, diag.NewInternalInvariant(in.String(), "jump instruction has no operand")
	}
	op := in.Operands[len(in.Operands)-1]

	// "j ra" / "jal ra": Parse recognises bare "ra" as a register operand
	// (RegRA), which doubles here as the jump-via-return-address form.
	if op.Kind == isa.OperandValueRegister && isRA(op) {
		if state.ReturnAddr != unknownReturn {
			return []int{state.ReturnAddr}, true, nil
		}
		// ⊥: worst case, every instruction that follows a jump-with-return.
		return jwrFollows, true, nil
	}

	switch op.Kind {
	case isa.OperandName:
		label, ok := p.LabelNamed(op.Name)
		if !ok {
			return nil, false, diag.NewInternalInvariant(in.String(), fmt.Sprintf("jump target label %q not found", op.Name))
		}
		return []int{label.Index}, true, nil
	case isa.OperandNumeric:
		return []int{int(op.Number)}, true, nil
	default:
		return nil, false, diag.NewInternalInvariant(in.String(), "jump target operand is neither a label nor an absolute index")
	}
}

func isRA(op isa.Operand) bool {
	// raIndex is internal to isa; ra's rendered text is the stable check.
	return op.String() == "ra"
}

func buildBlocks(p isa.Program, preds, succs map[int][]Edge) []Block {
	n := len(p.Instructions)
	if n == 0 {
		return nil
	}
	isStart := make([]bool, n)
	isEnd := make([]bool, n)
	isStart[0] = true
	isEnd[n-1] = true

	for i := 0; i < n; i++ {
		ps := preds[i]
		if i != 0 && (len(ps) != 1 || !ps[0].Natural) {
			isStart[i] = true
		}
		ss := succs[i]
		if i != n-1 && (len(ss) != 1 || !ss[0].Natural) {
			isEnd[i] = true
		}
		if i+1 < n && isEnd[i] {
			isStart[i+1] = true
		}
		if i > 0 && isStart[i] {
			isEnd[i-1] = true
		}
	}

	var blocks []Block
	start := 0
	for i := 0; i < n; i++ {
		if isEnd[i] {
			b := Block{Start: start, End: i + 1}
			b.EnterEdges = preds[start]
			b.FollowEdges = succs[i]
			blocks = append(blocks, b)
			start = i + 1
		}
	}
	return blocks
}
