// Package optimize runs the fixed pipeline of IC10 text-to-text passes
// described in §4.I: jump normalisation, control-flow block reordering,
// dead-jump/dead-label cleanup, and a fixed-point peephole sweep. Every
// pass preserves program semantics; none changes what the program
// computes, only how many instructions it takes to say it.
package optimize

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/thomasfn/CsToMips/internal/flow"
	"github.com/thomasfn/CsToMips/internal/ic10/isa"
)

// Run parses text as an IC10 program, runs every pass in order, and
// renders the result back to text. Optimisation is best-effort: a pass
// that cannot make sense of the program (flow.Build failing on a
// malformed jump) is logged at warn level and text is returned
// unoptimised rather than aborting the compile that got this far. A nil
// logger silences pass reporting entirely.
func Run(text string, logger *logrus.Entry) string {
	p := isa.ParseProgram(text)

	p, normalised := normaliseJumps(p)

	p, tailCalls, dropped, err := controlFlow(p)
	if err != nil {
		if logger != nil {
			logger.WithError(err).Warn("control-flow optimisation pass failed, emitting unoptimised program")
		}
		return text
	}

	p, redundantJ := redundantJumps(p)
	p, redundantL := dropUnusedLabels(p)
	p, peephole := peepholeFixedPoint(p)

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"normalised_jumps": normalised,
			"tail_calls":       tailCalls,
			"dropped_blocks":   dropped,
			"redundant_jumps":  redundantJ,
			"redundant_labels": redundantL,
			"peephole_changes": peephole,
		}).Debug("optimiser pass summary")
	}

	return p.Text()
}

// normaliseJumps rewrites every relative jump (jr) to an absolute jump,
// inserting a label at the target instruction if none already names it.
func normaliseJumps(p isa.Program) (isa.Program, int) {
	count := 0
	for i, in := range p.Instructions {
		if in.Opcode.Behaviour != isa.BehaviourRelativeJump {
			continue
		}
		if len(in.Operands) == 0 || in.Operands[0].Kind != isa.OperandNumeric {
			continue
		}
		target := i + int(in.Operands[0].Number)
		if target < 0 || target > len(p.Instructions) {
			continue
		}
		label, ok := p.LabelAt(target)
		if !ok {
			name := relLabelName(target)
			p = p.WithLabel(name, target)
			label = isa.Label{Name: name, Index: target}
		}
		p.Instructions[i] = isa.Instruction{
			SourceLine: in.SourceLine,
			Opcode:     isa.OpJ,
			Operands:   []isa.Operand{isa.Name(label.Name)},
		}
		count++
	}
	return p, count
}

func relLabelName(target int) string {
	const prefix = "__rel_"
	digits := [20]byte{}
	i := len(digits)
	n := target
	if n == 0 {
		i--
		digits[i] = '0'
	}
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return prefix + string(digits[i:])
}

// controlFlow lowers jump-with-return instructions that never return
// into plain jumps, then reorders the program's blocks: it greedily
// keeps eager fallthrough chains intact, places every remaining block
// that nothing naturally falls into wherever there's room, and drops
// whatever is left (unreachable from instruction 0).
func controlFlow(p isa.Program) (isa.Program, int, int, error) {
	a, err := flow.Build(p)
	if err != nil {
		return p, 0, 0, err
	}

	tailCalls := 0
	for i, in := range p.Instructions {
		if in.Opcode.Behaviour != isa.BehaviourJumpWithReturn {
			continue
		}
		if i+1 < len(p.Instructions) && len(a.Preds(i+1)) > 0 {
			continue
		}
		p.Instructions[i] = isa.Instruction{SourceLine: in.SourceLine, Opcode: isa.OpJ, Operands: in.Operands}
		tailCalls++
	}

	if tailCalls > 0 {
		a, err = flow.Build(p)
		if err != nil {
			return p, tailCalls, 0, err
		}
	}

	order, dropped := layoutBlocks(a)
	out := isa.Blank
	for _, b := range order {
		out = out.Append(p.Slice(b.Start, b.End))
	}
	return out, tailCalls, dropped, nil
}

// layoutBlocks implements the greedy block-ordering rule in §4.I: start
// at the entry block, keep appending whatever block the last-appended
// block's natural follow edge lands on, and once that chain runs dry,
// place any unvisited block nothing falls into naturally. What's left
// unplaced is unreachable and its instruction count is returned as
// dropped.
func layoutBlocks(a flow.Analysis) ([]flow.Block, int) {
	blocks := a.Blocks
	if len(blocks) == 0 {
		return nil, 0
	}
	visited := make([]bool, len(blocks))

	order := []flow.Block{blocks[0]}
	visited[0] = true

	for {
		last := order[len(order)-1]
		extended := false
		for i, b := range blocks {
			if visited[i] || !a.Reachable(b.Start) {
				continue
			}
			if len(b.EnterEdges) == 1 && b.EnterEdges[0].Natural && b.EnterEdges[0].From == last.End-1 {
				order = append(order, b)
				visited[i] = true
				extended = true
				break
			}
		}
		if extended {
			continue
		}

		picked := false
		for i, b := range blocks {
			if visited[i] || !a.Reachable(b.Start) {
				continue
			}
			hasNatural := false
			for _, e := range b.EnterEdges {
				if e.Natural {
					hasNatural = true
					break
				}
			}
			if !hasNatural {
				order = append(order, b)
				visited[i] = true
				picked = true
				break
			}
		}
		if picked {
			continue
		}
		break
	}

	dropped := 0
	for i, b := range blocks {
		if !visited[i] {
			dropped += b.End - b.Start
		}
	}
	return order, dropped
}

// redundantJumps drops every unconditional or conditional jump whose
// static target is the very next instruction; it leaves jump-with-return
// alone since dropping one would also drop the implicit return-address
// side effect a later "j ra" may depend on.
func redundantJumps(p isa.Program) (isa.Program, int) {
	count := 0
	kept := make([]isa.Instruction, 0, len(p.Instructions))
	oldToNew := make([]int, len(p.Instructions)+1)
	for i, in := range p.Instructions {
		if in.Opcode.Behaviour == isa.BehaviourJump {
			if target, ok := staticTarget(p, in); ok && target == i+1 {
				oldToNew[i] = len(kept)
				count++
				continue
			}
		}
		oldToNew[i] = len(kept)
		kept = append(kept, in)
	}
	oldToNew[len(p.Instructions)] = len(kept)
	return isa.Program{Instructions: kept, Labels: remapLabels(p.Labels, oldToNew)}, count
}

func staticTarget(p isa.Program, in isa.Instruction) (int, bool) {
	if len(in.Operands) == 0 {
		return 0, false
	}
	op := in.Operands[len(in.Operands)-1]
	switch op.Kind {
	case isa.OperandName:
		label, ok := p.LabelNamed(op.Name)
		if !ok {
			return 0, false
		}
		return label.Index, true
	case isa.OperandNumeric:
		return int(op.Number), true
	default:
		return 0, false
	}
}

// dropUnusedLabels removes every label no operand anywhere names.
func dropUnusedLabels(p isa.Program) (isa.Program, int) {
	used := map[string]bool{}
	for _, in := range p.Instructions {
		for _, op := range in.Operands {
			if op.Kind != isa.OperandName {
				continue
			}
			if _, ok := p.LabelNamed(op.Name); ok {
				used[op.Name] = true
			}
		}
	}
	kept := make([]isa.Label, 0, len(p.Labels))
	dropped := 0
	for _, l := range p.Labels {
		if used[l.Name] {
			kept = append(kept, l)
		} else {
			dropped++
		}
	}
	// Sorted by instruction index so Program.Text's label-rendering order
	// always matches the instruction stream, regardless of what order
	// upstream passes happened to discover labels in.
	slices.SortFunc(kept, func(a, b isa.Label) bool { return a.Index < b.Index })
	return isa.Program{Instructions: p.Instructions, Labels: kept}, dropped
}

func remapLabels(labels []isa.Label, oldToNew []int) []isa.Label {
	out := make([]isa.Label, len(labels))
	for i, l := range labels {
		out[i] = isa.Label{Name: l.Name, Index: oldToNew[l.Index]}
	}
	return out
}
