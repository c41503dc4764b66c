package optimize

import "github.com/thomasfn/CsToMips/internal/ic10/isa"

// peepholeFixedPoint runs every micro-rule below in sequence and repeats
// the whole sequence until none of them changes anything. Later rules
// routinely expose new opportunities for earlier ones (merging two
// chained labels can turn a reference into one of the jumps
// removeJumpToNextLabel looks for), so a single pass over the rules
// isn't enough.
func peepholeFixedPoint(p isa.Program) (isa.Program, int) {
	total := 0
	for {
		round := 0
		var n int

		p, n = removePopPushRaPairs(p)
		round += n
		p, n = removeJumpToNextLabel(p)
		round += n
		p, n = inlineTinyBlocks(p)
		round += n
		p, n = mergeChainedLabels(p)
		round += n
		p, n = dropUnusedLabels(p)
		round += n

		total += round
		if round == 0 {
			break
		}
	}
	return p, total
}

// removePopPushRaPairs drops a "pop ra" immediately followed by a
// "push ra": together they're a no-op, and the removal is safe only when
// nothing jumps directly into the "push ra" (a label there means the
// pair isn't really traversed as one unit).
func removePopPushRaPairs(p isa.Program) (isa.Program, int) {
	count := 0
	kept := make([]isa.Instruction, 0, len(p.Instructions))
	oldToNew := make([]int, len(p.Instructions)+1)

	i := 0
	for i < len(p.Instructions) {
		in := p.Instructions[i]
		if i+1 < len(p.Instructions) && isPopRA(in) && isPushRA(p.Instructions[i+1]) && !hasLabelAt(p, i+1) {
			oldToNew[i] = len(kept)
			oldToNew[i+1] = len(kept)
			count++
			i += 2
			continue
		}
		oldToNew[i] = len(kept)
		kept = append(kept, in)
		i++
	}
	oldToNew[len(p.Instructions)] = len(kept)
	return isa.Program{Instructions: kept, Labels: remapLabels(p.Labels, oldToNew)}, count
}

func isPopRA(in isa.Instruction) bool {
	return in.Opcode.Name == "pop" && len(in.Operands) == 1 && in.Operands[0] == isa.RegRA()
}

func isPushRA(in isa.Instruction) bool {
	return in.Opcode.Name == "push" && len(in.Operands) == 1 && in.Operands[0] == isa.RegRA()
}

func hasLabelAt(p isa.Program, index int) bool {
	_, ok := p.LabelAt(index)
	return ok
}

// removeJumpToNextLabel drops a plain "j L" when L names the very next
// instruction: the jump already falls through there.
func removeJumpToNextLabel(p isa.Program) (isa.Program, int) {
	count := 0
	kept := make([]isa.Instruction, 0, len(p.Instructions))
	oldToNew := make([]int, len(p.Instructions)+1)
	for i, in := range p.Instructions {
		if in.Opcode.Name == "j" && len(in.Operands) == 1 && in.Operands[0].Kind == isa.OperandName {
			if label, ok := p.LabelNamed(in.Operands[0].Name); ok && label.Index == i+1 {
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

// inlineTinyBlocks finds labels that name nothing but a single
// unconditional "j L2" and redirects every plain "j L" referencing them
// straight to L2, skipping the middleman hop.
func inlineTinyBlocks(p isa.Program) (isa.Program, int) {
	redirect := map[string]string{}
	for _, l := range p.Labels {
		if l.Index >= len(p.Instructions) {
			continue
		}
		in := p.Instructions[l.Index]
		if in.Opcode.Name != "j" || len(in.Operands) != 1 || in.Operands[0].Kind != isa.OperandName {
			continue
		}
		redirect[l.Name] = in.Operands[0].Name
	}
	if len(redirect) == 0 {
		return p, 0
	}

	count := 0
	instructions := append([]isa.Instruction{}, p.Instructions...)
	for i, in := range instructions {
		if in.Opcode.Name != "j" || len(in.Operands) != 1 || in.Operands[0].Kind != isa.OperandName {
			continue
		}
		target, ok := redirect[in.Operands[0].Name]
		if !ok || target == in.Operands[0].Name {
			continue
		}
		instructions[i] = isa.Instruction{SourceLine: in.SourceLine, Opcode: in.Opcode, Operands: []isa.Operand{isa.Name(target)}}
		count++
	}
	return isa.Program{Instructions: instructions, Labels: p.Labels}, count
}

// mergeChainedLabels collapses two or more labels bound to the same
// instruction ("A:\nB:\n...") into the first one, renaming every
// reference to the others.
func mergeChainedLabels(p isa.Program) (isa.Program, int) {
	byIndex := map[int][]isa.Label{}
	var order []int
	for _, l := range p.Labels {
		if _, seen := byIndex[l.Index]; !seen {
			order = append(order, l.Index)
		}
		byIndex[l.Index] = append(byIndex[l.Index], l)
	}

	rename := map[string]string{}
	kept := make([]isa.Label, 0, len(p.Labels))
	for _, idx := range order {
		group := byIndex[idx]
		kept = append(kept, group[0])
		for _, extra := range group[1:] {
			rename[extra.Name] = group[0].Name
		}
	}
	if len(rename) == 0 {
		return p, 0
	}

	instructions := make([]isa.Instruction, len(p.Instructions))
	for i, in := range p.Instructions {
		changed := false
		operands := make([]isa.Operand, len(in.Operands))
		for j, op := range in.Operands {
			if op.Kind == isa.OperandName {
				if to, ok := rename[op.Name]; ok {
					op = isa.Name(to)
					changed = true
				}
			}
			operands[j] = op
		}
		if changed {
			instructions[i] = isa.Instruction{SourceLine: in.SourceLine, Opcode: in.Opcode, Operands: operands}
		} else {
			instructions[i] = in
		}
	}
	return isa.Program{Instructions: instructions, Labels: kept}, len(rename)
}
