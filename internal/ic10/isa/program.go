package isa

import "fmt"

// Instruction is a single decoded IC10 instruction. SourceLine is the
// zero-based line of the program text the instruction was parsed from
// (see ParseProgram); optimiser passes that rewrite an instruction carry
// it over unchanged.
type Instruction struct {
	SourceLine int
	Opcode     Opcode
	Operands   []Operand
}

func (in Instruction) String() string {
	s := in.Opcode.Name
	for _, o := range in.Operands {
		s += " " + o.String()
	}
	return s
}

// Label names a single instruction index within a Program. Names are
// unique per program.
type Label struct {
	Name  string
	Index int
}

// Program is a sequence of instructions plus the set of labels pointing
// into it. Program.Blank is the identity element for the concatenation
// monoid the optimiser's passes use when slicing and splicing programs.
type Program struct {
	Instructions []Instruction
	Labels       []Label
}

// Blank is the identity for Append/Concat.
var Blank = Program{}

// Append returns a new Program with other's instructions appended after
// p's, with other's label indices shifted by len(p.Instructions).
func (p Program) Append(other Program) Program {
	offset := len(p.Instructions)
	out := Program{
		Instructions: make([]Instruction, 0, len(p.Instructions)+len(other.Instructions)),
		Labels:       make([]Label, 0, len(p.Labels)+len(other.Labels)),
	}
	out.Instructions = append(out.Instructions, p.Instructions...)
	out.Instructions = append(out.Instructions, other.Instructions...)
	out.Labels = append(out.Labels, p.Labels...)
	for _, l := range other.Labels {
		out.Labels = append(out.Labels, Label{Name: l.Name, Index: l.Index + offset})
	}
	return out
}

// Slice returns the sub-program spanning instruction indices [from, to),
// keeping only labels whose index falls in range, re-based to 0.
func (p Program) Slice(from, to int) Program {
	out := Program{Instructions: append([]Instruction{}, p.Instructions[from:to]...)}
	for _, l := range p.Labels {
		if l.Index >= from && l.Index < to {
			out.Labels = append(out.Labels, Label{Name: l.Name, Index: l.Index - from})
		}
	}
	return out
}

// LabelAt returns the label bound to the given instruction index, if any.
func (p Program) LabelAt(index int) (Label, bool) {
	for _, l := range p.Labels {
		if l.Index == index {
			return l, true
		}
	}
	return Label{}, false
}

// LabelNamed returns the label with the given name, if any.
func (p Program) LabelNamed(name string) (Label, bool) {
	for _, l := range p.Labels {
		if l.Name == name {
			return l, true
		}
	}
	return Label{}, false
}

// WithLabel returns a new Program with an additional label bound to
// index. Panics if the name is already used (labels are unique per
// program, per §3).
func (p Program) WithLabel(name string, index int) Program {
	if _, exists := p.LabelNamed(name); exists {
		panic(fmt.Sprintf("isa: duplicate label %q", name))
	}
	out := Program{Instructions: p.Instructions, Labels: append(append([]Label{}, p.Labels...), Label{Name: name, Index: index})}
	return out
}

// Text renders the program as IC10 source: one instruction per line,
// with "name:" lines inserted immediately before the instruction they
// label.
func (p Program) Text() string {
	labelsByIndex := map[int][]string{}
	for _, l := range p.Labels {
		labelsByIndex[l.Index] = append(labelsByIndex[l.Index], l.Name)
	}
	s := ""
	for i, in := range p.Instructions {
		for _, name := range labelsByIndex[i] {
			s += name + ":\n"
		}
		s += in.String() + "\n"
	}
	for _, name := range labelsByIndex[len(p.Instructions)] {
		s += name + ":\n"
	}
	return s
}
