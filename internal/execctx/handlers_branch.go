package execctx

import (
	"fmt"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func init() {
	registerHandler(`^br$`, handleBr)
	registerHandler(`^(beq|bge|bgt|ble|blt|bne\.un)$`, handleCondBranch)
	registerHandler(`^(brfalse|brtrue)$`, handleSingleBranch)
	registerHandler(`^switch$`, handleSwitch)
	registerHandler(`^ret$`, handleRet)
}

func (c *Context) resolveTarget(insn sbil.Instruction, op string) (int, error) {
	toIdx, ok := c.offsetIndex[insn.Payload.BranchTarget]
	if !ok {
		return 0, diag.NewInternalInvariant(op, fmt.Sprintf("branch target offset %d does not land on an instruction boundary", insn.Payload.BranchTarget))
	}
	return toIdx, nil
}

func handleBr(c *Context, idx int, insn sbil.Instruction) error {
	toIdx, err := c.resolveTarget(insn, string(insn.Op))
	if err != nil {
		return err
	}
	label := c.out.LabelFor(toIdx)
	c.out.RequireLabel(toIdx)
	c.out.SetCode(idx, fmt.Sprintf("j %s", label))
	c.branchEdges = append(c.branchEdges, branchEdge{idx, toIdx})
	return nil
}

var condBranchMnemonic = map[sbil.Mnemonic]string{
	sbil.Beq: "beq", sbil.Bge: "bge", sbil.Bgt: "bgt",
	sbil.Ble: "ble", sbil.Blt: "blt", sbil.BneUn: "bne",
}

func handleCondBranch(c *Context, idx int, insn sbil.Instruction) error {
	lhs, rhs, rest := c.stack.Pop2()
	toIdx, err := c.resolveTarget(insn, string(insn.Op))
	if err != nil {
		return err
	}
	lhsV, lhsTemp, err := c.materialize(idx, lhs)
	if err != nil {
		return err
	}
	rhsV, rhsTemp, err := c.materialize(idx, rhs)
	if err != nil {
		return err
	}
	label := c.out.LabelFor(toIdx)
	c.out.RequireLabel(toIdx)
	c.out.SetCode(idx, fmt.Sprintf("%s %s %s %s", condBranchMnemonic[insn.Op], lhsV.RenderAsIC10(), rhsV.RenderAsIC10(), label))
	c.freeIfTemp(lhsV, lhsTemp)
	c.freeIfTemp(rhsV, rhsTemp)
	c.stack = rest
	c.branchEdges = append(c.branchEdges, branchEdge{idx, toIdx})
	return nil
}

func handleSingleBranch(c *Context, idx int, insn sbil.Instruction) error {
	v, rest := c.stack.Pop()
	toIdx, err := c.resolveTarget(insn, string(insn.Op))
	if err != nil {
		return err
	}
	label := c.out.LabelFor(toIdx)
	c.out.RequireLabel(toIdx)

	if v.Kind == symval.KindDevice {
		mnemonic := "bdse"
		if insn.Op == sbil.BrFalse {
			mnemonic = "bdns"
		}
		c.out.SetCode(idx, fmt.Sprintf("%s %s %s", mnemonic, v.RenderAsIC10(), label))
	} else {
		vv, temp, err := c.materialize(idx, v)
		if err != nil {
			return err
		}
		mnemonic := "bnez"
		if insn.Op == sbil.BrFalse {
			mnemonic = "beqz"
		}
		c.out.SetCode(idx, fmt.Sprintf("%s %s %s", mnemonic, vv.RenderAsIC10(), label))
		c.freeIfTemp(vv, temp)
	}

	c.stack = rest
	c.branchEdges = append(c.branchEdges, branchEdge{idx, toIdx})
	return nil
}

func handleSwitch(c *Context, idx int, insn sbil.Instruction) error {
	v, rest := c.stack.Pop()
	vv, temp, err := c.materialize(idx, v)
	if err != nil {
		return err
	}
	for i, target := range insn.Payload.SwitchTargets {
		toIdx, ok := c.offsetIndex[target]
		if !ok {
			return diag.NewInternalInvariant(string(insn.Op), fmt.Sprintf("switch case %d target offset %d does not land on an instruction boundary", i, target))
		}
		label := c.out.LabelFor(toIdx)
		c.out.RequireLabel(toIdx)
		c.out.SetCode(idx, fmt.Sprintf("beq %s %d %s", vv.RenderAsIC10(), i, label))
		c.branchEdges = append(c.branchEdges, branchEdge{idx, toIdx})
	}
	c.freeIfTemp(vv, temp)
	c.stack = rest
	return nil
}

func handleRet(c *Context, idx int, insn sbil.Instruction) error {
	if c.inline {
		if c.method.ReturnsValue {
			v, rest := c.stack.Pop()
			c.stack = rest
			if c.returnSink == nil {
				return diag.NewInternalInvariant(string(insn.Op), "inline method returns a value but no return sink was supplied")
			}
			vv, temp, err := c.materialize(idx, v)
			if err != nil {
				return err
			}
			c.out.SetCode(idx, fmt.Sprintf("move %s %s", c.returnSink.RenderAsIC10(), vv.RenderAsIC10()))
			c.freeIfTemp(vv, temp)
		}
		c.out.SetCode(idx, fmt.Sprintf("j %s_end", c.labelPrefix))
		return nil
	}

	if c.method.ReturnsValue {
		v, rest := c.stack.Pop()
		c.stack = rest
		vv, temp, err := c.materialize(idx, v)
		if err != nil {
			return err
		}
		c.out.SetCode(idx, fmt.Sprintf("push %s", vv.RenderAsIC10()))
		c.freeIfTemp(vv, temp)
	}
	c.out.SetCode(idx, "j ra")
	return nil
}
