package execctx

import (
	"fmt"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func init() {
	registerHandler(`^(add|sub|mul|div|and|or|xor|shl|shr|shr\.un)$`, handleArith)
	registerHandler(`^(not|neg)$`, handleUnary)
	registerHandler(`^(ceq|cgt|cgt\.un|clt|clt\.un)$`, handleCompare)
	registerHandler(`^conv\.(i4|u4)$`, handleConv)
	registerHandler(`^ldind\.ref$`, handleLdindRef)
}

var arithMnemonic = map[sbil.Mnemonic]string{
	sbil.Add: "add", sbil.Sub: "sub", sbil.Mul: "mul", sbil.Div: "div",
	sbil.And: "and", sbil.Or: "or", sbil.Xor: "xor",
	sbil.Shl: "sll", sbil.Shr: "srl", sbil.ShrUn: "srl",
}

func foldArith(op string, lhs, rhs float64) float64 {
	switch op {
	case "add":
		return lhs + rhs
	case "sub":
		return lhs - rhs
	case "mul":
		return lhs * rhs
	case "div":
		return lhs / rhs
	case "and":
		return float64(int64(lhs) & int64(rhs))
	case "or":
		return float64(int64(lhs) | int64(rhs))
	case "xor":
		return float64(int64(lhs) ^ int64(rhs))
	case "sll":
		return float64(int64(lhs) << uint(int64(rhs)))
	case "srl":
		return float64(int64(lhs) >> uint(int64(rhs)))
	default:
		panic("execctx: unhandled arithmetic fold " + op)
	}
}

func handleArith(c *Context, idx int, insn sbil.Instruction) error {
	op := arithMnemonic[insn.Op]
	lhs, rhs, rest := c.stack.Pop2()

	if lhs.IsStatic() && rhs.IsStatic() {
		c.stack = rest.Push(symval.Static(foldArith(op, lhs.Number, rhs.Number)))
		return nil
	}

	lhsV, lhsTemp, err := c.materialize(idx, lhs)
	if err != nil {
		return err
	}
	rhsV, rhsTemp, err := c.materialize(idx, rhs)
	if err != nil {
		return err
	}

	var free []int
	if lhsTemp {
		free = append(free, lhsV.Register)
	}
	if rhsTemp {
		free = append(free, rhsV.Register)
	}
	fragment := fmt.Sprintf("%s $ %s %s", op, lhsV.RenderAsIC10(), rhsV.RenderAsIC10())
	c.stack = rest.Push(symval.Deferred(fragment, free...))
	return nil
}

func handleUnary(c *Context, idx int, insn sbil.Instruction) error {
	v, rest := c.stack.Pop()

	if insn.Op == sbil.Neg {
		if v.IsStatic() {
			c.stack = rest.Push(symval.Static(-v.Number))
			return nil
		}
		vv, temp, err := c.materialize(idx, v)
		if err != nil {
			return err
		}
		var free []int
		if temp {
			free = append(free, vv.Register)
		}
		c.stack = rest.Push(symval.Deferred(fmt.Sprintf("sub $ 0 %s", vv.RenderAsIC10()), free...))
		return nil
	}

	// not: logical negation, 0 <-> 1 on static operands.
	if v.IsStatic() {
		result := 0.0
		if v.Number == 0 {
			result = 1
		}
		c.stack = rest.Push(symval.Static(result))
		return nil
	}
	vv, temp, err := c.materialize(idx, v)
	if err != nil {
		return err
	}
	var free []int
	if temp {
		free = append(free, vv.Register)
	}
	c.stack = rest.Push(symval.Deferred(fmt.Sprintf("not $ %s", vv.RenderAsIC10()), free...))
	return nil
}

var compareMnemonic = map[sbil.Mnemonic]string{
	sbil.Ceq: "seq", sbil.Cgt: "sgt", sbil.CgtUn: "sgt", sbil.Clt: "slt", sbil.CltUn: "slt",
}

func foldCompare(op string, lhs, rhs float64) float64 {
	var result bool
	switch op {
	case "seq":
		result = lhs == rhs
	case "sgt":
		result = lhs > rhs
	case "slt":
		result = lhs < rhs
	default:
		panic("execctx: unhandled comparison fold " + op)
	}
	if result {
		return 1
	}
	return 0
}

func handleCompare(c *Context, idx int, insn sbil.Instruction) error {
	lhs, rhs, rest := c.stack.Pop2()

	// Special case (§4.F): cgt.un against Null on a Device operand tests
	// whether the device is connected, rather than a numeric comparison.
	if insn.Op == sbil.CgtUn {
		if lhs.Kind == symval.KindDevice && rhs.Kind == symval.KindNull {
			c.stack = rest.Push(symval.Deferred(fmt.Sprintf("sdse $ %s", lhs.RenderAsIC10())))
			return nil
		}
		if rhs.Kind == symval.KindDevice && lhs.Kind == symval.KindNull {
			c.stack = rest.Push(symval.Deferred(fmt.Sprintf("sdse $ %s", rhs.RenderAsIC10())))
			return nil
		}
	}

	op := compareMnemonic[insn.Op]
	if lhs.IsStatic() && rhs.IsStatic() {
		c.stack = rest.Push(symval.Static(foldCompare(op, lhs.Number, rhs.Number)))
		return nil
	}

	lhsV, lhsTemp, err := c.materialize(idx, lhs)
	if err != nil {
		return err
	}
	rhsV, rhsTemp, err := c.materialize(idx, rhs)
	if err != nil {
		return err
	}
	var free []int
	if lhsTemp {
		free = append(free, lhsV.Register)
	}
	if rhsTemp {
		free = append(free, rhsV.Register)
	}
	fragment := fmt.Sprintf("%s $ %s %s", op, lhsV.RenderAsIC10(), rhsV.RenderAsIC10())
	c.stack = rest.Push(symval.Deferred(fragment, free...))
	return nil
}

func handleConv(c *Context, idx int, insn sbil.Instruction) error {
	v, rest := c.stack.Pop()
	if v.IsStatic() {
		c.stack = rest.Push(symval.Static(float64(int64(v.Number))))
		return nil
	}
	vv, temp, err := c.materialize(idx, v)
	if err != nil {
		return err
	}
	var free []int
	if temp {
		free = append(free, vv.Register)
	}
	c.stack = rest.Push(symval.Deferred(fmt.Sprintf("trunc $ %s", vv.RenderAsIC10()), free...))
	return nil
}

func handleLdindRef(c *Context, idx int, insn sbil.Instruction) error {
	v, rest := c.stack.Pop()
	if v.Kind != symval.KindDeviceSlot {
		return diag.NewUnsupportedConstruct(string(insn.Op), "ldind.ref is only legal on a device slot reference")
	}
	c.stack = rest.Push(v)
	return nil
}
