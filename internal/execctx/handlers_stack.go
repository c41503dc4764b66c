package execctx

import (
	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func init() {
	registerHandler(`^nop$`, handleNop)
	registerHandler(`^dup$`, handleDup)
	registerHandler(`^pop$`, handlePop)
	registerHandler(`^ldc\.(i4|r4)$`, handleLdc)
	registerHandler(`^ldnull$`, handleLdnull)
	registerHandler(`^ldstr$`, handleLdstr)
	registerHandler(`^ldelem$`, handleLdElem)
}

func handleNop(c *Context, idx int, insn sbil.Instruction) error {
	return nil
}

func handleDup(c *Context, idx int, insn sbil.Instruction) error {
	top, rest := c.stack.Pop()
	if top.Kind == symval.KindDeferred {
		resolved, _, err := c.materialize(idx, top)
		if err != nil {
			return err
		}
		top = resolved
	}
	c.stack = rest.Push(top).Push(top)
	return nil
}

func handlePop(c *Context, idx int, insn sbil.Instruction) error {
	_, rest := c.stack.Pop()
	c.stack = rest
	return nil
}

func handleLdc(c *Context, idx int, insn sbil.Instruction) error {
	switch insn.Op {
	case sbil.LdcI4:
		c.stack = c.stack.Push(symval.Static(float64(insn.Payload.Int)))
	case sbil.LdcR4:
		c.stack = c.stack.Push(symval.Static(float64(insn.Payload.Single)))
	default:
		return diag.NewInternalInvariant(string(insn.Op), "unreachable ldc variant")
	}
	return nil
}

func handleLdnull(c *Context, idx int, insn sbil.Instruction) error {
	c.stack = c.stack.Push(symval.Null())
	return nil
}

func handleLdstr(c *Context, idx int, insn sbil.Instruction) error {
	tok, ok := c.method.Tokens[insn.Payload.Token]
	if !ok || tok.Kind != ir.TokenString {
		return diag.NewInternalInvariant(string(insn.Op), "ldstr token does not resolve to a string literal")
	}
	c.stack = c.stack.Push(symval.String(tok.String))
	return nil
}

// handleLdElem indexes a device slot collection: pops the index then the
// DeviceSlots receiver, pushing the indexed DeviceSlot. This is the one
// array-element read the source has, since DeviceSlots is the only
// indexable collection type in scope (§4.F shape 4, gen.Slots[0]).
func handleLdElem(c *Context, idx int, insn sbil.Instruction) error {
	index, rest := c.stack.Pop()
	receiver, rest := rest.Pop()
	if receiver.Kind != symval.KindDeviceSlots {
		return diag.NewUnsupportedConstruct(string(insn.Op), "ldelem target must be a device slot collection")
	}
	c.stack = rest.Push(symval.DeviceSlot(receiver.Pin, receiver.DeviceType, index))
	return nil
}
