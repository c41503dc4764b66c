package execctx

import (
	"fmt"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func init() {
	registerHandler(`^ldarg\.s$`, handleLdarg)
	registerHandler(`^ldfld$`, handleLdfld)
	registerHandler(`^stfld$`, handleStfld)
	registerHandler(`^ldloc$`, handleLdloc)
	registerHandler(`^ldloca$`, handleLdloca)
	registerHandler(`^stloc$`, handleStloc)
}

func handleLdarg(c *Context, idx int, insn sbil.Instruction) error {
	n := int(insn.Payload.Int)
	if n == 0 {
		c.stack = c.stack.Push(symval.This())
		return nil
	}
	paramIdx := n - 1
	if paramIdx < 0 || paramIdx >= len(c.method.Params) {
		return diag.NewInternalInvariant(string(insn.Op), fmt.Sprintf("parameter index %d out of range", n))
	}
	if c.inline {
		c.stack = c.stack.Push(c.paramValues[paramIdx])
		return nil
	}
	c.stack = c.stack.Push(symval.Register(c.paramRegs[paramIdx]))
	return nil
}

func (c *Context) resolveField(name string) (ir.Field, bool) {
	for _, f := range c.opts.Class.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ir.Field{}, false
}

func handleLdfld(c *Context, idx int, insn sbil.Instruction) error {
	target, rest := c.stack.Pop()
	if target.Kind != symval.KindThis {
		return diag.NewUnsupportedConstruct(string(insn.Op), "field access target must be This")
	}
	tok, ok := c.method.Tokens[insn.Payload.Token]
	if !ok || tok.Kind != ir.TokenField {
		return diag.NewInternalInvariant(string(insn.Op), "ldfld token does not resolve to a field")
	}
	field, ok := c.resolveField(tok.Field.FieldName)
	if !ok {
		return diag.NewInternalInvariant(string(insn.Op), fmt.Sprintf("unknown field %q", tok.Field.FieldName))
	}
	switch {
	case field.Device != nil:
		c.stack = rest.Push(symval.Device(field.Name, field.TypeName, false))
	case field.Multicast != nil:
		c.stack = rest.Push(symval.Device(field.Name, field.Multicast.TypeName, true))
	default:
		c.stack = rest.Push(symval.Field(field.Name, field.Name))
	}
	return nil
}

func handleStfld(c *Context, idx int, insn sbil.Instruction) error {
	value, rest := c.stack.Pop()
	target, rest := rest.Pop()
	if target.Kind != symval.KindThis {
		return diag.NewUnsupportedConstruct(string(insn.Op), "field assignment target must be This")
	}
	tok, ok := c.method.Tokens[insn.Payload.Token]
	if !ok || tok.Kind != ir.TokenField {
		return diag.NewInternalInvariant(string(insn.Op), "stfld token does not resolve to a field")
	}
	field, ok := c.resolveField(tok.Field.FieldName)
	if !ok {
		return diag.NewInternalInvariant(string(insn.Op), fmt.Sprintf("unknown field %q", tok.Field.FieldName))
	}
	if field.IsDeviceTagged() {
		return diag.NewUnsupportedConstruct(string(insn.Op), fmt.Sprintf("cannot assign to device field %q", field.Name))
	}
	if value.Kind == symval.KindDeferred {
		code := bindSink(value.Fragment, field.Name)
		c.out.SetCode(idx, code)
		for _, reg := range value.FreeValues {
			c.free(reg)
		}
	} else if value.Renderable() {
		c.out.SetCode(idx, fmt.Sprintf("move %s %s", field.Name, value.RenderAsIC10()))
	} else {
		return diag.NewUnsupportedConstruct(string(insn.Op), "field value must be renderable or a deferred expression")
	}
	c.stack = rest
	return nil
}

func handleLdloc(c *Context, idx int, insn sbil.Instruction) error {
	i := int(insn.Payload.Int)
	reg := c.localRegs[i]
	if reg == noLocal {
		known := c.localKnown[i]
		if known == nil {
			return diag.NewInternalInvariant(string(insn.Op), fmt.Sprintf("local %d read before assignment", i))
		}
		c.stack = c.stack.Push(*known)
		return nil
	}
	c.stack = c.stack.Push(symval.Register(reg))
	return nil
}

func handleLdloca(c *Context, idx int, insn sbil.Instruction) error {
	i := int(insn.Payload.Int)
	l := c.method.Locals[i]
	if !l.IsDeviceSlotRef {
		return diag.NewUnsupportedConstruct(string(insn.Op), fmt.Sprintf("ldloca is only supported for device slot ref locals, local %d (%s) is not one", i, l.Name))
	}
	known := c.localKnown[i]
	if known == nil {
		return diag.NewInternalInvariant(string(insn.Op), fmt.Sprintf("device slot ref local %d (%s) read before assignment", i, l.Name))
	}
	c.stack = c.stack.Push(*known)
	return nil
}

func handleStloc(c *Context, idx int, insn sbil.Instruction) error {
	i := int(insn.Payload.Int)
	value, rest := c.stack.Pop()
	c.stack = rest

	reg := c.localRegs[i]
	if reg == noLocal {
		c.localKnown[i] = &value
		return nil
	}

	switch {
	case value.Kind == symval.KindDeferred:
		code := bindSink(value.Fragment, fmt.Sprintf("r%d", reg))
		c.out.SetCode(idx, code)
		for _, freeReg := range value.FreeValues {
			c.free(freeReg)
		}
	case value.Kind == symval.KindRegister && value.Register == reg:
		// already resident, nothing to emit
	case value.Renderable():
		c.out.SetCode(idx, fmt.Sprintf("move r%d %s", reg, value.RenderAsIC10()))
		if value.Kind == symval.KindRegister {
			c.free(value.Register)
		}
	default:
		return diag.NewUnsupportedConstruct(string(insn.Op), "stloc value must be renderable or a deferred expression")
	}
	known := symval.Register(reg)
	c.localKnown[i] = &known
	return nil
}
