package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/regset"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func insn(offset, size int, op sbil.Mnemonic, payload sbil.Payload) sbil.Instruction {
	return sbil.Instruction{Offset: offset, Size: size, Op: op, Payload: payload}
}

func noPayload() sbil.Payload { return sbil.Payload{Kind: sbil.PayloadNone} }

func intPayload(v int64) sbil.Payload { return sbil.Payload{Kind: sbil.PayloadI32, Int: v} }

func branchPayload(target int) sbil.Payload {
	return sbil.Payload{Kind: sbil.PayloadBranch, BranchTarget: target}
}

func baseOpts() Options {
	return Options{Class: &ir.Class{Name: "Test"}}
}

func TestConstantFoldingArithmeticEmitsNoCode(t *testing.T) {
	method := &ir.Method{
		Name:         "Sum",
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "result", Width: 1},
		},
	}
	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdcI4, intPayload(2)),
		insn(1, 1, sbil.LdcI4, intPayload(3)),
		insn(2, 1, sbil.Add, noPayload()),
		insn(3, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(4, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(5, 1, sbil.Ret, noPayload()),
	}

	c, err := New(baseOpts(), 0, method, "sum", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "move r0 5")
	assert.NotContains(t, text, "add")
}

func TestDeferredArithmeticFusesIntoStoreSink(t *testing.T) {
	method := &ir.Method{
		Name:         "AddParams",
		Params:       []ir.Local{{Name: "a", Width: 1}, {Name: "b", Width: 1}},
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "result", Width: 1},
		},
	}
	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 1}),
		insn(1, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 2}),
		insn(2, 1, sbil.Add, noPayload()),
		insn(3, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(4, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(5, 1, sbil.Ret, noPayload()),
	}

	c, err := New(baseOpts(), 0, method, "addp", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	// The add's result register is bound directly as stloc's sink; no
	// separate scratch register or move is needed.
	assert.Contains(t, text, "add r")
}

func TestBranchInconsistentStackDepthFails(t *testing.T) {
	method := &ir.Method{
		Name: "Bad",
		Locals: []ir.Local{
			{Name: "x", Width: 1},
		},
	}
	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdcI4, intPayload(7)),
		insn(1, 1, sbil.LdcI4, intPayload(0)),
		insn(2, 1, sbil.BrTrue, branchPayload(4)),
		insn(3, 1, sbil.Pop, noPayload()),
		insn(4, 1, sbil.Ret, noPayload()),
	}
	// At offset 4 (index 4), the fallthrough path from index 3 has an
	// empty stack, but the branch from index 2 jumps there with one
	// value still pushed: inconsistent.
	insns[2] = insn(2, 1, sbil.BrTrue, branchPayload(4))

	c, err := New(baseOpts(), 0, method, "bad", false, symval.Empty, nil)
	require.NoError(t, err)
	_, err = c.Compile(insns)
	require.Error(t, err)
	var branchErr *diag.BranchInconsistent
	assert.ErrorAs(t, err, &branchErr)
}

func TestRegisterExhaustedOnTooManyLocals(t *testing.T) {
	locals := make([]ir.Local, 17)
	for i := range locals {
		locals[i] = ir.Local{Name: "l", Width: 1}
	}
	method := &ir.Method{Name: "TooBig", Locals: locals}

	_, err := New(baseOpts(), 0, method, "toobig", false, symval.Empty, nil)
	require.Error(t, err)
	var exhausted *diag.RegisterExhausted
	assert.ErrorAs(t, err, &exhausted)
}

func TestDeviceGetLengthResolvesStatic(t *testing.T) {
	method := &ir.Method{
		Name:         "ReadLength",
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "r", Width: 1},
		},
	}
	field := ir.Field{Name: "d0", TypeName: "IDevice", Device: &ir.DeviceField{Pin: "d0"}}
	class := &ir.Class{Name: "Prog", Fields: []ir.Field{field}}

	tokens := ir.TokenTable{
		1: {Kind: ir.TokenField, Field: ir.FieldRef{FieldName: "d0"}},
		2: {Kind: ir.TokenMethod, Method: ir.MethodRef{
			ReceiverType:          "IDevice",
			MethodName:            "get_Length",
			IsDeviceInterfaceCall: true,
		}},
	}
	method.Tokens = tokens

	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 0}),
		insn(1, 1, sbil.LdFld, sbil.Payload{Kind: sbil.PayloadToken, Token: 1}),
		insn(2, 1, sbil.CallVirt, sbil.Payload{Kind: sbil.PayloadToken, Token: 2}),
		insn(3, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(4, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(5, 1, sbil.Ret, noPayload()),
	}

	opts := Options{
		Class: class,
		ResolveDeviceSlotCount: func(deviceTypeName string) (int, bool) {
			if deviceTypeName == "IDevice" {
				return 8, true
			}
			return 0, false
		},
	}

	c, err := New(opts, 0, method, "rdlen", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "move r0 8")
}

func TestMathIntrinsicClampPattern(t *testing.T) {
	method := &ir.Method{
		Name:         "ClampIt",
		Params:       []ir.Local{{Name: "v", Width: 1}},
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "r", Width: 1},
		},
	}
	tokens := ir.TokenTable{
		1: {Kind: ir.TokenMethod, Method: ir.MethodRef{MethodName: "Clamp"}},
	}
	method.Tokens = tokens

	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 1}),
		insn(1, 1, sbil.LdcI4, intPayload(0)),
		insn(2, 1, sbil.LdcI4, intPayload(10)),
		insn(3, 1, sbil.Call, sbil.Payload{Kind: sbil.PayloadToken, Token: 1}),
		insn(4, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(5, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(6, 1, sbil.Ret, noPayload()),
	}

	c, err := New(baseOpts(), 0, method, "clamp", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "max r")
	assert.Contains(t, text, "min r")
}

func TestCallSiteFallsBackToCallStackWhenCalleeExhaustsRegisters(t *testing.T) {
	bigLocals := make([]ir.Local, 16)
	for i := range bigLocals {
		bigLocals[i] = ir.Local{Name: "l", Width: 1}
	}
	callee := &ir.Method{
		Name:         "Heavy",
		Params:       []ir.Local{{Name: "p", Width: 1}},
		Locals:       bigLocals,
		ReturnsValue: true,
	}
	caller := &ir.Method{
		Name:         "Caller",
		Params:       []ir.Local{{Name: "p", Width: 1}},
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "r", Width: 1},
		},
	}
	tokens := ir.TokenTable{
		1: {Kind: ir.TokenMethod, Method: ir.MethodRef{MethodName: "Heavy"}},
	}
	caller.Tokens = tokens

	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 1}),
		insn(1, 1, sbil.Call, sbil.Payload{Kind: sbil.PayloadToken, Token: 1}),
		insn(2, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(3, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(4, 1, sbil.Ret, noPayload()),
	}

	opts := Options{
		Class: &ir.Class{Name: "Prog"},
		ResolveMethod: func(ref ir.MethodRef) (*ir.Method, bool) {
			if ref.MethodName == "Heavy" {
				return callee, true
			}
			return nil, false
		},
	}

	c, err := New(opts, 0, caller, "caller", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "jal Heavy")
	assert.Contains(t, text, "push ra")
	assert.Contains(t, text, "pop ra")
}

func TestHintedCallInlinesPatternDirectly(t *testing.T) {
	callee := &ir.Method{
		Name:         "Double",
		Params:       []ir.Local{{Name: "v", Width: 1}},
		ReturnsValue: true,
		Hint:         &ir.CompileHint{Pattern: "mul $ #0 2", Kind: ir.HintInline},
	}
	caller := &ir.Method{
		Name:         "Caller",
		Params:       []ir.Local{{Name: "v", Width: 1}},
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "r", Width: 1},
		},
	}
	tokens := ir.TokenTable{
		1: {Kind: ir.TokenMethod, Method: ir.MethodRef{MethodName: "Double"}},
	}
	caller.Tokens = tokens

	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 1}),
		insn(1, 1, sbil.Call, sbil.Payload{Kind: sbil.PayloadToken, Token: 1}),
		insn(2, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(3, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(4, 1, sbil.Ret, noPayload()),
	}

	opts := Options{
		Class: &ir.Class{Name: "Prog"},
		ResolveMethod: func(ref ir.MethodRef) (*ir.Method, bool) {
			if ref.MethodName == "Double" {
				return callee, true
			}
			return nil, false
		},
	}

	c, err := New(opts, 0, caller, "caller", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "mul r")
	assert.NotContains(t, text, "jal")
}

func TestDeviceConnectedTestEmitsSdse(t *testing.T) {
	method := &ir.Method{
		Name:         "IsConnected",
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "r", Width: 1},
		},
	}
	field := ir.Field{Name: "d0", TypeName: "IDevice", Device: &ir.DeviceField{Pin: "d0"}}
	class := &ir.Class{Name: "Prog", Fields: []ir.Field{field}}
	tokens := ir.TokenTable{
		1: {Kind: ir.TokenField, Field: ir.FieldRef{FieldName: "d0"}},
	}
	method.Tokens = tokens

	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 0}),
		insn(1, 1, sbil.LdFld, sbil.Payload{Kind: sbil.PayloadToken, Token: 1}),
		insn(2, 1, sbil.LdNull, noPayload()),
		insn(3, 1, sbil.CgtUn, noPayload()),
		insn(4, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(5, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(6, 1, sbil.Ret, noPayload()),
	}

	c, err := New(Options{Class: class}, 0, method, "isconn", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "sdse r0 d0")
}

func TestDeviceSlotReadEmitsLs(t *testing.T) {
	method := &ir.Method{
		Name:         "ReadQuantity",
		ReturnsValue: true,
		Locals: []ir.Local{
			{Name: "r", Width: 1},
		},
	}
	field := ir.Field{Name: "dGen", TypeName: "IGasGenerator", Device: &ir.DeviceField{Pin: "dGen"}}
	class := &ir.Class{Name: "Prog", Fields: []ir.Field{field}}
	tokens := ir.TokenTable{
		1: {Kind: ir.TokenField, Field: ir.FieldRef{FieldName: "dGen"}},
		2: {Kind: ir.TokenMethod, Method: ir.MethodRef{
			ReceiverType:          "IGasGenerator",
			MethodName:            "get_Slots",
			IsDeviceInterfaceCall: true,
		}},
		3: {Kind: ir.TokenMethod, Method: ir.MethodRef{
			ReceiverType:          "IDeviceSlot",
			MethodName:            "get_Quantity",
			IsDeviceInterfaceCall: true,
		}},
	}
	method.Tokens = tokens

	insns := []sbil.Instruction{
		insn(0, 1, sbil.LdargS, sbil.Payload{Kind: sbil.PayloadI8, Int: 0}),
		insn(1, 1, sbil.LdFld, sbil.Payload{Kind: sbil.PayloadToken, Token: 1}),
		insn(2, 1, sbil.CallVirt, sbil.Payload{Kind: sbil.PayloadToken, Token: 2}),
		insn(3, 1, sbil.LdcI4, intPayload(0)),
		insn(4, 1, sbil.LdElem, noPayload()),
		insn(5, 1, sbil.CallVirt, sbil.Payload{Kind: sbil.PayloadToken, Token: 3}),
		insn(6, 1, sbil.StLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(7, 1, sbil.LdLoc, sbil.Payload{Kind: sbil.PayloadI16, Int: 0}),
		insn(8, 1, sbil.Ret, noPayload()),
	}

	c, err := New(Options{Class: class}, 0, method, "readqty", false, symval.Empty, nil)
	require.NoError(t, err)
	text, err := c.Compile(insns)
	require.NoError(t, err)
	assert.Contains(t, text, "ls r0 dGen 0 Quantity")
}

func TestAllocateRespectsReservedRegisters(t *testing.T) {
	reserved := regset.Set(0).AllocateAt(0).AllocateAt(1)
	method := &ir.Method{
		Name: "Scratch",
		Locals: []ir.Local{
			{Name: "a", Width: 1},
		},
	}
	c, err := New(baseOpts(), reserved, method, "scratch", false, symval.Empty, nil)
	require.NoError(t, err)
	assert.True(t, c.Registers().Has(0))
	assert.True(t, c.Registers().Has(1))
	assert.True(t, c.Registers().Has(2))
	assert.False(t, c.AllocatedBeyondReserved().Has(0))
	assert.True(t, c.AllocatedBeyondReserved().Has(2))
}
