// Package sbil decodes a method's raw bytecode body into a flat vector
// of typed instructions with resolved operand payloads, the shape lifted
// from CIL/JVM-family bytecodes per the parent system's scope: typed
// values live on an operand stack, locals/params have fixed indices, and
// branches use byte offsets into this same vector.
package sbil

// Mnemonic names one SBIL opcode. The decoder only needs to know a
// mnemonic's payload kind; everything else is the execution context's
// concern (internal/execctx).
type Mnemonic string

const (
	Nop      Mnemonic = "nop"
	Dup      Mnemonic = "dup"
	Pop      Mnemonic = "pop"
	LdargS   Mnemonic = "ldarg.s"
	LdcI4    Mnemonic = "ldc.i4"
	LdcR4    Mnemonic = "ldc.r4"
	LdNull   Mnemonic = "ldnull"
	LdStr    Mnemonic = "ldstr"
	LdFld    Mnemonic = "ldfld"
	StFld    Mnemonic = "stfld"
	LdLoc    Mnemonic = "ldloc"
	LdLocA   Mnemonic = "ldloca"
	StLoc    Mnemonic = "stloc"
	Add      Mnemonic = "add"
	Sub      Mnemonic = "sub"
	Mul      Mnemonic = "mul"
	Div      Mnemonic = "div"
	And      Mnemonic = "and"
	Or       Mnemonic = "or"
	Xor      Mnemonic = "xor"
	Shl      Mnemonic = "shl"
	Shr      Mnemonic = "shr"
	ShrUn    Mnemonic = "shr.un"
	Not      Mnemonic = "not"
	Neg      Mnemonic = "neg"
	Ceq      Mnemonic = "ceq"
	Cgt      Mnemonic = "cgt"
	CgtUn    Mnemonic = "cgt.un"
	Clt      Mnemonic = "clt"
	CltUn    Mnemonic = "clt.un"
	Br       Mnemonic = "br"
	Beq      Mnemonic = "beq"
	Bge      Mnemonic = "bge"
	Bgt      Mnemonic = "bgt"
	Ble      Mnemonic = "ble"
	Blt      Mnemonic = "blt"
	BneUn    Mnemonic = "bne.un"
	BrFalse  Mnemonic = "brfalse"
	BrTrue   Mnemonic = "brtrue"
	Switch   Mnemonic = "switch"
	Call     Mnemonic = "call"
	CallVirt Mnemonic = "callvirt"
	Ret      Mnemonic = "ret"
	ConvI4   Mnemonic = "conv.i4"
	ConvU4   Mnemonic = "conv.u4"
	LdindRef Mnemonic = "ldind.ref"
	LdElem   Mnemonic = "ldelem"
)

// PayloadKind classifies an instruction's operand shape, per §4.E.
type PayloadKind byte

const (
	PayloadNone PayloadKind = iota
	PayloadI8
	PayloadI16
	PayloadI32
	PayloadBranchS // short-inline-branch: i8 relative offset
	PayloadBranch  // inline-branch: i32 relative offset
	PayloadSwitch  // inline-switch: i32 count followed by count i32 offsets
	PayloadToken   // inline-token: i32 token id, resolved via the method's ir.TokenTable
	PayloadSingle  // inline-single: f32
	PayloadDouble  // inline-double: f64
)

// opcodeInfo maps each mnemonic to its fixed payload shape.
var opcodeInfo = map[Mnemonic]PayloadKind{
	Nop:      PayloadNone,
	Dup:      PayloadNone,
	Pop:      PayloadNone,
	LdargS:   PayloadI8,
	LdcI4:    PayloadI32,
	LdcR4:    PayloadSingle,
	LdNull:   PayloadNone,
	LdStr:    PayloadToken,
	LdFld:    PayloadToken,
	StFld:    PayloadToken,
	LdLoc:    PayloadI16,
	LdLocA:   PayloadI16,
	StLoc:    PayloadI16,
	Add:      PayloadNone,
	Sub:      PayloadNone,
	Mul:      PayloadNone,
	Div:      PayloadNone,
	And:      PayloadNone,
	Or:       PayloadNone,
	Xor:      PayloadNone,
	Shl:      PayloadNone,
	Shr:      PayloadNone,
	ShrUn:    PayloadNone,
	Not:      PayloadNone,
	Neg:      PayloadNone,
	Ceq:      PayloadNone,
	Cgt:      PayloadNone,
	CgtUn:    PayloadNone,
	Clt:      PayloadNone,
	CltUn:    PayloadNone,
	Br:       PayloadBranch,
	Beq:      PayloadBranch,
	Bge:      PayloadBranch,
	Bgt:      PayloadBranch,
	Ble:      PayloadBranch,
	Blt:      PayloadBranch,
	BneUn:    PayloadBranch,
	BrFalse:  PayloadBranch,
	BrTrue:   PayloadBranch,
	Switch:   PayloadSwitch,
	Call:     PayloadToken,
	CallVirt: PayloadToken,
	Ret:      PayloadNone,
	ConvI4:   PayloadNone,
	ConvU4:   PayloadNone,
	LdindRef: PayloadNone,
	LdElem:   PayloadNone,
}

// Payload carries a decoded operand. Exactly the field matching Kind is
// meaningful.
type Payload struct {
	Kind          PayloadKind
	Int           int64
	Single        float32
	Double        float64
	Token         uint32
	BranchTarget  int // resolved absolute byte offset
	SwitchTargets []int
}

// Instruction is one decoded SBIL instruction: its byte offset, its
// on-the-wire size (offset + Size is the next instruction's offset),
// its mnemonic, and its resolved payload.
type Instruction struct {
	Offset  int
	Size    int
	Op      Mnemonic
	Payload Payload
}
