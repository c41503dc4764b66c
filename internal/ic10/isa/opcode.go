// Package isa models the IC10 instruction set: opcodes, operand kinds,
// and the label/instruction/program containers the rest of the compiler
// operates on.
package isa

import "fmt"

// Behaviour classifies an opcode by what it does to machine state,
// independent of its mnemonic. Passes reason about instructions using
// (Behaviour, Condition) pairs instead of matching mnemonic strings.
type Behaviour byte

const (
	BehaviourOther Behaviour = iota
	BehaviourJump
	BehaviourJumpWithReturn
	BehaviourRelativeJump
	BehaviourSetRegister
	BehaviourArithmetic
	BehaviourMeta
	BehaviourStack
	BehaviourDeviceInterop
	BehaviourTiming
)

func (b Behaviour) String() string {
	switch b {
	case BehaviourJump:
		return "jump"
	case BehaviourJumpWithReturn:
		return "jump-with-return"
	case BehaviourRelativeJump:
		return "relative-jump"
	case BehaviourSetRegister:
		return "set-register"
	case BehaviourArithmetic:
		return "arithmetic"
	case BehaviourMeta:
		return "meta"
	case BehaviourStack:
		return "stack"
	case BehaviourDeviceInterop:
		return "device-interop"
	case BehaviourTiming:
		return "timing"
	default:
		return "other"
	}
}

// Condition captures the comparison or device predicate an opcode tests,
// if any. Opcodes with BehaviourOther/BehaviourMeta/... typically carry
// ConditionNone.
type Condition byte

const (
	ConditionNone Condition = iota
	ConditionEqual
	ConditionGreater
	ConditionGreaterEqual
	ConditionLess
	ConditionLessEqual
	ConditionNotEqual
	ConditionApprox
	ConditionNotApprox
	ConditionDeviceSet
	ConditionDeviceNotSet
	// ConditionEqualZ and friends are the "-z" (compare against zero)
	// variants used by single-operand branch forms.
	ConditionEqualZ
	ConditionGreaterZ
	ConditionGreaterEqualZ
	ConditionLessZ
	ConditionLessEqualZ
	ConditionNotEqualZ
)

// Opcode is a single IC10 mnemonic: its name, fixed operand-kind vector,
// and the (Behaviour, Condition) pair that groups it with structurally
// similar opcodes.
type Opcode struct {
	Name      string
	Operands  []OperandKind
	Behaviour Behaviour
	Condition Condition
}

func (o Opcode) Arity() int { return len(o.Operands) }

func (o Opcode) String() string { return o.Name }

var (
	byName             = map[string]Opcode{}
	byBehaviourAndCond = map[behaviourCond]Opcode{}
)

type behaviourCond struct {
	b Behaviour
	c Condition
}

func register(o Opcode) Opcode {
	if _, exists := byName[o.Name]; exists {
		panic(fmt.Sprintf("isa: duplicate opcode name %q", o.Name))
	}
	byName[o.Name] = o
	key := behaviourCond{o.Behaviour, o.Condition}
	// The invariant in §3 is "at most one opcode per (behaviour, condition)"
	// for behaviours that passes dispatch on structurally (jumps, sets,
	// arithmetic). BehaviourOther/BehaviourMeta/BehaviourTiming/
	// BehaviourStack legitimately hold many opcodes under ConditionNone
	// (push, pop, yield, sleep, ...), so the uniqueness check is scoped to
	// the behaviours where it's actually load-bearing.
	if enforcesUniqueKey(o.Behaviour) {
		if existing, exists := byBehaviourAndCond[key]; exists {
			panic(fmt.Sprintf("isa: (%s,%v) already claimed by %q, cannot register %q", o.Behaviour, o.Condition, existing.Name, o.Name))
		}
		byBehaviourAndCond[key] = o
	}
	return o
}

func enforcesUniqueKey(b Behaviour) bool {
	switch b {
	case BehaviourJump, BehaviourRelativeJump, BehaviourJumpWithReturn, BehaviourSetRegister, BehaviourArithmetic:
		return true
	default:
		return false
	}
}

// Decode looks an opcode up by its canonical mnemonic.
func Decode(name string) (Opcode, bool) {
	o, ok := byName[name]
	return o, ok
}

// DecodeByBehaviour looks an opcode up by its (behaviour, condition) pair.
// Only meaningful for behaviours that enforce the uniqueness invariant;
// see enforcesUniqueKey.
func DecodeByBehaviour(b Behaviour, c Condition) (Opcode, bool) {
	o, ok := byBehaviourAndCond[behaviourCond{b, c}]
	return o, ok
}

// Register/device-register/name/numeric operand kinds, used only for
// validation and pretty printing against the per-opcode operand vector.
type OperandKind byte

const (
	OperandValueRegister OperandKind = iota
	OperandValueRegisterIndirect
	OperandDeviceRegister
	OperandDeviceRegisterIndirect
	OperandName
	OperandNumeric
)

var (
	OpNop  = register(Opcode{Name: "nop", Behaviour: BehaviourOther})
	OpYield = register(Opcode{Name: "yield", Behaviour: BehaviourTiming})
	OpSleep = register(Opcode{Name: "sleep", Operands: []OperandKind{OperandValueRegister}, Behaviour: BehaviourTiming})
	OpHcf   = register(Opcode{Name: "hcf", Behaviour: BehaviourOther})

	OpPush = register(Opcode{Name: "push", Operands: []OperandKind{OperandValueRegister}, Behaviour: BehaviourStack})
	OpPop  = register(Opcode{Name: "pop", Operands: []OperandKind{OperandValueRegister}, Behaviour: BehaviourStack})

	OpMove  = register(Opcode{Name: "move", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionNone})
	OpAdd   = register(Opcode{Name: "add", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpSub   = register(Opcode{Name: "sub", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpMul   = register(Opcode{Name: "mul", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpDiv   = register(Opcode{Name: "div", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpMod   = register(Opcode{Name: "mod", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpAnd   = register(Opcode{Name: "and", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpOr    = register(Opcode{Name: "or", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpXor   = register(Opcode{Name: "xor", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpNot   = register(Opcode{Name: "not", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpSll   = register(Opcode{Name: "sll", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpSrl   = register(Opcode{Name: "srl", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})
	OpTrunc = register(Opcode{Name: "trunc", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourArithmetic})

	OpSeq = register(Opcode{Name: "seq", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionEqual})
	OpSne = register(Opcode{Name: "sne", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionNotEqual})
	OpSgt = register(Opcode{Name: "sgt", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionGreater})
	OpSge = register(Opcode{Name: "sge", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionGreaterEqual})
	OpSlt = register(Opcode{Name: "slt", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionLess})
	OpSle = register(Opcode{Name: "sle", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionLessEqual})
	OpSap = register(Opcode{Name: "sap", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionApprox})
	OpSna = register(Opcode{Name: "sna", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionNotApprox})
	OpSdse = register(Opcode{Name: "sdse", Operands: []OperandKind{OperandValueRegister, OperandDeviceRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionDeviceSet})
	OpSdns = register(Opcode{Name: "sdns", Operands: []OperandKind{OperandValueRegister, OperandDeviceRegister}, Behaviour: BehaviourSetRegister, Condition: ConditionDeviceNotSet})

	OpJ    = register(Opcode{Name: "j", Operands: []OperandKind{OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionNone})
	OpJal  = register(Opcode{Name: "jal", Operands: []OperandKind{OperandNumeric}, Behaviour: BehaviourJumpWithReturn, Condition: ConditionNone})
	OpJr   = register(Opcode{Name: "jr", Operands: []OperandKind{OperandNumeric}, Behaviour: BehaviourRelativeJump, Condition: ConditionNone})
	OpBeq  = register(Opcode{Name: "beq", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionEqual})
	OpBne  = register(Opcode{Name: "bne", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionNotEqual})
	OpBgt  = register(Opcode{Name: "bgt", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionGreater})
	OpBge  = register(Opcode{Name: "bge", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionGreaterEqual})
	OpBlt  = register(Opcode{Name: "blt", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionLess})
	OpBle  = register(Opcode{Name: "ble", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionLessEqual})
	OpBeqz = register(Opcode{Name: "beqz", Operands: []OperandKind{OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionEqualZ})
	OpBnez = register(Opcode{Name: "bnez", Operands: []OperandKind{OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionNotEqualZ})
	OpBgtz = register(Opcode{Name: "bgtz", Operands: []OperandKind{OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionGreaterZ})
	OpBgez = register(Opcode{Name: "bgez", Operands: []OperandKind{OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionGreaterEqualZ})
	OpBltz = register(Opcode{Name: "bltz", Operands: []OperandKind{OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionLessZ})
	OpBlez = register(Opcode{Name: "blez", Operands: []OperandKind{OperandValueRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionLessEqualZ})
	OpBdse = register(Opcode{Name: "bdse", Operands: []OperandKind{OperandDeviceRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionDeviceSet})
	OpBdns = register(Opcode{Name: "bdns", Operands: []OperandKind{OperandDeviceRegister, OperandNumeric}, Behaviour: BehaviourJump, Condition: ConditionDeviceNotSet})

	OpL  = register(Opcode{Name: "l", Operands: []OperandKind{OperandValueRegister, OperandDeviceRegister, OperandName}, Behaviour: BehaviourDeviceInterop})
	OpS  = register(Opcode{Name: "s", Operands: []OperandKind{OperandDeviceRegister, OperandName, OperandValueRegister}, Behaviour: BehaviourDeviceInterop})
	OpLs = register(Opcode{Name: "ls", Operands: []OperandKind{OperandValueRegister, OperandDeviceRegister, OperandNumeric, OperandName}, Behaviour: BehaviourDeviceInterop})
	OpLb = register(Opcode{Name: "lb", Operands: []OperandKind{OperandValueRegister, OperandNumeric, OperandName, OperandNumeric}, Behaviour: BehaviourDeviceInterop})
	OpSb = register(Opcode{Name: "sb", Operands: []OperandKind{OperandNumeric, OperandName, OperandValueRegister}, Behaviour: BehaviourDeviceInterop})

	OpAlias = register(Opcode{Name: "alias", Operands: []OperandKind{OperandName, OperandValueRegister}, Behaviour: BehaviourMeta})
	OpDefine = register(Opcode{Name: "define", Operands: []OperandKind{OperandName, OperandNumeric}, Behaviour: BehaviourMeta})

	// Reserved but unhandled by the core per §9: these round-trip through
	// the parser/optimiser like any other instruction but the execution
	// context never emits them.
	OpSelect = register(Opcode{Name: "select", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpSin    = register(Opcode{Name: "sin", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpCos    = register(Opcode{Name: "cos", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpTan    = register(Opcode{Name: "tan", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpAsin   = register(Opcode{Name: "asin", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpAcos   = register(Opcode{Name: "acos", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpAtan   = register(Opcode{Name: "atan", Operands: []OperandKind{OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
	OpAtan2  = register(Opcode{Name: "atan2", Operands: []OperandKind{OperandValueRegister, OperandValueRegister, OperandValueRegister}, Behaviour: BehaviourOther})
)
