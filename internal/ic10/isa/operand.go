package isa

import (
	"fmt"
	"strconv"
	"strings"
)

// Operand is a single parsed instruction argument. The zero value is not
// meaningful; construct operands with the Reg*/Device*/Name/Numeric
// helpers or via Parse.
type Operand struct {
	Kind OperandKind
	// Index is the register index for the four register kinds (sp is
	// represented as index 16, ra as index 17, db as index 6).
	Index int
	// Name carries bare identifiers (device property names, labels used
	// as jump targets before resolution).
	Name string
	// Number carries a static numeric operand.
	Number float64
}

const (
	spIndex = 16
	raIndex = 17
	dbIndex = 6
)

func RegSP() Operand { return Operand{Kind: OperandValueRegister, Index: spIndex} }
func RegRA() Operand { return Operand{Kind: OperandValueRegister, Index: raIndex} }
func Reg(i int) Operand {
	if i < 0 || i > 15 {
		panic(fmt.Sprintf("isa: register index %d out of range", i))
	}
	return Operand{Kind: OperandValueRegister, Index: i}
}
func RegIndirect(i int) Operand { return Operand{Kind: OperandValueRegisterIndirect, Index: i} }
func DeviceDB() Operand         { return Operand{Kind: OperandDeviceRegister, Index: dbIndex} }
func Device(i int) Operand {
	if i < 0 || i > 5 {
		panic(fmt.Sprintf("isa: device index %d out of range", i))
	}
	return Operand{Kind: OperandDeviceRegister, Index: i}
}
func DeviceIndirect(i int) Operand { return Operand{Kind: OperandDeviceRegisterIndirect, Index: i} }
func Name(s string) Operand        { return Operand{Kind: OperandName, Name: s} }
func Numeric(v float64) Operand    { return Operand{Kind: OperandNumeric, Number: v} }

// String renders the operand in its canonical textual form. This is the
// inverse of Parse: Parse(o.String()) must always equal o.
func (o Operand) String() string {
	switch o.Kind {
	case OperandValueRegister:
		switch o.Index {
		case spIndex:
			return "sp"
		case raIndex:
			return "ra"
		default:
			return fmt.Sprintf("r%d", o.Index)
		}
	case OperandValueRegisterIndirect:
		return fmt.Sprintf("rr%d", o.Index)
	case OperandDeviceRegister:
		if o.Index == dbIndex {
			return "db"
		}
		return fmt.Sprintf("d%d", o.Index)
	case OperandDeviceRegisterIndirect:
		return fmt.Sprintf("dr%d", o.Index)
	case OperandName:
		return o.Name
	case OperandNumeric:
		return formatNumber(o.Number)
	default:
		return ""
	}
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	return s
}

// Parse is a total operand parser: any text is accepted, and any text
// previously produced by Operand.String round-trips to an equal Operand.
// Anything that isn't a recognised register/device form or a valid
// decimal number is treated as a bare Name operand.
func Parse(text string) Operand {
	text = strings.TrimSpace(text)
	switch text {
	case "sp":
		return RegSP()
	case "ra":
		return RegRA()
	case "db":
		return DeviceDB()
	}
	if n, ok := parseIndexed(text, "rr"); ok {
		return RegIndirect(n)
	}
	if n, ok := parseIndexed(text, "dr"); ok {
		return DeviceIndirect(n)
	}
	if n, ok := parseIndexed(text, "r"); ok && n >= 0 && n <= 15 {
		return Reg(n)
	}
	if n, ok := parseIndexed(text, "d"); ok && n >= 0 && n <= 5 {
		return Device(n)
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return Numeric(v)
	}
	return Name(text)
}

func parseIndexed(text, prefix string) (int, bool) {
	if !strings.HasPrefix(text, prefix) {
		return 0, false
	}
	rest := text[len(prefix):]
	if rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
