// Package symval models the symbolic stack values the execution context
// pushes and pops while abstractly interpreting SBIL, and the immutable
// virtual stack they live on.
package symval

import "fmt"

// Kind tags which variant a Value holds.
type Kind byte

const (
	KindStatic Kind = iota
	KindThis
	KindDevice
	KindDeviceSlots
	KindDeviceSlot
	KindRegister
	KindField
	KindString
	KindHashString
	KindNull
	KindDeferred
)

// Value is a tagged variant representing one symbolic stack entry. Not
// all fields are meaningful for all Kinds; see the per-field comments.
type Value struct {
	Kind Kind

	// KindStatic
	Number float64

	// KindDevice / KindDeviceSlots / KindDeviceSlot
	Pin        string
	DeviceType string
	Multicast  bool
	// KindDeviceSlot only.
	SlotIndex *Value

	// KindRegister
	Register int

	// KindField
	Alias        string
	BackingField string

	// KindString / KindHashString
	Text string

	// KindDeferred
	Fragment   string // the fragment text, containing a literal "$" sink token
	FreeValues []int  // register indices to release once the fragment is resolved
}

func Static(v float64) Value { return Value{Kind: KindStatic, Number: v} }
func This() Value            { return Value{Kind: KindThis} }
func Null() Value            { return Value{Kind: KindNull} }
func Device(pin, deviceType string, multicast bool) Value {
	return Value{Kind: KindDevice, Pin: pin, DeviceType: deviceType, Multicast: multicast}
}
func DeviceSlots(pin, deviceType string) Value {
	return Value{Kind: KindDeviceSlots, Pin: pin, DeviceType: deviceType}
}
func DeviceSlot(pin, deviceType string, slotIndex Value) Value {
	return Value{Kind: KindDeviceSlot, Pin: pin, DeviceType: deviceType, SlotIndex: &slotIndex}
}
func Register(i int) Value { return Value{Kind: KindRegister, Register: i} }
func Field(alias, backing string) Value {
	return Value{Kind: KindField, Alias: alias, BackingField: backing}
}
func String(s string) Value     { return Value{Kind: KindString, Text: s} }
func HashString(s string) Value { return Value{Kind: KindHashString, Text: s} }
func Deferred(fragment string, freeValues ...int) Value {
	return Value{Kind: KindDeferred, Fragment: fragment, FreeValues: freeValues}
}

// IsStatic reports whether v is a compile-time-known number.
func (v Value) IsStatic() bool { return v.Kind == KindStatic }

// Renderable reports whether RenderAsIC10 can produce text for v without
// further lowering. This, Null, DeviceSlots, DeviceSlot and Deferred are
// not directly renderable: callers must lower them first (bind a
// DeferredExpression's "$" sink, resolve a slot reference, etc).
func (v Value) Renderable() bool {
	switch v.Kind {
	case KindThis, KindNull, KindDeviceSlots, KindDeviceSlot, KindDeferred:
		return false
	default:
		return true
	}
}

// RenderAsIC10 renders a renderable value to its IC10 operand text.
// Panics if called on a non-renderable value; callers must check
// Renderable first, since reaching this path on an unrenderable value is
// always a bug in the calling pass, not a malformed program.
func (v Value) RenderAsIC10() string {
	switch v.Kind {
	case KindStatic:
		return formatNumber(v.Number)
	case KindRegister:
		return fmt.Sprintf("r%d", v.Register)
	case KindDevice:
		return v.Pin
	case KindField:
		return v.Alias
	case KindString:
		return v.Text
	case KindHashString:
		return fmt.Sprintf("HASH(%q)", v.Text)
	default:
		panic(fmt.Sprintf("symval: %v is not renderable, must be lowered first", v.Kind))
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "Static"
	case KindThis:
		return "This"
	case KindDevice:
		return "Device"
	case KindDeviceSlots:
		return "DeviceSlots"
	case KindDeviceSlot:
		return "DeviceSlot"
	case KindRegister:
		return "Register"
	case KindField:
		return "Field"
	case KindString:
		return "String"
	case KindHashString:
		return "HashString"
	case KindNull:
		return "Null"
	case KindDeferred:
		return "DeferredExpression"
	default:
		return "unknown"
	}
}

// Equal reports structural equality between v and other, as required by
// the virtual stack's branch-consistency checks.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindStatic:
		return v.Number == other.Number
	case KindDevice:
		return v.Pin == other.Pin && v.DeviceType == other.DeviceType && v.Multicast == other.Multicast
	case KindDeviceSlots:
		return v.Pin == other.Pin && v.DeviceType == other.DeviceType
	case KindDeviceSlot:
		return v.Pin == other.Pin && v.DeviceType == other.DeviceType && v.SlotIndex.Equal(*other.SlotIndex)
	case KindRegister:
		return v.Register == other.Register
	case KindField:
		return v.Alias == other.Alias && v.BackingField == other.BackingField
	case KindString, KindHashString:
		return v.Text == other.Text
	case KindDeferred:
		return v.Fragment == other.Fragment
	default:
		return true // This, Null: singleton-like, equal by kind alone
	}
}
