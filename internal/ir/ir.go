// Package ir is the explicit, already-resolved front-end representation
// this compiler consumes: the real source language's reflection-driven
// attribute walk (program class discovery, field annotations, method
// bodies) is assumed to have already happened, and is handed to this
// package as plain structs. No reflection happens here or downstream.
package ir

// HintKind distinguishes the two compile-hint tag kinds a user method
// can carry (§6). Only Inline is implemented by the call-site engine
// today; CallStack is reserved for future call-stack-lowering hints that
// bypass the inline-then-fallback heuristic entirely.
type HintKind byte

const (
	HintInline HintKind = iota
	HintCallStack
)

// CompileHint is the "Compile hint tag" of §6: a pattern-language
// fragment attached to a user method, consulted before the call-site
// engine tries inlining or a call-stack lowering of its own.
type CompileHint struct {
	Pattern string
	Kind    HintKind
}

// DeviceField is the "Device field tag" of §6: binds a field to a fixed
// device pin, emitted as "alias {pin} d{index}" in the program preamble.
type DeviceField struct {
	Pin   string
	Index int
}

// MulticastDeviceField is the "Multicast device field tag" of §6: binds
// a field to the multicast bus. No alias is emitted for it; its type's
// DeviceInterface tag supplies the hash used at call sites.
type MulticastDeviceField struct {
	// TypeName is the device interface's declared type name, hashed with
	// HASH("...") wherever this field participates in a multicast
	// read/write.
	TypeName string
}

// DeviceInterface is the "Device interface tag" of §6: declares that a
// type is a device interface, contributing TypeName to HASH(...).
type DeviceInterface struct {
	TypeName string
}

// DeviceSlotCount is the "Device slot count tag" of §6: declares a
// device interface's slot table cardinality.
type DeviceSlotCount struct {
	Count int
}

// Field is one instance field of a Class. At most one of Device or
// Multicast is set; a field with neither is an ordinary register-backed
// field lowered via symval.Field.
type Field struct {
	Name      string
	TypeName  string
	Device    *DeviceField
	Multicast *MulticastDeviceField
}

// IsDeviceTagged reports whether writes to this field must be rejected
// (§4.F stfld: "fail if the field is device-tagged").
func (f Field) IsDeviceTagged() bool { return f.Device != nil || f.Multicast != nil }

// Local is one parameter or local variable slot. Width follows §4.F's
// "new" contract: 1 for primitive/enum types (gets a backing register),
// 0 for reference or wide-value types (mapping ⊥, value-tracked only),
// and anything above 1 is a front-end bug this compiler rejects.
type Local struct {
	Name string
	// TypeName is preserved for diagnostics; it plays no role in lowering
	// beyond having already determined Width.
	TypeName string
	Width    int
	// IsDeviceSlotRef marks a local produced by ldloca over a
	// DeviceSlot-producing expression: the only legal ref-typed local
	// besides the general reference-type (width 0) case (§7
	// UnsupportedConstruct).
	IsDeviceSlotRef bool
}

// Method is one method body: its parameters, locals, encoded SBIL body,
// and any attached compile hint. ReturnsValue distinguishes a void
// method ending in "ret" from a value-returning one.
type Method struct {
	Name         string
	Params       []Local
	Locals       []Local
	Body         []byte
	ReturnsValue bool
	Hint         *CompileHint
	Tokens       TokenTable
}

// Class is one compiled type: its fields, optional constructor, and the
// set of methods reachable from its entry point. IsProgramClass marks
// types carrying the "Program class tag" of §6.
type Class struct {
	Name           string
	IsProgramClass bool
	Fields         []Field
	Ctor           *Method
	Methods        map[string]*Method
}

// EntryMethodName is the fixed name the driver looks for on a program
// class (§4.G, §6).
const EntryMethodName = "Run"
