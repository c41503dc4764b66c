package ir

// TokenKind distinguishes what an inline-token payload in SBIL resolves
// to: a callee method, a field, a type (used for GetTypeHash<T> and
// device-interface lookups), or a string literal.
type TokenKind byte

const (
	TokenMethod TokenKind = iota
	TokenField
	TokenType
	TokenString
)

// MethodRef identifies a callee by receiver type name and method name;
// "" as ReceiverType means "the enclosing class" (an ordinary
// user-method call rather than a call against a device/multicast
// receiver).
type MethodRef struct {
	ReceiverType string
	MethodName   string
	// IsDeviceInterfaceCall marks receivers whose type carries a
	// DeviceInterface tag, which routes call lowering into §4.F's
	// get_*/set_*/GetTypeHash shape-matching instead of a real call site.
	IsDeviceInterfaceCall bool
	// IsMulticast marks a call against a field tagged MulticastDeviceField.
	IsMulticast bool
}

// FieldRef identifies a field access target, resolved against the
// enclosing class's field list.
type FieldRef struct {
	FieldName string
}

// TypeRef carries a resolved type's device-interface metadata, when
// present, for GetTypeHash<T>()/Hash(string) and device-interface call
// lowering.
type TypeRef struct {
	TypeName        string
	DeviceInterface *DeviceInterface
	SlotCount       *DeviceSlotCount
}

// Token is the resolved payload a TokenTable entry carries. Exactly one
// of the Method/Field/Type/String fields is meaningful, selected by Kind.
type Token struct {
	Kind   TokenKind
	Method MethodRef
	Field  FieldRef
	Type   TypeRef
	String string
}

// TokenTable resolves an inline-token payload (§4.E) to its Token,
// scoped to one method's generic context. The SBIL reader never
// interprets token ids itself; it hands the raw id to the execution
// context, which resolves it through this table.
type TokenTable map[uint32]Token
