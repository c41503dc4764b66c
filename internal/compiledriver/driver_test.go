package compiledriver

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasfn/CsToMips/internal/cache"
	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

// opByte panics if m has no fixed encoding; every mnemonic these tests
// use is registered in sbil's opcode table, so this can never happen
// outside of a typo here.
func opByte(m sbil.Mnemonic) byte {
	b, ok := sbil.OpcodeByte(m)
	if !ok {
		panic("compiledriver_test: unknown mnemonic " + string(m))
	}
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// retOnlyBody is the smallest legal void method body: a bare "ret" with
// an empty operand stack.
func retOnlyBody() []byte {
	return []byte{opByte(sbil.Ret)}
}

// callThenRetBody encodes "call <token>; ret", the shape every
// dependency-discovery test needs: a single call to another method in
// the same class, by name, followed immediately by a void return.
func callThenRetBody(token uint32) []byte {
	body := []byte{opByte(sbil.Call)}
	body = append(body, u32(token)...)
	body = append(body, opByte(sbil.Ret))
	return body
}

func methodCallToken(name string) ir.Token {
	return ir.Token{Kind: ir.TokenMethod, Method: ir.MethodRef{MethodName: name}}
}

func runMethod(body []byte, tokens ir.TokenTable) *ir.Method {
	return &ir.Method{Name: ir.EntryMethodName, Body: body, Tokens: tokens}
}

func programClass(name string, fields []ir.Field, run *ir.Method, extra ...*ir.Method) *ir.Class {
	methods := map[string]*ir.Method{run.Name: run}
	for _, m := range extra {
		methods[m.Name] = m
	}
	return &ir.Class{
		Name:           name,
		IsProgramClass: true,
		Fields:         fields,
		Methods:        methods,
	}
}

func TestCompileClassRejectsNonProgramClass(t *testing.T) {
	class := &ir.Class{Name: "Plain", IsProgramClass: false}
	_, err := CompileClass(class, Options{})
	require.Error(t, err)
	var uc *diag.UnsupportedConstruct
	require.ErrorAs(t, err, &uc)
	assert.Contains(t, err.Error(), "program class")
}

func TestCompileClassRejectsMissingEntryMethod(t *testing.T) {
	class := &ir.Class{Name: "NoRun", IsProgramClass: true, Methods: map[string]*ir.Method{}}
	_, err := CompileClass(class, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Run")
}

func TestBuildFieldAliasesCoversAllThreeFieldKinds(t *testing.T) {
	class := &ir.Class{
		Fields: []ir.Field{
			{Name: "Sensor", TypeName: "Device", Device: &ir.DeviceField{Pin: "d2", Index: 2}},
			{Name: "Bus", TypeName: "IBus", Multicast: &ir.MulticastDeviceField{TypeName: "IBus"}},
			{Name: "Counter", TypeName: "float"},
		},
	}
	aliases, reserved, err := buildFieldAliases(class)
	require.NoError(t, err)
	assert.Equal(t, []string{"alias Sensor d2", "alias Counter r0"}, aliases)
	assert.True(t, reserved.Has(0))

	// The device alias binds field.Name, never field.Device.Pin: the
	// preamble must agree with how handleLdfld renders a device-tagged
	// field read, which only ever knows the field's name.
	assert.NotContains(t, aliases, "alias d2 d2")
}

func TestBuildFieldAliasesExhaustsRegisters(t *testing.T) {
	var fields []ir.Field
	for i := 0; i < 17; i++ {
		fields = append(fields, ir.Field{Name: "F", TypeName: "float"})
	}
	class := &ir.Class{Fields: fields}
	_, _, err := buildFieldAliases(class)
	require.Error(t, err)
	var re *diag.RegisterExhausted
	assert.ErrorAs(t, err, &re)
}

func TestCompileClassAssemblesHeaderAndTrailer(t *testing.T) {
	class := programClass("Robot", []ir.Field{
		{Name: "Sensor", TypeName: "Device", Device: &ir.DeviceField{Pin: "d0", Index: 0}},
	}, runMethod(retOnlyBody(), nil))

	text, err := CompileClass(class, Options{})
	require.NoError(t, err)
	assert.Contains(t, text, "alias Sensor d0")
	assert.Contains(t, text, "jal main")
	assert.Contains(t, text, "j end")
	assert.Contains(t, text, "main:")
	assert.Contains(t, text, "end:")
}

func TestCompileClassDiscoversAndCompilesCyclicDependencies(t *testing.T) {
	// Run -> A -> B -> A: a genuine call cycle. The memoised compile
	// must terminate and every method must appear exactly once in the
	// assembled text.
	run := runMethod(callThenRetBody(1), ir.TokenTable{1: methodCallToken("A")})
	methodA := &ir.Method{Name: "A", Body: callThenRetBody(2), Tokens: ir.TokenTable{2: methodCallToken("B")}}
	methodB := &ir.Method{Name: "B", Body: callThenRetBody(3), Tokens: ir.TokenTable{3: methodCallToken("A")}}

	class := programClass("Cyclic", nil, run, methodA, methodB)

	text, err := CompileClass(class, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(text, "A:"), text)
	assert.Equal(t, 1, countOccurrences(text, "B:"), text)
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}

func TestCompileClassCachesAcrossCalls(t *testing.T) {
	class := programClass("Cached", nil, runMethod(retOnlyBody(), nil))
	c := cache.New("")
	opts := Options{Cache: c, Version: "test-version"}

	first, err := CompileClass(class, opts)
	require.NoError(t, err)

	key := cache.NewKey(classSBIL(class), opts.Version)
	cached, hit := c.Get(key)
	require.True(t, hit)
	assert.Equal(t, first, cached)

	second, err := CompileClass(class, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompileClassSurvivesCachePutFailure(t *testing.T) {
	// cache.New("") has no backing directory: Put always fails, but the
	// in-memory tier still accepts the write, and a failed Put must never
	// fail the compile that produced the text in the first place.
	class := programClass("NoDir", nil, runMethod(retOnlyBody(), nil))
	text, err := CompileClass(class, Options{Cache: cache.New(""), Version: "v1"})
	require.NoError(t, err)
	assert.Contains(t, text, "main:")
}

func TestCompileClassesIsolatesPerClassFailures(t *testing.T) {
	good := programClass("Good", nil, runMethod(retOnlyBody(), nil))
	bad := &ir.Class{Name: "Bad", IsProgramClass: false}

	results := CompileClasses(context.Background(), []*ir.Class{good, bad}, Options{})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Text)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "Bad", results[1].Class)
}
