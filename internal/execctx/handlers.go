package execctx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/sbil"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
)

type handlerFunc func(c *Context, idx int, insn sbil.Instruction) error

type handlerEntry struct {
	pattern *regexp.Regexp
	fn      handlerFunc
}

var handlerTable []handlerEntry

// registerHandler associates every SBIL mnemonic matching pattern with
// fn. Handler dispatch matches by regular expression rather than by
// opcode identity so a single handler can cover an entire mnemonic
// family (§4.F); more than one handler may match the same opcode, and
// every one that does runs.
func registerHandler(pattern string, fn handlerFunc) {
	handlerTable = append(handlerTable, handlerEntry{regexp.MustCompile(pattern), fn})
}

// dispatch runs every handler whose pattern matches insn.Op. An opcode
// matched by nothing is a fatal error: the source used a construct this
// compiler does not (yet) lower.
func (c *Context) dispatch(idx int, insn sbil.Instruction) error {
	name := string(insn.Op)
	matched := false
	for _, h := range handlerTable {
		if h.pattern.MatchString(name) {
			matched = true
			if err := h.fn(c, idx, insn); err != nil {
				return err
			}
		}
	}
	if !matched {
		return diag.NewUnsupportedConstruct(name, "no handler matched this opcode")
	}
	return nil
}

// materialize turns v into a Renderable value, allocating a fresh sink
// register and emitting v's fragment if v is a DeferredExpression.
// isTemp reports whether the caller is responsible for freeing the
// returned value's register once it has been embedded into emitted
// code; it is true only when materialize itself allocated the
// register, never when v already named a live local or parameter's
// register.
func (c *Context) materialize(idx int, v symval.Value) (result symval.Value, isTemp bool, err error) {
	if v.Kind == symval.KindDeferred {
		reg, ok := c.allocate()
		if !ok {
			return symval.Value{}, false, diag.NewRegisterExhausted(fmt.Sprintf("instruction %d", idx))
		}
		code := bindSink(v.Fragment, fmt.Sprintf("r%d", reg))
		c.out.SetCode(idx, code)
		for _, freeReg := range v.FreeValues {
			c.free(freeReg)
		}
		return symval.Register(reg), true, nil
	}
	if !v.Renderable() {
		return symval.Value{}, false, diag.NewUnsupportedConstruct(
			fmt.Sprintf("instruction %d", idx),
			fmt.Sprintf("value of kind %v cannot be used here without explicit lowering", v.Kind),
		)
	}
	return v, false, nil
}

// freeIfTemp frees v's register when isTemp is set, a no-op otherwise.
func (c *Context) freeIfTemp(v symval.Value, isTemp bool) {
	if isTemp {
		c.free(v.Register)
	}
}

func bindSink(fragment, sink string) string {
	return strings.ReplaceAll(fragment, "$", sink)
}
