// Package compiledriver assembles one class's compiled methods into a
// complete IC10 program (§4.G): entry-method discovery, field aliasing,
// transitive per-method compilation with memoisation for cyclic call
// graphs, and optional on-disk caching of the finished text.
package compiledriver

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/thomasfn/CsToMips/internal/cache"
	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/execctx"
	"github.com/thomasfn/CsToMips/internal/ic10/regset"
	"github.com/thomasfn/CsToMips/internal/ic10/symval"
	"github.com/thomasfn/CsToMips/internal/ir"
	"github.com/thomasfn/CsToMips/internal/optimize"
	"github.com/thomasfn/CsToMips/internal/sbil"
)

const (
	ctorLabel = "ctor"
	mainLabel = "main"
	endLabel  = "end"
)

// Options configures a driver run. Cache and Logger are both optional;
// a nil Cache disables memoisation across process runs and a nil Logger
// silences per-class diagnostic logging (the returned Result still
// carries the error either way).
type Options struct {
	Optimise bool
	Cache    *cache.Cache
	// Version is stamped into cache keys so a stale on-disk entry is
	// never served across a compiler upgrade (§4.M).
	Version string
	Logger  *logrus.Entry
}

// Result is one class's compile outcome.
type Result struct {
	Class string
	Text  string
	Err   error
}

// CompileClasses compiles every class independently, fanned out across a
// worker pool bounded by GOMAXPROCS (§5): classes share no mutable state
// beyond the compile cache, which guards its own map with a mutex, so this is the one place the
// driver uses goroutines. A per-class failure is captured in that
// class's Result and never aborts the others.
func CompileClasses(ctx context.Context, classes []*ir.Class, opts Options) []Result {
	results := make([]Result, len(classes))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, class := range classes {
		i, class := i, class
		g.Go(func() error {
			text, err := CompileClass(class, opts)
			results[i] = Result{Class: class.Name, Text: text, Err: err}
			if err != nil && opts.Logger != nil {
				diag.Diagnostic{Class: class.Name, Err: err}.Log(opts.Logger)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CompileClass compiles one program class to a complete IC10 program.
func CompileClass(class *ir.Class, opts Options) (string, error) {
	if !class.IsProgramClass {
		return "", diag.NewUnsupportedConstruct(class.Name, "class is not tagged as a program class")
	}
	if _, ok := class.Methods[ir.EntryMethodName]; !ok {
		return "", diag.NewUnsupportedConstruct(class.Name, fmt.Sprintf("no %q entry method found", ir.EntryMethodName))
	}

	if opts.Cache == nil {
		return compileClassUncached(class, opts)
	}

	key := cache.NewKey(classSBIL(class), opts.Version)
	if text, hit := opts.Cache.Get(key); hit {
		return text, nil
	}
	text, err := compileClassUncached(class, opts)
	if err != nil {
		return "", err
	}
	if putErr := opts.Cache.Put(key, text); putErr != nil && opts.Logger != nil {
		opts.Logger.WithField("class", class.Name).WithError(putErr).Warn("compile cache write failed")
	}
	return text, nil
}

// classSBIL concatenates every method body this class could compile, in
// a stable order, for use as the compile cache's content hash input.
func classSBIL(class *ir.Class) []byte {
	var buf bytes.Buffer
	if class.Ctor != nil {
		buf.Write(class.Ctor.Body)
		buf.WriteByte(0)
	}
	names := lo.Keys(class.Methods)
	slices.Sort(names)
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
		buf.Write(class.Methods[name].Body)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func compileClassUncached(class *ir.Class, opts Options) (string, error) {
	aliases, reserved, err := buildFieldAliases(class)
	if err != nil {
		return "", err
	}

	memo := map[string]string{}
	visiting := map[string]bool{}
	order := []string{}

	var compileMethod func(name string) error
	compileMethod = func(name string) error {
		if _, done := memo[name]; done {
			return nil
		}
		if visiting[name] {
			// Cyclic dependency (§9): the in-progress call higher up the
			// stack will finish compiling and memoise this name; don't
			// recurse further.
			return nil
		}
		method, ok := class.Methods[name]
		if !ok {
			return diag.NewInternalInvariant(name, "call target method not found in class")
		}
		visiting[name] = true
		text, deps, err := compileMethodBodyLabelled(class, method, name, reserved, opts)
		delete(visiting, name)
		if err != nil {
			return err
		}
		memo[name] = text
		order = append(order, name)
		depNames := lo.Keys(deps)
		slices.Sort(depNames)
		for _, dep := range depNames {
			if err := compileMethod(dep); err != nil {
				return err
			}
		}
		return nil
	}

	var ctorText string
	if class.Ctor != nil {
		text, deps, err := compileMethodBodyLabelled(class, class.Ctor, ctorLabel, reserved, opts)
		if err != nil {
			return "", err
		}
		ctorText = text
		ctorDeps := lo.Keys(deps)
		slices.Sort(ctorDeps)
		for _, dep := range ctorDeps {
			if err := compileMethod(dep); err != nil {
				return "", err
			}
		}
	}

	mainText, mainDeps, err := compileMethodBodyLabelled(class, class.Methods[ir.EntryMethodName], mainLabel, reserved, opts)
	if err != nil {
		return "", err
	}
	mainDepNames := lo.Keys(mainDeps)
	slices.Sort(mainDepNames)
	for _, dep := range mainDepNames {
		if err := compileMethod(dep); err != nil {
			return "", err
		}
	}

	var sb strings.Builder
	for _, alias := range aliases {
		sb.WriteString(alias)
		sb.WriteByte('\n')
	}
	if ctorText != "" {
		sb.WriteString(ctorText)
	}
	sb.WriteString(fmt.Sprintf("jal %s\n", mainLabel))
	sb.WriteString(fmt.Sprintf("j %s\n", endLabel))
	sb.WriteString(mainText)
	for _, name := range order {
		sb.WriteString(memo[name])
	}
	sb.WriteString(endLabel + ":\n")

	text := sb.String()
	if opts.Optimise {
		text = optimize.Run(text, opts.Logger)
	}
	return text, nil
}

// buildFieldAliases emits the program's alias preamble (§4.G, §6): a
// device-tagged field aliases its declared pin, a multicast field emits
// no alias at all (its type's HASH(...) carries it at call sites), and
// every other field claims one persistent register for the lifetime of
// the program.
func buildFieldAliases(class *ir.Class) (aliases []string, reserved regset.Set, err error) {
	for _, f := range class.Fields {
		switch {
		case f.Device != nil:
			aliases = append(aliases, fmt.Sprintf("alias %s d%d", f.Name, f.Device.Index))
		case f.Multicast != nil:
			// no alias: multicast reads/writes address by HASH(TypeName).
		default:
			out, idx, ok := reserved.Allocate()
			if !ok {
				return nil, 0, diag.NewRegisterExhausted(fmt.Sprintf("persistent field %q", f.Name))
			}
			reserved = out
			aliases = append(aliases, fmt.Sprintf("alias %s r%d", f.Name, idx))
		}
	}
	return aliases, reserved, nil
}

func compileMethodBodyLabelled(class *ir.Class, method *ir.Method, label string, reserved regset.Set, opts Options) (string, map[string]bool, error) {
	body, deps, err := compileMethodBody(class, method, reserved, opts)
	if err != nil {
		return "", nil, err
	}
	return label + ":\n" + body, deps, nil
}

func compileMethodBody(class *ir.Class, method *ir.Method, reserved regset.Set, opts Options) (string, map[string]bool, error) {
	insns, err := sbil.Decode(method.Body)
	if err != nil {
		return "", nil, diag.NewDecoderError(method.Name, err)
	}

	ctxOpts := execctx.Options{
		Class: class,
		ResolveMethod: func(ref ir.MethodRef) (*ir.Method, bool) {
			m, ok := class.Methods[ref.MethodName]
			return m, ok
		},
		ResolveDeviceSlotCount: func(deviceTypeName string) (int, bool) {
			for _, tok := range method.Tokens {
				if tok.Kind == ir.TokenType && tok.Type.TypeName == deviceTypeName && tok.Type.SlotCount != nil {
					return tok.Type.SlotCount.Count, true
				}
			}
			return 0, false
		},
		Logger: opts.Logger,
	}

	c, err := execctx.New(ctxOpts, reserved, method, method.Name, false, symval.Empty, nil)
	if err != nil {
		return "", nil, err
	}
	text, err := c.Compile(insns)
	if err != nil {
		return "", nil, err
	}
	return text, c.MethodDependencies(), nil
}
