// Package catalogue implements the offline device catalogue generator
// (§4.J): it reads a PrefabData.json descriptor array and emits one Go
// source fragment per descriptor (an interface declaration, one
// constant per logic type, and an optional Mode enum), entirely
// decoupled from the compiler core. Nothing in this package touches
// the execution context, the flow analyser or the optimiser.
package catalogue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logic is the nested `logic` object on a prefab descriptor.
type Logic struct {
	LogicTypes     []string `json:"logicTypes"`
	LogicSlotTypes []string `json:"logicSlotTypes"`
}

// Descriptor is one entry of PrefabData.json. Modes maps a numeric mode
// index, stringified by JSON's object-key rule, to its display name
// (e.g. `"0": "Idle"`).
type Descriptor struct {
	PrefabName string            `json:"prefabName"`
	PrefabHash int64             `json:"prefabHash"`
	Modes      map[string]string `json:"modes"`
	Logic      Logic             `json:"logic"`
}

// Load decodes a PrefabData.json document. A malformed document is
// fatal to the whole run (§4.L): there is no sensible way to generate a
// partial catalogue from an unparseable array.
func Load(data []byte) ([]Descriptor, error) {
	var descriptors []Descriptor
	if err := sonic.Unmarshal(data, &descriptors); err != nil {
		return nil, errors.Wrap(err, "decode PrefabData.json")
	}
	return descriptors, nil
}

// Generate renders every descriptor to a Go source fragment and
// concatenates them under a single package clause. A descriptor whose
// modes contains a display name that can't sanitise to a non-empty,
// unique Go identifier has its Mode enum skipped — logged as a warning
// through logger, which may be nil — but its interface and logic-type
// constants are still emitted.
func Generate(packageName string, descriptors []Descriptor, logger *logrus.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// Code generated by the device catalogue generator. DO NOT EDIT.\n\npackage %s\n\n", packageName)

	for _, d := range descriptors {
		sb.WriteString(renderDescriptor(d, logger))
	}
	return sb.String()
}

func renderDescriptor(d Descriptor, logger *logrus.Entry) string {
	name := sanitiseIdentifier(d.PrefabName)
	if name == "" {
		if logger != nil {
			logger.WithField("prefab", d.PrefabName).Warn("prefab name sanitises to an empty identifier, skipping descriptor")
		}
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "// %s is a device interface tag for prefab hash %d.\n", name, d.PrefabHash)
	fmt.Fprintf(&sb, "type %s interface {\n\tdeviceInterfaceTag()\n}\n\n", name)

	writeLogicConsts(&sb, name, "LogicType", d.Logic.LogicTypes)
	writeLogicConsts(&sb, name, "LogicSlotType", d.Logic.LogicSlotTypes)

	if len(d.Modes) > 0 {
		if enum, ok := renderModeEnum(name, d.Modes); ok {
			sb.WriteString(enum)
		} else if logger != nil {
			logger.WithField("prefab", d.PrefabName).Warn("modes contain a non-identifier key, skipping Mode enum")
		}
	}

	return sb.String()
}

func writeLogicConsts(sb *strings.Builder, prefix, group string, entries []string) {
	if len(entries) == 0 {
		return
	}
	sb.WriteString("const (\n")
	for _, e := range entries {
		ident := sanitiseIdentifier(e)
		if ident == "" {
			continue
		}
		fmt.Fprintf(sb, "\t%s%s%s = %q\n", prefix, group, ident, e)
	}
	sb.WriteString(")\n\n")
}

// renderModeEnum builds a `Mode` enum keyed by each mode's numeric
// index, with a String() method returning the display name. It fails
// (ok=false) the moment any display name fails to sanitise to a
// non-empty identifier or two modes collide once sanitised, since a
// partially-named enum is worse than none.
func renderModeEnum(prefix string, modes map[string]string) (string, bool) {
	type mode struct {
		index int64
		name  string
		ident string
	}

	seen := map[string]bool{}
	entries := make([]mode, 0, len(modes))
	for key, display := range modes {
		idx, ok := parseInt(key)
		if !ok {
			return "", false
		}
		ident := sanitiseIdentifier(display)
		if ident == "" || seen[ident] {
			return "", false
		}
		seen[ident] = true
		entries = append(entries, mode{index: idx, name: display, ident: ident})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	var sb strings.Builder
	typeName := prefix + "Mode"
	fmt.Fprintf(&sb, "type %s int\n\nconst (\n", typeName)
	for _, m := range entries {
		fmt.Fprintf(&sb, "\t%s%s %s = %d\n", typeName, m.ident, typeName, m.index)
	}
	sb.WriteString(")\n\n")

	fmt.Fprintf(&sb, "func (m %s) String() string {\n\tswitch m {\n", typeName)
	for _, m := range entries {
		fmt.Fprintf(&sb, "\tcase %s%s:\n\t\treturn %q\n", typeName, m.ident, m.name)
	}
	sb.WriteString("\tdefault:\n\t\treturn \"unknown\"\n\t}\n}\n\n")

	return sb.String(), true
}

func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	if i == len(s) {
		return 0, false
	}
	var n int64
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// sanitiseIdentifier lowers a raw prefab name or display name to a
// well-formed exported Go identifier: strip anything that isn't a
// letter or digit, capitalise the first surviving letter, and prefix a
// leading digit (Go identifiers can't start with one) with "X".
func sanitiseIdentifier(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	ident := b.String()
	if ident == "" {
		return ""
	}
	if ident[0] >= '0' && ident[0] <= '9' {
		ident = "X" + ident
	}
	return strings.ToUpper(ident[:1]) + ident[1:]
}
