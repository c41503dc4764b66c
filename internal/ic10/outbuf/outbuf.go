// Package outbuf implements the per-method output scratchpad: a
// fixed-size array of per-SBIL-instruction slots that accumulate
// comment/code/label-required state across the compile pass and are
// assembled into text once.
package outbuf

import (
	"strconv"
	"strings"
)

type slot struct {
	comment    string
	hasComment bool
	code       string
	hasCode    bool
	needsLabel bool
}

// Buffer is the mutable scratchpad for a single method compile. It is
// discarded once the method's text has been appended to the global
// output stream.
type Buffer struct {
	labelPrefix string
	slots       []slot
	preamble    []string
	postamble   []string
}

// New allocates a Buffer sized for n source SBIL instructions, with
// labelPrefix used to build this method's "{prefix}_il_{i}" label names.
func New(labelPrefix string, n int) *Buffer {
	return &Buffer{labelPrefix: labelPrefix, slots: make([]slot, n)}
}

// LabelPrefix returns the prefix this buffer builds per-instruction
// label names from.
func (b *Buffer) LabelPrefix() string { return b.labelPrefix }

// LabelFor returns the canonical label name for SBIL instruction index i,
// of the form "{prefix}_il_{i}". Does not itself mark the slot as
// needing a label; call RequireLabel for that.
func (b *Buffer) LabelFor(i int) string {
	return b.labelPrefix + "_il_" + strconv.Itoa(i)
}

// SetComment sets slot i's comment line, rendered as "# {text}".
func (b *Buffer) SetComment(i int, text string) {
	b.slots[i].comment = text
	b.slots[i].hasComment = true
}

// SetCode sets slot i's code, appending to whatever code already
// occupies that slot (a single SBIL instruction can emit code across
// more than one call, e.g. a comparison followed by a branch).
func (b *Buffer) SetCode(i int, code string) {
	if b.slots[i].hasCode {
		b.slots[i].code += "\n" + code
	} else {
		b.slots[i].code = code
		b.slots[i].hasCode = true
	}
}

// RequireLabel idempotently marks slot i as needing a label when the
// method is assembled. Safe to call more than once, and safe to call
// before slot i's code has been written — branch emitters routinely
// reference a forward target's label before that target is compiled.
func (b *Buffer) RequireLabel(i int) { b.slots[i].needsLabel = true }

// NeedsLabel reports whether slot i has been marked as a branch target.
func (b *Buffer) NeedsLabel(i int) bool { return b.slots[i].needsLabel }

// AddPreamble appends a line to the text emitted before the method body.
func (b *Buffer) AddPreamble(line string) { b.preamble = append(b.preamble, line) }

// AddPostamble appends a line to the text emitted after the method body.
func (b *Buffer) AddPostamble(line string) { b.postamble = append(b.postamble, line) }

// Assemble walks the slots in order, emitting an optional comment line,
// an optional "{prefix}_il_{i}:" label line, and the slot's code,
// bracketed by the accumulated preamble/postamble.
func (b *Buffer) Assemble() string {
	var sb strings.Builder
	for _, line := range b.preamble {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for i, s := range b.slots {
		if s.hasComment {
			sb.WriteString("# ")
			sb.WriteString(s.comment)
			sb.WriteByte('\n')
		}
		if s.needsLabel {
			sb.WriteString(b.LabelFor(i))
			sb.WriteString(":\n")
		}
		if s.hasCode {
			sb.WriteString(s.code)
			sb.WriteByte('\n')
		}
	}
	for _, line := range b.postamble {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
