package isa

import "strings"

// ParseProgram is the inverse of Program.Text: it reads IC10 source,
// one instruction or "name:" label per line, and resolves it to a
// Program. Blank lines and lines reduced to nothing by whitespace
// trimming are skipped. SourceLine is set to each instruction's line
// index in the input text, for passes that need to relate an IC10
// instruction back to where it came from.
func ParseProgram(text string) Program {
	var p Program
	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if name, ok := labelLine(line); ok {
			p = p.WithLabel(name, len(p.Instructions))
			continue
		}
		fields := strings.Fields(line)
		opcode, ok := Decode(fields[0])
		if !ok {
			opcode = Opcode{Name: fields[0]}
		}
		operands := make([]Operand, 0, len(fields)-1)
		for _, f := range fields[1:] {
			operands = append(operands, Parse(f))
		}
		p.Instructions = append(p.Instructions, Instruction{
			SourceLine: lineNo,
			Opcode:     opcode,
			Operands:   operands,
		})
	}
	return p
}

func labelLine(line string) (string, bool) {
	if !strings.HasSuffix(line, ":") {
		return "", false
	}
	name := line[:len(line)-1]
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", false
	}
	return name, true
}
