package sbil

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecoderError is raised when the byte stream is malformed: truncated
// payloads, an opcode byte with no known mnemonic, or (at the caller's
// option, see Decode's doc) an unresolvable token. It satisfies the
// CompileError contract used throughout the core (internal/diag).
type DecoderError struct {
	Offset      int
	instruction string
	Cause       error
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("sbil: decode error at offset %d: %v", e.Offset, e.Cause)
}

func (e *DecoderError) Unwrap() error { return e.Cause }

func (e *DecoderError) Instruction() string { return e.instruction }

// mnemonicByOpcode / opcodeByMnemonic give the decoder a stable byte
// encoding without hand-maintaining two parallel tables: it's built once
// from a fixed ordering of opcodeInfo's keys.
var (
	mnemonicByOpcode [256]Mnemonic
	opcodeByMnemonic = map[Mnemonic]byte{}
)

func init() {
	order := []Mnemonic{
		Nop, Dup, Pop, LdargS, LdcI4, LdcR4, LdNull, LdStr, LdFld, StFld,
		LdLoc, LdLocA, StLoc, Add, Sub, Mul, Div, And, Or, Xor, Shl, Shr,
		ShrUn, Not, Neg, Ceq, Cgt, CgtUn, Clt, CltUn, Br, Beq, Bge, Bgt,
		Ble, Blt, BneUn, BrFalse, BrTrue, Switch, Call, CallVirt, Ret,
		ConvI4, ConvU4, LdindRef, LdElem,
	}
	if len(order) > 255 {
		panic("sbil: opcode table overflowed one byte")
	}
	for i, m := range order {
		if _, ok := opcodeInfo[m]; !ok {
			panic(fmt.Sprintf("sbil: %q missing from opcodeInfo", m))
		}
		b := byte(i + 1) // 0 is reserved, never emitted, decodes as an error
		mnemonicByOpcode[b] = m
		opcodeByMnemonic[m] = b
	}
}

// OpcodeByte returns the fixed one-byte encoding for mnemonic m, for use
// by an encoder (tests, or a front-end emitting synthetic SBIL).
func OpcodeByte(m Mnemonic) (byte, bool) {
	b, ok := opcodeByMnemonic[m]
	return b, ok
}

// Decode reads a method body into its instruction vector. Branch/switch
// targets are resolved from relative offsets to absolute byte offsets
// within body during decode, since every downstream consumer (the
// execution context, the branch-target label scan) wants absolute
// offsets.
func Decode(body []byte) ([]Instruction, error) {
	var out []Instruction
	offset := 0
	for offset < len(body) {
		opByte := body[offset]
		mnemonic := mnemonicByOpcode[opByte]
		if mnemonic == "" {
			return nil, &DecoderError{Offset: offset, Cause: fmt.Errorf("unknown opcode byte 0x%02x", opByte)}
		}
		kind := opcodeInfo[mnemonic]
		payload, size, err := decodePayload(body, offset+1, kind)
		if err != nil {
			return nil, &DecoderError{Offset: offset, instruction: string(mnemonic), Cause: err}
		}
		out = append(out, Instruction{
			Offset:  offset,
			Size:    1 + size,
			Op:      mnemonic,
			Payload: payload,
		})
		offset += 1 + size
	}
	return out, nil
}

func decodePayload(body []byte, offset int, kind PayloadKind) (Payload, int, error) {
	switch kind {
	case PayloadNone:
		return Payload{Kind: kind}, 0, nil
	case PayloadI8:
		if err := need(body, offset, 1); err != nil {
			return Payload{}, 0, err
		}
		return Payload{Kind: kind, Int: int64(int8(body[offset]))}, 1, nil
	case PayloadI16:
		if err := need(body, offset, 2); err != nil {
			return Payload{}, 0, err
		}
		return Payload{Kind: kind, Int: int64(int16(binary.LittleEndian.Uint16(body[offset:])))}, 2, nil
	case PayloadI32:
		if err := need(body, offset, 4); err != nil {
			return Payload{}, 0, err
		}
		return Payload{Kind: kind, Int: int64(int32(binary.LittleEndian.Uint32(body[offset:])))}, 4, nil
	case PayloadBranchS:
		if err := need(body, offset, 1); err != nil {
			return Payload{}, 0, err
		}
		rel := int64(int8(body[offset]))
		return Payload{Kind: kind, BranchTarget: int(int64(offset+1) + rel)}, 1, nil
	case PayloadBranch:
		if err := need(body, offset, 4); err != nil {
			return Payload{}, 0, err
		}
		rel := int64(int32(binary.LittleEndian.Uint32(body[offset:])))
		return Payload{Kind: kind, BranchTarget: int(int64(offset+4) + rel)}, 4, nil
	case PayloadSwitch:
		if err := need(body, offset, 4); err != nil {
			return Payload{}, 0, err
		}
		count := int(int32(binary.LittleEndian.Uint32(body[offset:])))
		if count < 0 {
			return Payload{}, 0, fmt.Errorf("negative switch case count %d", count)
		}
		size := 4 + count*4
		if err := need(body, offset, size); err != nil {
			return Payload{}, 0, err
		}
		base := offset + size
		targets := make([]int, count)
		for i := 0; i < count; i++ {
			rel := int64(int32(binary.LittleEndian.Uint32(body[offset+4+i*4:])))
			targets[i] = int(int64(base) + rel)
		}
		return Payload{Kind: kind, SwitchTargets: targets}, size, nil
	case PayloadToken:
		if err := need(body, offset, 4); err != nil {
			return Payload{}, 0, err
		}
		return Payload{Kind: kind, Token: binary.LittleEndian.Uint32(body[offset:])}, 4, nil
	case PayloadSingle:
		if err := need(body, offset, 4); err != nil {
			return Payload{}, 0, err
		}
		bits := binary.LittleEndian.Uint32(body[offset:])
		return Payload{Kind: kind, Single: math.Float32frombits(bits)}, 4, nil
	case PayloadDouble:
		if err := need(body, offset, 8); err != nil {
			return Payload{}, 0, err
		}
		bits := binary.LittleEndian.Uint64(body[offset:])
		return Payload{Kind: kind, Double: math.Float64frombits(bits)}, 8, nil
	default:
		return Payload{}, 0, fmt.Errorf("unhandled payload kind %v", kind)
	}
}

func need(body []byte, offset, n int) error {
	if offset+n > len(body) {
		return fmt.Errorf("truncated payload: need %d bytes at offset %d, have %d", n, offset, len(body)-offset)
	}
	return nil
}
