package codec

import (
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Decode reads the instruction at pos and returns it with the position of
// the next instruction. It fails with MALFORMED_STREAM when the opcode is
// unknown, fewer words remain than the opcode needs, an immediate or
// operand is invalid for its kind, or a jump target lies outside the
// stream. Decode does not allocate.
func Decode(p *Program, pos int) (Instruction, int, error) {
	code := p.Code
	if pos < 0 || pos >= len(code) {
		return Instruction{}, pos, fault.New(fault.MalformedStream, "position %d outside stream of %d words", pos, len(code))
	}

	header := code[pos]
	op := opcode.Op(header >> opShift)
	imm := uint32(header & MaxImm)
	if !op.Valid() {
		return Instruction{}, pos, fault.New(fault.MalformedStream, "unknown opcode %#02x at %d", uint8(op), pos)
	}

	shape := op.Shape()
	width := shape.Width()
	if remain := len(code) - pos; remain < width {
		return Instruction{}, pos, fault.New(fault.MalformedStream, "%s needs %d words, %d remain", op, width, remain)
	}
	if err := checkImm(op, shape, imm); err != nil {
		return Instruction{}, pos, err
	}

	ins := Instruction{Op: op, Imm: imm}

	if op == opcode.Push {
		c, err := decodeConst(p, value.Type(imm), uint64(code[pos+1])<<32|uint64(code[pos+2]))
		if err != nil {
			return Instruction{}, pos, err
		}
		ins.Const = c
		return ins, pos + width, nil
	}

	for i, kind := range shape.Operands {
		raw := int32(code[pos+1+i])
		if err := checkOperand(op, kind, raw, len(code)); err != nil {
			return Instruction{}, pos, err
		}
		ins.Operands[i] = raw
	}
	return ins, pos + width, nil
}

func decodeConst(p *Program, t value.Type, bits uint64) (value.Value, error) {
	if t != value.TypeString {
		return value.FromBits(t, bits)
	}
	if bits >= uint64(len(p.Strings)) {
		return value.Value{}, fault.New(fault.MalformedStream, "string index %d outside pool of %d", bits, len(p.Strings))
	}
	return value.Str(p.Strings[bits]), nil
}

// DecodeAll decodes the stream linearly from the start. It is meant for
// tests and tooling; the VM decodes one instruction at a time.
func DecodeAll(p *Program) ([]Instruction, []int, error) {
	var (
		out       []Instruction
		positions []int
	)
	for pos := 0; pos < len(p.Code); {
		ins, next, err := Decode(p, pos)
		if err != nil {
			return out, positions, fault.At(err, pos)
		}
		out = append(out, ins)
		positions = append(positions, pos)
		pos = next
	}
	return out, positions, nil
}
