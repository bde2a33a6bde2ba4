package codec

import (
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Encode appends the packed form of ins to dst. STRING constants are
// interned into pool, which may be nil only when ins has none. Exactly opcode.Width(ins.Op) words are appended on
// success; on failure dst is returned unchanged.
func Encode(dst []Word, pool *Pool, ins Instruction) ([]Word, error) {
	if err := validate(ins); err != nil {
		return dst, err
	}

	shape := ins.Op.Shape()
	dst = append(dst, Word(ins.Op)<<opShift|Word(ins.Imm))

	if ins.Op == opcode.Push {
		var bits uint64
		if ins.Const.Type() == value.TypeString {
			if pool == nil {
				return dst[:len(dst)-1], fault.New(fault.MalformedStream, "PUSH STRING needs a string pool")
			}
			s, _ := ins.Const.AsString()
			bits = uint64(pool.Intern(s))
		} else {
			bits = ins.Const.Bits()
		}
		return append(dst, Word(bits>>32), Word(bits)), nil
	}

	for i := range shape.Operands {
		dst = append(dst, Word(uint32(ins.Operands[i])))
	}
	return dst, nil
}

// validate checks everything Decode would reject, except targets, which
// can only be range-checked against a complete stream.
func validate(ins Instruction) error {
	if !ins.Op.Valid() {
		return fault.New(fault.MalformedStream, "unknown opcode %#02x", uint8(ins.Op))
	}
	shape := ins.Op.Shape()

	if ins.Imm > MaxImm {
		return fault.New(fault.MalformedStream, "%s immediate %d exceeds %d", ins.Op, ins.Imm, MaxImm)
	}
	if err := checkImm(ins.Op, shape, ins.Imm); err != nil {
		return err
	}

	if ins.Op == opcode.Push {
		if ins.Imm != uint32(ins.Const.Type()) {
			return fault.New(fault.MalformedStream, "PUSH tag %d does not match constant %s", ins.Imm, ins.Const.Type())
		}
		if ins.Operands != [opcode.MaxOperands]int32{} {
			return fault.New(fault.MalformedStream, "PUSH carries no raw operands")
		}
		return nil
	}
	if ins.Const != (value.Value{}) {
		return fault.New(fault.MalformedStream, "%s cannot carry a constant", ins.Op)
	}

	for i := range ins.Operands {
		raw := ins.Operands[i]
		if i >= len(shape.Operands) {
			if raw != 0 {
				return fault.New(fault.MalformedStream, "%s has %d operands, slot %d is set", ins.Op, len(shape.Operands), i)
			}
			continue
		}
		if err := checkOperand(ins.Op, shape.Operands[i], raw, -1); err != nil {
			return err
		}
	}
	return nil
}

// checkImm validates a header immediate against the opcode shape.
func checkImm(op opcode.Op, shape opcode.Shape, imm uint32) error {
	switch shape.Imm {
	case opcode.ImmNone:
		if imm != 0 {
			return fault.New(fault.MalformedStream, "%s takes no immediate, got %d", op, imm)
		}
	case opcode.ImmType:
		if imm > 0xFF || !value.Type(imm).Valid() {
			return fault.New(fault.MalformedStream, "%s: invalid type tag %d", op, imm)
		}
	case opcode.ImmOperator:
		if imm > 0xFF || !op.Allows(opcode.Operator(imm)) {
			return fault.New(fault.MalformedStream, "%s: invalid operator %d", op, imm)
		}
	case opcode.ImmCount:
		// Any 24-bit count is representable.
	}
	return nil
}

// checkOperand validates one raw operand. streamLen < 0 skips the target
// range check.
func checkOperand(op opcode.Op, kind opcode.OperandKind, raw int32, streamLen int) error {
	switch kind {
	case opcode.OperandFunction, opcode.OperandVariable, opcode.OperandSlot, opcode.OperandCount:
		if raw < 0 {
			return fault.New(fault.MalformedStream, "%s: negative operand %d", op, raw)
		}
	case opcode.OperandTarget:
		if raw < 0 || (streamLen >= 0 && int(raw) >= streamLen) {
			return fault.New(fault.MalformedStream, "%s: target %d outside stream of %d words", op, raw, streamLen)
		}
	case opcode.OperandInstance, opcode.OperandPayload:
		// Instance ranges belong to the host; payloads to the tag.
	}
	return nil
}
