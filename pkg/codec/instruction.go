package codec

import (
	"fmt"
	"strings"

	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Instruction is one decoded instruction.
//
// Imm holds the header immediate (type tag, operator or argument count,
// depending on the opcode). Operands holds the raw operand words; unused
// slots are zero. Const is only set for PUSH.
type Instruction struct {
	Op       opcode.Op
	Imm      uint32
	Operands [opcode.MaxOperands]int32
	Const    value.Value
}

// Operator returns the immediate as an operator.
func (ins Instruction) Operator() opcode.Operator {
	return opcode.Operator(ins.Imm)
}

// TypeImm returns the immediate as a type tag.
func (ins Instruction) TypeImm() value.Type {
	return value.Type(ins.Imm)
}

// Count returns the immediate as an argument count.
func (ins Instruction) Count() int {
	return int(ins.Imm)
}

// Arg returns operand i as an int.
func (ins Instruction) Arg(i int) int {
	return int(ins.Operands[i])
}

// Width returns the packed size of the instruction in words.
func (ins Instruction) Width() int {
	return opcode.Width(ins.Op)
}

// String renders the instruction without resolving any names.
func (ins Instruction) String() string {
	if !ins.Op.Valid() {
		return fmt.Sprintf("INVALID(%#02x)", uint8(ins.Op))
	}
	var sb strings.Builder
	sb.WriteString(ins.Op.String())
	shape := ins.Op.Shape()
	switch shape.Imm {
	case opcode.ImmType:
		if ins.Op == opcode.Push {
			sb.WriteString(" " + ins.Const.String())
		} else {
			sb.WriteString(" " + ins.TypeImm().String())
		}
	case opcode.ImmOperator:
		sb.WriteString(" " + ins.Operator().String())
	case opcode.ImmCount:
		fmt.Fprintf(&sb, " argc=%d", ins.Imm)
	}
	if ins.Op != opcode.Push {
		for i := range shape.Operands {
			fmt.Fprintf(&sb, " %d", ins.Operands[i])
		}
	}
	return sb.String()
}

// Constructors. They never fail; Encode validates the result.

// Nop returns a NOP instruction.
func Nop() Instruction { return Instruction{Op: opcode.Nop} }

// Push returns a PUSH of v.
func Push(v value.Value) Instruction {
	return Instruction{Op: opcode.Push, Imm: uint32(v.Type()), Const: v}
}

// Pop returns a POP instruction.
func Pop() Instruction { return Instruction{Op: opcode.Pop} }

// LoadVar reads host variable index at instance.
func LoadVar(index, instance int32) Instruction {
	return Instruction{Op: opcode.LoadVar, Operands: [2]int32{index, instance}}
}

// StoreVar writes host variable index at instance.
func StoreVar(index, instance int32) Instruction {
	return Instruction{Op: opcode.StoreVar, Operands: [2]int32{index, instance}}
}

// LoadVarX reads host variable index at an instance taken from the stack.
func LoadVarX(index int32) Instruction {
	return Instruction{Op: opcode.LoadVarX, Operands: [2]int32{index}}
}

// StoreVarX writes host variable index at an instance taken from the stack.
func StoreVarX(index int32) Instruction {
	return Instruction{Op: opcode.StoreVarX, Operands: [2]int32{index}}
}

// LoadLocal reads a local slot.
func LoadLocal(slot int32) Instruction {
	return Instruction{Op: opcode.LoadLocal, Operands: [2]int32{slot}}
}

// StoreLocal writes a local slot.
func StoreLocal(slot int32) Instruction {
	return Instruction{Op: opcode.StoreLocal, Operands: [2]int32{slot}}
}

// Call invokes host function index with argc arguments.
func Call(index int32, argc uint32) Instruction {
	return Instruction{Op: opcode.Call, Imm: argc, Operands: [2]int32{index}}
}

// CallScript enters the script function at target.
func CallScript(target int32, argc uint32, locals int32) Instruction {
	return Instruction{Op: opcode.CallScript, Imm: argc, Operands: [2]int32{target, locals}}
}

// Arith applies a binary arithmetic or logical operator.
func Arith(o opcode.Operator) Instruction {
	return Instruction{Op: opcode.Arith, Imm: uint32(o)}
}

// Compare applies a comparison operator.
func Compare(o opcode.Operator) Instruction {
	return Instruction{Op: opcode.Compare, Imm: uint32(o)}
}

// Unary applies a unary operator.
func Unary(o opcode.Operator) Instruction {
	return Instruction{Op: opcode.Unary, Imm: uint32(o)}
}

// Cast converts the top of the stack to t.
func Cast(t value.Type) Instruction {
	return Instruction{Op: opcode.Cast, Imm: uint32(t)}
}

// Jump jumps to target.
func Jump(target int32) Instruction {
	return Instruction{Op: opcode.Jump, Operands: [2]int32{target}}
}

// JumpFalse jumps to target when the popped condition is not truthy.
func JumpFalse(target int32) Instruction {
	return Instruction{Op: opcode.JumpFalse, Operands: [2]int32{target}}
}

// JumpTrue jumps to target when the popped condition is truthy.
func JumpTrue(target int32) Instruction {
	return Instruction{Op: opcode.JumpTrue, Operands: [2]int32{target}}
}

// Return returns from the current call level.
func Return() Instruction { return Instruction{Op: opcode.Return} }

// Yield suspends the instance.
func Yield() Instruction { return Instruction{Op: opcode.Yield} }
