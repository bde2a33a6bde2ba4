// Package opcode defines the instruction set of the script virtual machine.
// This package is the foundation that the codec, the VM, the assembler and
// the disassembler all depend on: every fact about an opcode's shape lives
// here so that encoding and decoding can never disagree.
package opcode

import "strings"

// Op is an opcode. The numeric values are part of the packed stream format.
type Op uint8

// Instruction set.
const (
	// Nop does nothing.
	Nop Op = 0x00

	// Push pushes an embedded tagged value.
	// Imm: type tag. Operands: payload high word, payload low word.
	Push Op = 0x01

	// Pop discards the top of the evaluation stack.
	Pop Op = 0x02

	// LoadVar pushes a host variable.
	// Operands: [variable index, instance]
	LoadVar Op = 0x03

	// StoreVar pops a value into a host variable.
	// Operands: [variable index, instance]
	StoreVar Op = 0x04

	// LoadVarX pushes a host variable whose instance is popped from the stack.
	// Operands: [variable index]
	LoadVarX Op = 0x05

	// StoreVarX pops the instance, then the value, into a host variable.
	// Operands: [variable index]
	StoreVarX Op = 0x06

	// LoadLocal pushes a local variable of the current frame.
	// Operands: [slot]
	LoadLocal Op = 0x07

	// StoreLocal pops a value into a local variable of the current frame.
	// Operands: [slot]
	StoreLocal Op = 0x08

	// Call invokes a host function with the top Imm values as arguments.
	// Imm: argument count. Operands: [function index]
	Call Op = 0x09

	// CallScript enters a script-level function.
	// Imm: argument count. Operands: [target, local count]
	CallScript Op = 0x0A

	// Arith pops two operands and pushes the result of a binary operator.
	// Imm: Operator (Add..Or)
	Arith Op = 0x0B

	// Compare pops two operands and pushes a BOOLEAN.
	// Imm: Operator (Eq..Ge)
	Compare Op = 0x0C

	// Unary pops one operand and pushes the result.
	// Imm: Operator (Neg, Not)
	Unary Op = 0x0D

	// Cast converts the top of the stack explicitly.
	// Imm: target type tag
	Cast Op = 0x0E

	// Jump sets the instruction pointer.
	// Operands: [target]
	Jump Op = 0x0F

	// JumpFalse pops the condition and jumps when it is not truthy.
	// Operands: [target]
	JumpFalse Op = 0x10

	// JumpTrue pops the condition and jumps when it is truthy.
	// Operands: [target]
	JumpTrue Op = 0x11

	// Return leaves the innermost call level, or terminates the instance at
	// the outermost level.
	Return Op = 0x12

	// Yield suspends the instance until the next tick.
	Yield Op = 0x13

	numOps Op = 0x14
)

// ImmKind describes how the header immediate of an opcode is interpreted.
type ImmKind uint8

const (
	ImmNone ImmKind = iota
	ImmType
	ImmOperator
	ImmCount
)

// OperandKind describes an operand word.
type OperandKind uint8

const (
	OperandPayload OperandKind = iota
	OperandFunction
	OperandVariable
	OperandInstance
	OperandSlot
	OperandTarget
	OperandCount
)

// Shape is the fixed layout of an opcode.
type Shape struct {
	Name     string
	Imm      ImmKind
	Operands []OperandKind
	// Operators lists the operators allowed in the immediate, if any.
	Operators []Operator
}

// Width returns the total number of words of the instruction.
func (s Shape) Width() int {
	return 1 + len(s.Operands)
}

var shapes = [numOps]Shape{
	Nop:        {Name: "NOP"},
	Push:       {Name: "PUSH", Imm: ImmType, Operands: []OperandKind{OperandPayload, OperandPayload}},
	Pop:        {Name: "POP"},
	LoadVar:    {Name: "LOADVAR", Operands: []OperandKind{OperandVariable, OperandInstance}},
	StoreVar:   {Name: "STOREVAR", Operands: []OperandKind{OperandVariable, OperandInstance}},
	LoadVarX:   {Name: "LOADVARX", Operands: []OperandKind{OperandVariable}},
	StoreVarX:  {Name: "STOREVARX", Operands: []OperandKind{OperandVariable}},
	LoadLocal:  {Name: "LOADLOCAL", Operands: []OperandKind{OperandSlot}},
	StoreLocal: {Name: "STORELOCAL", Operands: []OperandKind{OperandSlot}},
	Call:       {Name: "CALL", Imm: ImmCount, Operands: []OperandKind{OperandFunction}},
	CallScript: {Name: "CALLSCRIPT", Imm: ImmCount, Operands: []OperandKind{OperandTarget, OperandCount}},
	Arith:      {Name: "ARITH", Imm: ImmOperator, Operators: []Operator{Add, Sub, Mul, Div, Mod, And, Or}},
	Compare:    {Name: "COMPARE", Imm: ImmOperator, Operators: []Operator{Eq, Ne, Lt, Le, Gt, Ge}},
	Unary:      {Name: "UNARY", Imm: ImmOperator, Operators: []Operator{Neg, Not}},
	Cast:       {Name: "CAST", Imm: ImmType},
	Jump:       {Name: "JUMP", Operands: []OperandKind{OperandTarget}},
	JumpFalse:  {Name: "JUMPFALSE", Operands: []OperandKind{OperandTarget}},
	JumpTrue:   {Name: "JUMPTRUE", Operands: []OperandKind{OperandTarget}},
	Return:     {Name: "RETURN"},
	Yield:      {Name: "YIELD"},
}

// MaxOperands is the largest operand count of any opcode.
const MaxOperands = 2

// Valid reports whether op is a member of the instruction set.
func (op Op) Valid() bool {
	return op < numOps
}

// Shape returns the layout of op. It panics for invalid opcodes; callers
// decoding untrusted words check Valid first.
func (op Op) Shape() Shape {
	return shapes[op]
}

// Width returns the total word count of op, or 0 for an invalid opcode.
func Width(op Op) int {
	if !op.Valid() {
		return 0
	}
	return shapes[op].Width()
}

// String returns the mnemonic of op.
func (op Op) String() string {
	if !op.Valid() {
		return "INVALID"
	}
	return shapes[op].Name
}

// IsJump reports whether op transfers control to an operand target.
func (op Op) IsJump() bool {
	return op == Jump || op == JumpFalse || op == JumpTrue
}

// Ops returns every opcode in numeric order.
func Ops() []Op {
	ops := make([]Op, 0, numOps)
	for op := Op(0); op < numOps; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Lookup finds an opcode by mnemonic (case-insensitive).
func Lookup(name string) (Op, bool) {
	upper := strings.ToUpper(name)
	for op, s := range shapes {
		if s.Name == upper {
			return Op(op), true
		}
	}
	return 0, false
}
