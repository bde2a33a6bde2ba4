// Package disasm renders packed programs as text listings.
//
// A listing starts with directives describing the program and has one line
// per instruction:
//
//	.name  example
//	.entry 0000
//	.locals 0
//	0000  PUSH INTEGER 3
//	0003  LOADVAR 5 0         ; gameTime[0]
//	0006  CALL argc=1 2       ; debug
//	0008  JUMPFALSE 0015
//
// Listings are read back by package asm. Names come only from the Names
// view; host callbacks are never touched.
package disasm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
)

// Names resolves host indices to names. dispatch.Names satisfies it.
type Names interface {
	FunctionName(index int) (string, bool)
	VariableName(index int) (string, bool)
}

// commentColumn is where "; name" comments start.
const commentColumn = 26

// Disassemble writes the listing of p to w. It stops at the first
// instruction that fails to decode, writes an error line for it, and
// returns the positioned error. names may be nil.
func Disassemble(w io.Writer, p *codec.Program, names Names) error {
	name := p.Name
	if name == "" || strings.ContainsAny(name, " \t;\"") {
		name = strconv.Quote(name)
	}
	if _, err := fmt.Fprintf(w, ".name %s\n.entry %04d\n.locals %d\n", name, p.Entry, p.Locals); err != nil {
		return err
	}

	for pos := 0; pos < len(p.Code); {
		ins, next, err := codec.Decode(p, pos)
		if err != nil {
			fe := fault.At(err, pos)
			if _, werr := fmt.Fprintf(w, "%04d  ; error: %s\n", pos, fe.Message); werr != nil {
				return werr
			}
			return fe
		}
		if _, err := io.WriteString(w, Format(pos, ins, names)+"\n"); err != nil {
			return err
		}
		pos = next
	}
	return nil
}

// Format renders one instruction at pos. names may be nil.
func Format(pos int, ins codec.Instruction, names Names) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %s", pos, Mnemonic(ins))

	if c := comment(ins, names); c != "" {
		for sb.Len() < commentColumn {
			sb.WriteByte(' ')
		}
		sb.WriteString(" ; " + c)
	}
	return sb.String()
}

// Mnemonic renders an instruction without position or comment, in the
// form the assembler accepts.
func Mnemonic(ins codec.Instruction) string {
	if !ins.Op.Valid() {
		return ins.String()
	}
	shape := ins.Op.Shape()
	parts := []string{ins.Op.String()}

	switch shape.Imm {
	case opcode.ImmType:
		if ins.Op == opcode.Push {
			parts = append(parts, ins.Const.String())
			return strings.Join(parts, " ")
		}
		parts = append(parts, ins.TypeImm().String())
	case opcode.ImmOperator:
		parts = append(parts, ins.Operator().String())
	case opcode.ImmCount:
		parts = append(parts, fmt.Sprintf("argc=%d", ins.Imm))
	}

	for i, kind := range shape.Operands {
		switch kind {
		case opcode.OperandTarget:
			parts = append(parts, fmt.Sprintf("%04d", ins.Operands[i]))
		case opcode.OperandCount:
			parts = append(parts, fmt.Sprintf("locals=%d", ins.Operands[i]))
		default:
			parts = append(parts, fmt.Sprintf("%d", ins.Operands[i]))
		}
	}
	return strings.Join(parts, " ")
}

func comment(ins codec.Instruction, names Names) string {
	if names == nil {
		return ""
	}
	switch ins.Op {
	case opcode.Call:
		if name, ok := names.FunctionName(ins.Arg(0)); ok {
			return name
		}
		return "?"
	case opcode.LoadVar, opcode.StoreVar:
		if name, ok := names.VariableName(ins.Arg(0)); ok {
			return fmt.Sprintf("%s[%d]", name, ins.Arg(1))
		}
		return "?"
	case opcode.LoadVarX, opcode.StoreVarX:
		if name, ok := names.VariableName(ins.Arg(0)); ok {
			return name + "[*]"
		}
		return "?"
	}
	return ""
}
