// Package asm assembles text listings into packed programs.
//
// The accepted syntax is the one package disasm writes, so a listing can be
// edited and read back. In addition:
//
//	loop:                  ; a label, usable as jump or CALLSCRIPT target
//	  JUMP loop
//	  CALL argc=1 debug    ; host names resolve through the Resolver
//	  ADD                  ; bare operator names imply ARITH/COMPARE/UNARY
//	.entry main            ; entry point by label or position
//
// A leading number on an instruction line is a position and is ignored.
package asm

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/ccoveille/go-safecast"

	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Resolver maps host names to indices. dispatch.Names satisfies it.
type Resolver interface {
	FunctionIndex(name string) (int, bool)
	VariableIndex(name string) (int, bool)
}

type assembler struct {
	b     *codec.Builder
	names Resolver
	line  int

	name    string
	labels  map[string]codec.Label
	defined map[string]bool
	refs    map[string]int // first line referencing each label

	entryPos   int
	entrySet   bool
	entryLabel string
}

// Assemble reads a listing from r. names may be nil, in which case host
// functions and variables must be given by index.
func Assemble(r io.Reader, names Resolver) (*codec.Program, error) {
	a := &assembler{
		b:       codec.NewBuilder(""),
		names:   names,
		labels:  make(map[string]codec.Label),
		defined: make(map[string]bool),
		refs:    make(map[string]int),
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		a.line++
		if err := a.parseLine(sc.Text()); err != nil {
			err.Line = a.line
			return nil, err
		}
		if err := a.b.Err(); err != nil {
			return nil, &Error{Line: a.line, Message: "cannot encode instruction", Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}
	return a.finish()
}

// AssembleString assembles a listing held in memory.
func AssembleString(src string, names Resolver) (*codec.Program, error) {
	return Assemble(strings.NewReader(src), names)
}

func (a *assembler) finish() (*codec.Program, error) {
	var missing []string
	for name := range a.refs {
		if !a.defined[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		// 最初に参照された行を報告する
		first := slices.MinFunc(missing, func(x, y string) int {
			return cmp.Or(cmp.Compare(a.refs[x], a.refs[y]), strings.Compare(x, y))
		})
		return nil, &Error{Line: a.refs[first], Message: fmt.Sprintf("label %q is never defined", first)}
	}
	if a.entryLabel != "" {
		a.b.SetEntry(a.labels[a.entryLabel])
	}

	p, err := a.b.Program()
	if err != nil {
		return nil, &Error{Message: "cannot build program", Err: err}
	}
	p.Name = a.name
	if a.entrySet {
		p.Entry = a.entryPos
	}
	if len(p.Code) > 0 && (p.Entry < 0 || p.Entry >= len(p.Code)) {
		return nil, &Error{Message: fmt.Sprintf("entry point %d outside program of %d words", p.Entry, len(p.Code))}
	}
	if _, _, err := codec.DecodeAll(p); err != nil {
		return nil, &Error{Message: "program does not decode", Err: err}
	}
	return p, nil
}

func (a *assembler) parseLine(line string) *Error {
	toks, err := fields(line)
	if err != nil {
		return err
	}
	if len(toks) == 0 {
		return nil
	}

	if strings.HasPrefix(toks[0].text, ".") && !toks[0].quoted {
		return a.directive(toks)
	}

	// Position column of a disassembly listing.
	if isNumber(toks[0].text) {
		toks = toks[1:]
	}

	for len(toks) > 0 && strings.HasSuffix(toks[0].text, ":") && !toks[0].quoted {
		name := strings.TrimSuffix(toks[0].text, ":")
		if !isLabel(name) {
			return errorf(0, toks[0], "invalid label %q", name)
		}
		if a.defined[name] {
			return errorf(0, toks[0], "label %q redefined", name)
		}
		a.b.Mark(a.label(name))
		a.defined[name] = true
		toks = toks[1:]
	}

	if len(toks) == 0 {
		return nil
	}
	return a.instruction(toks)
}

func (a *assembler) label(name string) codec.Label {
	l, ok := a.labels[name]
	if !ok {
		l = a.b.NewLabel(name)
		a.labels[name] = l
	}
	return l
}

func (a *assembler) reference(name string) codec.Label {
	if _, ok := a.refs[name]; !ok {
		a.refs[name] = a.line
	}
	return a.label(name)
}

func (a *assembler) directive(toks []token) *Error {
	dir := strings.ToLower(toks[0].text)
	if len(toks) != 2 {
		return errorf(0, toks[0], "%s takes exactly one argument", dir)
	}
	arg := toks[1]

	switch dir {
	case ".name":
		a.name = arg.text
	case ".locals":
		n, err := strconv.Atoi(arg.text)
		if err != nil || n < 0 {
			return errorf(0, arg, "invalid local count %q", arg.text)
		}
		a.b.SetLocals(n)
	case ".entry":
		if isNumber(arg.text) {
			n, err := strconv.Atoi(arg.text)
			if err != nil || n < 0 {
				return errorf(0, arg, "invalid entry point %q", arg.text)
			}
			a.entryPos, a.entrySet, a.entryLabel = n, true, ""
			return nil
		}
		if !isLabel(arg.text) {
			return errorf(0, arg, "invalid label %q", arg.text)
		}
		a.reference(arg.text)
		a.entryLabel, a.entrySet = arg.text, false
	default:
		return errorf(0, toks[0], "unknown directive %s", dir)
	}
	return nil
}

func (a *assembler) instruction(toks []token) *Error {
	mn := toks[0]
	args := toks[1:]

	ins := codec.Instruction{}
	implied := false
	if op, ok := opcode.Lookup(mn.text); ok {
		ins.Op = op
	} else if op, o, ok := opcode.LookupOperator(mn.text); ok {
		ins.Op, ins.Imm, implied = op, uint32(o), true
	} else {
		return errorf(0, mn, "unknown mnemonic %q", mn.text)
	}

	if ins.Op == opcode.Push {
		c, err := a.constant(mn, args)
		if err != nil {
			return err
		}
		a.b.Emit(codec.Push(c))
		return nil
	}

	shape := ins.Op.Shape()
	next := func(what string) (token, *Error) {
		if len(args) == 0 {
			return token{}, errorf(0, mn, "%s: missing %s", ins.Op, what)
		}
		t := args[0]
		args = args[1:]
		return t, nil
	}

	switch shape.Imm {
	case opcode.ImmType:
		t, err := next("type")
		if err != nil {
			return err
		}
		typ, ok := value.ParseType(t.text)
		if !ok {
			return errorf(0, t, "unknown type %q", t.text)
		}
		ins.Imm = uint32(typ)
	case opcode.ImmOperator:
		if implied {
			break
		}
		t, err := next("operator")
		if err != nil {
			return err
		}
		op, o, ok := opcode.LookupOperator(t.text)
		if !ok || op != ins.Op {
			return errorf(0, t, "%s does not take operator %q", ins.Op, t.text)
		}
		ins.Imm = uint32(o)
	case opcode.ImmCount:
		t, err := next("argument count")
		if err != nil {
			return err
		}
		n, perr := strconv.ParseUint(strings.TrimPrefix(t.text, "argc="), 10, 32)
		if perr != nil {
			return errorf(0, t, "invalid argument count %q", t.text)
		}
		ins.Imm = uint32(n)
	}

	var target string
	for i, kind := range shape.Operands {
		t, err := next(operandName(kind))
		if err != nil {
			return err
		}
		if kind == opcode.OperandTarget && !isNumber(t.text) {
			if !isLabel(t.text) {
				return errorf(0, t, "invalid label %q", t.text)
			}
			target = t.text
			continue
		}
		n, err := a.operand(kind, t)
		if err != nil {
			return err
		}
		ins.Operands[i] = n
	}
	if len(args) > 0 {
		return errorf(0, args[0], "%s: unexpected %q", ins.Op, args[0].text)
	}

	switch {
	case target == "":
		a.b.Emit(ins)
	case ins.Op == opcode.CallScript:
		a.b.CallScriptTo(a.reference(target), ins.Count(), ins.Arg(1))
	default:
		a.b.JumpTo(ins.Op, a.reference(target))
	}
	return nil
}

func (a *assembler) operand(kind opcode.OperandKind, t token) (int32, *Error) {
	text := t.text
	if kind == opcode.OperandCount {
		text = strings.TrimPrefix(text, "locals=")
	}

	if isNumber(text) {
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return 0, errorf(0, t, "invalid %s %q", operandName(kind), text)
		}
		return int32(n), nil
	}

	var (
		idx int
		ok  bool
	)
	switch kind {
	case opcode.OperandFunction:
		if a.names != nil {
			idx, ok = a.names.FunctionIndex(text)
		}
	case opcode.OperandVariable:
		if a.names != nil {
			idx, ok = a.names.VariableIndex(text)
		}
	default:
		return 0, errorf(0, t, "invalid %s %q", operandName(kind), text)
	}
	if !ok {
		return 0, errorf(0, t, "unknown %s %q", operandName(kind), text)
	}
	n, err := safecast.ToInt32(idx)
	if err != nil {
		return 0, errorf(0, t, "%s index %d out of range", operandName(kind), idx)
	}
	return n, nil
}

func (a *assembler) constant(mn token, args []token) (value.Value, *Error) {
	if len(args) == 0 {
		return value.Value{}, errorf(0, mn, "PUSH: missing type")
	}
	typ, ok := value.ParseType(args[0].text)
	if !ok {
		return value.Value{}, errorf(0, args[0], "unknown type %q", args[0].text)
	}
	if typ == value.TypeVoid {
		if len(args) > 1 {
			return value.Value{}, errorf(0, args[1], "PUSH VOID takes no literal")
		}
		return value.Void(), nil
	}
	if len(args) != 2 {
		return value.Value{}, errorf(0, mn, "PUSH %s takes exactly one literal", typ)
	}
	lit := args[1]

	bad := func() (value.Value, *Error) {
		return value.Value{}, errorf(0, lit, "invalid %s literal %q", typ, lit.text)
	}

	switch {
	case typ == value.TypeString:
		if !lit.quoted {
			return bad()
		}
		return value.Str(lit.text), nil
	case lit.quoted:
		return bad()
	case typ == value.TypeInt:
		n, err := strconv.ParseInt(lit.text, 10, 64)
		if err != nil {
			return bad()
		}
		return value.Int(n), nil
	case typ == value.TypeFloat:
		f, err := strconv.ParseFloat(lit.text, 64)
		if err != nil {
			return bad()
		}
		return value.Float(f), nil
	case typ == value.TypeBool:
		b, err := strconv.ParseBool(lit.text)
		if err != nil {
			return bad()
		}
		return value.Bool(b), nil
	case typ.IsHandle():
		if lit.text == "null" {
			return value.MustHandle(typ, value.Null), nil
		}
		h, err := strconv.ParseUint(strings.TrimPrefix(lit.text, "@"), 10, 64)
		if err != nil || !strings.HasPrefix(lit.text, "@") {
			return bad()
		}
		v, verr := value.NewHandle(typ, value.Handle(h))
		if verr != nil {
			return bad()
		}
		return v, nil
	}
	return bad()
}

func operandName(kind opcode.OperandKind) string {
	switch kind {
	case opcode.OperandFunction:
		return "function"
	case opcode.OperandVariable:
		return "variable"
	case opcode.OperandInstance:
		return "instance"
	case opcode.OperandSlot:
		return "local slot"
	case opcode.OperandTarget:
		return "target"
	case opcode.OperandCount:
		return "local count"
	default:
		return "operand"
	}
}
