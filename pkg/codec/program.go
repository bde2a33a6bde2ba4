// Package codec implements the packed instruction format of the script
// runtime: a flat sequence of 32-bit words plus a string constant pool.
//
// Layout of one instruction:
//
//	word 0:     opcode (bits 24-31) | immediate (bits 0-23)
//	word 1..n:  operands, n fixed by the opcode (see opcode.Shape)
//
// Decode is the only routine that turns words back into instructions. The
// VM and the disassembler both call it, so they always agree on what the
// stream means.
package codec

import (
	"fmt"
)

// Word is one fixed-width unit of the packed stream.
type Word uint32

const (
	opShift = 24
	// MaxImm is the largest header immediate.
	MaxImm = 1<<opShift - 1
)

// Program is a compiled script: the packed stream and the constant pool
// referenced by PUSH STRING instructions.
type Program struct {
	Name    string
	Code    []Word
	Strings []string
	// Entry is the instruction pointer of the outermost frame.
	Entry int
	// Locals is the local-variable count of the outermost frame.
	Locals int
}

// Len returns the number of words in the stream.
func (p *Program) Len() int {
	return len(p.Code)
}

// String implements fmt.Stringer for log output.
func (p *Program) String() string {
	return fmt.Sprintf("%s(%d words, %d strings)", p.Name, len(p.Code), len(p.Strings))
}

// Pool interns string constants.
type Pool struct {
	strings []string
	index   map[string]int
}

// Intern returns the pool index of s, adding it if needed.
func (p *Pool) Intern(s string) int {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[s]; ok {
		return i
	}
	p.strings = append(p.strings, s)
	p.index[s] = len(p.strings) - 1
	return len(p.strings) - 1
}

// Strings returns the interned strings in index order.
func (p *Pool) Strings() []string {
	out := make([]string, len(p.strings))
	copy(out, p.strings)
	return out
}

// Len returns the number of interned strings.
func (p *Pool) Len() int {
	return len(p.strings)
}
