package opcode

import (
	"slices"
	"strings"
)

// Operator selects the operation of Arith, Compare and Unary instructions.
type Operator uint8

const (
	Add Operator = iota + 1
	Sub
	Mul
	Div
	Mod
	And
	Or

	Eq
	Ne
	Lt
	Le
	Gt
	Ge

	Neg
	Not

	numOperators
)

var operatorNames = [numOperators]string{
	Add: "ADD",
	Sub: "SUB",
	Mul: "MUL",
	Div: "DIV",
	Mod: "MOD",
	And: "AND",
	Or:  "OR",
	Eq:  "EQ",
	Ne:  "NE",
	Lt:  "LT",
	Le:  "LE",
	Gt:  "GT",
	Ge:  "GE",
	Neg: "NEG",
	Not: "NOT",
}

// String returns the operator mnemonic.
func (o Operator) String() string {
	if o == 0 || o >= numOperators {
		return "INVALID"
	}
	return operatorNames[o]
}

// Allows reports whether the immediate of op may hold operator o.
func (op Op) Allows(o Operator) bool {
	if !op.Valid() {
		return false
	}
	return slices.Contains(shapes[op].Operators, o)
}

// LookupOperator finds an operator by mnemonic (case-insensitive) and
// returns the opcode that carries it.
func LookupOperator(name string) (Op, Operator, bool) {
	upper := strings.ToUpper(name)
	for o := Operator(1); o < numOperators; o++ {
		if operatorNames[o] != upper {
			continue
		}
		for _, op := range []Op{Arith, Compare, Unary} {
			if op.Allows(o) {
				return op, o, true
			}
		}
	}
	return 0, 0, false
}
