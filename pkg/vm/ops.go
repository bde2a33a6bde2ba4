package vm

import (
	"math"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// arith applies a binary ARITH operator to a (deeper) and b (top).
//
// INTEGER arithmetic wraps on overflow; division and modulo by zero fault.
// A mixed INTEGER/FLOAT pair widens to FLOAT, and FLOAT follows IEEE 754.
// ADD also concatenates two STRINGs. AND and OR take BOOLEANs only.
func arith(o opcode.Operator, a, b value.Value) (value.Value, error) {
	switch o {
	case opcode.And, opcode.Or:
		x, errA := a.AsBool()
		y, errB := b.AsBool()
		if errA != nil || errB != nil {
			return value.Value{}, operandMismatch(o, a, b)
		}
		if o == opcode.And {
			return value.Bool(x && y), nil
		}
		return value.Bool(x || y), nil
	}

	if a.Type() == value.TypeString && b.Type() == value.TypeString && o == opcode.Add {
		x, _ := a.AsString()
		y, _ := b.AsString()
		return value.Str(x + y), nil
	}

	if !a.Type().IsNumeric() || !b.Type().IsNumeric() {
		return value.Value{}, operandMismatch(o, a, b)
	}

	if a.Type() == value.TypeInt && b.Type() == value.TypeInt {
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		return intArith(o, x, y)
	}

	x, y := widen(a), widen(b)
	switch o {
	case opcode.Add:
		return value.Float(x + y), nil
	case opcode.Sub:
		return value.Float(x - y), nil
	case opcode.Mul:
		return value.Float(x * y), nil
	case opcode.Div:
		return value.Float(x / y), nil
	case opcode.Mod:
		return value.Float(math.Mod(x, y)), nil
	}
	return value.Value{}, fault.New(fault.MalformedStream, "%s is not an arithmetic operator", o)
}

func intArith(o opcode.Operator, x, y int64) (value.Value, error) {
	switch o {
	case opcode.Add:
		return value.Int(x + y), nil
	case opcode.Sub:
		return value.Int(x - y), nil
	case opcode.Mul:
		return value.Int(x * y), nil
	case opcode.Div:
		if y == 0 {
			return value.Value{}, fault.New(fault.DivisionByZero, "integer division of %d by zero", x)
		}
		return value.Int(x / y), nil
	case opcode.Mod:
		if y == 0 {
			return value.Value{}, fault.New(fault.DivisionByZero, "integer modulo of %d by zero", x)
		}
		return value.Int(x % y), nil
	}
	return value.Value{}, fault.New(fault.MalformedStream, "%s is not an arithmetic operator", o)
}

// compare applies a COMPARE operator. EQ and NE work on any pair with a
// shared tag (or two numbers); the ordering operators need numbers or
// strings.
func compare(o opcode.Operator, a, b value.Value) (bool, error) {
	switch o {
	case opcode.Eq, opcode.Ne:
		eq, err := value.Equal(a, b)
		if err != nil {
			return false, err
		}
		return eq == (o == opcode.Eq), nil
	}

	// NaN is unordered: every ordering test against it is false.
	if isNaN(a) || isNaN(b) {
		if !a.Type().IsNumeric() || !b.Type().IsNumeric() {
			return false, operandMismatch(o, a, b)
		}
		return false, nil
	}

	c, err := value.Compare(a, b)
	if err != nil {
		return false, err
	}
	switch o {
	case opcode.Lt:
		return c < 0, nil
	case opcode.Le:
		return c <= 0, nil
	case opcode.Gt:
		return c > 0, nil
	case opcode.Ge:
		return c >= 0, nil
	}
	return false, fault.New(fault.MalformedStream, "%s is not a comparison operator", o)
}

// unary applies NEG to a number or NOT to a BOOLEAN.
func unary(o opcode.Operator, a value.Value) (value.Value, error) {
	switch o {
	case opcode.Neg:
		switch a.Type() {
		case value.TypeInt:
			x, _ := a.AsInt()
			return value.Int(-x), nil
		case value.TypeFloat:
			x, _ := a.AsFloat()
			return value.Float(-x), nil
		}
		return value.Value{}, fault.New(fault.TypeMismatch, "NEG needs a number, got %s", a.Type())
	case opcode.Not:
		x, err := a.AsBool()
		if err != nil {
			return value.Value{}, fault.New(fault.TypeMismatch, "NOT needs BOOLEAN, got %s", a.Type())
		}
		return value.Bool(!x), nil
	}
	return value.Value{}, fault.New(fault.MalformedStream, "%s is not a unary operator", o)
}

func widen(v value.Value) float64 {
	if f, err := v.AsFloat(); err == nil {
		return f
	}
	i, _ := v.AsInt()
	return float64(i)
}

func isNaN(v value.Value) bool {
	f, err := v.AsFloat()
	return err == nil && math.IsNaN(f)
}

func operandMismatch(o opcode.Operator, a, b value.Value) error {
	return fault.New(fault.TypeMismatch, "%s cannot take %s and %s", o, a.Type(), b.Type())
}
