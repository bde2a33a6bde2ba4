package value

import (
	"cmp"
	"fmt"
	"math"
	"strconv"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
)

// Handle identifies a host object. The runtime never owns or frees the
// referent; 0 is the null reference.
type Handle uint64

// Null is the null object reference.
const Null Handle = 0

// Value is a tagged script value. The zero Value is VOID.
//
// bits holds the payload of every non-string kind: int64 and float64 bit
// patterns, 0/1 for booleans, the handle id for references.
type Value struct {
	typ  Type
	bits uint64
	str  string
}

// Void returns the VOID value.
func Void() Value { return Value{} }

// Int returns an INTEGER value.
func Int(i int64) Value { return Value{typ: TypeInt, bits: uint64(i)} }

// Float returns a FLOAT value.
func Float(f float64) Value { return Value{typ: TypeFloat, bits: math.Float64bits(f)} }

// Bool returns a BOOLEAN value.
func Bool(b bool) Value {
	if b {
		return Value{typ: TypeBool, bits: 1}
	}
	return Value{typ: TypeBool}
}

// Str returns a STRING value.
func Str(s string) Value { return Value{typ: TypeString, str: s} }

// Object returns an OBJECT reference.
func Object(h Handle) Value { return Value{typ: TypeObject, bits: uint64(h)} }

// NewHandle returns a reference of the given handle kind.
func NewHandle(t Type, h Handle) (Value, error) {
	if !t.IsHandle() {
		return Value{}, fault.New(fault.TypeMismatch, "%s is not a handle type", t)
	}
	return Value{typ: t, bits: uint64(h)}, nil
}

// MustHandle is like NewHandle but panics on a non-handle tag. It is meant
// for host setup code with constant tags.
func MustHandle(t Type, h Handle) Value {
	v, err := NewHandle(t, h)
	if err != nil {
		panic(err)
	}
	return v
}

// FromBits rebuilds a non-string value from its raw payload bits. It is the
// inverse of Bits and is used by the instruction codec.
func FromBits(t Type, bits uint64) (Value, error) {
	switch {
	case !t.Valid():
		return Value{}, fault.New(fault.MalformedStream, "invalid type tag %d", uint8(t))
	case t == TypeString:
		return Value{}, fault.New(fault.MalformedStream, "STRING payload cannot be built from bits")
	case t == TypeVoid && bits != 0:
		return Value{}, fault.New(fault.MalformedStream, "VOID payload must be zero, got %#x", bits)
	case t == TypeBool && bits > 1:
		return Value{}, fault.New(fault.MalformedStream, "BOOLEAN payload must be 0 or 1, got %#x", bits)
	}
	return Value{typ: t, bits: bits}, nil
}

// Type returns the tag of v.
func (v Value) Type() Type { return v.typ }

// Bits returns the raw payload of a non-string value.
func (v Value) Bits() uint64 { return v.bits }

func (v Value) mismatch(want Type) error {
	return fault.New(fault.TypeMismatch, "expected %s, got %s", want, v.typ)
}

// AsInt returns the payload of an INTEGER value.
func (v Value) AsInt() (int64, error) {
	if v.typ != TypeInt {
		return 0, v.mismatch(TypeInt)
	}
	return int64(v.bits), nil
}

// AsFloat returns the payload of a FLOAT value.
func (v Value) AsFloat() (float64, error) {
	if v.typ != TypeFloat {
		return 0, v.mismatch(TypeFloat)
	}
	return math.Float64frombits(v.bits), nil
}

// AsBool returns the payload of a BOOLEAN value.
func (v Value) AsBool() (bool, error) {
	if v.typ != TypeBool {
		return false, v.mismatch(TypeBool)
	}
	return v.bits != 0, nil
}

// AsString returns the payload of a STRING value.
func (v Value) AsString() (string, error) {
	if v.typ != TypeString {
		return "", v.mismatch(TypeString)
	}
	return v.str, nil
}

// AsHandle returns the payload of a reference tagged t. Passing TypeObject
// accepts any handle kind.
func (v Value) AsHandle(t Type) (Handle, error) {
	if !t.IsHandle() || !t.Accepts(v.typ) {
		return 0, v.mismatch(t)
	}
	return Handle(v.bits), nil
}

// IsNull reports whether v is a null reference.
func (v Value) IsNull() bool {
	return v.typ.IsHandle() && v.bits == 0
}

// Truthy applies the conditional-jump truthiness rule: numbers are true
// when nonzero, booleans as is, strings when non-empty, references when
// non-null. VOID is false.
func Truthy(v Value) bool {
	switch {
	case v.typ == TypeInt, v.typ == TypeBool:
		return v.bits != 0
	case v.typ == TypeFloat:
		return math.Float64frombits(v.bits) != 0
	case v.typ == TypeString:
		return v.str != ""
	case v.typ.IsHandle():
		return v.bits != 0
	default:
		return false
	}
}

// Convert performs an explicit conversion. INTEGER->FLOAT widens,
// FLOAT->INTEGER truncates toward zero and fails for NaN, infinities and
// values outside the int64 range. BOOLEAN->INTEGER yields 0 or 1.
// Converting to the value's own tag is the identity.
func Convert(v Value, to Type) (Value, error) {
	if v.typ == to {
		return v, nil
	}
	switch {
	case v.typ == TypeInt && to == TypeFloat:
		return Float(float64(int64(v.bits))), nil
	case v.typ == TypeFloat && to == TypeInt:
		f := math.Trunc(math.Float64frombits(v.bits))
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return Value{}, fault.New(fault.TypeMismatch, "FLOAT %v does not fit in INTEGER", f)
		}
		return Int(int64(f)), nil
	case v.typ == TypeBool && to == TypeInt:
		return Int(int64(v.bits)), nil
	}
	return Value{}, fault.New(fault.TypeMismatch, "cannot convert %s to %s", v.typ, to)
}

// numericPair widens an INTEGER/FLOAT pair to float64.
func numericPair(a, b Value) (float64, float64) {
	return toFloat(a), toFloat(b)
}

func toFloat(v Value) float64 {
	if v.typ == TypeInt {
		return float64(int64(v.bits))
	}
	return math.Float64frombits(v.bits)
}

// Equal compares two values. Values must share a tag, except INTEGER and
// FLOAT which compare after widening the INTEGER. References compare by
// identity; two references of different handle kinds are a mismatch.
func Equal(a, b Value) (bool, error) {
	if a.typ != b.typ {
		if a.typ.IsNumeric() && b.typ.IsNumeric() {
			x, y := numericPair(a, b)
			return x == y, nil
		}
		return false, fault.New(fault.TypeMismatch, "cannot compare %s with %s", a.typ, b.typ)
	}
	switch a.typ {
	case TypeFloat:
		return math.Float64frombits(a.bits) == math.Float64frombits(b.bits), nil
	case TypeString:
		return a.str == b.str, nil
	default:
		return a.bits == b.bits, nil
	}
}

// Compare orders two values, returning -1, 0 or +1. Ordering exists for
// numbers (mixed INTEGER/FLOAT widen to FLOAT, NaN sorts first) and for
// strings (byte-wise). Booleans, references and VOID have no ordering.
func Compare(a, b Value) (int, error) {
	switch {
	case a.typ == TypeInt && b.typ == TypeInt:
		return cmp.Compare(int64(a.bits), int64(b.bits)), nil
	case a.typ.IsNumeric() && b.typ.IsNumeric():
		x, y := numericPair(a, b)
		return cmp.Compare(x, y), nil
	case a.typ == TypeString && b.typ == TypeString:
		return cmp.Compare(a.str, b.str), nil
	}
	return 0, fault.New(fault.TypeMismatch, "no ordering between %s and %s", a.typ, b.typ)
}

// Literal renders the payload alone, the way listings spell it.
func (v Value) Literal() string {
	switch {
	case v.typ == TypeVoid:
		return "-"
	case v.typ == TypeInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case v.typ == TypeFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case v.typ == TypeBool:
		return strconv.FormatBool(v.bits != 0)
	case v.typ == TypeString:
		return strconv.Quote(v.str)
	case v.typ.IsHandle():
		if v.bits == 0 {
			return "null"
		}
		return fmt.Sprintf("@%d", v.bits)
	}
	return "?"
}

// String renders "TAG literal".
func (v Value) String() string {
	if v.typ == TypeVoid {
		return "VOID"
	}
	return v.typ.String() + " " + v.Literal()
}
