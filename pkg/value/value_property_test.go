package value

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
)

// genValue generates a Value of any tag.
func genValue() gopter.Gen {
	return gen.OneGenOf(
		gen.Const(Void()),
		gen.Int64().Map(func(i int64) Value { return Int(i) }),
		gen.Float64().Map(func(f float64) Value { return Float(f) }),
		gen.Bool().Map(func(b bool) Value { return Bool(b) }),
		gen.AnyString().Map(func(s string) Value { return Str(s) }),
		gen.UInt64().Map(func(h uint64) Value { return Object(Handle(h)) }),
		gen.IntRange(int(TypeDroid), int(TypePlayer)).FlatMap(func(t interface{}) gopter.Gen {
			return gen.UInt64().Map(func(h uint64) Value {
				return MustHandle(Type(t.(int)), Handle(h))
			})
		}, nil),
	)
}

// read reads the payload of v under tag t.
func read(v Value, t Type) error {
	var err error
	switch {
	case t == TypeInt:
		_, err = v.AsInt()
	case t == TypeFloat:
		_, err = v.AsFloat()
	case t == TypeBool:
		_, err = v.AsBool()
	case t == TypeString:
		_, err = v.AsString()
	case t.IsHandle():
		_, err = v.AsHandle(t)
	case t == TypeVoid:
		if v.Type() != TypeVoid {
			err = fault.New(fault.TypeMismatch, "not void")
		}
	}
	return err
}

// TestProperty_ReadUnderOwnTag verifies that reading a value under its own
// tag never fails and reading under any other tag fails with TYPE_MISMATCH.
func TestProperty_ReadUnderOwnTag(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("own tag never fails", prop.ForAll(
		func(v Value) bool {
			return read(v, v.Type()) == nil
		},
		genValue(),
	))

	properties.Property("other tags fail with TYPE_MISMATCH", prop.ForAll(
		func(v Value) bool {
			for _, other := range Types() {
				if other == v.Type() {
					continue
				}
				// OBJECT deliberately accepts every handle kind.
				if other == TypeObject && v.Type().IsHandle() {
					continue
				}
				err := read(v, other)
				if !errors.Is(err, fault.ErrTypeMismatch) {
					return false
				}
			}
			return true
		},
		genValue(),
	))

	properties.TestingRun(t)
}

// TestProperty_NumericCoercion verifies the INTEGER/FLOAT coercion rules.
func TestProperty_NumericCoercion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("int to float to int round-trips in the exact range", prop.ForAll(
		func(i int64) bool {
			f, err := Convert(Int(i), TypeFloat)
			if err != nil {
				return false
			}
			back, err := Convert(f, TypeInt)
			if err != nil {
				return false
			}
			got, _ := back.AsInt()
			return got == i
		},
		gen.Int64Range(-(1<<53), 1<<53),
	))

	properties.Property("float to int truncates toward zero", prop.ForAll(
		func(f float64) bool {
			v, err := Convert(Float(f), TypeInt)
			if err != nil {
				return false
			}
			got, _ := v.AsInt()
			return got == int64(math.Trunc(f))
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("mixed equality widens the integer", prop.ForAll(
		func(i int64) bool {
			eq, err := Equal(Int(i), Float(float64(i)))
			return err == nil && eq
		},
		gen.Int64Range(-(1<<53), 1<<53),
	))

	properties.Property("compare is antisymmetric", prop.ForAll(
		func(a, b int64) bool {
			x, err1 := Compare(Int(a), Int(b))
			y, err2 := Compare(Int(b), Int(a))
			return err1 == nil && err2 == nil && x == -y
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
