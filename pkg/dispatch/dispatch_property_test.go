package dispatch

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// TestProperty_SetThenGet verifies that set followed by get on the same
// (index, instance) returns the value just set.
func TestProperty_SetThenGet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("get returns the value just set", prop.ForAll(
		func(instance int, n int64) bool {
			s := &store{power: make([]int64, 8)}
			vt := newStoreTable(s)
			vt.Seal()

			if err := vt.Set(0, instance, value.Int(n)); err != nil {
				return false
			}
			got, err := vt.Get(0, instance)
			return err == nil && got == value.Int(n)
		},
		gen.IntRange(0, 7),
		gen.Int64(),
	))

	properties.Property("read-only set fails and leaves host state unchanged", prop.ForAll(
		func(before, attempt int64) bool {
			s := &store{power: make([]int64, 1), time: before}
			vt := newStoreTable(s)
			vt.Seal()

			err := vt.Set(5, 0, value.Int(attempt))
			if !errors.Is(err, fault.ErrReadOnlyVariable) {
				return false
			}
			got, err := vt.Get(5, 0)
			return err == nil && got == value.Int(before) && s.time == before
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestProperty_InvokeArity verifies that any argument count other than
// the declared arity fails with ARITY_MISMATCH and that a correct call is
// tagged as declared.
func TestProperty_InvokeArity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	ft := NewFunctionTable()
	ft.MustRegister(2, addFunction())
	ft.Seal()

	properties.Property("wrong argument count fails", prop.ForAll(
		func(args []int64) bool {
			vals := make([]value.Value, len(args))
			for i, a := range args {
				vals[i] = value.Int(a)
			}
			_, err := ft.Invoke(2, vals)
			if len(args) == 2 {
				return err == nil
			}
			return errors.Is(err, fault.ErrArityMismatch)
		},
		gen.SliceOf(gen.Int64()),
	))

	properties.Property("result is tagged as declared", prop.ForAll(
		func(a, b int64) bool {
			got, err := ft.Invoke(2, []value.Value{value.Int(a), value.Int(b)})
			return err == nil && got.Type() == value.TypeInt
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
