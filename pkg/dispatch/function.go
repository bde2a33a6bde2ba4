// Package dispatch binds instruction operands to host behavior: the
// function table maps CALL indices to host callbacks, the variable table
// maps LOADVAR/STOREVAR indices to host getters and setters.
//
// Tables are filled once while the host sets up, then sealed. A sealed
// table is never written again, so the VM and the disassembler read it
// without locks.
package dispatch

import (
	"fmt"
	"slices"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Callback is the signature of every host function. args has exactly the
// declared arity and every tag has already been checked.
type Callback func(args []value.Value) (value.Value, error)

// Function describes a host function.
type Function struct {
	Name    string
	Params  []value.Type
	Returns value.Type
	Call    Callback
}

// Arity returns the number of parameters.
func (f *Function) Arity() int {
	return len(f.Params)
}

// Signature renders the function as "name(INTEGER, DROID) VOID".
func (f *Function) Signature() string {
	s := f.Name + "("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	return s + ") " + f.Returns.String()
}

// FunctionTable maps indices to host functions.
type FunctionTable struct {
	funcs  map[int]*Function
	byName map[string]int
	sealed bool
}

// NewFunctionTable creates an empty, unsealed table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{
		funcs:  make(map[int]*Function),
		byName: make(map[string]int),
	}
}

// Register binds fn to index. It fails with DUPLICATE_INDEX when index is
// already bound and with REGISTRY_CLOSED once the table is sealed.
func (t *FunctionTable) Register(index int, fn Function) error {
	if t.sealed {
		return fault.New(fault.RegistryClosed, "cannot register function %q: table is sealed", fn.Name)
	}
	if index < 0 {
		return fault.New(fault.UnknownFunction, "function %q: negative index %d", fn.Name, index)
	}
	if prev, ok := t.funcs[index]; ok {
		return fault.New(fault.DuplicateIndex, "function index %d already bound to %q", index, prev.Name)
	}
	if fn.Call == nil {
		return fmt.Errorf("function %q: nil callback", fn.Name)
	}
	if !fn.Returns.Valid() {
		return fmt.Errorf("function %q: invalid return type %d", fn.Name, uint8(fn.Returns))
	}
	for i, p := range fn.Params {
		if !p.Valid() || p == value.TypeVoid {
			return fmt.Errorf("function %q: invalid parameter %d type %s", fn.Name, i, p)
		}
	}

	f := fn
	f.Params = slices.Clone(fn.Params)
	t.funcs[index] = &f
	if fn.Name != "" {
		if _, taken := t.byName[fn.Name]; !taken {
			t.byName[fn.Name] = index
		}
	}
	return nil
}

// MustRegister is like Register but panics on error. Setup errors are
// fatal; this is for hosts that register constant tables.
func (t *FunctionTable) MustRegister(index int, fn Function) {
	if err := t.Register(index, fn); err != nil {
		panic(err)
	}
}

// Seal makes the table read-only.
func (t *FunctionTable) Seal() {
	t.sealed = true
}

// Sealed reports whether the table is read-only.
func (t *FunctionTable) Sealed() bool {
	return t.sealed
}

// Lookup returns the function bound to index.
func (t *FunctionTable) Lookup(index int) (*Function, error) {
	f, ok := t.funcs[index]
	if !ok {
		return nil, fault.New(fault.UnknownFunction, "function %d is not registered", index)
	}
	return f, nil
}

// Name returns the name of the function bound to index.
func (t *FunctionTable) Name(index int) (string, bool) {
	f, ok := t.funcs[index]
	if !ok {
		return "", false
	}
	return f.Name, true
}

// IndexOf returns the index a function name is bound to.
func (t *FunctionTable) IndexOf(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Len returns the number of registered functions.
func (t *FunctionTable) Len() int {
	return len(t.funcs)
}

// Indices returns the bound indices in ascending order.
func (t *FunctionTable) Indices() []int {
	out := make([]int, 0, len(t.funcs))
	for i := range t.funcs {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Invoke calls the function bound to index. It fails with
// UNKNOWN_FUNCTION, ARITY_MISMATCH, or TYPE_MISMATCH when an argument tag
// is not accepted by its parameter or the callback returns a value whose
// tag differs from the declared return tag. Callback errors without a
// runtime kind are reported as HOST_FAILURE.
func (t *FunctionTable) Invoke(index int, args []value.Value) (value.Value, error) {
	f, err := t.Lookup(index)
	if err != nil {
		return value.Value{}, err
	}
	if len(args) != len(f.Params) {
		return value.Value{}, fault.New(fault.ArityMismatch, "%s expects %d arguments, got %d", f.Name, len(f.Params), len(args))
	}
	for i, p := range f.Params {
		if !p.Accepts(args[i].Type()) {
			return value.Value{}, fault.New(fault.TypeMismatch, "%s argument %d: expected %s, got %s", f.Name, i+1, p, args[i].Type())
		}
	}

	res, err := f.Call(args)
	if err != nil {
		return value.Value{}, fault.Wrap(err, "%s", f.Name)
	}
	if res.Type() != f.Returns {
		return value.Value{}, fault.New(fault.TypeMismatch, "%s returned %s, declared %s", f.Name, res.Type(), f.Returns)
	}
	return res, nil
}
