package dispatch

import (
	"fmt"
	"slices"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Getter reads a host variable at the given instance.
type Getter func(instance int) (value.Value, error)

// Setter writes a host variable at the given instance. The value tag has
// already been checked against the declared type.
type Setter func(instance int, v value.Value) error

// Variable describes a host variable.
type Variable struct {
	Name string
	Type value.Type
	// Instances is the size of the valid instance range [0, Instances).
	// Zero means a scalar variable, valid only at instance 0.
	Instances int
	Get       Getter
	// Set is nil for read-only variables.
	Set Setter
}

// ReadOnly reports whether the variable has no setter.
func (v *Variable) ReadOnly() bool {
	return v.Set == nil
}

func (v *Variable) checkInstance(instance int) error {
	n := v.Instances
	if n == 0 {
		n = 1
	}
	if instance < 0 || instance >= n {
		return fault.New(fault.InvalidInstance, "%s: instance %d outside [0, %d)", v.Name, instance, n)
	}
	return nil
}

// VariableTable maps indices to host variables.
type VariableTable struct {
	vars   map[int]*Variable
	byName map[string]int
	sealed bool
}

// NewVariableTable creates an empty, unsealed table.
func NewVariableTable() *VariableTable {
	return &VariableTable{
		vars:   make(map[int]*Variable),
		byName: make(map[string]int),
	}
}

// Register binds v to index.
func (t *VariableTable) Register(index int, v Variable) error {
	if t.sealed {
		return fault.New(fault.RegistryClosed, "cannot register variable %q: table is sealed", v.Name)
	}
	if index < 0 {
		return fault.New(fault.UnknownVariable, "variable %q: negative index %d", v.Name, index)
	}
	if prev, ok := t.vars[index]; ok {
		return fault.New(fault.DuplicateIndex, "variable index %d already bound to %q", index, prev.Name)
	}
	if v.Get == nil {
		return fmt.Errorf("variable %q: nil getter", v.Name)
	}
	if !v.Type.Valid() || v.Type == value.TypeVoid {
		return fmt.Errorf("variable %q: invalid type %s", v.Name, v.Type)
	}
	if v.Instances < 0 {
		return fmt.Errorf("variable %q: negative instance count %d", v.Name, v.Instances)
	}

	cp := v
	t.vars[index] = &cp
	if v.Name != "" {
		if _, taken := t.byName[v.Name]; !taken {
			t.byName[v.Name] = index
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (t *VariableTable) MustRegister(index int, v Variable) {
	if err := t.Register(index, v); err != nil {
		panic(err)
	}
}

// Seal makes the table read-only.
func (t *VariableTable) Seal() {
	t.sealed = true
}

// Sealed reports whether the table is read-only.
func (t *VariableTable) Sealed() bool {
	return t.sealed
}

// Lookup returns the variable bound to index.
func (t *VariableTable) Lookup(index int) (*Variable, error) {
	v, ok := t.vars[index]
	if !ok {
		return nil, fault.New(fault.UnknownVariable, "variable %d is not registered", index)
	}
	return v, nil
}

// Name returns the name of the variable bound to index.
func (t *VariableTable) Name(index int) (string, bool) {
	v, ok := t.vars[index]
	if !ok {
		return "", false
	}
	return v.Name, true
}

// IndexOf returns the index a variable name is bound to.
func (t *VariableTable) IndexOf(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Len returns the number of registered variables.
func (t *VariableTable) Len() int {
	return len(t.vars)
}

// Indices returns the bound indices in ascending order.
func (t *VariableTable) Indices() []int {
	out := make([]int, 0, len(t.vars))
	for i := range t.vars {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Get reads variable index at instance. It fails with UNKNOWN_VARIABLE,
// INVALID_INSTANCE, or TYPE_MISMATCH if the getter returns a value whose
// tag differs from the declared type.
func (t *VariableTable) Get(index, instance int) (value.Value, error) {
	v, err := t.Lookup(index)
	if err != nil {
		return value.Value{}, err
	}
	if err := v.checkInstance(instance); err != nil {
		return value.Value{}, err
	}
	res, err := v.Get(instance)
	if err != nil {
		return value.Value{}, fault.Wrap(err, "get %s[%d]", v.Name, instance)
	}
	if res.Type() != v.Type {
		return value.Value{}, fault.New(fault.TypeMismatch, "%s getter returned %s, declared %s", v.Name, res.Type(), v.Type)
	}
	return res, nil
}

// Set writes val to variable index at instance. It fails with
// UNKNOWN_VARIABLE, READ_ONLY_VARIABLE, TYPE_MISMATCH or INVALID_INSTANCE
// before the host setter is reached, so a failed Set never touches host
// state.
func (t *VariableTable) Set(index, instance int, val value.Value) error {
	v, err := t.Lookup(index)
	if err != nil {
		return err
	}
	if v.Set == nil {
		return fault.New(fault.ReadOnlyVariable, "%s is read-only", v.Name)
	}
	if val.Type() != v.Type {
		return fault.New(fault.TypeMismatch, "%s: expected %s, got %s", v.Name, v.Type, val.Type())
	}
	if err := v.checkInstance(instance); err != nil {
		return err
	}
	if err := v.Set(instance, val); err != nil {
		return fault.Wrap(err, "set %s[%d]", v.Name, instance)
	}
	return nil
}
