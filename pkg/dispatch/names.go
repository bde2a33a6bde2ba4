package dispatch

// Names resolves indices to descriptor names for introspection. Only the
// name field is ever read; callbacks are never touched.
type Names struct {
	Funcs *FunctionTable
	Vars  *VariableTable
}

// FunctionName returns the name bound to a function index.
func (n Names) FunctionName(index int) (string, bool) {
	if n.Funcs == nil {
		return "", false
	}
	return n.Funcs.Name(index)
}

// VariableName returns the name bound to a variable index.
func (n Names) VariableName(index int) (string, bool) {
	if n.Vars == nil {
		return "", false
	}
	return n.Vars.Name(index)
}

// FunctionIndex returns the index a function name is bound to.
func (n Names) FunctionIndex(name string) (int, bool) {
	if n.Funcs == nil {
		return 0, false
	}
	return n.Funcs.IndexOf(name)
}

// VariableIndex returns the index a variable name is bound to.
func (n Names) VariableIndex(name string) (int, bool) {
	if n.Vars == nil {
		return 0, false
	}
	return n.Vars.IndexOf(name)
}
