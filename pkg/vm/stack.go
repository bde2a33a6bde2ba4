package vm

import (
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// need fails with STACK_UNDERFLOW unless n values are on the stack.
func (in *Instance) need(n int) error {
	if len(in.stack) < n {
		return fault.New(fault.StackUnderflow, "need %d values, stack holds %d", n, len(in.stack))
	}
	return nil
}

// push pushes v, failing with STACK_OVERFLOW at the configured limit.
func (in *Instance) push(v value.Value) error {
	if len(in.stack) >= in.maxStack {
		return fault.New(fault.StackOverflow, "evaluation stack exceeds %d values", in.maxStack)
	}
	in.stack = append(in.stack, v)
	return nil
}

// pop removes the top value. Callers check need first.
func (in *Instance) pop() value.Value {
	v := in.stack[len(in.stack)-1]
	in.stack[len(in.stack)-1] = value.Value{}
	in.stack = in.stack[:len(in.stack)-1]
	return v
}

// drop removes the top n values. Callers check need first.
func (in *Instance) drop(n int) {
	top := len(in.stack)
	clear(in.stack[top-n : top])
	in.stack = in.stack[:top-n]
}
