package vm

import (
	"github.com/ccoveille/go-safecast"

	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// exec applies the effect of one decoded instruction. in.ip already points
// at the next instruction; jumps overwrite it. Operand counts are checked
// before the first pop, so an underflow never leaves a half-popped stack.
func (in *Instance) exec(ins codec.Instruction) error {
	switch ins.Op {
	case opcode.Nop:
		return nil

	case opcode.Push:
		return in.push(ins.Const)

	case opcode.Pop:
		if err := in.need(1); err != nil {
			return err
		}
		in.pop()
		return nil

	case opcode.LoadVar:
		v, err := in.vars.Get(ins.Arg(0), ins.Arg(1))
		if err != nil {
			return err
		}
		return in.push(v)

	case opcode.StoreVar:
		if err := in.need(1); err != nil {
			return err
		}
		return in.vars.Set(ins.Arg(0), ins.Arg(1), in.pop())

	case opcode.LoadVarX:
		if err := in.need(1); err != nil {
			return err
		}
		inst, err := instanceOf(in.pop())
		if err != nil {
			return err
		}
		v, err := in.vars.Get(ins.Arg(0), inst)
		if err != nil {
			return err
		}
		return in.push(v)

	case opcode.StoreVarX:
		// Stack: ..., value, instance
		if err := in.need(2); err != nil {
			return err
		}
		inst, err := instanceOf(in.pop())
		if err != nil {
			return err
		}
		return in.vars.Set(ins.Arg(0), inst, in.pop())

	case opcode.LoadLocal:
		locals := in.frames[len(in.frames)-1].locals
		slot := ins.Arg(0)
		if slot >= len(locals) {
			return fault.New(fault.MalformedStream, "local slot %d outside frame of %d", slot, len(locals))
		}
		return in.push(locals[slot])

	case opcode.StoreLocal:
		locals := in.frames[len(in.frames)-1].locals
		slot := ins.Arg(0)
		if slot >= len(locals) {
			return fault.New(fault.MalformedStream, "local slot %d outside frame of %d", slot, len(locals))
		}
		if err := in.need(1); err != nil {
			return err
		}
		locals[slot] = in.pop()
		return nil

	case opcode.Call:
		argc := ins.Count()
		if err := in.need(argc); err != nil {
			return err
		}
		// Arguments are handed over in call order; the callback owns the slice.
		args := make([]value.Value, argc)
		copy(args, in.stack[len(in.stack)-argc:])
		in.drop(argc)
		res, err := in.funcs.Invoke(ins.Arg(0), args)
		if err != nil {
			return err
		}
		return in.push(res)

	case opcode.CallScript:
		return in.callScript(ins)

	case opcode.Arith:
		if err := in.need(2); err != nil {
			return err
		}
		b, a := in.pop(), in.pop()
		res, err := arith(ins.Operator(), a, b)
		if err != nil {
			return err
		}
		return in.push(res)

	case opcode.Compare:
		if err := in.need(2); err != nil {
			return err
		}
		b, a := in.pop(), in.pop()
		res, err := compare(ins.Operator(), a, b)
		if err != nil {
			return err
		}
		return in.push(value.Bool(res))

	case opcode.Unary:
		if err := in.need(1); err != nil {
			return err
		}
		res, err := unary(ins.Operator(), in.pop())
		if err != nil {
			return err
		}
		return in.push(res)

	case opcode.Cast:
		if err := in.need(1); err != nil {
			return err
		}
		res, err := value.Convert(in.pop(), ins.TypeImm())
		if err != nil {
			return err
		}
		return in.push(res)

	case opcode.Jump:
		in.ip = ins.Arg(0)
		return nil

	case opcode.JumpFalse, opcode.JumpTrue:
		if err := in.need(1); err != nil {
			return err
		}
		cond := value.Truthy(in.pop())
		if cond == (ins.Op == opcode.JumpTrue) {
			in.ip = ins.Arg(0)
		}
		return nil

	case opcode.Return:
		return in.ret()

	case opcode.Yield:
		in.yieldReq = true
		return nil
	}

	// Decode only yields valid opcodes.
	return fault.New(fault.MalformedStream, "unhandled opcode %s", ins.Op)
}

// callScript enters a script-level function. The top argc values become
// the first locals of the new frame, in call order.
func (in *Instance) callScript(ins codec.Instruction) error {
	argc := ins.Count()
	nlocals := ins.Arg(1)
	if nlocals > MaxLocals {
		return fault.New(fault.MalformedStream, "CALLSCRIPT frame of %d locals exceeds maximum %d", nlocals, MaxLocals)
	}
	if argc > nlocals {
		return fault.New(fault.MalformedStream, "CALLSCRIPT passes %d arguments into %d locals", argc, nlocals)
	}
	if len(in.frames) > in.maxDepth {
		return fault.New(fault.StackOverflow, "call depth %d exceeds maximum %d", len(in.frames), in.maxDepth)
	}
	if err := in.need(argc); err != nil {
		return err
	}

	locals := make([]value.Value, nlocals)
	copy(locals, in.stack[len(in.stack)-argc:])
	in.drop(argc)

	in.frames = append(in.frames, frame{ret: in.ip, locals: locals})
	in.ip = ins.Arg(0)
	return nil
}

// ret leaves the innermost call level. At the outermost level the instance
// terminates and the evaluation stack is kept for the host to inspect.
func (in *Instance) ret() error {
	if len(in.frames) > 1 {
		top := in.frames[len(in.frames)-1]
		in.frames = in.frames[:len(in.frames)-1]
		in.ip = top.ret
		return nil
	}
	return in.fire(triggerReturn)
}

// instanceOf converts a popped INTEGER into a variable instance index.
func instanceOf(v value.Value) (int, error) {
	n, err := v.AsInt()
	if err != nil {
		return 0, err
	}
	inst, err := safecast.ToInt(n)
	if err != nil {
		return 0, fault.New(fault.InvalidInstance, "instance %d out of range", n)
	}
	return inst, nil
}
