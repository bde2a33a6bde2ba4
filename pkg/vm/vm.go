// Package vm provides the execution engine for compiled scripts.
// It implements a cooperative, single-threaded execution model:
//   - One Instance per running script, each with its own evaluation stack,
//     call frames and local variables
//   - Instructions are decoded with codec.Decode, the same routine the
//     disassembler uses
//   - Host functions and variables are reached through the dispatch tables
//   - A per-call instruction budget; instances suspend between instructions
//     and never mid-instruction
package vm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/qmuntal/stateless"

	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// MaxStack is the default evaluation stack limit of one instance.
const MaxStack = 1024

// MaxDepth is the default limit of nested script-level calls.
const MaxDepth = 256

// MaxLocals is the largest local-variable frame a CALLSCRIPT may request.
const MaxLocals = 4096

// ErrNotRunnable is returned when stepping an instance that is terminated
// or faulted, or when a lifecycle operation is not allowed in the current
// state.
var ErrNotRunnable = errors.New("instance not runnable")

// FunctionInvoker calls host functions by index.
type FunctionInvoker interface {
	Invoke(index int, args []value.Value) (value.Value, error)
}

// VariableAccessor reads and writes host variables by index and instance.
type VariableAccessor interface {
	Get(index, instance int) (value.Value, error)
	Set(index, instance int, v value.Value) error
}

// TraceFunc observes every instruction right after it is decoded.
type TraceFunc func(pos int, ins codec.Instruction)

// frame is one call level.
type frame struct {
	ret    int // return address, unused for the outermost frame
	locals []value.Value
}

// Instance is one running occurrence of a compiled script.
type Instance struct {
	prog  *codec.Program
	funcs FunctionInvoker
	vars  VariableAccessor

	// Execution frame
	ip     int
	stack  []value.Value
	frames []frame

	lifecycle *stateless.StateMachine
	fault     *fault.Error
	yieldReq  bool
	steps     uint64

	// Configuration
	maxStack int
	maxDepth int
	trace    TraceFunc
	log      *slog.Logger
}

// Option is a functional option for configuring an Instance.
type Option func(*Instance)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(in *Instance) {
		in.log = log
	}
}

// WithMaxStack sets the evaluation stack limit.
func WithMaxStack(n int) Option {
	return func(in *Instance) {
		if n > 0 {
			in.maxStack = n
		}
	}
}

// WithMaxDepth sets the script call depth limit.
func WithMaxDepth(n int) Option {
	return func(in *Instance) {
		if n > 0 {
			in.maxDepth = n
		}
	}
}

// WithTrace installs an instruction observer. It runs for every decoded
// instruction, before the instruction takes effect.
func WithTrace(fn TraceFunc) Option {
	return func(in *Instance) {
		in.trace = fn
	}
}

// New creates a READY instance of prog. funcs and vars may be nil, in
// which case every CALL or variable access faults as unknown.
func New(prog *codec.Program, funcs FunctionInvoker, vars VariableAccessor, opts ...Option) *Instance {
	in := &Instance{
		prog:     prog,
		funcs:    funcs,
		vars:     vars,
		maxStack: MaxStack,
		maxDepth: MaxDepth,
		log:      logger.GetLogger(),
	}
	if in.funcs == nil {
		in.funcs = noFunctions{}
	}
	if in.vars == nil {
		in.vars = noVariables{}
	}

	for _, opt := range opts {
		opt(in)
	}

	in.lifecycle = newLifecycle(in.log.With("program", prog.Name))
	in.reset()
	return in
}

// reset puts the execution frame back at the entry point.
func (in *Instance) reset() {
	in.ip = in.prog.Entry
	in.stack = in.stack[:0]
	in.frames = append(in.frames[:0], frame{ret: -1, locals: make([]value.Value, max(in.prog.Locals, 0))})
	in.fault = nil
	in.yieldReq = false
	in.steps = 0
}

// State returns the current lifecycle state.
func (in *Instance) State() State {
	return in.lifecycle.MustState().(State)
}

func (in *Instance) fire(t trigger) error {
	if err := in.lifecycle.Fire(t); err != nil {
		return fmt.Errorf("%w: %s in state %s", ErrNotRunnable, t, in.State())
	}
	return nil
}

// Program returns the program the instance runs.
func (in *Instance) Program() *codec.Program {
	return in.prog
}

// Fault returns the error that faulted the instance, or nil.
func (in *Instance) Fault() *fault.Error {
	return in.fault
}

// IP returns the instruction pointer. After a fault it points at the
// failing instruction.
func (in *Instance) IP() int {
	return in.ip
}

// Depth returns the number of script-level calls above the outermost frame.
func (in *Instance) Depth() int {
	return len(in.frames) - 1
}

// Steps returns the number of instructions executed since the last reset.
func (in *Instance) Steps() uint64 {
	return in.steps
}

// Stack returns a copy of the evaluation stack, bottom first.
func (in *Instance) Stack() []value.Value {
	out := make([]value.Value, len(in.stack))
	copy(out, in.stack)
	return out
}

// Top returns the top of the evaluation stack.
func (in *Instance) Top() (value.Value, bool) {
	if len(in.stack) == 0 {
		return value.Value{}, false
	}
	return in.stack[len(in.stack)-1], true
}

// Locals returns a copy of the current frame's local variables.
func (in *Instance) Locals() []value.Value {
	cur := in.frames[len(in.frames)-1].locals
	out := make([]value.Value, len(cur))
	copy(out, cur)
	return out
}

// Step executes exactly one instruction. A READY or SUSPENDED instance
// becomes RUNNING first; executing YIELD leaves it SUSPENDED. On a decode
// or dispatch failure the instance becomes FAULTED and the positioned
// *fault.Error is returned.
func (in *Instance) Step() error {
	switch st := in.State(); st {
	case Ready, Suspended:
		if err := in.fire(triggerStep); err != nil {
			return err
		}
	case Running:
	default:
		return fmt.Errorf("%w: instance is %s", ErrNotRunnable, st)
	}

	pos := in.ip
	ins, next, err := codec.Decode(in.prog, pos)
	if err != nil {
		return in.raise(pos, err)
	}
	if in.trace != nil {
		in.trace(pos, ins)
	}

	in.ip = next
	in.steps++
	if err := in.exec(ins); err != nil {
		return in.raise(pos, err)
	}
	if in.yieldReq {
		in.yieldReq = false
		if in.State() == Running {
			return in.fire(triggerYield)
		}
	}
	return nil
}

// Run executes up to budget instructions. It stops early when the instance
// terminates, faults or executes YIELD. An instance still running when it
// stops is SUSPENDED. Run returns the number of instructions executed and
// the fault, if one occurred.
func (in *Instance) Run(budget int) (int, error) {
	if !in.State().Runnable() {
		return 0, fmt.Errorf("%w: instance is %s", ErrNotRunnable, in.State())
	}

	n := 0
	for n < budget {
		err := in.Step()
		n++
		if err != nil {
			return n, err
		}
		if in.State() != Running {
			break
		}
	}

	if in.State() == Running {
		if err := in.fire(triggerYield); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Abort stops a READY, RUNNING or SUSPENDED instance between instructions.
// It becomes TERMINATED; host state changed by earlier instructions stays.
func (in *Instance) Abort() error {
	if err := in.fire(triggerAbort); err != nil {
		return err
	}
	in.log.Debug("Instance aborted", "program", in.prog.Name, "ip", in.ip)
	return nil
}

// Restart returns a SUSPENDED, TERMINATED or FAULTED instance to READY at
// the entry point with an empty stack. Restarting a READY instance just
// resets it.
func (in *Instance) Restart() error {
	if err := in.fire(triggerRestart); err != nil {
		return err
	}
	in.reset()
	return nil
}

// raise faults the instance with err positioned at pos.
func (in *Instance) raise(pos int, err error) error {
	fe := fault.At(err, pos)
	in.fault = fe
	in.ip = pos
	if ferr := in.fire(triggerFault); ferr != nil {
		return errors.Join(fe, ferr)
	}
	in.log.Debug("Instance faulted", "program", in.prog.Name, "pos", pos, "kind", fe.Kind, "error", fe.Message)
	return fe
}

type noFunctions struct{}

func (noFunctions) Invoke(index int, _ []value.Value) (value.Value, error) {
	return value.Value{}, fault.New(fault.UnknownFunction, "function %d is not registered", index)
}

type noVariables struct{}

func (noVariables) Get(index, _ int) (value.Value, error) {
	return value.Value{}, fault.New(fault.UnknownVariable, "variable %d is not registered", index)
}

func (noVariables) Set(index, _ int, _ value.Value) error {
	return fault.New(fault.UnknownVariable, "variable %d is not registered", index)
}
