// Package engine schedules many script instances against one host.
//
// Every tick each READY or SUSPENDED instance runs for at most the
// configured instruction budget, in spawn order. Instances share the
// host's function and variable tables, which are sealed when the Engine is
// created. A fault in one instance is reported and never affects the
// others.
//
// An Engine is not safe for concurrent use; the host loop owns it.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/dispatch"
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

// DefaultBudget is the per-instance instruction budget of one tick.
const DefaultBudget = 10000

// ErrUnknownInstance is returned for an ID the engine does not hold.
var ErrUnknownInstance = errors.New("unknown instance")

// ID identifies a spawned instance. IDs are never reused.
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// FaultReport describes one instance that faulted during a tick.
type FaultReport struct {
	ID      ID
	Program string
	Pos     int
	Kind    fault.Kind
	Err     error
}

// TickReport summarizes one Tick.
type TickReport struct {
	Tick     uint64
	Ran      int // instances given a slice
	Steps    int // instructions executed over all instances
	Finished []ID
	Faults   []FaultReport
}

// Engine is the cooperative scheduler.
type Engine struct {
	funcs *dispatch.FunctionTable
	vars  *dispatch.VariableTable

	instances *orderedmap.OrderedMap[ID, *vm.Instance]
	nextID    ID
	ticks     uint64

	// Configuration
	budget     int
	vmOpts     []vm.Option
	onFault    func(FaultReport)
	registerer prometheus.Registerer
	metrics    *metrics
	log        *slog.Logger
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithBudget sets the per-instance instruction budget of one tick.
func WithBudget(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.budget = n
		}
	}
}

// WithInstanceOptions sets options applied to every spawned instance.
func WithInstanceOptions(opts ...vm.Option) Option {
	return func(e *Engine) {
		e.vmOpts = append(e.vmOpts, opts...)
	}
}

// WithOnFault installs a hook called for every fault, after it is logged.
func WithOnFault(fn func(FaultReport)) Option {
	return func(e *Engine) {
		e.onFault = fn
	}
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// New creates an Engine over the host tables and seals them. Nil tables
// are replaced by empty ones.
func New(funcs *dispatch.FunctionTable, vars *dispatch.VariableTable, opts ...Option) (*Engine, error) {
	if funcs == nil {
		funcs = dispatch.NewFunctionTable()
	}
	if vars == nil {
		vars = dispatch.NewVariableTable()
	}

	e := &Engine{
		funcs:     funcs,
		vars:      vars,
		instances: orderedmap.NewOrderedMap[ID, *vm.Instance](),
		nextID:    1,
		budget:    DefaultBudget,
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.metrics = newMetrics()
	if e.registerer != nil {
		if err := e.metrics.register(e.registerer); err != nil {
			return nil, fmt.Errorf("failed to register engine metrics: %w", err)
		}
	}

	funcs.Seal()
	vars.Seal()

	e.log.Info("Engine created", "functions", funcs.Len(), "variables", vars.Len(), "budget", e.budget)
	return e, nil
}

// Names returns the name view of the host tables.
func (e *Engine) Names() dispatch.Names {
	return dispatch.Names{Funcs: e.funcs, Vars: e.vars}
}

// Budget returns the per-instance instruction budget.
func (e *Engine) Budget() int {
	return e.budget
}

// Spawn validates prog and adds a READY instance of it. A stream that does
// not decode end to end is rejected with MALFORMED_STREAM.
func (e *Engine) Spawn(prog *codec.Program, opts ...vm.Option) (ID, error) {
	if prog == nil {
		return 0, errors.New("nil program")
	}
	if _, _, err := codec.DecodeAll(prog); err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", prog.Name, err)
	}
	if prog.Entry < 0 || prog.Entry >= prog.Len() {
		return 0, fault.New(fault.MalformedStream, "%s: entry point %d outside stream of %d words", prog.Name, prog.Entry, prog.Len())
	}

	id := e.nextID
	e.nextID++

	all := make([]vm.Option, 0, len(e.vmOpts)+len(opts)+1)
	all = append(all, vm.WithLogger(e.log.With("id", id)))
	all = append(all, e.vmOpts...)
	all = append(all, opts...)

	e.instances.Set(id, vm.New(prog, e.funcs, e.vars, all...))
	e.log.Debug("Instance spawned", "id", id, "program", prog.Name, "words", prog.Len())
	return id, nil
}

// Instance returns the instance with the given ID.
func (e *Engine) Instance(id ID) (*vm.Instance, bool) {
	return e.instances.Get(id)
}

func (e *Engine) lookup(id ID) (*vm.Instance, error) {
	in, ok := e.instances.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	return in, nil
}

// Abort terminates an instance between instructions.
func (e *Engine) Abort(id ID) error {
	in, err := e.lookup(id)
	if err != nil {
		return err
	}
	return in.Abort()
}

// Restart returns an instance to READY at its entry point.
func (e *Engine) Restart(id ID) error {
	in, err := e.lookup(id)
	if err != nil {
		return err
	}
	return in.Restart()
}

// Remove drops an instance. Its ID is not reused.
func (e *Engine) Remove(id ID) error {
	if !e.instances.Delete(id) {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	e.log.Debug("Instance removed", "id", id)
	return nil
}

// IDs returns the instance IDs in scheduling order.
func (e *Engine) IDs() []ID {
	ids := make([]ID, 0, e.instances.Len())
	for el := e.instances.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Key)
	}
	return ids
}

// Len returns the number of instances held.
func (e *Engine) Len() int {
	return e.instances.Len()
}

// Ticks returns the number of ticks run so far.
func (e *Engine) Ticks() uint64 {
	return e.ticks
}

// Idle reports whether no instance can run.
func (e *Engine) Idle() bool {
	for el := e.instances.Front(); el != nil; el = el.Next() {
		if el.Value.State().Runnable() {
			return false
		}
	}
	return true
}

// Counts returns the number of instances in each state.
func (e *Engine) Counts() map[vm.State]int {
	counts := make(map[vm.State]int, len(vm.States()))
	for el := e.instances.Front(); el != nil; el = el.Next() {
		counts[el.Value.State()]++
	}
	return counts
}

// Tick gives every runnable instance one slice of the budget.
func (e *Engine) Tick() TickReport {
	e.ticks++
	report := TickReport{Tick: e.ticks}

	for el := e.instances.Front(); el != nil; el = el.Next() {
		id, in := el.Key, el.Value
		if !in.State().Runnable() {
			continue
		}

		n, err := in.Run(e.budget)
		report.Ran++
		report.Steps += n

		switch {
		case err != nil:
			fr := FaultReport{
				ID:      id,
				Program: in.Program().Name,
				Pos:     in.IP(),
				Kind:    fault.KindOf(err),
				Err:     err,
			}
			report.Faults = append(report.Faults, fr)
			e.reportFault(fr)
		case in.State() == vm.Terminated:
			report.Finished = append(report.Finished, id)
			e.log.Debug("Instance finished", "id", id, "steps", in.Steps())
		}
	}

	e.metrics.observe(report, e.Counts())
	return report
}

func (e *Engine) reportFault(fr FaultReport) {
	e.log.Warn("Instance faulted",
		"id", fr.ID,
		"program", fr.Program,
		"pos", fr.Pos,
		"kind", fr.Kind,
		"error", fr.Err,
	)
	if e.onFault != nil {
		e.onFault(fr)
	}
}
