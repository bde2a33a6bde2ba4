package engine

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/dispatch"
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

func program(t *testing.T, name string, fn func(b *codec.Builder)) *codec.Program {
	t.Helper()
	b := codec.NewBuilder(name)
	fn(b)
	p, err := b.Program()
	require.NoError(t, err)
	return p
}

// spin loops forever.
func spin(t *testing.T) *codec.Program {
	return program(t, "spin", func(b *codec.Builder) {
		l := b.NewLabel("loop")
		b.Mark(l)
		b.JumpTo(opcode.Jump, l)
	})
}

// counter increments host variable 0 once per tick until it reaches n.
func counter(t *testing.T, n int64) *codec.Program {
	return program(t, "counter", func(b *codec.Builder) {
		loop := b.NewLabel("loop")
		done := b.NewLabel("done")
		b.Mark(loop)
		b.Load(0, 0)
		b.PushInt(n)
		b.Emit(codec.Compare(opcode.Ge))
		b.JumpTo(opcode.JumpTrue, done)
		b.Load(0, 0)
		b.PushInt(1)
		b.Emit(codec.Arith(opcode.Add))
		b.Store(0, 0)
		b.Emit(codec.Yield())
		b.JumpTo(opcode.Jump, loop)
		b.Mark(done)
		b.Emit(codec.Return())
	})
}

func divByZero(t *testing.T) *codec.Program {
	return program(t, "div", func(b *codec.Builder) {
		b.PushInt(1)
		b.PushInt(0)
		b.Emit(codec.Arith(opcode.Div))
		b.Emit(codec.Return())
	})
}

func quietEngine(t *testing.T, funcs *dispatch.FunctionTable, vars *dispatch.VariableTable, opts ...Option) *Engine {
	t.Helper()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	e, err := New(funcs, vars, append([]Option{WithLogger(log)}, opts...)...)
	require.NoError(t, err)
	return e
}

func counterVars(cell *int64) *dispatch.VariableTable {
	vt := dispatch.NewVariableTable()
	vt.MustRegister(0, dispatch.Variable{
		Name: "count",
		Type: value.TypeInt,
		Get: func(int) (value.Value, error) {
			return value.Int(*cell), nil
		},
		Set: func(_ int, v value.Value) error {
			*cell, _ = v.AsInt()
			return nil
		},
	})
	return vt
}

func TestNew_SealsTables(t *testing.T) {
	funcs := dispatch.NewFunctionTable()
	vars := dispatch.NewVariableTable()
	quietEngine(t, funcs, vars)

	assert.True(t, funcs.Sealed())
	assert.True(t, vars.Sealed())

	err := funcs.Register(0, dispatch.Function{
		Name: "late",
		Call: func([]value.Value) (value.Value, error) { return value.Void(), nil },
	})
	assert.ErrorIs(t, err, fault.ErrRegistryClosed)
}

func TestSpawn(t *testing.T) {
	e := quietEngine(t, nil, nil)

	a, err := e.Spawn(spin(t))
	require.NoError(t, err)
	b, err := e.Spawn(spin(t))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, []ID{a, b}, e.IDs())
	assert.Equal(t, 2, e.Len())

	in, ok := e.Instance(a)
	require.True(t, ok)
	assert.Equal(t, vm.Ready, in.State())

	t.Run("rejects malformed streams", func(t *testing.T) {
		_, err := e.Spawn(&codec.Program{Name: "junk", Code: []codec.Word{0xEE << 24}})
		assert.ErrorIs(t, err, fault.ErrMalformedStream)

		_, err = e.Spawn(&codec.Program{Name: "empty"})
		assert.ErrorIs(t, err, fault.ErrMalformedStream)

		_, err = e.Spawn(nil)
		assert.Error(t, err)
		assert.Equal(t, 2, e.Len())
	})
}

func TestTick_Budget(t *testing.T) {
	e := quietEngine(t, nil, nil, WithBudget(50))
	a, _ := e.Spawn(spin(t))
	b, _ := e.Spawn(spin(t))

	r := e.Tick()
	assert.Equal(t, uint64(1), r.Tick)
	assert.Equal(t, 2, r.Ran)
	assert.Equal(t, 100, r.Steps)
	assert.Empty(t, r.Faults)

	for _, id := range []ID{a, b} {
		in, _ := e.Instance(id)
		assert.Equal(t, vm.Suspended, in.State())
		assert.Equal(t, uint64(50), in.Steps())
	}
	assert.False(t, e.Idle())
}

func TestTick_Yield(t *testing.T) {
	var count int64
	e := quietEngine(t, nil, counterVars(&count))
	id, err := e.Spawn(counter(t, 3))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		r := e.Tick()
		assert.Empty(t, r.Finished)
		assert.Equal(t, int64(i), count, "one increment per tick")
	}

	r := e.Tick()
	assert.Equal(t, []ID{id}, r.Finished)
	assert.True(t, e.Idle())

	r = e.Tick()
	assert.Zero(t, r.Ran)
}

func TestTick_FaultIsolation(t *testing.T) {
	var count int64
	var hooked []FaultReport
	e := quietEngine(t, nil, counterVars(&count), WithOnFault(func(fr FaultReport) {
		hooked = append(hooked, fr)
	}))

	bad, _ := e.Spawn(divByZero(t))
	good, _ := e.Spawn(counter(t, 2))

	r := e.Tick()
	require.Len(t, r.Faults, 1)
	fr := r.Faults[0]
	assert.Equal(t, bad, fr.ID)
	assert.Equal(t, "div", fr.Program)
	assert.Equal(t, 6, fr.Pos)
	assert.Equal(t, fault.DivisionByZero, fr.Kind)
	assert.Equal(t, r.Faults, hooked)

	in, _ := e.Instance(bad)
	assert.Equal(t, vm.Faulted, in.State())

	in, _ = e.Instance(good)
	assert.Equal(t, vm.Suspended, in.State())
	assert.Equal(t, int64(1), count)

	e.Tick()
	e.Tick()
	assert.Equal(t, vm.Terminated, in.State())
	assert.Len(t, hooked, 1, "faulted instance is not run again")
}

func TestLifecycleByID(t *testing.T) {
	e := quietEngine(t, nil, nil)
	id, _ := e.Spawn(spin(t))
	e.Tick()

	require.NoError(t, e.Abort(id))
	in, _ := e.Instance(id)
	assert.Equal(t, vm.Terminated, in.State())
	assert.True(t, e.Idle())

	require.NoError(t, e.Restart(id))
	assert.Equal(t, vm.Ready, in.State())
	assert.False(t, e.Idle())

	require.NoError(t, e.Remove(id))
	assert.Zero(t, e.Len())

	assert.ErrorIs(t, e.Abort(id), ErrUnknownInstance)
	assert.ErrorIs(t, e.Restart(id), ErrUnknownInstance)
	assert.ErrorIs(t, e.Remove(id), ErrUnknownInstance)

	next, _ := e.Spawn(spin(t))
	assert.Greater(t, next, id, "IDs are not reused")
}

func TestCounts(t *testing.T) {
	e := quietEngine(t, nil, nil)
	e.Spawn(spin(t))
	e.Spawn(divByZero(t))
	e.Spawn(spin(t))
	e.Tick()

	counts := e.Counts()
	assert.Equal(t, 2, counts[vm.Suspended])
	assert.Equal(t, 1, counts[vm.Faulted])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := quietEngine(t, nil, nil, WithRegisterer(reg), WithBudget(10))
	e.Spawn(spin(t))
	e.Spawn(divByZero(t))

	e.Tick()
	e.Tick()

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	require.Contains(t, byName, "wzscript_engine_ticks_total")
	assert.Equal(t, 2.0, byName["wzscript_engine_ticks_total"].GetMetric()[0].GetCounter().GetValue())

	// 10 + 3 in the first tick, 10 in the second
	assert.Equal(t, 23.0, byName["wzscript_engine_instructions_total"].GetMetric()[0].GetCounter().GetValue())

	faults := byName["wzscript_engine_faults_total"].GetMetric()
	require.Len(t, faults, 1)
	assert.Equal(t, string(fault.DivisionByZero), faults[0].GetLabel()[0].GetValue())
	assert.Equal(t, 1.0, faults[0].GetCounter().GetValue())

	states := map[string]float64{}
	for _, m := range byName["wzscript_engine_instances"].GetMetric() {
		states[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
	}
	assert.Equal(t, 1.0, states["SUSPENDED"])
	assert.Equal(t, 1.0, states["FAULTED"])
	assert.Equal(t, 0.0, states["READY"])

	t.Run("second engine on the same registry fails", func(t *testing.T) {
		_, err := New(nil, nil, WithRegisterer(reg))
		assert.Error(t, err)
	})
}

func TestWithInstanceOptions(t *testing.T) {
	var seen int
	e := quietEngine(t, nil, nil, WithBudget(5), WithInstanceOptions(vm.WithTrace(func(int, codec.Instruction) {
		seen++
	})))
	e.Spawn(spin(t))
	e.Spawn(spin(t))
	e.Tick()
	assert.Equal(t, 10, seen)
}
