package host

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Warzone2100/warzone2100-sub038/pkg/asm"
	"github.com/Warzone2100/warzone2100-sub038/pkg/dispatch"
	"github.com/Warzone2100/warzone2100-sub038/pkg/engine"
	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func boundWorld(t *testing.T, opts ...Option) (*World, *dispatch.FunctionTable, *dispatch.VariableTable) {
	t.Helper()
	w := NewWorld(append([]Option{WithLogger(quiet())}, opts...)...)
	funcs, vars, err := w.Tables()
	require.NoError(t, err)
	return w, funcs, vars
}

func TestNewWorld(t *testing.T) {
	w := NewWorld(WithPlayers(2), WithPlayers(0))
	assert.Equal(t, 2, w.Players())
	assert.Equal(t, int64(DefaultPower), w.Power(1))
	assert.Equal(t, int64(0), w.Power(2))
	assert.Empty(t, w.Droids())

	w.Advance(1500 * time.Millisecond)
	w.Advance(-time.Second)
	assert.Equal(t, 1500*time.Millisecond, w.GameTime())
}

func TestBind_Twice(t *testing.T) {
	w, funcs, vars := boundWorld(t)
	err := w.Bind(funcs, vars)
	assert.True(t, fault.IsKind(err, fault.DuplicateIndex), "got %v", err)
}

func TestFunctions(t *testing.T) {
	w, funcs, _ := boundWorld(t, WithPlayers(2))

	v, err := funcs.Invoke(FnAddDroid, []value.Value{value.Int(1), value.Str("tank"), value.Int(3), value.Int(4)})
	require.NoError(t, err)
	a, err := v.AsHandle(value.TypeDroid)
	require.NoError(t, err)

	v, err = funcs.Invoke(FnAddDroid, []value.Value{value.Int(1), value.Str("truck"), value.Int(0), value.Int(0)})
	require.NoError(t, err)
	b, _ := v.AsHandle(value.TypeDroid)

	v, err = funcs.Invoke(FnDistance, []value.Value{value.MustHandle(value.TypeDroid, a), value.MustHandle(value.TypeDroid, b)})
	require.NoError(t, err)
	assert.Equal(t, value.Float(5), v)

	v, err = funcs.Invoke(FnDroidCount, []value.Value{value.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)

	v, err = funcs.Invoke(FnDroidPlayer, []value.Value{value.MustHandle(value.TypeDroid, a)})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)

	v, err = funcs.Invoke(FnDestroyDroid, []value.Value{value.MustHandle(value.TypeDroid, a)})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), v)
	v, err = funcs.Invoke(FnDestroyDroid, []value.Value{value.MustHandle(value.TypeDroid, a)})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), v)

	assert.Equal(t, []Droid{{Handle: b, Player: 1, Name: "truck"}}, w.Droids())

	v, err = funcs.Invoke(FnStr, []value.Value{value.Int(-42)})
	require.NoError(t, err)
	assert.Equal(t, value.Str("-42"), v)

	_, err = funcs.Invoke(FnDebug, []value.Value{value.Str("hello")})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, w.Messages())
}

func TestFunctions_HostErrors(t *testing.T) {
	_, funcs, _ := boundWorld(t, WithPlayers(2))
	tests := []struct {
		name  string
		index int
		args  []value.Value
	}{
		{"random zero", FnRandom, []value.Value{value.Int(0)}},
		{"addDroid unknown player", FnAddDroid, []value.Value{value.Int(2), value.Str("x"), value.Int(0), value.Int(0)}},
		{"droidPlayer null", FnDroidPlayer, []value.Value{value.MustHandle(value.TypeDroid, value.Null)}},
		{"distance missing", FnDistance, []value.Value{value.MustHandle(value.TypeDroid, 7), value.MustHandle(value.TypeDroid, 8)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := funcs.Invoke(tt.index, tt.args)
			assert.True(t, fault.IsKind(err, fault.HostFailure), "got %v", err)
		})
	}
}

func TestRandom_Seeded(t *testing.T) {
	roll := func() []value.Value {
		_, funcs, _ := boundWorld(t, WithSeed(42))
		var out []value.Value
		for range 20 {
			v, err := funcs.Invoke(FnRandom, []value.Value{value.Int(6)})
			require.NoError(t, err)
			n, _ := v.AsInt()
			require.True(t, n >= 0 && n < 6, "out of range: %d", n)
			out = append(out, v)
		}
		return out
	}
	assert.Equal(t, roll(), roll())
}

func TestVariables(t *testing.T) {
	w, _, vars := boundWorld(t, WithPlayers(3))
	w.Advance(2 * time.Second)

	v, err := vars.Get(VarGameTime, 0)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2000), v)

	v, err = vars.Get(VarPlayerCount, 0)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)

	require.NoError(t, vars.Set(VarPower, 2, value.Int(50)))
	assert.Equal(t, int64(50), w.Power(2))

	err = vars.Set(VarPower, 3, value.Int(50))
	assert.True(t, fault.IsKind(err, fault.InvalidInstance), "got %v", err)

	err = vars.Set(VarPower, 0, value.Int(-1))
	assert.True(t, fault.IsKind(err, fault.HostFailure), "got %v", err)
	assert.Equal(t, int64(DefaultPower), w.Power(0))

	err = vars.Set(VarGameTime, 0, value.Int(0))
	assert.True(t, fault.IsKind(err, fault.ReadOnlyVariable), "got %v", err)
	assert.Equal(t, 2*time.Second, w.GameTime())

	require.NoError(t, vars.Set(VarSelectedPlayer, 0, value.Int(2)))
	assert.Equal(t, 2, w.SelectedPlayer())
	assert.Error(t, vars.Set(VarSelectedPlayer, 0, value.Int(3)))

	v, err = vars.Get(VarLastDroid, 0)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestMessages_Capped(t *testing.T) {
	w := NewWorld(WithLogger(quiet()))
	for i := range MaxMessages + 5 {
		w.debug(fmt.Sprint(i))
	}
	msgs := w.Messages()
	require.Len(t, msgs, MaxMessages)
	assert.Equal(t, "5", msgs[0])
	assert.Equal(t, fmt.Sprint(MaxMessages+4), msgs[MaxMessages-1])
}

const buildListing = `
.name   build
.locals 1
  PUSH INTEGER 0
  STORELOCAL 0
loop:
  LOADLOCAL 0
  LOADVAR playerCount 0
  COMPARE LT
  JUMPFALSE done
  LOADLOCAL 0
  PUSH STRING "truck"
  LOADLOCAL 0
  PUSH INTEGER 10
  MUL
  PUSH INTEGER 0
  CALL argc=4 addDroid
  POP
  LOADLOCAL 0
  LOADVARX power          ; power[player]
  PUSH INTEGER 100
  SUB
  LOADLOCAL 0
  STOREVARX power
  LOADLOCAL 0
  PUSH INTEGER 1
  ADD
  STORELOCAL 0
  YIELD
  JUMP loop
done:
  LOADVAR lastDroid 0
  CALL argc=1 droidPlayer
  CALL argc=1 str
  CALL argc=1 debug
  POP
  RETURN
`

func TestEndToEnd_Build(t *testing.T) {
	w, funcs, vars := boundWorld(t)
	e, err := engine.New(funcs, vars, engine.WithLogger(quiet()))
	require.NoError(t, err)

	p, err := asm.AssembleString(buildListing, e.Names())
	require.NoError(t, err)
	id, err := e.Spawn(p)
	require.NoError(t, err)

	ticks := 0
	for !e.Idle() {
		r := e.Tick()
		require.Empty(t, r.Faults)
		ticks++
		require.Less(t, ticks, 100)
	}
	// one tick per player plus the final pass
	assert.Equal(t, DefaultPlayers+1, ticks)

	in, _ := e.Instance(id)
	assert.Equal(t, vm.Terminated, in.State())
	assert.Len(t, w.Droids(), DefaultPlayers)
	for p := range DefaultPlayers {
		assert.Equal(t, int64(DefaultPower-100), w.Power(p))
	}
	assert.Equal(t, int64(30), w.Droids()[3].X)
	assert.Equal(t, []string{"3"}, w.Messages())
}

func TestEndToEnd_HostFaults(t *testing.T) {
	_, funcs, vars := boundWorld(t)
	var reports []engine.FaultReport
	e, err := engine.New(funcs, vars,
		engine.WithLogger(quiet()),
		engine.WithOnFault(func(fr engine.FaultReport) { reports = append(reports, fr) }),
	)
	require.NoError(t, err)

	lost, err := asm.AssembleString(`
.name lost
  PUSH INTEGER 1
  PUSH STRING "x"
  PUSH INTEGER 0
  PUSH INTEGER 0
  CALL argc=4 addDroid
  CALL argc=1 destroyDroid
  POP
  LOADVAR lastDroid 0
  CALL argc=1 droidPlayer
  RETURN
`, e.Names())
	require.NoError(t, err)
	clock, err := asm.AssembleString(`
.name clock
  PUSH INTEGER 0
  STOREVAR gameTime 0
  RETURN
`, e.Names())
	require.NoError(t, err)

	_, err = e.Spawn(lost)
	require.NoError(t, err)
	_, err = e.Spawn(clock)
	require.NoError(t, err)

	r := e.Tick()
	require.Len(t, r.Faults, 2)
	assert.Equal(t, fault.HostFailure, r.Faults[0].Kind)
	assert.Equal(t, 20, r.Faults[0].Pos)
	assert.Equal(t, fault.ReadOnlyVariable, r.Faults[1].Kind)
	assert.Equal(t, 3, r.Faults[1].Pos)
	assert.Equal(t, r.Faults, reports)
	assert.True(t, e.Idle())
}
