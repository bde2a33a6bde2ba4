package host

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Warzone2100/warzone2100-sub038/pkg/dispatch"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Host function indices.
const (
	FnDebug = iota
	FnRandom
	FnAddDroid
	FnDroidCount
	FnDestroyDroid
	FnDroidPlayer
	FnDistance
	FnStr
)

// Host variable indices.
const (
	VarPower = iota
	VarGameTime
	VarPlayerCount
	VarSelectedPlayer
	VarLastDroid
)

// Bind registers the world's functions and variables. Both tables must
// still be open.
func (w *World) Bind(funcs *dispatch.FunctionTable, vars *dispatch.VariableTable) error {
	for index, fn := range w.functions() {
		if err := funcs.Register(index, fn); err != nil {
			return fmt.Errorf("failed to bind function %s: %w", fn.Name, err)
		}
	}
	for index, v := range w.variables() {
		if err := vars.Register(index, v); err != nil {
			return fmt.Errorf("failed to bind variable %s: %w", v.Name, err)
		}
	}
	return nil
}

// Tables returns fresh tables with the world bound to them.
func (w *World) Tables() (*dispatch.FunctionTable, *dispatch.VariableTable, error) {
	funcs := dispatch.NewFunctionTable()
	vars := dispatch.NewVariableTable()
	if err := w.Bind(funcs, vars); err != nil {
		return nil, nil, err
	}
	return funcs, vars, nil
}

func (w *World) functions() map[int]dispatch.Function {
	return map[int]dispatch.Function{
		FnDebug: {
			Name:    "debug",
			Params:  []value.Type{value.TypeString},
			Returns: value.TypeVoid,
			Call: func(args []value.Value) (value.Value, error) {
				msg, _ := args[0].AsString()
				w.debug(msg)
				return value.Void(), nil
			},
		},
		FnRandom: {
			Name:    "random",
			Params:  []value.Type{value.TypeInt},
			Returns: value.TypeInt,
			Call: func(args []value.Value) (value.Value, error) {
				n, _ := args[0].AsInt()
				if n <= 0 {
					return value.Value{}, fmt.Errorf("random range must be positive, got %d", n)
				}
				return value.Int(w.rng.Int64N(n)), nil
			},
		},
		FnAddDroid: {
			Name:    "addDroid",
			Params:  []value.Type{value.TypeInt, value.TypeString, value.TypeInt, value.TypeInt},
			Returns: value.TypeDroid,
			Call: func(args []value.Value) (value.Value, error) {
				player, _ := args[0].AsInt()
				name, _ := args[1].AsString()
				x, _ := args[2].AsInt()
				y, _ := args[3].AsInt()
				h, err := w.addDroid(int(player), name, x, y)
				if err != nil {
					return value.Value{}, err
				}
				return value.NewHandle(value.TypeDroid, h)
			},
		},
		FnDroidCount: {
			Name:    "droidCount",
			Params:  []value.Type{value.TypeInt},
			Returns: value.TypeInt,
			Call: func(args []value.Value) (value.Value, error) {
				player, _ := args[0].AsInt()
				return value.Int(w.droidCount(int(player))), nil
			},
		},
		FnDestroyDroid: {
			Name:    "destroyDroid",
			Params:  []value.Type{value.TypeDroid},
			Returns: value.TypeBool,
			Call: func(args []value.Value) (value.Value, error) {
				h, _ := args[0].AsHandle(value.TypeDroid)
				return value.Bool(w.destroyDroid(h)), nil
			},
		},
		FnDroidPlayer: {
			Name:    "droidPlayer",
			Params:  []value.Type{value.TypeDroid},
			Returns: value.TypeInt,
			Call: func(args []value.Value) (value.Value, error) {
				h, _ := args[0].AsHandle(value.TypeDroid)
				d, ok := w.Droid(h)
				if !ok {
					return value.Value{}, fmt.Errorf("no such droid %d", h)
				}
				return value.Int(int64(d.Player)), nil
			},
		},
		FnDistance: {
			Name:    "distance",
			Params:  []value.Type{value.TypeDroid, value.TypeDroid},
			Returns: value.TypeFloat,
			Call: func(args []value.Value) (value.Value, error) {
				a, _ := args[0].AsHandle(value.TypeDroid)
				b, _ := args[1].AsHandle(value.TypeDroid)
				d, err := w.distance(a, b)
				if err != nil {
					return value.Value{}, err
				}
				return value.Float(d), nil
			},
		},
		FnStr: {
			Name:    "str",
			Params:  []value.Type{value.TypeInt},
			Returns: value.TypeString,
			Call: func(args []value.Value) (value.Value, error) {
				n, _ := args[0].AsInt()
				return value.Str(strconv.FormatInt(n, 10)), nil
			},
		},
	}
}

func (w *World) variables() map[int]dispatch.Variable {
	return map[int]dispatch.Variable{
		VarPower: {
			Name:      "power",
			Type:      value.TypeInt,
			Instances: w.players,
			Get: func(player int) (value.Value, error) {
				return value.Int(w.power[player]), nil
			},
			Set: func(player int, v value.Value) error {
				p, _ := v.AsInt()
				if p < 0 {
					return fmt.Errorf("power cannot be negative, got %d", p)
				}
				w.power[player] = p
				return nil
			},
		},
		VarGameTime: {
			Name: "gameTime",
			Type: value.TypeInt,
			Get: func(int) (value.Value, error) {
				return value.Int(w.gameTime.Milliseconds()), nil
			},
		},
		VarPlayerCount: {
			Name: "playerCount",
			Type: value.TypeInt,
			Get: func(int) (value.Value, error) {
				return value.Int(int64(w.players)), nil
			},
		},
		VarSelectedPlayer: {
			Name: "selectedPlayer",
			Type: value.TypeInt,
			Get: func(int) (value.Value, error) {
				return value.Int(int64(w.selected)), nil
			},
			Set: func(_ int, v value.Value) error {
				p, _ := v.AsInt()
				if p < 0 || p >= int64(w.players) {
					return errors.New("selectedPlayer outside player range")
				}
				w.selected = int(p)
				return nil
			},
		},
		VarLastDroid: {
			Name: "lastDroid",
			Type: value.TypeDroid,
			Get: func(int) (value.Value, error) {
				return value.NewHandle(value.TypeDroid, w.lastDroid)
			},
		},
	}
}
