// Package host is a small reference game world that scripts can drive.
//
// It binds a fixed set of host functions and variables at stable indices so
// listings can refer to them by name or number. The world is not a game
// model; it exists so the CLI and end-to-end tests have something real to
// call into.
package host

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Defaults for NewWorld.
const (
	DefaultPlayers  = 4
	DefaultPower    = 1300
	MaxMessages     = 64
	defaultRandSeed = 0x5eed
)

// Droid is a unit owned by a player.
type Droid struct {
	Handle value.Handle
	Player int
	Name   string
	X, Y   int64
}

// World holds the host state scripts read and modify.
// It is not safe for concurrent use; the engine and the window loop run on
// one goroutine.
type World struct {
	players   int
	power     []int64
	gameTime  time.Duration
	selected  int
	droids    *orderedmap.OrderedMap[value.Handle, *Droid]
	nextDroid value.Handle
	lastDroid value.Handle
	messages  []string
	rng       *rand.Rand
	log       *slog.Logger
}

// Option configures a World.
type Option func(*World)

// WithPlayers sets the number of players. Values below 1 are ignored.
func WithPlayers(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.players = n
		}
	}
}

// WithSeed seeds the random source used by random().
func WithSeed(seed uint64) Option {
	return func(w *World) {
		w.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLogger sets the logger that receives debug() output.
func WithLogger(log *slog.Logger) Option {
	return func(w *World) {
		w.log = log
	}
}

// NewWorld creates a world where every player starts with DefaultPower.
func NewWorld(opts ...Option) *World {
	w := &World{
		players:   DefaultPlayers,
		droids:    orderedmap.NewOrderedMap[value.Handle, *Droid](),
		nextDroid: 1,
		log:       logger.GetLogger(),
	}
	WithSeed(defaultRandSeed)(w)
	for _, opt := range opts {
		opt(w)
	}
	w.power = make([]int64, w.players)
	for i := range w.power {
		w.power[i] = DefaultPower
	}
	return w
}

// Advance moves game time forward.
func (w *World) Advance(dt time.Duration) {
	if dt > 0 {
		w.gameTime += dt
	}
}

// GameTime returns the elapsed game time.
func (w *World) GameTime() time.Duration {
	return w.gameTime
}

// Players returns the number of players.
func (w *World) Players() int {
	return w.players
}

// Power returns a player's power, or 0 for an unknown player.
func (w *World) Power(player int) int64 {
	if !w.validPlayer(player) {
		return 0
	}
	return w.power[player]
}

// SelectedPlayer returns the player scripts currently act for.
func (w *World) SelectedPlayer() int {
	return w.selected
}

// Droid returns the droid with handle h.
func (w *World) Droid(h value.Handle) (Droid, bool) {
	d, ok := w.droids.Get(h)
	if !ok {
		return Droid{}, false
	}
	return *d, true
}

// Droids returns every live droid in creation order.
func (w *World) Droids() []Droid {
	out := make([]Droid, 0, w.droids.Len())
	for el := w.droids.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	return out
}

// Messages returns the most recent debug() messages, oldest first.
func (w *World) Messages() []string {
	return append([]string(nil), w.messages...)
}

func (w *World) validPlayer(player int) bool {
	return player >= 0 && player < w.players
}

func (w *World) debug(msg string) {
	if len(w.messages) == MaxMessages {
		copy(w.messages, w.messages[1:])
		w.messages = w.messages[:MaxMessages-1]
	}
	w.messages = append(w.messages, msg)
	w.log.Info("Script debug", "message", msg, "gameTime", w.gameTime.Milliseconds())
}

func (w *World) addDroid(player int, name string, x, y int64) (value.Handle, error) {
	if !w.validPlayer(player) {
		return value.Null, fmt.Errorf("no such player %d", player)
	}
	h := w.nextDroid
	w.nextDroid++
	w.droids.Set(h, &Droid{Handle: h, Player: player, Name: name, X: x, Y: y})
	w.lastDroid = h
	return h, nil
}

func (w *World) droidCount(player int) int64 {
	var n int64
	for el := w.droids.Front(); el != nil; el = el.Next() {
		if el.Value.Player == player {
			n++
		}
	}
	return n
}

func (w *World) destroyDroid(h value.Handle) bool {
	if h == w.lastDroid {
		w.lastDroid = value.Null
	}
	return w.droids.Delete(h)
}

func (w *World) distance(a, b value.Handle) (float64, error) {
	da, ok := w.droids.Get(a)
	if !ok {
		return 0, fmt.Errorf("no such droid %d", a)
	}
	db, ok := w.droids.Get(b)
	if !ok {
		return 0, fmt.Errorf("no such droid %d", b)
	}
	return math.Hypot(float64(da.X-db.X), float64(da.Y-db.Y)), nil
}
