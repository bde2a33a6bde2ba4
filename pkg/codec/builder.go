package codec

import (
	"fmt"

	"github.com/ccoveille/go-safecast"

	"github.com/Warzone2100/warzone2100-sub038/pkg/opcode"
	"github.com/Warzone2100/warzone2100-sub038/pkg/value"
)

// Label is a forward-referenceable position in a program under construction.
type Label int

type fixup struct {
	word  int // index of the operand word to patch
	label Label
}

// Builder assembles a Program. The first error sticks; later calls are
// ignored and Program returns it.
type Builder struct {
	name    string
	code    []Word
	pool    Pool
	labels  []int
	names   []string
	fixups  []fixup
	entry   Label
	hasMain bool
	locals  int
	err     error
}

// NewBuilder creates a Builder for a program with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error {
	return b.err
}

// Pos returns the position the next instruction will be emitted at.
func (b *Builder) Pos() int {
	return len(b.code)
}

// Emit encodes ins at the current position and returns that position.
func (b *Builder) Emit(ins Instruction) int {
	pos := len(b.code)
	if b.err != nil {
		return pos
	}
	code, err := Encode(b.code, &b.pool, ins)
	if err != nil {
		b.err = fmt.Errorf("emit %s at %d: %w", ins.Op, pos, err)
		return pos
	}
	b.code = code
	return pos
}

// NewLabel allocates an unbound label. The name is only used in errors.
func (b *Builder) NewLabel(name string) Label {
	b.labels = append(b.labels, -1)
	b.names = append(b.names, name)
	return Label(len(b.labels) - 1)
}

// Mark binds l to the current position.
func (b *Builder) Mark(l Label) {
	if b.err != nil {
		return
	}
	if b.labels[l] >= 0 {
		b.err = fmt.Errorf("label %q bound twice", b.names[l])
		return
	}
	b.labels[l] = len(b.code)
}

// Bound reports whether l has been marked.
func (b *Builder) Bound(l Label) bool {
	return b.labels[l] >= 0
}

// JumpTo emits a JUMP, JUMPFALSE or JUMPTRUE to l.
func (b *Builder) JumpTo(op opcode.Op, l Label) int {
	if !op.IsJump() {
		b.fail(fmt.Errorf("%s is not a jump", op))
		return len(b.code)
	}
	pos := b.Emit(Instruction{Op: op})
	b.fixups = append(b.fixups, fixup{word: pos + 1, label: l})
	return pos
}

// CallScriptTo emits a CALLSCRIPT to l.
func (b *Builder) CallScriptTo(l Label, argc, locals int) int {
	n, err := safecast.ToUint32(argc)
	if err != nil {
		b.fail(fmt.Errorf("argument count: %w", err))
		return len(b.code)
	}
	nl, err := safecast.ToInt32(locals)
	if err != nil {
		b.fail(fmt.Errorf("local count: %w", err))
		return len(b.code)
	}
	pos := b.Emit(CallScript(0, n, nl))
	b.fixups = append(b.fixups, fixup{word: pos + 1, label: l})
	return pos
}

// SetEntry makes l the entry point of the outermost frame.
func (b *Builder) SetEntry(l Label) {
	b.entry = l
	b.hasMain = true
}

// SetLocals sets the local-variable count of the outermost frame.
func (b *Builder) SetLocals(n int) {
	if n < 0 {
		b.fail(fmt.Errorf("negative local count %d", n))
		return
	}
	b.locals = n
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Program resolves labels and returns the finished program.
func (b *Builder) Program() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, f := range b.fixups {
		target := b.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("label %q is never marked", b.names[f.label])
		}
		t, err := safecast.ToUint32(target)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", b.names[f.label], err)
		}
		b.code[f.word] = Word(t)
	}

	entry := 0
	if b.hasMain {
		entry = b.labels[b.entry]
		if entry < 0 {
			return nil, fmt.Errorf("entry label %q is never marked", b.names[b.entry])
		}
	}

	code := make([]Word, len(b.code))
	copy(code, b.code)
	return &Program{
		Name:    b.name,
		Code:    code,
		Strings: b.pool.Strings(),
		Entry:   entry,
		Locals:  b.locals,
	}, nil
}

// Convenience emitters used by hosts and tests.

// PushInt emits PUSH INTEGER i.
func (b *Builder) PushInt(i int64) int { return b.Emit(Push(value.Int(i))) }

// PushFloat emits PUSH FLOAT f.
func (b *Builder) PushFloat(f float64) int { return b.Emit(Push(value.Float(f))) }

// PushBool emits PUSH BOOLEAN v.
func (b *Builder) PushBool(v bool) int { return b.Emit(Push(value.Bool(v))) }

// PushString emits PUSH STRING s.
func (b *Builder) PushString(s string) int { return b.Emit(Push(value.Str(s))) }

// CallHost emits CALL index with argc arguments.
func (b *Builder) CallHost(index, argc int) int {
	idx, err := safecast.ToInt32(index)
	if err != nil {
		b.fail(fmt.Errorf("function index: %w", err))
		return len(b.code)
	}
	n, err := safecast.ToUint32(argc)
	if err != nil {
		b.fail(fmt.Errorf("argument count: %w", err))
		return len(b.code)
	}
	return b.Emit(Call(idx, n))
}

// Load emits LOADVAR index[instance].
func (b *Builder) Load(index, instance int) int {
	idx, inst, err := indexPair(index, instance)
	if err != nil {
		b.fail(err)
		return len(b.code)
	}
	return b.Emit(LoadVar(idx, inst))
}

// Store emits STOREVAR index[instance].
func (b *Builder) Store(index, instance int) int {
	idx, inst, err := indexPair(index, instance)
	if err != nil {
		b.fail(err)
		return len(b.code)
	}
	return b.Emit(StoreVar(idx, inst))
}

func indexPair(index, instance int) (int32, int32, error) {
	idx, err := safecast.ToInt32(index)
	if err != nil {
		return 0, 0, fmt.Errorf("variable index: %w", err)
	}
	inst, err := safecast.ToInt32(instance)
	if err != nil {
		return 0, 0, fmt.Errorf("instance: %w", err)
	}
	return idx, inst, nil
}
