// Package plexexpr implements the demand-driven expression/notification
// graph (spec §4.1): activation discipline, listener propagation, lazy
// recomputation, and the lock/unlock coalescing mechanism, plus the
// Variable/Assignable and operator layers built on top of it.
package plexexpr

import (
	"sync"

	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// Listener receives a change notification from an Expression it is
// registered on. Adding the same listener twice is a no-op (spec §3): the
// listener set behaves like a set, never a multiset.
type Listener interface {
	Notify(source Expression)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(source Expression)

func (f ListenerFunc) Notify(source Expression) { f(source) }

// Expression is the common contract every node condition, variable, and
// lookup implements (spec §4.1).
type Expression interface {
	Name() string
	Type() plexval.Type
	// Value returns Unknown whenever the expression's active-count is
	// zero; otherwise it returns the current value.
	Value() plexval.Value
	IsActive() bool
	// Activate cascades to subexpressions (for compound expressions)
	// before recomputing, and begins delivering notifications once the
	// active-count transitions from zero.
	Activate() error
	// Deactivate fails if the active-count is already zero.
	Deactivate() error
	AddListener(l Listener)
	RemoveListener(l Listener)
	// Lock captures the current value as a save point; writes during the
	// lock buffer into that save point instead of the live value. Unlock
	// flushes and notifies only if the buffered value differs from the
	// value at Lock time. Reentrant Lock/Unlock calls are errors.
	Lock() error
	Unlock() error
}

// Base is the shared activation/listener/lock machinery embedded by every
// concrete Expression in this package. It is not itself a complete
// Expression — concrete types embed *Base and supply a recompute function
// (nil for expressions whose value is only ever set directly, such as a
// plain Variable).
type Base struct {
	mu        sync.Mutex
	name      string
	typ       plexval.Type
	value     plexval.Value
	active    int
	listeners map[Listener]struct{}
	locked    bool
	saved     plexval.Value
	dirty     bool
	computing bool
	recompute func() plexval.Value
	self      Expression
}

// NewBase constructs a Base. recompute may be nil for expressions whose
// value is only ever written via SetValue (plain Variables); non-nil for
// derived/compound expressions (operators, lookups) recomputed on
// activation and whenever a listened-to source changes.
func NewBase(name string, typ plexval.Type, recompute func() plexval.Value) *Base {
	return &Base{
		name:      name,
		typ:       typ,
		value:     plexval.Unknown,
		recompute: recompute,
	}
}

// BindSelf records the outer Expression value embedding this Base, so that
// listener notifications carry the concrete expression rather than the
// Base itself. Every constructor in this package calls BindSelf once,
// immediately after embedding.
func (b *Base) BindSelf(self Expression) { b.self = self }

func (b *Base) Name() string       { return b.name }
func (b *Base) Type() plexval.Type { return b.typ }

// Value returns Unknown while inactive (active-count zero), regardless of
// the underlying stored value — the stored value survives deactivation so
// that reactivation doesn't lose state, it is simply not observable.
func (b *Base) Value() plexval.Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == 0 {
		return plexval.Unknown
	}
	return b.value
}

// RawValue returns the stored value regardless of activation, for use by
// concrete types that need to inspect state that should survive
// deactivation (e.g. a Variable's current value before it is reactivated).
func (b *Base) RawValue() plexval.Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *Base) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active > 0
}

// Activate increments the active-count. On a 0->1 transition it recomputes
// (if a recompute function was supplied) before this call returns, so
// that Value() is immediately fresh. Concrete compound-expression types
// must activate their subexpressions themselves, before calling
// Base.Activate, per spec §4.1.
func (b *Base) Activate() error {
	b.mu.Lock()
	b.active++
	first := b.active == 1
	fn := b.recompute
	b.mu.Unlock()

	if first && fn != nil {
		b.Recompute()
	}
	return nil
}

// Deactivate decrements the active-count. It is an internal-consistency
// error to deactivate an expression whose active-count is already zero.
func (b *Base) Deactivate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == 0 {
		return plexval.NewInternalError("plexexpr.Deactivate", "active-count underflow on "+b.name, nil)
	}
	b.active--
	return nil
}

func (b *Base) AddListener(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[Listener]struct{})
	}
	b.listeners[l] = struct{}{}
}

func (b *Base) RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, l)
}

func (b *Base) Lock() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked {
		return plexval.NewInternalError("plexexpr.Lock", "reentrant lock on "+b.name, nil)
	}
	b.locked = true
	b.saved = b.value
	b.dirty = false
	return nil
}

func (b *Base) Unlock() error {
	b.mu.Lock()
	if !b.locked {
		b.mu.Unlock()
		return plexval.NewInternalError("plexexpr.Unlock", "unlock without matching lock on "+b.name, nil)
	}
	b.locked = false
	flush := b.dirty && !b.saved.Equal(b.value)
	newVal := b.saved
	b.dirty = false
	if flush {
		b.value = newVal
	}
	activeNow := b.active > 0
	b.mu.Unlock()

	if flush && activeNow {
		b.dispatch()
	}
	return nil
}

// SetValue is the single write path used both by Assignable.Assign and by
// Recompute's result. While locked, the write buffers into the save point
// (spec §4.1) instead of the live value and never notifies until Unlock.
func (b *Base) SetValue(v plexval.Value) {
	b.mu.Lock()
	if b.locked {
		b.saved = v
		b.dirty = true
		b.mu.Unlock()
		return
	}
	changed := !b.value.Equal(v)
	b.value = v
	activeNow := b.active > 0
	b.mu.Unlock()

	if changed && activeNow {
		b.dispatch()
	}
}

// Recompute invokes the recompute function (if any) and stores the
// result via SetValue. A computing guard suppresses re-entrant
// recomputation if the result's own notification were somehow to loop
// back to this same expression (spec §4.1: "a DerivedVariable that is
// both listener and source must suppress re-entry").
func (b *Base) Recompute() {
	b.mu.Lock()
	if b.computing || b.recompute == nil {
		b.mu.Unlock()
		return
	}
	b.computing = true
	fn := b.recompute
	b.mu.Unlock()

	newVal := fn()
	b.SetValue(newVal)

	b.mu.Lock()
	b.computing = false
	b.mu.Unlock()
}

// dispatch calls Notify directly on a snapshot of the currently-registered
// listeners. There is no worklist: a listener's Notify may itself
// recompute and dispatch, and that nested propagation runs synchronously
// inside this call, so a chain of dependent expressions notifies
// recursively, one stack frame per level.
func (b *Base) dispatch() {
	b.mu.Lock()
	self := b.self
	listeners := make([]Listener, 0, len(b.listeners))
	for l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l.Notify(self)
	}
}
