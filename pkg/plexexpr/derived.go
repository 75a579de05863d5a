package plexexpr

import (
	"sync"

	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// Derived is a compound expression computed from a fixed list of source
// expressions: every operator in this package is a Derived. Activating a
// Derived cascades activation to its sources first, then recomputes (spec
// §4.1); deactivating does the reverse. Derived listens to each of its
// sources and recomputes on any source change.
//
// A recompute function may fault (division/modulo by zero, sqrt of a
// negative, Integer overflow, a non-finite Real, an out-of-range array
// index — spec §3, §4.1). A fault yields Unknown and is latched on the
// Derived, readable through Fault; it is never a panic. The executive does
// not read Fault, so a fault does not change any node's outcome: the
// faulted expression simply reads as Unknown.
type Derived struct {
	*Base
	sources []Expression

	faultMu sync.Mutex
	fault   error
}

// DerivedFunc computes a Derived's value from its sources' current
// values, in order. A non-nil error means the computation faulted; the
// Derived's value becomes Unknown regardless of the returned Value.
type DerivedFunc func(args []plexval.Value) (plexval.Value, error)

// NewDerived builds a Derived expression. fn must itself handle Unknown
// propagation; Derived applies no implicit policy beyond fault handling.
func NewDerived(name string, typ plexval.Type, sources []Expression, fn DerivedFunc) *Derived {
	d := &Derived{sources: sources}
	recompute := func() plexval.Value {
		args := make([]plexval.Value, len(sources))
		for i, s := range sources {
			args[i] = s.Value()
		}
		v, err := fn(args)
		d.faultMu.Lock()
		d.fault = err
		d.faultMu.Unlock()
		if err != nil {
			return plexval.Unknown
		}
		return v
	}
	d.Base = NewBase(name, typ, recompute)
	d.BindSelf(d)
	for _, s := range sources {
		s.AddListener(d)
	}
	return d
}

// Fault returns the error latched by the most recent recomputation, or
// nil if that recomputation succeeded.
func (d *Derived) Fault() error {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	return d.fault
}

// Notify implements Listener: any source change triggers a full
// recomputation. Base.Recompute's computing guard prevents re-entrant
// loops in the (disallowed by the parser, but defensively guarded) case
// of a cyclic alias.
func (d *Derived) Notify(_ Expression) {
	if !d.IsActive() {
		return
	}
	d.Recompute()
}

// Activate cascades to every source before recomputing itself, per spec
// §4.1 ("Activating a subexpression is cascaded by compound expressions
// before recomputing").
func (d *Derived) Activate() error {
	for _, s := range d.sources {
		if err := s.Activate(); err != nil {
			return err
		}
	}
	return d.Base.Activate()
}

// Deactivate deactivates this expression, then cascades to every source.
func (d *Derived) Deactivate() error {
	if err := d.Base.Deactivate(); err != nil {
		return err
	}
	for _, s := range d.sources {
		if err := s.Deactivate(); err != nil {
			return err
		}
	}
	return nil
}

// Sources returns the operand expressions, for introspection/testing.
func (d *Derived) Sources() []Expression { return d.sources }
