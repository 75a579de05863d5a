// Package plexlookup implements the Lookup expression: the demand-driven
// bridge between the expression graph (pkg/plexexpr) and the state cache
// (pkg/plexcache), covering both the pull (LookupNow) and push
// (LookupOnChange) forms spec §4.1/§4.2 describe.
package plexlookup

import (
	"github.com/google/uuid"

	"github.com/plexil-group/plexil-sub002/pkg/plexcache"
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// Kind distinguishes the two lookup forms.
type Kind uint8

const (
	// KindNow evaluates once per activation: a synchronous pull that never
	// subscribes to the cache for further updates.
	KindNow Kind = iota
	// KindOnChange subscribes to the cache for the activation's lifetime
	// and updates its value whenever the cache delivers a change crossing
	// its tolerance.
	KindOnChange
)

// Lookup is a plexexpr.Expression whose value tracks an external State
// (spec §4.1, §4.2). The state name and parameters are themselves
// expressions, so a Lookup can name a parameterized state computed from
// other node variables (e.g. distanceTo(waypointID)).
type Lookup struct {
	*plexexpr.Base

	id         string
	kind       Kind
	stateName  plexexpr.Expression
	params     []plexexpr.Expression
	tolerance  plexexpr.Expression // nil for KindNow, or a KindOnChange with no declared tolerance
	cache      *plexcache.StateCache
	paramWatch *paramListener

	currentState plexval.State
	registered   bool
}

// paramListener re-evaluates the Lookup's State whenever one of its
// name/parameter subexpressions changes, per spec §4.1's "a Lookup whose
// parameters change while active re-resolves its subscription."
type paramListener struct {
	l *Lookup
}

func (p *paramListener) Notify(plexexpr.Expression) {
	p.l.reresolve()
}

// NewLookupNow builds a pull-form Lookup: declaredType is the plan's
// static type for the looked-up quantity.
func NewLookupNow(name string, declaredType plexval.Type, stateName plexexpr.Expression, params []plexexpr.Expression, cache *plexcache.StateCache) *Lookup {
	return newLookup(name, declaredType, KindNow, stateName, params, nil, cache)
}

// NewLookupOnChange builds a push-form Lookup. tolerance may be nil,
// meaning no declared tolerance (treated as zero, spec §9 Open Question
// (a)).
func NewLookupOnChange(name string, declaredType plexval.Type, stateName plexexpr.Expression, params []plexexpr.Expression, tolerance plexexpr.Expression, cache *plexcache.StateCache) *Lookup {
	return newLookup(name, declaredType, KindOnChange, stateName, params, tolerance, cache)
}

func newLookup(name string, declaredType plexval.Type, kind Kind, stateName plexexpr.Expression, params []plexexpr.Expression, tolerance plexexpr.Expression, cache *plexcache.StateCache) *Lookup {
	l := &Lookup{
		id:        uuid.NewString(),
		kind:      kind,
		stateName: stateName,
		params:    params,
		tolerance: tolerance,
		cache:     cache,
	}
	l.Base = plexexpr.NewBase(name, declaredType, nil)
	l.BindSelf(l)
	l.paramWatch = &paramListener{l: l}
	return l
}

// SubscriberID implements plexcache.ChangeSubscriber.
func (l *Lookup) SubscriberID() string { return l.id }

// Deliver implements plexcache.ChangeSubscriber: the cache calls this with
// a freshly-crossed-tolerance value for a KindOnChange lookup.
func (l *Lookup) Deliver(v plexval.Value) {
	l.SetValue(v)
}

// Activate cascades to the name/parameter (and tolerance) subexpressions,
// resolves the current State, and either performs a single pull (KindNow)
// or registers with the cache for ongoing delivery (KindOnChange).
func (l *Lookup) Activate() error {
	for _, p := range l.params {
		if err := p.Activate(); err != nil {
			return err
		}
		p.AddListener(l.paramWatch)
	}
	if err := l.stateName.Activate(); err != nil {
		return err
	}
	l.stateName.AddListener(l.paramWatch)
	if l.tolerance != nil {
		if err := l.tolerance.Activate(); err != nil {
			return err
		}
	}

	if err := l.Base.Activate(); err != nil {
		return err
	}
	l.resolve()
	return nil
}

// Deactivate unregisters from the cache (KindOnChange) and deactivates
// every subexpression.
func (l *Lookup) Deactivate() error {
	if l.kind == KindOnChange && l.registered {
		l.cache.UnregisterChangeLookup(l, l.currentState)
		l.registered = false
	}
	if err := l.Base.Deactivate(); err != nil {
		return err
	}
	l.stateName.RemoveListener(l.paramWatch)
	if err := l.stateName.Deactivate(); err != nil {
		return err
	}
	for _, p := range l.params {
		p.RemoveListener(l.paramWatch)
		if err := p.Deactivate(); err != nil {
			return err
		}
	}
	if l.tolerance != nil {
		if err := l.tolerance.Deactivate(); err != nil {
			return err
		}
	}
	return nil
}

// reresolve is invoked when a name/parameter subexpression changes while
// active: the Lookup must re-derive its State and, if it differs from the
// one currently resolved, re-subscribe (KindOnChange) or simply re-pull
// (KindNow) against the new State.
func (l *Lookup) reresolve() {
	if !l.IsActive() {
		return
	}
	l.resolve()
}

func (l *Lookup) resolve() {
	state, ok := l.currentParamState()
	if !ok {
		l.SetValue(plexval.Unknown)
		return
	}

	switch l.kind {
	case KindNow:
		l.currentState = state
		l.SetValue(l.cache.LookupNow(state))
	case KindOnChange:
		if l.registered && state.Equal(l.currentState) {
			return
		}
		if l.registered {
			l.cache.UnregisterChangeLookup(l, l.currentState)
		}
		l.currentState = state
		tol := plexval.Unknown
		if l.tolerance != nil {
			tol = l.tolerance.Value()
		}
		l.cache.RegisterChangeLookup(l, state, tol)
		l.registered = true
	}
}

// currentParamState builds the State this Lookup currently names, or
// ok=false if the name or any parameter is presently Unknown (an
// unresolved Lookup simply reads as Unknown, it is not a fault).
func (l *Lookup) currentParamState() (plexval.State, bool) {
	nameVal := l.stateName.Value()
	name, ok := nameVal.AsString()
	if !ok {
		return plexval.State{}, false
	}
	params := make([]plexval.Value, len(l.params))
	for i, p := range l.params {
		v := p.Value()
		if !v.IsKnown() {
			return plexval.State{}, false
		}
		params[i] = v
	}
	return plexval.NewState(name, params...), true
}
