package plexcache

import (
	"math"
	"sync"

	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// ChangeSubscriber is the narrow surface the cache needs from a
// LookupOnChange expression: something it can deliver a fresh value to.
// plexlookup.Lookup implements this; the cache package itself has no
// dependency on plexlookup, avoiding an import cycle (spec §4.2's Lookup
// contract is implemented one layer up).
type ChangeSubscriber interface {
	SubscriberID() string
	Deliver(v plexval.Value)
}

type subscription struct {
	sub          ChangeSubscriber
	tolerance    plexval.Value
	lastReported plexval.Value
}

type entry struct {
	value       plexval.Value
	updatedAtQ  int64
	fetched     bool // value was fetched/updated during the current quiescence
	subscribers map[string]*subscription
}

// StateCache is the state → value map with pull/push lookups, tolerances,
// quiescence counter, and subscriber thresholds (spec §4.2). It owns no
// goroutines: every method runs on the caller's (the exec thread's)
// goroutine, per spec §5's "state cache is owned by the exec thread."
type StateCache struct {
	mu           sync.Mutex
	iface        ExternalInterface
	entries      map[string]*entry
	quiescence   int64
	inQuiescence bool
	timeValue    plexval.Value
	timeFetched  bool
}

// New constructs a StateCache backed by iface.
func New(iface ExternalInterface) *StateCache {
	return &StateCache{
		iface:   iface,
		entries: make(map[string]*entry),
	}
}

func (c *StateCache) entryFor(s plexval.State) *entry {
	key := s.Key()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{value: plexval.Unknown, subscribers: make(map[string]*subscription)}
		c.entries[key] = e
	}
	return e
}

// BeginQuiescence marks the start of a quiescence computation (spec
// §4.2). It is an internal-consistency error to call it while already in
// quiescence.
func (c *StateCache) BeginQuiescence() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inQuiescence {
		return plexval.NewInternalError("plexcache.BeginQuiescence", "quiescence already in progress", nil)
	}
	c.inQuiescence = true
	c.timeFetched = false
	for _, e := range c.entries {
		e.fetched = false
	}
	return nil
}

// EndQuiescence closes the quiescence and advances the counter. The cached
// values stay in place until the next BeginQuiescence clears their fetched
// flags, after which the next LookupNow for a state re-fetches it.
func (c *StateCache) EndQuiescence() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inQuiescence {
		return plexval.NewInternalError("plexcache.EndQuiescence", "not in quiescence", nil)
	}
	c.inQuiescence = false
	c.quiescence++
	return nil
}

// QuiescenceCounter returns the current count, for tests asserting
// freshness/ordering invariants.
func (c *StateCache) QuiescenceCounter() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiescence
}

// LookupNow returns the cached value for state if it was already fetched
// this quiescence; otherwise it pulls from the external interface, caches
// the result, and returns it (spec §4.2). Two LookupNow calls for the
// same state within one quiescence always return the same value.
func (c *StateCache) LookupNow(state plexval.State) plexval.Value {
	c.mu.Lock()
	e := c.entryFor(state)
	if e.fetched {
		v := e.value
		c.mu.Unlock()
		return v
	}
	iface := c.iface
	quiescence := c.quiescence
	c.mu.Unlock()

	v := iface.LookupNow(state)

	c.mu.Lock()
	e = c.entryFor(state)
	e.value = v
	e.fetched = true
	e.updatedAtQ = quiescence
	c.mu.Unlock()
	return v
}

// CurrentTime reads the distinguished time() state once per quiescence
// and caches it, per spec §4.2 and the original source's treatment of
// time() (SPEC_FULL.md §3).
func (c *StateCache) CurrentTime() float64 {
	c.mu.Lock()
	if c.timeFetched {
		v := c.timeValue
		c.mu.Unlock()
		r, _ := v.AsReal()
		return r
	}
	iface := c.iface
	c.mu.Unlock()

	t := iface.CurrentTime()
	v := plexval.Real(t)

	c.mu.Lock()
	c.timeValue = v
	c.timeFetched = true
	c.mu.Unlock()
	return t
}

// RegisterChangeLookup adds sub as a subscriber to state's changes,
// fetching the current value if it wasn't already fetched this
// quiescence, delivering it immediately, and advising the interface of
// the new threshold envelope (spec §4.2).
func (c *StateCache) RegisterChangeLookup(sub ChangeSubscriber, state plexval.State, tolerance plexval.Value) {
	current := c.LookupNow(state)

	c.mu.Lock()
	e := c.entryFor(state)
	wasEmpty := len(e.subscribers) == 0
	e.subscribers[sub.SubscriberID()] = &subscription{sub: sub, tolerance: tolerance, lastReported: current}
	iface := c.iface
	high, low, hasThresholds := representativeThresholds(e, current)
	c.mu.Unlock()

	if wasEmpty {
		iface.Subscribe(state)
	}
	sub.Deliver(current)
	if hasThresholds {
		iface.SetThresholds(state, high, low)
	}
}

// UnregisterChangeLookup removes sub from state's subscribers. If no
// subscribers remain, the interface is advised to drop its subscription.
func (c *StateCache) UnregisterChangeLookup(sub ChangeSubscriber, state plexval.State) {
	c.mu.Lock()
	e := c.entryFor(state)
	delete(e.subscribers, sub.SubscriberID())
	empty := len(e.subscribers) == 0
	iface := c.iface
	c.mu.Unlock()

	if empty {
		iface.Unsubscribe(state)
	}
}

// UpdateState is called by the executive (outside quiescence, after
// draining an inbound KindStateUpdate event — see pkg/plexexec) to record
// a fresh value and notify subscribers whose tolerance the change crosses
// (spec §4.2). Calling it while in quiescence is an internal-consistency
// error.
func (c *StateCache) UpdateState(state plexval.State, value plexval.Value) error {
	c.mu.Lock()
	if c.inQuiescence {
		c.mu.Unlock()
		return plexval.NewInternalError("plexcache.UpdateState", "update_state called during quiescence", nil)
	}
	e := c.entryFor(state)
	e.value = value
	e.fetched = true
	e.updatedAtQ = c.quiescence

	var toNotify []*subscription
	for _, s := range e.subscribers {
		if toleranceCrossed(s.lastReported, value, s.tolerance) {
			toNotify = append(toNotify, s)
		}
	}
	for _, s := range toNotify {
		s.lastReported = value
	}
	high, low, hasThresholds := representativeThresholds(e, value)
	iface := c.iface
	c.mu.Unlock()

	for _, s := range toNotify {
		s.sub.Deliver(value)
	}
	if hasThresholds && len(toNotify) > 0 {
		iface.SetThresholds(state, high, low)
	}
	return nil
}

// Snapshot returns every currently cached state key (plexval.State.Key's
// encoding) paired with its last-known value, for read-only introspection
// (internal/httpapi) — it takes no part in the quiescence algorithm.
func (c *StateCache) Snapshot() map[string]plexval.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]plexval.Value, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.value
	}
	return out
}

// toleranceCrossed implements spec §4.2's delivery predicate: a change is
// delivered when |new-old| >= tolerance, or when exactly one side is
// Unknown, or — for non-numeric types — on any inequality. An Unknown
// tolerance is treated as zero (spec §9 Open Question (a), resolved in
// DESIGN.md): every update is then delivered.
func toleranceCrossed(old, new, tolerance plexval.Value) bool {
	oldKnown, newKnown := old.IsKnown(), new.IsKnown()
	if oldKnown != newKnown {
		return true
	}
	if !oldKnown && !newKnown {
		return false
	}

	on, aok := old.AsNumeric()
	nn, bok := new.AsNumeric()
	if aok && bok {
		tol := 0.0
		if tv, ok := tolerance.AsNumeric(); ok {
			tol = tv
		}
		return math.Abs(nn-on) >= tol
	}
	return !old.Equal(new)
}

// representativeThresholds computes the advisory envelope the cache
// communicates to the interface: the minimum of the subscribers'
// tolerances (Unknown treated as zero) around the current value, or no
// thresholds at all for a non-numeric state (spec §4.2).
func representativeThresholds(e *entry, current plexval.Value) (high, low plexval.Value, ok bool) {
	base, isNumeric := current.AsNumeric()
	if !isNumeric {
		return plexval.Unknown, plexval.Unknown, false
	}
	if len(e.subscribers) == 0 {
		return plexval.Unknown, plexval.Unknown, false
	}
	minTol := math.Inf(1)
	for _, s := range e.subscribers {
		t := 0.0
		if tv, ok := s.tolerance.AsNumeric(); ok {
			t = tv
		}
		if t < minTol {
			minTol = t
		}
	}
	return plexval.Real(base + minTol), plexval.Real(base - minTol), true
}
