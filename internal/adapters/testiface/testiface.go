// Package testiface is an in-memory, scriptable plexcache.ExternalInterface
// for unit and end-to-end tests (the E1-E6 scenarios), grounded on
// original_source's TestExternalInterface: a harness that holds a map of
// uniquely-identified states and their values, and records/answers
// commands rather than talking to a real planning system.
package testiface

import (
	"sync"

	"github.com/plexil-group/plexil-sub002/pkg/plexevent"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// CommandResponder decides how a scripted command is answered. It runs on
// the goroutine that called EnqueueCommand; tests usually push the
// resulting events synchronously, matching the original's batchActions,
// which executed commands to completion before the exec's next wakeup.
type CommandResponder func(name string, args []plexval.Value) (ret plexval.Value, hasRet bool, ok bool)

// Interface is a scriptable ExternalInterface: tests preload States,
// install a CommandResponder (defaulting to an immediate unconditional
// success with no return value), and can directly push subsequent state
// changes to exercise LookupOnChange delivery.
type Interface struct {
	mu sync.Mutex

	states        map[string]plexval.Value
	subscriptions map[string]bool
	thresholds    map[string][2]plexval.Value

	queue     *plexevent.Queue
	responder CommandResponder
	clock     float64

	Commands []CommandCall // every EnqueueCommand call, in order, for assertions
	Aborts   []plexval.Value
	Updates  []UpdateCall
}

// CommandCall records one EnqueueCommand invocation.
type CommandCall struct {
	Handle plexval.Value
	Name   string
	Args   []plexval.Value
}

// UpdateCall records one EnqueueUpdate invocation.
type UpdateCall struct {
	NodeID string
	Pairs  map[string]plexval.Value
}

// New builds an empty harness posting events onto queue. A nil responder
// defaults to: every command succeeds immediately with no return value.
func New(queue *plexevent.Queue, responder CommandResponder) *Interface {
	if responder == nil {
		responder = func(string, []plexval.Value) (plexval.Value, bool, bool) {
			return plexval.Unknown, false, true
		}
	}
	return &Interface{
		states:        make(map[string]plexval.Value),
		subscriptions: make(map[string]bool),
		thresholds:    make(map[string][2]plexval.Value),
		queue:         queue,
		responder:     responder,
	}
}

// SetState preloads or overwrites a state's value without going through
// the event queue, for test setup before the executive starts stepping.
func (i *Interface) SetState(state plexval.State, value plexval.Value) {
	i.mu.Lock()
	i.states[state.Key()] = value
	i.mu.Unlock()
}

// PushStateChange both records the new value and posts a KindStateUpdate
// event, for tests simulating an external change mid-run.
func (i *Interface) PushStateChange(state plexval.State, value plexval.Value) {
	i.SetState(state, value)
	i.queue.Push(plexevent.StateUpdate(state, value))
}

// SetClock sets the value CurrentTime reports, for deterministic time()
// based scenarios.
func (i *Interface) SetClock(seconds float64) {
	i.mu.Lock()
	i.clock = seconds
	i.mu.Unlock()
}

// IsSubscribed reports whether state currently has a LookupOnChange
// subscription registered against this interface.
func (i *Interface) IsSubscribed(state plexval.State) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.subscriptions[state.Key()]
}

// Thresholds returns the most recently advised (high, low) envelope for
// state, if any.
func (i *Interface) Thresholds(state plexval.State) (high, low plexval.Value, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	t, found := i.thresholds[state.Key()]
	return t[0], t[1], found
}

// --- plexcache.ExternalInterface ----------------------------------------

func (i *Interface) LookupNow(state plexval.State) plexval.Value {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.states[state.Key()]
	if !ok {
		return plexval.Unknown
	}
	return v
}

func (i *Interface) Subscribe(state plexval.State) {
	i.mu.Lock()
	i.subscriptions[state.Key()] = true
	i.mu.Unlock()
}

func (i *Interface) Unsubscribe(state plexval.State) {
	i.mu.Lock()
	delete(i.subscriptions, state.Key())
	i.mu.Unlock()
}

func (i *Interface) SetThresholds(state plexval.State, high, low plexval.Value) {
	i.mu.Lock()
	i.thresholds[state.Key()] = [2]plexval.Value{high, low}
	i.mu.Unlock()
}

func (i *Interface) EnqueueCommand(handle plexval.Value, name string, args []plexval.Value, returnVarID, ackVarID string) {
	i.mu.Lock()
	i.Commands = append(i.Commands, CommandCall{Handle: handle, Name: name, Args: args})
	responder := i.responder
	i.mu.Unlock()

	ret, hasRet, ok := responder(name, args)
	if !ok {
		return
	}
	i.queue.Push(plexevent.CommandAck(handle, plexval.Handle(plexval.CommandAccepted)))
	if hasRet {
		i.queue.Push(plexevent.CommandReturn(handle, ret))
	}
}

func (i *Interface) AbortCommand(handle plexval.Value) {
	i.mu.Lock()
	i.Aborts = append(i.Aborts, handle)
	i.mu.Unlock()
	i.queue.Push(plexevent.CommandAbortAck(handle, true))
}

func (i *Interface) EnqueueUpdate(nodeID string, pairs map[string]plexval.Value) {
	i.mu.Lock()
	i.Updates = append(i.Updates, UpdateCall{NodeID: nodeID, Pairs: pairs})
	i.mu.Unlock()
	i.queue.Push(plexevent.UpdateAck(nodeID, true))
}

func (i *Interface) CurrentTime() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.clock
}
