// Package plexcache implements the state cache: the memoization and
// subscription layer mediating between the executive and the outside
// world (spec §4.2). It also defines the External Interface contract the
// core consumes (spec §6) — concrete adapters (in-memory test harnesses,
// the Redis-backed sample in internal/adapters/rediface) implement it.
package plexcache

import "github.com/plexil-group/plexil-sub002/pkg/plexval"

// ExternalInterface is what the core consumes from the outside world
// (spec §6). Every method may be called from the cache's single exec
// thread; implementations that talk to a real external system must do
// their own thread-hopping/queuing (see plexevent.Queue) and must
// never block the caller beyond issuing the request.
type ExternalInterface interface {
	// LookupNow synchronously returns the current value for state, or
	// Unknown if the external system has none.
	LookupNow(state plexval.State) plexval.Value
	// Subscribe/Unsubscribe tell the interface the cache is (no longer)
	// interested in state's changes.
	Subscribe(state plexval.State)
	Unsubscribe(state plexval.State)
	// SetThresholds advises the interface that reports of state outside
	// [low, high] are worth delivering; thresholds are advisory, the
	// cache still filters on tolerance itself (spec §4.2).
	SetThresholds(state plexval.State, high, low plexval.Value)
	// EnqueueCommand is asynchronous: the interface shall eventually post
	// a CommandAck and, on success, a CommandReturn for handle.
	EnqueueCommand(handle plexval.Value, name string, args []plexval.Value, returnVarID, ackVarID string)
	// AbortCommand is asynchronous: the interface shall post a
	// CommandAbortAck for handle.
	AbortCommand(handle plexval.Value)
	// EnqueueUpdate is asynchronous: the interface shall post an
	// UpdateAck for nodeID.
	EnqueueUpdate(nodeID string, pairs map[string]plexval.Value)
	// CurrentTime returns the monotonic wall-clock in seconds.
	CurrentTime() float64
}

// CommandArbiter optionally vetoes a command at enqueue time (spec §5:
// "an external arbiter may veto a command at enqueue time"). Its
// resolution policy — the "resource hierarchy" the reference
// implementation builds out — is explicitly out of scope (spec §1); this
// is a single boolean gate, nothing more.
type CommandArbiter interface {
	Admit(name string, args []plexval.Value) bool
}
