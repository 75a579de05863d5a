// Package plexevent defines the external event queue record types (spec
// §6): the inbound, thread-safe channel by which external interfaces
// (command adapters, lookup sources, IPC transports — all external
// collaborators, spec §1) communicate with the single exec thread.
package plexevent

import "github.com/plexil-group/plexil-sub002/pkg/plexval"

// Kind tags an inbound external event record.
type Kind uint8

const (
	KindStateUpdate Kind = iota
	KindCommandReturn
	KindCommandAck
	KindCommandAbortAck
	KindUpdateAck
)

// Event is one inbound record. Only the fields relevant to Kind are
// populated; this mirrors spec §6's five record shapes as a single
// discriminated struct rather than five Go types, since a single
// goroutine-safe queue of heterogeneous records is the simplest shape for
// a thread-safe channel (see Queue).
type Event struct {
	Kind Kind

	// KindStateUpdate
	State plexval.State
	Value plexval.Value

	// KindCommandReturn / KindCommandAck / KindCommandAbortAck
	CommandHandle plexval.Value
	AckValue      plexval.Value // KindCommandAck payload (a CommandHandle value)
	AbortOK       bool          // KindCommandAbortAck payload

	// KindUpdateAck
	NodeID string
	UpdateOK bool
}

// StateUpdate builds a KindStateUpdate event.
func StateUpdate(state plexval.State, value plexval.Value) Event {
	return Event{Kind: KindStateUpdate, State: state, Value: value}
}

// CommandReturn builds a KindCommandReturn event.
func CommandReturn(handle plexval.Value, value plexval.Value) Event {
	return Event{Kind: KindCommandReturn, CommandHandle: handle, Value: value}
}

// CommandAck builds a KindCommandAck event.
func CommandAck(handle plexval.Value, ack plexval.Value) Event {
	return Event{Kind: KindCommandAck, CommandHandle: handle, AckValue: ack}
}

// CommandAbortAck builds a KindCommandAbortAck event.
func CommandAbortAck(handle plexval.Value, ok bool) Event {
	return Event{Kind: KindCommandAbortAck, CommandHandle: handle, AbortOK: ok}
}

// UpdateAck builds a KindUpdateAck event.
func UpdateAck(nodeID string, ok bool) Event {
	return Event{Kind: KindUpdateAck, NodeID: nodeID, UpdateOK: ok}
}
