// Package plexexec implements the executive loop (spec §4.4): the
// candidate/transition queues, the quiescence Step algorithm, Assignment
// variable-conflict resolution, and the glue between the external event
// queue, the state cache, and the node state machine.
package plexexec

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plexil-group/plexil-sub002/pkg/plexcache"
	"github.com/plexil-group/plexil-sub002/pkg/plexevent"
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexnode"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// Executive owns one running plan tree: the single exec thread of spec
// §5. It is not safe for concurrent use from more than one goroutine —
// only Step and the inbound Queue are meant to be driven across thread
// boundaries (the Queue itself is the thread-safe part).
type Executive struct {
	iface plexcache.ExternalInterface
	cache *plexcache.StateCache
	queue *plexevent.Queue
	log   zerolog.Logger

	arbiter plexcache.CommandArbiter

	roots    []*plexnode.Node
	allNodes map[string]*plexnode.Node

	candidateSet   map[*plexnode.Node]struct{}
	candidateOrder []*plexnode.Node
	reconsider     []*plexnode.Node // Assignment losers, re-queued after conflict resolution

	commandHandles    map[string]*plexnode.Node
	nodeCommandHandle map[*plexnode.Node]plexval.Value

	finishedRoots []*plexnode.Node
}

// New constructs an Executive backed by iface (also used to build the
// state cache) and queue (the inbound external event channel).
func New(iface plexcache.ExternalInterface, queue *plexevent.Queue, log zerolog.Logger) *Executive {
	return &Executive{
		iface:             iface,
		cache:             plexcache.New(iface),
		queue:             queue,
		log:               log,
		allNodes:          make(map[string]*plexnode.Node),
		candidateSet:      make(map[*plexnode.Node]struct{}),
		commandHandles:    make(map[string]*plexnode.Node),
		nodeCommandHandle: make(map[*plexnode.Node]plexval.Value),
	}
}

// SetArbiter installs an optional command arbiter (spec §5: "an external
// arbiter may veto a command at enqueue time").
func (e *Executive) SetArbiter(a plexcache.CommandArbiter) { e.arbiter = a }

// Cache exposes the state cache, e.g. so plan-construction code can build
// Lookup expressions against it.
func (e *Executive) Cache() *plexcache.StateCache { return e.cache }

// Nodes returns every node currently registered in this executive's
// trees, keyed by ID, for read-only introspection (internal/httpapi).
func (e *Executive) Nodes() map[string]*plexnode.Node {
	out := make(map[string]*plexnode.Node, len(e.allNodes))
	for k, v := range e.allNodes {
		out[k] = v
	}
	return out
}

// Node looks up one node by ID, for read-only introspection.
func (e *Executive) Node(id string) (*plexnode.Node, bool) {
	n, ok := e.allNodes[id]
	return n, ok
}

// AddRoot attaches a fully-built node tree as a new root plan, wires its
// candidate-queue callback, and seeds it as an initial candidate.
func (e *Executive) AddRoot(n *plexnode.Node) {
	e.roots = append(e.roots, n)
	n.AttachExecutive(e.addCandidate)
	e.registerTree(n)
	e.addCandidate(n)
}

func (e *Executive) registerTree(n *plexnode.Node) {
	e.allNodes[n.ID] = n
	for _, c := range n.Children {
		e.registerTree(c)
	}
}

func (e *Executive) addCandidate(n *plexnode.Node) {
	if _, ok := e.candidateSet[n]; ok {
		return
	}
	e.candidateSet[n] = struct{}{}
	e.candidateOrder = append(e.candidateOrder, n)
}

// FinishedRoots returns, and clears, the roots that reached Finished
// since the last call (spec §4.4 step 8: "delete any root nodes that
// reached Finished" — deletion here means handing them back to the
// caller, this package does not otherwise retain them).
func (e *Executive) FinishedRoots() []*plexnode.Node {
	out := e.finishedRoots
	e.finishedRoots = nil
	return out
}

type transitionEntry struct {
	node        *plexnode.Node
	dest        plexnode.State
	outcome     plexnode.Outcome
	failureType plexnode.FailureType
	depth       int
}

// Step runs one full quiescence computation (spec §4.4): drain the
// inbound external event queue, begin quiescence, repeatedly evaluate
// candidates/resolve conflicts/apply transitions until the candidate
// queue is empty, end quiescence, and reap finished roots.
func (e *Executive) Step() error {
	for _, ev := range e.queue.DrainSnapshot() {
		e.applyEvent(ev)
	}

	if err := e.cache.BeginQuiescence(); err != nil {
		return err
	}

	for {
		tq := e.evaluateCandidates()
		tq = e.resolveAssignmentConflicts(tq)
		e.applyTransitions(tq)
		for _, n := range e.reconsider {
			e.addCandidate(n)
		}
		e.reconsider = nil
		if len(e.candidateOrder) == 0 {
			break
		}
	}

	if err := e.cache.EndQuiescence(); err != nil {
		return err
	}

	e.reapFinishedRoots()
	return nil
}

// evaluateCandidates implements spec §4.4 step 2: drain the candidate
// queue, computing each node's destination.
func (e *Executive) evaluateCandidates() []transitionEntry {
	candidates := e.candidateOrder
	e.candidateOrder = nil
	e.candidateSet = make(map[*plexnode.Node]struct{})

	var tq []transitionEntry
	for _, n := range candidates {
		dest, outcome, ft, changed := n.ComputeDestination()
		if changed {
			tq = append(tq, transitionEntry{node: n, dest: dest, outcome: outcome, failureType: ft, depth: depthOf(n)})
		}
	}
	return tq
}

func depthOf(n *plexnode.Node) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// resolveAssignmentConflicts implements spec §4.4 step 3 / §5's shared-
// resource rule: among Assignment nodes transitioning to Executing and
// targeting the same base variable this step, only the lowest-priority
// node (ties broken lexicographically by node identifier) proceeds; the
// rest are dropped from this pass and re-queued as candidates for the
// next iteration.
func (e *Executive) resolveAssignmentConflicts(tq []transitionEntry) []transitionEntry {
	groups := make(map[plexexpr.Assignable][]int)
	for i, t := range tq {
		if t.node.Kind == plexnode.KindAssignment && t.dest == plexnode.StateExecuting {
			body := t.node.Body.(*plexnode.AssignmentBody)
			groups[body.Target] = append(groups[body.Target], i)
		}
	}

	drop := make(map[int]bool)
	for _, idxs := range groups {
		if len(idxs) <= 1 {
			continue
		}
		winner := idxs[0]
		for _, idx := range idxs[1:] {
			if lowerPriority(tq[idx].node, tq[winner].node) {
				winner = idx
			}
		}
		for _, idx := range idxs {
			if idx != winner {
				drop[idx] = true
				e.reconsider = append(e.reconsider, tq[idx].node)
			}
		}
	}
	if len(drop) == 0 {
		return tq
	}
	out := tq[:0]
	for i, t := range tq {
		if !drop[i] {
			out = append(out, t)
		}
	}
	return out
}

func lowerPriority(a, b *plexnode.Node) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// applyTransitions implements spec §4.4 step 4: entries to Inactive/
// Waiting run parent-before-child; entries to Finished run child-before-
// parent. Every other destination's relative order is immaterial since
// siblings never share state.
func (e *Executive) applyTransitions(tq []transitionEntry) {
	sort.SliceStable(tq, func(i, j int) bool {
		oi, oj := transitionOrder(tq[i]), transitionOrder(tq[j])
		if oi != oj {
			return oi < oj
		}
		if tq[i].dest == plexnode.StateFinished {
			return tq[i].depth > tq[j].depth // child (deeper) before parent
		}
		return tq[i].depth < tq[j].depth // parent before child
	})

	for _, t := range tq {
		n := t.node
		n.ExitAction()
		n.EnterAction(t.dest, t.outcome, t.failureType, e)

		// Re-queue n itself: a vacuous (nil) guard has nothing to notify it
		// on change, so without this a node whose next guard is already
		// satisfied at entry (e.g. no Start/Pre condition) would stall
		// instead of advancing again within the same quiescence pass.
		e.addCandidate(n)
		for _, c := range n.Children {
			e.addCandidate(c)
		}
		if n.Parent != nil {
			e.addCandidate(n.Parent)
		}
		if t.dest == plexnode.StateFinished && n.Parent == nil {
			e.finishedRoots = append(e.finishedRoots, n)
		}
	}
}

// transitionOrder buckets transitions so Inactive/Waiting entries (parent-
// first) are applied before Finished entries (child-first) within one
// pass; any other destination sorts alongside Waiting since it carries no
// parent/child ordering requirement.
func transitionOrder(t transitionEntry) int {
	if t.dest == plexnode.StateFinished {
		return 1
	}
	return 0
}

func (e *Executive) reapFinishedRoots() {
	if len(e.finishedRoots) == 0 {
		return
	}
	kept := e.roots[:0]
	finished := make(map[*plexnode.Node]bool, len(e.finishedRoots))
	for _, n := range e.finishedRoots {
		finished[n] = true
	}
	for _, r := range e.roots {
		if !finished[r] {
			kept = append(kept, r)
		}
	}
	e.roots = kept
}

// applyEvent routes one drained external event to the cache or to the
// node it correlates to (spec §4.4 step 1, §6's event record shapes).
func (e *Executive) applyEvent(ev plexevent.Event) {
	switch ev.Kind {
	case plexevent.KindStateUpdate:
		if err := e.cache.UpdateState(ev.State, ev.Value); err != nil {
			e.log.Error().Err(err).Str("state", ev.State.String()).Msg("update_state failed")
		}
	case plexevent.KindCommandReturn:
		n, ok := e.commandHandles[ev.CommandHandle.String()]
		if !ok {
			return
		}
		body := n.Body.(*plexnode.CommandBody)
		if body.Return != nil {
			body.Return.Assign(ev.Value)
		}
	case plexevent.KindCommandAck:
		n, ok := e.commandHandles[ev.CommandHandle.String()]
		if !ok {
			return
		}
		n.MarkActionComplete()
	case plexevent.KindCommandAbortAck:
		n, ok := e.commandHandles[ev.CommandHandle.String()]
		if !ok {
			return
		}
		if ev.AbortOK {
			n.MarkAbortComplete()
		}
	case plexevent.KindUpdateAck:
		n, ok := e.allNodes[ev.NodeID]
		if !ok {
			return
		}
		if ev.UpdateOK {
			n.MarkActionComplete()
		}
	}
}

// --- plexnode.Hooks -----------------------------------------------------

// EnqueueCommand implements plexnode.Hooks: mints a fresh command handle,
// records the correlation, optionally consults the arbiter, and forwards
// to the external interface (spec §5's veto point, §6's async contract).
func (e *Executive) EnqueueCommand(n *plexnode.Node, cmd *plexnode.CommandBody) {
	name, _ := cmd.Name.Value().AsString()
	args := make([]plexval.Value, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = a.Value()
	}

	if e.arbiter != nil && !e.arbiter.Admit(name, args) {
		if cmd.Return != nil {
			cmd.Return.Assign(plexval.Handle(plexval.CommandDenied))
		}
		// A vetoed command never reaches the interface, so there is no
		// ActionComplete/End to wait on: force the node straight out of
		// Executing to IterationEnded/Failure/Denied.
		n.ExitAction()
		n.EnterAction(plexnode.StateIterationEnded, plexnode.OutcomeFailure, plexnode.FailureDenied, e)
		return
	}

	handle := plexval.String(uuid.NewString())
	e.commandHandles[handle.String()] = n
	e.nodeCommandHandle[n] = handle
	e.iface.EnqueueCommand(handle, name, args, n.ID+".return", n.ID+".ack")
}

// AbortCommand implements plexnode.Hooks.
func (e *Executive) AbortCommand(n *plexnode.Node, cmd *plexnode.CommandBody) {
	handle, ok := e.nodeCommandHandle[n]
	if !ok {
		n.MarkAbortComplete()
		return
	}
	e.iface.AbortCommand(handle)
}

// EnqueueUpdate implements plexnode.Hooks.
func (e *Executive) EnqueueUpdate(n *plexnode.Node, upd *plexnode.UpdateBody) {
	pairs := make(map[string]plexval.Value, len(upd.Pairs))
	for k, v := range upd.Pairs {
		pairs[k] = v.Value()
	}
	e.iface.EnqueueUpdate(n.ID, pairs)
}
