// Package plexnode implements the node model and per-kind state machine
// (spec §3, §4.3): six node kinds sharing one eight-state machine, with
// condition expressions gating every transition.
package plexnode

import (
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// Kind distinguishes the six node variants (spec §3).
type Kind uint8

const (
	KindList Kind = iota
	KindCommand
	KindAssignment
	KindUpdate
	KindLibraryCall
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "List"
	case KindCommand:
		return "Command"
	case KindAssignment:
		return "Assignment"
	case KindUpdate:
		return "Update"
	case KindLibraryCall:
		return "LibraryCall"
	case KindEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// State is one of the eight node states (spec §3, §4.3). NoState is the
// pseudostate of a node that has not yet been constructed into the tree —
// used only as the "parent state" seen by a root node, whose ancestor
// conditions are vacuously true (original_source/src/exec/NodeConstants.hh's
// NO_NODE_STATE).
type State uint8

const (
	StateInactive State = iota
	StateWaiting
	StateExecuting
	StateIterationEnded
	StateFinished
	StateFailing
	StateFinishing
	StateNoState
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateWaiting:
		return "Waiting"
	case StateExecuting:
		return "Executing"
	case StateIterationEnded:
		return "IterationEnded"
	case StateFinished:
		return "Finished"
	case StateFailing:
		return "Failing"
	case StateFinishing:
		return "Finishing"
	default:
		return "NoState"
	}
}

// Outcome is set on exit from IterationEnded-bound transitions.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
	OutcomeSkipped
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomeFailure:
		return "Failure"
	case OutcomeSkipped:
		return "Skipped"
	case OutcomeInterrupted:
		return "Interrupted"
	default:
		return "None"
	}
}

// FailureType qualifies an OutcomeFailure (or OutcomeInterrupted).
type FailureType uint8

const (
	FailureNone FailureType = iota
	FailurePreCondition
	FailurePostCondition
	FailureInvariantCondition
	FailureParentFailed
	FailureExited
	FailureParentExited
	FailureDenied
)

func (f FailureType) String() string {
	switch f {
	case FailurePreCondition:
		return "PreConditionFailed"
	case FailurePostCondition:
		return "PostConditionFailed"
	case FailureInvariantCondition:
		return "InvariantConditionFailed"
	case FailureParentFailed:
		return "ParentFailed"
	case FailureExited:
		return "Exited"
	case FailureParentExited:
		return "ParentExited"
	case FailureDenied:
		return "Denied"
	default:
		return "None"
	}
}

// Conditions holds every guard expression a node may have. A nil field is
// either a condition the plan did not supply or one not applicable to the
// node's kind (e.g. Empty nodes have no ActionComplete); New installs no
// plan-condition defaults. The guard evaluator in transitions.go reads a
// nil Skip, Exit or Repeat as false and every other nil field as true.
type Conditions struct {
	Start, End, Invariant, Pre, Post, Skip, Exit, Repeat plexexpr.Expression
	ActionComplete, AbortComplete                        plexexpr.Expression
	AncestorEnd, AncestorExit, AncestorInvariant          plexexpr.Expression
}

// all returns every non-nil condition, for bulk activate/deactivate.
func (c *Conditions) all() []plexexpr.Expression {
	out := make([]plexexpr.Expression, 0, 11)
	for _, e := range []plexexpr.Expression{
		c.Start, c.End, c.Invariant, c.Pre, c.Post, c.Skip, c.Exit, c.Repeat,
		c.ActionComplete, c.AbortComplete,
		c.AncestorEnd, c.AncestorExit, c.AncestorInvariant,
	} {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Node is one node of the plan tree (spec §3).
type Node struct {
	ID       string
	Kind     Kind
	Priority int // meaningful for KindAssignment only; spec §5's conflict resolution

	state       State
	outcome     Outcome
	failureType FailureType

	Parent   *Node
	Children []*Node // List/LibraryCall only

	Conditions Conditions

	LocalVariables   []plexexpr.Assignable   // owned; activated on first entry to Waiting
	InterfaceAliases map[string]plexexpr.Expression // references into parent scope, not owned

	Body Body

	// onCandidate is called whenever a condition change makes this node
	// worth re-examining (spec §4.4 step 2's candidate queue). Set by the
	// executive when the node is attached to a running plan.
	onCandidate func(*Node)
	conditionWatch *conditionListener
}

// New constructs a Node in StateInactive with OutcomeNone/FailureNone,
// per spec §3's initial-field values at plan load. Command nodes get
// executive-internal ActionComplete and AbortComplete bookkeeping
// Variables, Assignment/Update nodes get ActionComplete only (not plan-authored conditions, spec §3's "for
// non-empty kinds, action-complete, abort-complete"); List/LibraryCall use
// allChildrenWaitingOrFinished/failingGuard instead (see transitions.go).
func New(id string, kind Kind) *Node {
	n := &Node{ID: id, Kind: kind, state: StateInactive, outcome: OutcomeNone, failureType: FailureNone}
	n.conditionWatch = &conditionListener{n: n}
	switch kind {
	case KindCommand:
		n.Conditions.ActionComplete = plexexpr.NewVariable(id+".actionComplete", plexval.TypeBoolean, plexval.Boolean(false), false)
		n.Conditions.AbortComplete = plexexpr.NewVariable(id+".abortComplete", plexval.TypeBoolean, plexval.Boolean(false), false)
	case KindAssignment, KindUpdate:
		n.Conditions.ActionComplete = plexexpr.NewVariable(id+".actionComplete", plexval.TypeBoolean, plexval.Boolean(false), false)
	}
	return n
}

func (n *Node) State() State             { return n.state }
func (n *Node) Outcome() Outcome         { return n.outcome }
func (n *Node) FailureType() FailureType { return n.failureType }

// AttachExecutive wires the candidate-queue callback. Must be called
// before the plan runs.
func (n *Node) AttachExecutive(onCandidate func(*Node)) {
	n.onCandidate = onCandidate
	for _, c := range n.Children {
		c.AttachExecutive(onCandidate)
	}
}

// conditionListener re-enqueues its node as a candidate whenever one of
// its watched conditions changes, per spec §4.4 step 2/step 4's "entry
// actions may enqueue new candidates" and the general "a condition change
// makes a node a candidate" rule implied by §2's control-flow summary.
type conditionListener struct{ n *Node }

func (c *conditionListener) Notify(plexexpr.Expression) {
	if c.n.onCandidate != nil {
		c.n.onCandidate(c.n)
	}
}

// watchAll subscribes the node's candidate-queue listener to every
// currently-active condition so that a later change re-examines it. Nil
// entries (conditions not applicable to this node's kind) are skipped.
func (n *Node) watchAll(exprs ...plexexpr.Expression) {
	for _, e := range exprs {
		if e != nil {
			e.AddListener(n.conditionWatch)
		}
	}
}

func (n *Node) unwatchAll(exprs ...plexexpr.Expression) {
	for _, e := range exprs {
		if e != nil {
			e.RemoveListener(n.conditionWatch)
		}
	}
}

// BuildAncestorConditions constructs a child's ancestor-end/exit/invariant
// conditions by conjoining the parent's own ancestor conditions with the
// parent's local exit/invariant/end conditions (spec §3's node invariant,
// §9's "ancestor condition" glossary entry). Must be called after the
// parent's own Conditions are fully populated, before the child is
// activated. A root node (parent == nil) has no real ancestor to impose
// any of these, so all three are Constant-False/True such that they never
// fire (vacuous ancestor, per spec §4.3's NoState treatment of a root's
// "parent").
func BuildAncestorConditions(parent *Node, child *Node) {
	if parent == nil {
		child.Conditions.AncestorEnd = plexexpr.False()
		child.Conditions.AncestorExit = plexexpr.False()
		child.Conditions.AncestorInvariant = plexexpr.True()
		return
	}
	child.Conditions.AncestorExit = orMaybe(child.ID+".ancestorExit", parent.Conditions.AncestorExit, parent.Conditions.Exit)
	child.Conditions.AncestorInvariant = andMaybe(child.ID+".ancestorInvariant", parent.Conditions.AncestorInvariant, parent.Conditions.Invariant)
	child.Conditions.AncestorEnd = orMaybe(child.ID+".ancestorEnd", parent.Conditions.AncestorEnd, parent.Conditions.End)
}

// orMaybe/andMaybe compose a parent's own ancestor condition (always
// non-nil) with one of its plan-authored local conditions, which may be
// nil (not every node has an explicit exit/invariant/end condition; nil
// here is vacuously true/false per isTrue/isFalse in transitions.go). A
// nil local condition is skipped rather than passed to NewOr/NewAnd,
// since an Expression operand list must hold only real Expressions.
func orMaybe(name string, ancestor, local plexexpr.Expression) plexexpr.Expression {
	if local == nil {
		return ancestor
	}
	return plexexpr.NewOr(name, ancestor, local)
}

func andMaybe(name string, ancestor, local plexexpr.Expression) plexexpr.Expression {
	if local == nil {
		return ancestor
	}
	return plexexpr.NewAnd(name, ancestor, local)
}

// Body is the per-kind action payload. List/LibraryCall/Empty nodes have
// no Body (nil); Command/Assignment/Update nodes do.
type Body interface{ isBody() }

// CommandBody is a Command node's action (spec §3, §6).
type CommandBody struct {
	Name    plexexpr.Expression // String-typed
	Args    []plexexpr.Expression
	Return  plexexpr.Assignable // nil if the command has no return value
	Handle  *plexexpr.Variable  // CommandHandle-typed; not written by the executive, which tracks acks in its own handle map
	handleVal plexval.Value
}

func (*CommandBody) isBody() {}

// AssignmentBody is an Assignment node's action (spec §3).
type AssignmentBody struct {
	Target plexexpr.Assignable
	RHS    plexexpr.Expression
}

func (*AssignmentBody) isBody() {}

// UpdateBody is an Update node's action (spec §3, §6).
type UpdateBody struct {
	Pairs map[string]plexexpr.Expression
}

func (*UpdateBody) isBody() {}
