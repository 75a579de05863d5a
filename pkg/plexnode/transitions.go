package plexnode

import (
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// Hooks is the executive-side callback surface a Node needs for entry
// actions that reach outside the node itself: issuing commands/updates,
// and aborting an in-flight command (spec §4.3's entry/exit actions,
// spec §6's async interface operations). Kept as a narrow interface here,
// rather than importing pkg/plexexec, to avoid a package cycle — plexexec
// depends on plexnode, not the other way around.
type Hooks interface {
	EnqueueCommand(n *Node, cmd *CommandBody)
	AbortCommand(n *Node, cmd *CommandBody)
	EnqueueUpdate(n *Node, upd *UpdateBody)
}

// isTrue/isFalse read a possibly-nil Boolean condition: nil is treated as
// vacuously true (see Conditions doc comment); a present condition that is
// presently Unknown is neither true nor false, per spec §7's "errors
// produce Unknown condition values, which prevent both guarded
// transitions."
func isTrue(e plexexpr.Expression) bool {
	if e == nil {
		return true
	}
	b, ok := e.Value().AsBool()
	return ok && b
}

func isFalse(e plexexpr.Expression) bool {
	if e == nil {
		return false
	}
	b, ok := e.Value().AsBool()
	return ok && !b
}

// isTrueOrNever reads Skip/Exit/Repeat, whose PLEXIL default (absent from
// the plan) is Constant False, not Constant True like Start/Pre/End/Post/
// Invariant — a node with no explicit exit or skip condition must never
// exit or skip, and one with no repeat condition must run exactly once.
func isTrueOrNever(e plexexpr.Expression) bool {
	if e == nil {
		return false
	}
	b, ok := e.Value().AsBool()
	return ok && b
}

// repeatIsFalseOrUnset reads the negation of Repeat for the IterationEnded
// guard: RepeatCondition's PLEXIL default is Constant False ("run once"),
// so an absent Repeat must make "not repeat" true, the mirror image of
// isTrueOrNever's false default for the same field. A present-but-Unknown
// Repeat still blocks the guard, matching spec §7.
func repeatIsFalseOrUnset(e plexexpr.Expression) bool {
	if e == nil {
		return true
	}
	b, ok := e.Value().AsBool()
	return ok && !b
}

// ComputeDestination evaluates this node's guards in the priority order
// spec §4.3 fixes (ancestor-exit > exit > ancestor-invariant > invariant >
// end > post > ancestor-end > repeat > action-complete > abort-complete >
// skip > pre > start) and returns the state the node would move to right
// now, with the Outcome/FailureType that transition sets. changed is false
// if the node would stay in its current state.
func (n *Node) ComputeDestination() (dest State, outcome Outcome, failureType FailureType, changed bool) {
	c := &n.Conditions
	parentState := StateNoState
	if n.Parent != nil {
		parentState = n.Parent.state
	}

	switch n.state {
	case StateInactive:
		// A root node (n.Parent == nil) has no real parent to gate it: the
		// executive activates it directly, equivalent to a parent that is
		// always Executing (spec §4.3's NoState treatment of a root's
		// "parent").
		isRoot := n.Parent == nil
		if parentState == StateFinished ||
			((parentState == StateExecuting || isRoot) && (isTrue(c.AncestorExit) || isFalse(c.AncestorInvariant) || isTrue(c.AncestorEnd))) {
			return StateFinished, OutcomeSkipped, FailureNone, true
		}
		if parentState == StateExecuting || isRoot {
			return StateWaiting, OutcomeNone, FailureNone, true
		}
		return n.state, n.outcome, n.failureType, false

	case StateWaiting:
		if isTrue(c.AncestorExit) {
			return StateFinished, OutcomeInterrupted, FailureParentExited, true
		}
		if isTrueOrNever(c.Exit) {
			return StateFinished, OutcomeInterrupted, FailureExited, true
		}
		if isFalse(c.AncestorInvariant) {
			return StateFinished, OutcomeFailure, FailureParentFailed, true
		}
		if isTrue(c.AncestorEnd) {
			return StateFinished, OutcomeSkipped, FailureNone, true
		}
		if isTrueOrNever(c.Skip) {
			return StateFinished, OutcomeSkipped, FailureNone, true
		}
		if isTrue(c.Start) && isTrue(c.Pre) {
			return StateExecuting, OutcomeNone, FailureNone, true
		}
		if isTrue(c.Start) && isFalse(c.Pre) {
			return StateIterationEnded, OutcomeFailure, FailurePreCondition, true
		}
		return n.state, n.outcome, n.failureType, false

	case StateExecuting:
		return n.computeExecutingDestination()

	case StateFinishing:
		return n.computeFinishingDestination()

	case StateFailing:
		if isTrue(c.AbortComplete) {
			if n.failureType == FailureParentFailed || n.failureType == FailureParentExited {
				return StateFinished, n.outcome, n.failureType, true
			}
			return StateIterationEnded, n.outcome, n.failureType, true
		}
		return n.state, n.outcome, n.failureType, false

	case StateIterationEnded:
		if isTrue(c.AncestorExit) || isFalse(c.AncestorInvariant) || isTrue(c.AncestorEnd) || repeatIsFalseOrUnset(c.Repeat) {
			return StateFinished, n.outcome, n.failureType, true
		}
		if isTrueOrNever(c.Repeat) {
			return StateWaiting, OutcomeNone, FailureNone, true
		}
		return n.state, n.outcome, n.failureType, false

	case StateFinished:
		if n.Parent != nil && n.Parent.state == StateWaiting {
			return StateInactive, OutcomeNone, FailureNone, true
		}
		return n.state, n.outcome, n.failureType, false

	default:
		return n.state, n.outcome, n.failureType, false
	}
}

// computeExecutingDestination implements the Executing row of spec
// §4.3's table, which differs between Empty nodes (no Failing/Finishing,
// they resolve directly to Finished/IterationEnded) and every other kind.
func (n *Node) computeExecutingDestination() (State, Outcome, FailureType, bool) {
	c := &n.Conditions

	if n.Kind == KindEmpty {
		if isFalse(c.AncestorInvariant) {
			return StateFinished, OutcomeFailure, FailureParentFailed, true
		}
		if isFalse(c.Invariant) {
			return StateIterationEnded, OutcomeFailure, FailureInvariantCondition, true
		}
		if isTrue(c.End) {
			if isTrue(c.Post) {
				return StateIterationEnded, OutcomeSuccess, FailureNone, true
			}
			return StateIterationEnded, OutcomeFailure, FailurePostCondition, true
		}
		return n.state, n.outcome, n.failureType, false
	}

	if dest, outcome, ft, ok := n.failingGuard(); ok {
		return dest, outcome, ft, true
	}

	switch n.Kind {
	case KindCommand, KindList, KindLibraryCall:
		if isTrue(c.End) {
			return StateFinishing, n.outcome, n.failureType, true
		}
	case KindAssignment, KindUpdate:
		if isTrue(c.ActionComplete) {
			if isTrue(c.Post) {
				return StateIterationEnded, OutcomeSuccess, FailureNone, true
			}
			return StateIterationEnded, OutcomeFailure, FailurePostCondition, true
		}
	}
	return n.state, n.outcome, n.failureType, false
}

// computeFinishingDestination implements the Finishing row: Command nodes
// complete via their action-complete condition, List/LibraryCall nodes
// complete once every child has reached Waiting-or-later-terminal state
// (spec §4.3's literal "children all waiting-or-finished" guard).
func (n *Node) computeFinishingDestination() (State, Outcome, FailureType, bool) {
	c := &n.Conditions
	if dest, outcome, ft, ok := n.failingGuard(); ok {
		return dest, outcome, ft, true
	}

	switch n.Kind {
	case KindCommand:
		if isTrue(c.ActionComplete) {
			if isTrue(c.Post) {
				return StateIterationEnded, OutcomeSuccess, FailureNone, true
			}
			return StateIterationEnded, OutcomeFailure, FailurePostCondition, true
		}
	case KindList, KindLibraryCall:
		if n.allChildrenWaitingOrFinished() {
			if isTrue(c.Post) {
				return StateIterationEnded, OutcomeSuccess, FailureNone, true
			}
			return StateIterationEnded, OutcomeFailure, FailurePostCondition, true
		}
	}
	return n.state, n.outcome, n.failureType, false
}

// failingGuard is the shared Executing/Finishing → Failing guard every
// non-Empty kind shares (spec §4.3's "Executing (Command/List/Update/
// Assignment)" and "Finishing (Command)" rows), evaluated in the fixed
// priority order.
func (n *Node) failingGuard() (State, Outcome, FailureType, bool) {
	c := &n.Conditions
	if isTrue(c.AncestorExit) {
		return StateFailing, OutcomeInterrupted, FailureParentExited, true
	}
	if isTrueOrNever(c.Exit) {
		return StateFailing, OutcomeInterrupted, FailureExited, true
	}
	if isFalse(c.AncestorInvariant) {
		return StateFailing, OutcomeFailure, FailureParentFailed, true
	}
	if isFalse(c.Invariant) {
		return StateFailing, OutcomeFailure, FailureInvariantCondition, true
	}
	return 0, 0, 0, false
}

func (n *Node) allChildrenWaitingOrFinished() bool {
	for _, ch := range n.Children {
		if ch.state != StateWaiting && ch.state != StateFinished {
			return false
		}
	}
	return true
}

// ExitAction runs side effects for leaving the current state, before the
// state field itself changes (spec §4.3's tuple shape
// (from, guard, to, entry, exit)).
func (n *Node) ExitAction() {
	c := &n.Conditions
	switch n.state {
	case StateExecuting:
		n.unwatchAll(c.End, c.Invariant, c.Exit, c.Post, c.ActionComplete)
	case StateFailing:
		n.unwatchAll(c.AbortComplete)
	case StateFinishing:
		n.unwatchAll(c.ActionComplete)
	}
}

// EnterAction runs side effects for entering dest (spec §4.3's
// illustrative entry-action list), then watches whatever conditions are
// now live so a later change re-enqueues this node as a candidate.
func (n *Node) EnterAction(dest State, outcome Outcome, failureType FailureType, hooks Hooks) {
	prev := n.state
	n.state = dest
	n.outcome = outcome
	n.failureType = failureType

	c := &n.Conditions
	switch dest {
	case StateWaiting:
		if prev == StateInactive {
			n.activateLocals()
		}
		for _, e := range []plexexpr.Expression{c.Start, c.Pre, c.Skip, c.Exit, c.AncestorExit, c.AncestorInvariant, c.AncestorEnd} {
			if e != nil {
				e.Activate()
			}
		}
		n.watchAll(c.Start, c.Pre, c.Skip, c.Exit, c.AncestorExit, c.AncestorInvariant, c.AncestorEnd)

	case StateExecuting:
		for _, e := range []plexexpr.Expression{c.Start, c.Pre, c.Skip} {
			if e != nil {
				e.Deactivate()
			}
		}
		n.resetCompletionFlag(c.ActionComplete)
		for _, e := range []plexexpr.Expression{c.End, c.Invariant, c.Exit, c.Post, c.ActionComplete} {
			if e != nil {
				e.Activate()
			}
		}
		n.watchAll(c.End, c.Invariant, c.Exit, c.Post, c.ActionComplete)
		n.runExecutingEntry(hooks)

	case StateFailing:
		n.resetCompletionFlag(c.AbortComplete)
		if c.AbortComplete != nil {
			c.AbortComplete.Activate()
			n.watchAll(c.AbortComplete)
		}
		n.runFailingEntry(hooks)

	case StateFinishing:
		if c.ActionComplete != nil {
			n.watchAll(c.ActionComplete)
		}

	case StateIterationEnded:
		for _, e := range []plexexpr.Expression{c.Exit, c.Invariant, c.End, c.Post} {
			if e != nil {
				e.Deactivate()
			}
		}
		for _, e := range []plexexpr.Expression{c.Repeat, c.AncestorEnd} {
			if e != nil {
				e.Activate()
			}
		}
		n.watchAll(c.Repeat, c.AncestorEnd)

	case StateFinished:
		for _, e := range c.all() {
			e.Deactivate()
			n.unwatchAll(e)
		}
		n.deactivateLocals()

	case StateInactive:
		n.resetLocals()
	}
}

func (n *Node) runExecutingEntry(hooks Hooks) {
	switch body := n.Body.(type) {
	case *AssignmentBody:
		if target, ok := body.Target.(interface{ Save() }); ok {
			target.Save()
		}
		body.Target.Assign(body.RHS.Value())
		n.markActionComplete()
	case *CommandBody:
		if hooks != nil {
			hooks.EnqueueCommand(n, body)
		}
	case *UpdateBody:
		if hooks != nil {
			hooks.EnqueueUpdate(n, body)
		}
	}
}

func (n *Node) runFailingEntry(hooks Hooks) {
	switch body := n.Body.(type) {
	case *CommandBody:
		if hooks != nil {
			hooks.AbortCommand(n, body)
		}
	default:
		// List/Assignment/Update have no outstanding external operation to
		// cancel; abort-complete is satisfied immediately so the node
		// proceeds to IterationEnded/Finished without waiting on anything.
		n.markAbortComplete()
	}
}

// markActionComplete/markAbortComplete flip the node's internal
// bookkeeping variables, used by both synchronous bodies (Assignment) and
// by the executive once it observes the corresponding external ack event.
func (n *Node) markActionComplete() {
	if v, ok := n.Conditions.ActionComplete.(plexexpr.Assignable); ok {
		v.Assign(plexval.Boolean(true))
	}
}

func (n *Node) markAbortComplete() {
	if v, ok := n.Conditions.AbortComplete.(plexexpr.Assignable); ok {
		v.Assign(plexval.Boolean(true))
	}
}

// resetCompletionFlag clears an ActionComplete/AbortComplete bookkeeping
// variable back to false on re-entry to the state that waits on it, so a
// repeated Executing/Failing pass (via IterationEnded → Waiting → ...)
// doesn't see the previous iteration's stale completion.
func (n *Node) resetCompletionFlag(e plexexpr.Expression) {
	if v, ok := e.(plexexpr.Assignable); ok {
		v.Assign(plexval.Boolean(false))
	}
}

// MarkActionComplete/MarkAbortComplete are the executive-facing entry
// points used when an external ack event arrives for this node:
// CommandAck and UpdateAck mark the action complete, CommandAbortAck marks
// the abort complete.
func (n *Node) MarkActionComplete() { n.markActionComplete() }
func (n *Node) MarkAbortComplete()  { n.markAbortComplete() }

func (n *Node) activateLocals() {
	for _, v := range n.LocalVariables {
		v.Activate()
	}
}

func (n *Node) deactivateLocals() {
	for _, v := range n.LocalVariables {
		v.Deactivate()
	}
}

func (n *Node) resetLocals() {
	for _, v := range n.LocalVariables {
		v.Reset()
	}
}
