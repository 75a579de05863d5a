package plexexpr

import "github.com/plexil-group/plexil-sub002/pkg/plexval"

// Assignable is implemented by every Expression that may be mutated by
// plan execution (spec §3): a Variable has an initial value, a saved
// value used for assignment recovery, and a const policy.
type Assignable interface {
	Expression
	Assign(v plexval.Value) error
	InitialValue() plexval.Value
	Reset() error
	Save()
	Restore() error
	IsConst() bool
}

// Variable is the base Assignable implementation. ArrayVariable builds on
// it for the array-specific bounds/copy-on-write behavior.
type Variable struct {
	*Base
	initial plexval.Value
	saved   plexval.Value
	isConst bool
}

// NewVariable constructs a Variable with the given initial value. A const
// Variable's Assign always fails; Reset/Restore still work since those
// are plan-load and recovery mechanisms, not plan-authored writes.
func NewVariable(name string, typ plexval.Type, initial plexval.Value, isConst bool) *Variable {
	v := &Variable{
		Base:    NewBase(name, typ, nil),
		initial: initial,
		isConst: isConst,
	}
	v.BindSelf(v)
	v.Base.SetValue(initial)
	return v
}

// Assign writes v. Writing a const Variable is a fatal error (spec §3).
func (v *Variable) Assign(val plexval.Value) error {
	if v.isConst {
		return plexval.NewExpressionError("plexexpr.Assign", "assignment to const variable "+v.Name())
	}
	v.Base.SetValue(val)
	return nil
}

// InitialValue returns the value Variable was constructed with.
func (v *Variable) InitialValue() plexval.Value { return v.initial }

// Reset restores the initial value, per spec §3's reset() contract.
func (v *Variable) Reset() error {
	v.Base.SetValue(v.initial)
	return nil
}

// Save copies the current value to the saved slot, for later Restore.
// Per design note §9, this is a single-slot rollback paired with an
// Assignment node's outcome, not a general transactional/undo log.
func (v *Variable) Save() {
	v.saved = v.Base.RawValue()
}

// Restore copies the saved value back to current and notifies listeners.
func (v *Variable) Restore() error {
	v.Base.SetValue(v.saved)
	return nil
}

func (v *Variable) IsConst() bool { return v.isConst }
