package plexexpr_test

import (
	"testing"

	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

type countingListener struct{ n int }

func (c *countingListener) Notify(plexexpr.Expression) { c.n++ }

func TestVariableInactiveReportsUnknown(t *testing.T) {
	v := plexexpr.NewVariable("x", plexval.TypeInteger, plexval.Integer(5), false)
	if v.Value().IsKnown() {
		t.Fatal("inactive variable must report Unknown")
	}
	if err := v.Activate(); err != nil {
		t.Fatal(err)
	}
	got, _ := v.Value().AsInt()
	if got != 5 {
		t.Fatalf("active variable value = %d, want 5", got)
	}
}

func TestVariableAssignNotifiesWhileActive(t *testing.T) {
	v := plexexpr.NewVariable("x", plexval.TypeInteger, plexval.Integer(0), false)
	l := &countingListener{}
	v.AddListener(l)

	if err := v.Assign(plexval.Integer(1)); err != nil {
		t.Fatal(err)
	}
	if l.n != 0 {
		t.Fatal("assignment while inactive must not dispatch")
	}

	v.Activate()
	if err := v.Assign(plexval.Integer(2)); err != nil {
		t.Fatal(err)
	}
	if l.n != 1 {
		t.Fatalf("listener count = %d, want 1 after one change while active", l.n)
	}
	if err := v.Assign(plexval.Integer(2)); err != nil {
		t.Fatal(err)
	}
	if l.n != 1 {
		t.Fatal("assigning the same value must not re-dispatch")
	}
}

func TestConstVariableRejectsAssign(t *testing.T) {
	v := plexexpr.NewVariable("c", plexval.TypeBoolean, plexval.Boolean(true), true)
	if err := v.Assign(plexval.Boolean(false)); err == nil {
		t.Fatal("assigning a const variable must fail")
	}
}

func TestDerivedAndPropagatesFromSources(t *testing.T) {
	a := plexexpr.NewVariable("a", plexval.TypeBoolean, plexval.Boolean(true), false)
	b := plexexpr.NewVariable("b", plexval.TypeBoolean, plexval.Boolean(true), false)
	and := plexexpr.NewAnd("a&&b", a, b)

	if err := and.Activate(); err != nil {
		t.Fatal(err)
	}
	got, _ := and.Value().AsBool()
	if !got {
		t.Fatal("AND of two true operands must be true")
	}

	a.Assign(plexval.Boolean(false))
	got, _ = and.Value().AsBool()
	if got {
		t.Fatal("AND must recompute to false once a source flips false")
	}
}

func TestConstantLatchesActive(t *testing.T) {
	c := plexexpr.True()
	if !c.Value().IsKnown() {
		t.Fatal("a Constant is active from construction")
	}
	if err := c.Deactivate(); err != nil {
		t.Fatal(err)
	}
	if !c.Value().IsKnown() {
		t.Fatal("Constant must never drop below active-count 1")
	}
}

func TestLockBuffersWritesUntilUnlock(t *testing.T) {
	v := plexexpr.NewVariable("x", plexval.TypeInteger, plexval.Integer(1), false)
	v.Activate()
	l := &countingListener{}
	v.AddListener(l)

	if err := v.Lock(); err != nil {
		t.Fatal(err)
	}
	v.Assign(plexval.Integer(2))
	if l.n != 0 {
		t.Fatal("writes under lock must not dispatch before Unlock")
	}
	got, _ := v.Value().AsInt()
	if got != 1 {
		t.Fatal("Value() must still see the pre-lock value while locked")
	}
	if err := v.Unlock(); err != nil {
		t.Fatal(err)
	}
	if l.n != 1 {
		t.Fatal("Unlock must flush and dispatch exactly once")
	}
	got, _ = v.Value().AsInt()
	if got != 2 {
		t.Fatal("Unlock must flush the buffered value")
	}
}

func TestCompareAndArith(t *testing.T) {
	lhs := plexexpr.NewConstant("lhs", plexval.Integer(10))
	rhs := plexexpr.NewConstant("rhs", plexval.Integer(3))

	gt := plexexpr.NewCompare("gt", plexexpr.CompareGT, lhs, rhs)
	gt.Activate()
	b, _ := gt.Value().AsBool()
	if !b {
		t.Fatal("10 > 3 must be true")
	}

	div := plexexpr.NewArith("div", plexexpr.ArithDiv, lhs, rhs)
	div.Activate()
	r, ok := div.Value().AsReal()
	if !ok {
		t.Fatal("division must always yield Real")
	}
	if r < 3.33 || r > 3.34 {
		t.Fatalf("10/3 = %v, want ~3.333", r)
	}

	zero := plexexpr.NewConstant("zero", plexval.Integer(0))
	divZero := plexexpr.NewArith("div0", plexexpr.ArithDiv, lhs, zero)
	divZero.Activate()
	if divZero.Value().IsKnown() {
		t.Fatal("division by zero must yield Unknown")
	}
	if divZero.Fault() == nil {
		t.Fatal("division by zero must latch a fault")
	}
}

func TestIsKnownNeverUnknown(t *testing.T) {
	v := plexexpr.NewVariable("x", plexval.TypeInteger, plexval.Unknown, false)
	isKnown := plexexpr.NewIsKnown("isknown", v)
	isKnown.Activate()
	b, ok := isKnown.Value().AsBool()
	if !ok {
		t.Fatal("IsKnown must always yield a known Boolean, even for an Unknown operand")
	}
	if b {
		t.Fatal("IsKnown of a variable holding Unknown must be false")
	}
}
