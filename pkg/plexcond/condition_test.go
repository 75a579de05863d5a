package plexcond_test

import (
	"testing"

	"github.com/plexil-group/plexil-sub002/pkg/plexcache"
	"github.com/plexil-group/plexil-sub002/pkg/plexcond"
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

type fakeIface struct {
	values      map[string]plexval.Value
	lookupCalls int
}

func newFakeIface() *fakeIface {
	return &fakeIface{values: make(map[string]plexval.Value)}
}

func (f *fakeIface) LookupNow(state plexval.State) plexval.Value {
	f.lookupCalls++
	return f.values[state.Key()]
}
func (f *fakeIface) Subscribe(plexval.State)                                      {}
func (f *fakeIface) Unsubscribe(plexval.State)                                    {}
func (f *fakeIface) SetThresholds(plexval.State, plexval.Value, plexval.Value)    {}
func (f *fakeIface) EnqueueCommand(plexval.Value, string, []plexval.Value, string, string) {}
func (f *fakeIface) AbortCommand(plexval.Value)                                   {}
func (f *fakeIface) EnqueueUpdate(string, map[string]plexval.Value)               {}
func (f *fakeIface) CurrentTime() float64                                         { return 0 }

func TestConditionEvaluatesOverBoundVariables(t *testing.T) {
	progs := plexcond.NewConditionCache(10)
	count := plexexpr.NewVariable("count", plexval.TypeInteger, plexval.Integer(0), false)

	cond, err := plexcond.NewCondition("c", plexval.TypeBoolean, "count >= 3",
		map[string]plexexpr.Expression{"count": count}, progs, nil)
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	if err := cond.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	b, ok := cond.Value().AsBool()
	if !ok || b {
		t.Fatalf("expected false while count=0, got %v (known=%v)", b, ok)
	}

	count.Assign(plexval.Integer(3))
	b, ok = cond.Value().AsBool()
	if !ok || !b {
		t.Fatalf("expected true once count>=3, got %v (known=%v)", b, ok)
	}
}

func TestConditionUnknownBindingYieldsUnknown(t *testing.T) {
	progs := plexcond.NewConditionCache(10)
	x := plexexpr.NewVariable("x", plexval.TypeInteger, plexval.Integer(0), false)
	// x is never activated, so its Value() stays Unknown; the condition as
	// a whole must report Unknown rather than treating it as any default.
	cond, err := plexcond.NewCondition("c", plexval.TypeBoolean, "x > 0",
		map[string]plexexpr.Expression{"x": x}, progs, nil)
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	if err := cond.Base.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if cond.Value().IsKnown() {
		t.Fatal("condition over an inactive (Unknown) binding must itself be Unknown")
	}
}

func TestConditionLookupBuiltinReadsStateCache(t *testing.T) {
	iface := newFakeIface()
	state := plexval.NewState("temp")
	iface.values[state.Key()] = plexval.Real(101.0)
	cache := plexcache.New(iface)
	cache.BeginQuiescence()

	progs := plexcond.NewConditionCache(10)
	cond, err := plexcond.NewCondition("c", plexval.TypeBoolean, `lookup("temp") > 100.0`, nil, progs, cache)
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	if err := cond.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	b, ok := cond.Value().AsBool()
	if !ok || !b {
		t.Fatalf("expected lookup(temp) > 100.0 to be true, got %v (known=%v)", b, ok)
	}
	if iface.lookupCalls != 1 {
		t.Fatalf("expected one external fetch, got %d", iface.lookupCalls)
	}
}

func TestConditionRejectsUncompilableText(t *testing.T) {
	progs := plexcond.NewConditionCache(10)
	_, err := plexcond.NewCondition("c", plexval.TypeBoolean, "count >>> 3", nil, progs, nil)
	if err == nil {
		t.Fatal("expected a compile error for malformed condition text")
	}
	if !plexval.IsKind(err, plexval.KindValidation) {
		t.Fatalf("expected KindValidation, got %v", err)
	}
}

func TestConditionCacheReusesCompiledProgramForIdenticalText(t *testing.T) {
	progs := plexcond.NewConditionCache(10)
	a, err := plexcond.NewCondition("a", plexval.TypeBoolean, "count >= 3",
		map[string]plexexpr.Expression{"count": plexexpr.NewVariable("count", plexval.TypeInteger, plexval.Integer(0), false)},
		progs, nil)
	if err != nil {
		t.Fatalf("NewCondition a: %v", err)
	}
	_ = a
	if progs.Len() != 1 {
		t.Fatalf("expected one cached program, got %d", progs.Len())
	}

	_, err = plexcond.NewCondition("b", plexval.TypeBoolean, "count >= 3",
		map[string]plexexpr.Expression{"count": plexexpr.NewVariable("count", plexval.TypeInteger, plexval.Integer(0), false)},
		progs, nil)
	if err != nil {
		t.Fatalf("NewCondition b: %v", err)
	}
	if progs.Len() != 1 {
		t.Fatalf("identical condition text should reuse the cached program, cache now has %d entries", progs.Len())
	}
}

func TestConditionCacheEvictsLeastRecentlyUsed(t *testing.T) {
	progs := plexcond.NewConditionCache(2)
	for _, text := range []string{"count >= 1", "count >= 2", "count >= 3"} {
		if _, err := plexcond.NewCondition(text, plexval.TypeBoolean, text, nil, progs, nil); err != nil {
			t.Fatalf("NewCondition(%q): %v", text, err)
		}
	}
	if progs.Len() != 2 {
		t.Fatalf("expected capacity-bounded cache to hold 2 entries, got %d", progs.Len())
	}
	if _, found := progs.Get("count >= 1"); found {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, found := progs.Get("count >= 3"); !found {
		t.Fatal("most recently inserted entry should still be cached")
	}
}

func TestConditionDeactivateCascadesToBindings(t *testing.T) {
	progs := plexcond.NewConditionCache(10)
	count := plexexpr.NewVariable("count", plexval.TypeInteger, plexval.Integer(5), false)
	cond, err := plexcond.NewCondition("c", plexval.TypeBoolean, "count >= 3",
		map[string]plexexpr.Expression{"count": count}, progs, nil)
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	if err := cond.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !count.IsActive() {
		t.Fatal("activating a condition must activate its bindings")
	}

	if err := cond.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if count.IsActive() {
		t.Fatal("deactivating a condition must deactivate its bindings")
	}
	if cond.Value().IsKnown() {
		t.Fatal("an inactive condition must report Unknown")
	}
}
