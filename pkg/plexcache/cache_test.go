package plexcache_test

import (
	"testing"

	"github.com/plexil-group/plexil-sub002/pkg/plexcache"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

type fakeIface struct {
	values      map[string]plexval.Value
	lookupCalls int
	thresholds  map[string][2]plexval.Value
	subs        map[string]bool
	time        float64
}

func newFakeIface() *fakeIface {
	return &fakeIface{
		values:     make(map[string]plexval.Value),
		thresholds: make(map[string][2]plexval.Value),
		subs:       make(map[string]bool),
	}
}

func (f *fakeIface) LookupNow(state plexval.State) plexval.Value {
	f.lookupCalls++
	return f.values[state.Key()]
}
func (f *fakeIface) Subscribe(state plexval.State)   { f.subs[state.Key()] = true }
func (f *fakeIface) Unsubscribe(state plexval.State) { delete(f.subs, state.Key()) }
func (f *fakeIface) SetThresholds(state plexval.State, high, low plexval.Value) {
	f.thresholds[state.Key()] = [2]plexval.Value{high, low}
}
func (f *fakeIface) EnqueueCommand(plexval.Value, string, []plexval.Value, string, string) {}
func (f *fakeIface) AbortCommand(plexval.Value)                                            {}
func (f *fakeIface) EnqueueUpdate(string, map[string]plexval.Value)                         {}
func (f *fakeIface) CurrentTime() float64                                                   { return f.time }

type fakeSubscriber struct {
	id        string
	delivered []plexval.Value
}

func (s *fakeSubscriber) SubscriberID() string           { return s.id }
func (s *fakeSubscriber) Deliver(v plexval.Value)        { s.delivered = append(s.delivered, v) }

func TestLookupNowMemoizesPerQuiescence(t *testing.T) {
	iface := newFakeIface()
	state := plexval.NewState("temp")
	iface.values[state.Key()] = plexval.Real(72.0)

	cache := plexcache.New(iface)
	cache.BeginQuiescence()

	cache.LookupNow(state)
	cache.LookupNow(state)
	if iface.lookupCalls != 1 {
		t.Fatalf("expected exactly one external fetch per quiescence, got %d", iface.lookupCalls)
	}

	cache.EndQuiescence()
	cache.BeginQuiescence()
	cache.LookupNow(state)
	if iface.lookupCalls != 2 {
		t.Fatalf("expected a fresh fetch in the next quiescence, got %d calls", iface.lookupCalls)
	}
}

func TestUpdateStateDuringQuiescenceIsFatal(t *testing.T) {
	cache := plexcache.New(newFakeIface())
	cache.BeginQuiescence()
	err := cache.UpdateState(plexval.NewState("x"), plexval.Integer(1))
	if err == nil {
		t.Fatal("UpdateState during quiescence must return an internal error")
	}
	if !plexval.IsKind(err, plexval.KindInternal) {
		t.Fatalf("expected KindInternal, got %v", err)
	}
}

func TestRegisterChangeLookupDeliversImmediately(t *testing.T) {
	iface := newFakeIface()
	state := plexval.NewState("temp")
	iface.values[state.Key()] = plexval.Real(50.0)

	cache := plexcache.New(iface)
	cache.BeginQuiescence()
	sub := &fakeSubscriber{id: "sub1"}
	cache.RegisterChangeLookup(sub, state, plexval.Real(5.0))

	if len(sub.delivered) != 1 {
		t.Fatalf("expected one immediate delivery on registration, got %d", len(sub.delivered))
	}
	v, _ := sub.delivered[0].AsReal()
	if v != 50.0 {
		t.Fatalf("delivered value = %v, want 50.0", v)
	}
}

func TestUpdateStateDeliversOnlyWhenToleranceCrossed(t *testing.T) {
	iface := newFakeIface()
	state := plexval.NewState("temp")
	iface.values[state.Key()] = plexval.Real(50.0)

	cache := plexcache.New(iface)
	cache.BeginQuiescence()
	sub := &fakeSubscriber{id: "sub1"}
	cache.RegisterChangeLookup(sub, state, plexval.Real(5.0))
	cache.EndQuiescence()

	cache.UpdateState(state, plexval.Real(52.0)) // within tolerance
	if len(sub.delivered) != 1 {
		t.Fatal("a change within tolerance must not redeliver")
	}

	cache.UpdateState(state, plexval.Real(60.0)) // crosses tolerance
	if len(sub.delivered) != 2 {
		t.Fatalf("a change beyond tolerance must redeliver, got %d deliveries", len(sub.delivered))
	}
}

func TestUnregisterChangeLookupUnsubscribesWhenEmpty(t *testing.T) {
	iface := newFakeIface()
	state := plexval.NewState("temp")
	cache := plexcache.New(iface)
	cache.BeginQuiescence()
	sub := &fakeSubscriber{id: "sub1"}
	cache.RegisterChangeLookup(sub, state, plexval.Real(1.0))
	cache.UnregisterChangeLookup(sub, state)

	if iface.subs[state.Key()] {
		t.Fatal("interface should have been told to unsubscribe once the last subscriber left")
	}
}

func TestCurrentTimeMemoizedPerQuiescence(t *testing.T) {
	iface := newFakeIface()
	iface.time = 1.0
	cache := plexcache.New(iface)
	cache.BeginQuiescence()
	t1 := cache.CurrentTime()
	iface.time = 2.0
	t2 := cache.CurrentTime()
	if t1 != t2 {
		t.Fatalf("CurrentTime must be memoized within one quiescence: got %v then %v", t1, t2)
	}
	cache.EndQuiescence()
	cache.BeginQuiescence()
	t3 := cache.CurrentTime()
	if t3 != 2.0 {
		t.Fatalf("CurrentTime must refetch in a new quiescence, got %v", t3)
	}
}
