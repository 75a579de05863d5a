package rediface_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plexil-group/plexil-sub002/internal/adapters/rediface"
	"github.com/plexil-group/plexil-sub002/pkg/plexconfig"
	"github.com/plexil-group/plexil-sub002/pkg/plexevent"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// newTestInterface starts a miniredis server (so these tests run without a
// live Redis) and connects rediface.Interface to it, plus a second raw
// go-redis client against the same server for seeding/inspecting data
// outside the adapter under test.
func newTestInterface(t *testing.T) (*rediface.Interface, *plexevent.Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	queue := plexevent.NewQueue()
	iface, err := rediface.New(plexconfig.RedisConfig{Addr: mr.Addr()}, queue, zerolog.Nop())
	if err != nil {
		t.Fatalf("rediface.New: %v", err)
	}
	t.Cleanup(func() { iface.Close() })

	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })
	return iface, queue, raw
}

func drainEventually(t *testing.T, queue *plexevent.Queue, min int, timeout time.Duration) []plexevent.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var got []plexevent.Event
	for time.Now().Before(deadline) {
		got = append(got, queue.DrainSnapshot()...)
		if len(got) >= min {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected at least %d events within %v, got %d", min, timeout, len(got))
	return nil
}

func TestLookupNowRoundTripsThroughRawHSet(t *testing.T) {
	ctx := context.Background()
	iface, _, raw := newTestInterface(t)
	state := plexval.NewState("temp")

	// Seed the hash field the way the adapter itself would (matching
	// encodeValue's wire format) and confirm LookupNow decodes it back.
	if err := raw.HSet(ctx, "plexil:states", state.Key(), "r:98.6").Err(); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	got := iface.LookupNow(state)
	v, ok := got.AsReal()
	if !ok || v != 98.6 {
		t.Fatalf("LookupNow = %v, want 98.6", got)
	}
}

func TestLookupNowMissingKeyIsUnknown(t *testing.T) {
	iface, _, _ := newTestInterface(t)
	got := iface.LookupNow(plexval.NewState("missing"))
	if got.IsKnown() {
		t.Fatalf("expected Unknown for an unset state, got %v", got)
	}
}

func TestSubscribeUnsubscribeTrackedInRedisSet(t *testing.T) {
	ctx := context.Background()
	iface, _, raw := newTestInterface(t)
	state := plexval.NewState("temp")

	iface.Subscribe(state)
	members, err := raw.SMembers(ctx, "plexil:subscriptions").Result()
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 1 || members[0] != state.Key() {
		t.Fatalf("subscriptions set = %v, want [%s]", members, state.Key())
	}

	iface.Unsubscribe(state)
	members, _ = raw.SMembers(ctx, "plexil:subscriptions").Result()
	if len(members) != 0 {
		t.Fatalf("expected empty subscriptions set after Unsubscribe, got %v", members)
	}
}

func TestSetThresholdsStoresEnvelope(t *testing.T) {
	ctx := context.Background()
	iface, _, raw := newTestInterface(t)
	state := plexval.NewState("temp")

	iface.SetThresholds(state, plexval.Real(100.0), plexval.Real(0.0))

	high, err := raw.HGet(ctx, "plexil:thresholds:"+state.Key(), "high").Result()
	if err != nil {
		t.Fatalf("HGet high: %v", err)
	}
	if high != "r:100" {
		t.Fatalf("stored high = %q, want r:100", high)
	}
}

func TestEnqueueCommandRoundTripDeliversAckAndReturn(t *testing.T) {
	iface, queue, _ := newTestInterface(t)

	handle := plexval.String("h1")
	iface.EnqueueCommand(handle, "log_message", []plexval.Value{plexval.String("hi")}, "", "")

	events := drainEventually(t, queue, 2, 2*time.Second)
	var sawAck, sawReturn bool
	for _, e := range events {
		switch e.Kind {
		case plexevent.KindCommandAck:
			sawAck = true
		case plexevent.KindCommandReturn:
			sawReturn = true
			s, ok := e.Value.AsString()
			if !ok || s != "log_message" {
				t.Fatalf("return value = %v, want echoed command name", e.Value)
			}
		}
	}
	if !sawAck || !sawReturn {
		t.Fatalf("expected both an ack and a return event, got %v", events)
	}
}

func TestAbortCommandDeliversAbortAck(t *testing.T) {
	iface, queue, _ := newTestInterface(t)

	iface.AbortCommand(plexval.String("h1"))

	events := drainEventually(t, queue, 1, 2*time.Second)
	if events[0].Kind != plexevent.KindCommandAbortAck || !events[0].AbortOK {
		t.Fatalf("expected a successful abort ack for the abort job, got %v", events[0])
	}
}

func TestEnqueueUpdateStoresFieldsAndAcksImmediately(t *testing.T) {
	ctx := context.Background()
	iface, queue, raw := newTestInterface(t)

	iface.EnqueueUpdate("node1", map[string]plexval.Value{"x": plexval.Integer(1)})

	events := drainEventually(t, queue, 1, time.Second)
	if events[0].Kind != plexevent.KindUpdateAck || events[0].NodeID != "node1" || !events[0].UpdateOK {
		t.Fatalf("expected an immediate successful UpdateAck for node1, got %v", events[0])
	}

	got, err := raw.HGet(ctx, "plexil:updates:node1", "x").Result()
	if err != nil {
		t.Fatalf("HGet: %v", err)
	}
	if got != "i:1" {
		t.Fatalf("stored update field = %q, want i:1", got)
	}
}

func TestCurrentTimeAdvancesWithWallClock(t *testing.T) {
	iface, _, _ := newTestInterface(t)
	t1 := iface.CurrentTime()
	time.Sleep(20 * time.Millisecond)
	t2 := iface.CurrentTime()
	if t2 <= t1 {
		t.Fatalf("CurrentTime should advance: t1=%v t2=%v", t1, t2)
	}
}
