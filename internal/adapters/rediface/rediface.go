// Package rediface is a sample plexcache.ExternalInterface backed by
// Redis (spec §2's domain stack): lookup_now reads a hash field,
// subscribe/unsubscribe track interest in a set, set_thresholds stores
// the advised envelope, and enqueue_command pushes onto a list consumed
// by a worker goroutine that publishes CommandAck/CommandReturn on a
// pub/sub channel this adapter forwards into the executive's inbound
// event queue. It demonstrates the External Interface contract; it is an
// external collaborator, not a core component, grounded on the teacher's
// internal/infrastructure/cache (go-redis client construction) and
// internal/application/trigger (the async job/ack plumbing shape).
package rediface

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plexil-group/plexil-sub002/pkg/plexconfig"
	"github.com/plexil-group/plexil-sub002/pkg/plexevent"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

const (
	statesKey        = "plexil:states"
	subscriptionsKey = "plexil:subscriptions"
	thresholdsPrefix = "plexil:thresholds:"
	commandsListKey  = "plexil:commands"
	ackChannel       = "plexil:acks"
)

// commandJob is what EnqueueCommand pushes onto commandsListKey; the
// worker goroutine pops and "executes" it, standing in for a real
// external command system.
type commandJob struct {
	Handle      string   `json:"handle"`
	Name        string   `json:"name"`
	Args        []string `json:"args"`
	ReturnVarID string   `json:"return_var_id"`
	AckVarID    string   `json:"ack_var_id"`
}

// ackMessage is what the worker goroutine publishes on ackChannel.
type ackMessage struct {
	Handle  string `json:"handle"`
	OK      bool   `json:"ok"`
	HasRet  bool   `json:"has_ret"`
	RetType string `json:"ret_type"`
	RetVal  string `json:"ret_val"`
	Abort   bool   `json:"abort"`
}

// Interface implements plexcache.ExternalInterface against a Redis
// instance (a real server or, in tests, github.com/alicebob/miniredis/v2).
type Interface struct {
	client *redis.Client
	queue  *plexevent.Queue
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	start time.Time
}

// New connects to Redis per cfg and starts the command worker and the ack
// subscriber goroutines. Events the worker/subscriber observe are pushed
// onto queue for the executive to drain on its next Step.
func New(cfg plexconfig.RedisConfig, queue *plexevent.Queue, log zerolog.Logger) (*Interface, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("rediface: connecting to redis: %w", err)
	}

	ctx, workerCancel := context.WithCancel(context.Background())
	i := &Interface{
		client: client,
		queue:  queue,
		log:    log,
		ctx:    ctx,
		cancel: workerCancel,
		done:   make(chan struct{}),
		start:  time.Now(),
	}

	go i.runCommandWorker()
	go i.runAckSubscriber()

	return i, nil
}

// Close stops the background goroutines and closes the Redis client.
func (i *Interface) Close() error {
	i.cancel()
	<-i.done
	return i.client.Close()
}

// LookupNow implements plexcache.ExternalInterface.
func (i *Interface) LookupNow(state plexval.State) plexval.Value {
	raw, err := i.client.HGet(i.ctx, statesKey, state.Key()).Result()
	if err != nil {
		return plexval.Unknown
	}
	v, ok := decodeValue(raw)
	if !ok {
		return plexval.Unknown
	}
	return v
}

// Subscribe implements plexcache.ExternalInterface.
func (i *Interface) Subscribe(state plexval.State) {
	i.client.SAdd(i.ctx, subscriptionsKey, state.Key())
}

// Unsubscribe implements plexcache.ExternalInterface.
func (i *Interface) Unsubscribe(state plexval.State) {
	i.client.SRem(i.ctx, subscriptionsKey, state.Key())
}

// SetThresholds implements plexcache.ExternalInterface.
func (i *Interface) SetThresholds(state plexval.State, high, low plexval.Value) {
	key := thresholdsPrefix + state.Key()
	i.client.HSet(i.ctx, key, map[string]any{
		"high": encodeValue(high),
		"low":  encodeValue(low),
	})
}

// EnqueueCommand implements plexcache.ExternalInterface.
func (i *Interface) EnqueueCommand(handle plexval.Value, name string, args []plexval.Value, returnVarID, ackVarID string) {
	handleStr, _ := handle.AsString()
	argStrs := make([]string, len(args))
	for idx, a := range args {
		argStrs[idx] = encodeValue(a)
	}
	job := commandJob{Handle: handleStr, Name: name, Args: argStrs, ReturnVarID: returnVarID, AckVarID: ackVarID}
	payload, err := json.Marshal(job)
	if err != nil {
		i.log.Error().Err(err).Str("handle", handleStr).Msg("encode command job failed")
		return
	}
	i.client.LPush(i.ctx, commandsListKey, payload)
}

// AbortCommand implements plexcache.ExternalInterface: published as an
// abort job on the same list the worker drains, with a distinguished
// command name so the worker recognizes it.
func (i *Interface) AbortCommand(handle plexval.Value) {
	handleStr, _ := handle.AsString()
	payload, _ := json.Marshal(commandJob{Handle: handleStr, Name: "__abort__"})
	i.client.LPush(i.ctx, commandsListKey, payload)
}

// EnqueueUpdate implements plexcache.ExternalInterface: stores the
// key/value pairs and immediately acknowledges, since this sample adapter
// has no real planning-system side effect to await.
func (i *Interface) EnqueueUpdate(nodeID string, pairs map[string]plexval.Value) {
	fields := make(map[string]any, len(pairs))
	for k, v := range pairs {
		fields[k] = encodeValue(v)
	}
	key := "plexil:updates:" + nodeID
	if len(fields) > 0 {
		i.client.HSet(i.ctx, key, fields)
	}
	i.queue.Push(plexevent.UpdateAck(nodeID, true))
}

// CurrentTime implements plexcache.ExternalInterface.
func (i *Interface) CurrentTime() float64 {
	return time.Since(i.start).Seconds()
}

// runCommandWorker stands in for the real external command executor: it
// pops jobs off commandsListKey and immediately reports success, echoing
// back the command name as a String return value.
func (i *Interface) runCommandWorker() {
	for {
		res, err := i.client.BLPop(i.ctx, time.Second, commandsListKey).Result()
		if err != nil {
			if i.ctx.Err() != nil {
				close(i.done)
				return
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var job commandJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			continue
		}
		if job.Name == "__abort__" {
			i.publishAck(ackMessage{Handle: job.Handle, OK: true, Abort: true})
			continue
		}
		i.publishAck(ackMessage{
			Handle:  job.Handle,
			OK:      true,
			HasRet:  true,
			RetType: plexval.TypeString.String(),
			RetVal:  encodeValue(plexval.String(job.Name)),
		})
	}
}

func (i *Interface) publishAck(msg ackMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	i.client.Publish(i.ctx, ackChannel, payload)
}

// runAckSubscriber listens for worker-published acks and pushes the
// corresponding CommandAck/CommandReturn events onto the executive's
// inbound queue, and a CommandAbortAck for the synthesized abort replies.
func (i *Interface) runAckSubscriber() {
	sub := i.client.Subscribe(i.ctx, ackChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-i.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ack ackMessage
			if err := json.Unmarshal([]byte(msg.Payload), &ack); err != nil {
				continue
			}
			handle := plexval.String(ack.Handle)
			if ack.Abort {
				i.queue.Push(plexevent.CommandAbortAck(handle, ack.OK))
				continue
			}
			i.queue.Push(plexevent.CommandAck(handle, plexval.Handle(plexval.CommandAccepted)))
			if ack.HasRet {
				if v, ok := decodeValue(ack.RetVal); ok {
					i.queue.Push(plexevent.CommandReturn(handle, v))
				}
			}
		}
	}
}

// encodeValue/decodeValue give scalar Values a stable string encoding for
// storage as Redis hash fields. Array values are out of scope for this
// sample adapter (it only ever stores states the demo plans read as
// scalars); encodeValue renders them as Unknown rather than guessing a
// wire format no part of this adapter's plans exercise.
func encodeValue(v plexval.Value) string {
	if !v.IsKnown() {
		return "?"
	}
	switch v.Type() {
	case plexval.TypeBoolean:
		b, _ := v.AsBool()
		return fmt.Sprintf("b:%t", b)
	case plexval.TypeInteger:
		n, _ := v.AsInt()
		return fmt.Sprintf("i:%d", n)
	case plexval.TypeReal:
		r, _ := v.AsReal()
		return fmt.Sprintf("r:%g", r)
	case plexval.TypeString:
		s, _ := v.AsString()
		return "s:" + s
	default:
		return "?"
	}
}

func decodeValue(raw string) (plexval.Value, bool) {
	if len(raw) < 2 || raw == "?" {
		return plexval.Unknown, false
	}
	tag, payload := raw[:2], raw[2:]
	switch tag {
	case "b:":
		return plexval.Boolean(payload == "true"), true
	case "i:":
		var n int64
		if _, err := fmt.Sscanf(payload, "%d", &n); err != nil {
			return plexval.Unknown, false
		}
		return plexval.Integer(n), true
	case "r:":
		var r float64
		if _, err := fmt.Sscanf(payload, "%g", &r); err != nil {
			return plexval.Unknown, false
		}
		return plexval.Real(r), true
	case "s:":
		return plexval.String(payload), true
	default:
		return plexval.Unknown, false
	}
}
