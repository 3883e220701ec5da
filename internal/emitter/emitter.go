// Package emitter implements the trace-event Emitter named in §9 "Event
// emission": append-only, per-run, ordered by coordinator serialization.
// It keeps a bounded in-memory log per run for replay on stream-connect,
// and fans events out to local subscribers and (optionally) a Redis
// PubSub channel so a separate process can relay them over WebSocket —
// the same split the teacher uses between its coordinator publishing
// events and cmd/fanout relaying them to browsers.
package emitter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Event is one trace event in a run's append-only log.
type Event struct {
	RunID     string                 `json:"runId"`
	Seq       int64                  `json:"seq"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	EmittedAt time.Time              `json:"emittedAt"`
}

// maxBufferedPerRun bounds the replay buffer each run keeps; older events
// are dropped once a run exceeds it (subscribers connected before the
// trim still receive every event broadcast live).
const maxBufferedPerRun = 2000

const channelPrefix = "flowctl:run:events:"

// Emitter satisfies coordinator.Emitter and executor-side trace needs. A
// zero-value Emitter (no redis client) works as a purely local,
// single-process event log.
type Emitter struct {
	mu   sync.Mutex
	runs map[string]*runLog

	redis *redis.Client
	log   Logger
}

type runLog struct {
	seq   int64
	buf   []Event
	subs  map[chan Event]struct{}
}

// New builds an Emitter. redisClient may be nil for single-process use.
func New(redisClient *redis.Client, log Logger) *Emitter {
	return &Emitter{runs: make(map[string]*runLog), redis: redisClient, log: log}
}

func (e *Emitter) runLogFor(runID string) *runLog {
	if e.runs == nil {
		e.runs = make(map[string]*runLog)
	}
	rl, ok := e.runs[runID]
	if !ok {
		rl = &runLog{subs: make(map[chan Event]struct{})}
		e.runs[runID] = rl
	}
	return rl
}

// Emit appends kind/payload to runID's trace log, broadcasts it to local
// subscribers, and (if configured) publishes it to Redis PubSub for other
// processes' subscribers. Never blocks the caller on a full subscriber
// channel — a slow subscriber is dropped rather than stalling the
// coordinator.
func (e *Emitter) Emit(ctx context.Context, runID, kind string, payload map[string]interface{}) {
	e.mu.Lock()
	rl := e.runLogFor(runID)
	rl.seq++
	ev := Event{RunID: runID, Seq: rl.seq, Kind: kind, Payload: payload, EmittedAt: time.Now()}
	rl.buf = append(rl.buf, ev)
	if len(rl.buf) > maxBufferedPerRun {
		rl.buf = rl.buf[len(rl.buf)-maxBufferedPerRun:]
	}
	for ch := range rl.subs {
		select {
		case ch <- ev:
		default:
			delete(rl.subs, ch)
			close(ch)
		}
	}
	e.mu.Unlock()

	if e.redis == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		if e.log != nil {
			e.log.Error("emitter: marshal event failed", "runId", runID, "error", err)
		}
		return
	}
	if err := e.redis.Publish(ctx, channelPrefix+runID, b).Err(); err != nil && e.log != nil {
		e.log.Warn("emitter: redis publish failed", "runId", runID, "error", err)
	}
}

// Replay returns the buffered events for runID recorded so far, in order.
func (e *Emitter) Replay(runID string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	rl, ok := e.runs[runID]
	if !ok {
		return nil
	}
	out := make([]Event, len(rl.buf))
	copy(out, rl.buf)
	return out
}

// Subscribe registers a channel that receives every future event emitted
// for runID. The returned func unsubscribes and closes the channel.
func (e *Emitter) Subscribe(runID string) (<-chan Event, func()) {
	e.mu.Lock()
	rl := e.runLogFor(runID)
	ch := make(chan Event, 64)
	rl.subs[ch] = struct{}{}
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if rl, ok := e.runs[runID]; ok {
			if _, present := rl.subs[ch]; present {
				delete(rl.subs, ch)
				close(ch)
			}
		}
	}
}

// Forget drops a completed run's buffered log and closes any remaining
// subscriber channels; callers should do this once a run's terminal
// status has been observed by every interested subscriber.
func (e *Emitter) Forget(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rl, ok := e.runs[runID]
	if !ok {
		return
	}
	for ch := range rl.subs {
		close(ch)
	}
	delete(e.runs, runID)
}

// RedisChannel returns the PubSub channel name events for runID are
// published to, for a relay process (a separate fan-out process, as the
// teacher's cmd/fanout does) subscribing from a different process than the
// one running the coordinator. This module's own API server does not use
// it: it streams from the local Subscribe.
func RedisChannel(runID string) string { return channelPrefix + runID }
