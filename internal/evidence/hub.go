package evidence

import (
	"log/slog"
	"sync"
	"time"
)

// subscriber is one live consumer of a channel's evidence stream.
type subscriber struct {
	ch chan Event
}

// channelLog owns one channel's sequence counter, durable spool, and
// live subscriber set.
type channelLog struct {
	mu        sync.Mutex
	channelID string
	nextSeq   int64
	nextSubID int
	spool     *spool
	subs      map[int]*subscriber
}

// Hub is the process-wide evidence authority: one per core process,
// fanning out per-channel sequenced events to live gRPC-stream
// subscribers while durably spooling every event to JSONL. Grounded on
// the teacher's HookManager — a registered-subscriber set drained by a
// bounded worker pool. When every delivery slot is busy, publishing waits
// for one to free up; a slot is held until the subscriber takes the event
// or 2s pass, so a slow subscriber can delay event production by up to
// that bound.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channelLog
	spoolDir string
	log      *slog.Logger
	workers  chan struct{}
}

// NewHub constructs a Hub spooling to spoolDir, bounding concurrent
// subscriber deliveries to maxConcurrentDeliveries (default 10).
func NewHub(spoolDir string, maxConcurrentDeliveries int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if maxConcurrentDeliveries <= 0 {
		maxConcurrentDeliveries = 10
	}
	return &Hub{
		channels: make(map[string]*channelLog),
		spoolDir: spoolDir,
		log:      log.With("component", "evidence_hub"),
		workers:  make(chan struct{}, maxConcurrentDeliveries),
	}
}

func (h *Hub) channelFor(channelID string) *channelLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl, ok := h.channels[channelID]; ok {
		return cl
	}
	sp, err := openSpool(h.spoolDir, channelID, h.log)
	if err != nil {
		h.log.Error("evidence spool open failed, running without durability", "channel_id", channelID, "error", err)
	}
	cl := &channelLog{
		channelID: channelID,
		spool:     sp,
		subs:      make(map[int]*subscriber),
	}
	h.channels[channelID] = cl
	return cl
}

// Emitter returns a pipeline.EvidenceEmitter bound to channelID.
func (h *Hub) Emitter(channelID string) *Emitter {
	return &Emitter{hub: h, channelID: channelID}
}

func (h *Hub) publish(channelID string, partial Event) {
	cl := h.channelFor(channelID)

	cl.mu.Lock()
	partial.ChannelID = channelID
	partial.Sequence = cl.nextSeq
	cl.nextSeq++
	partial.EmittedAtUtcUs = time.Now().UnixMicro()
	snapshot := make([]*subscriber, 0, len(cl.subs))
	for _, s := range cl.subs {
		snapshot = append(snapshot, s)
	}
	sp := cl.spool
	cl.mu.Unlock()

	if sp != nil {
		if err := sp.append(partial); err != nil {
			h.log.Warn("evidence event not durably spooled", "channel_id", channelID, "sequence", partial.Sequence, "error", err)
		}
	}

	for _, s := range snapshot {
		h.deliverAsync(s, partial)
	}
}

func (h *Hub) deliverAsync(s *subscriber, ev Event) {
	h.workers <- struct{}{}
	go func() {
		defer func() { <-h.workers }()
		select {
		case s.ch <- ev:
		case <-time.After(2 * time.Second):
			h.log.Warn("evidence subscriber delivery timed out, dropping event", "sequence", ev.Sequence)
		}
	}()
}

// Subscribe returns a channel of events with Sequence > fromSequence for
// channelID: the durable spool's backlog first, then live events as they
// publish. The returned cancel func must be called to release the
// subscription; it does not close the returned channel, since an
// in-flight deliverAsync send could otherwise race a send-on-closed-channel.
func (h *Hub) Subscribe(channelID string, fromSequence int64) (<-chan Event, func(), error) {
	cl := h.channelFor(channelID)

	cl.mu.Lock()
	sp := cl.spool
	id := cl.nextSubID
	cl.nextSubID++
	out := make(chan Event, 64)
	sub := &subscriber{ch: out}
	cl.subs[id] = sub
	cl.mu.Unlock()

	if sp != nil {
		backlog, err := sp.replay(fromSequence)
		if err != nil {
			h.log.Warn("evidence replay failed", "channel_id", channelID, "error", err)
		} else {
			go func() {
				for _, ev := range backlog {
					out <- ev
				}
			}()
		}
	}

	cancel := func() {
		cl.mu.Lock()
		delete(cl.subs, id)
		cl.mu.Unlock()
	}
	return out, cancel, nil
}

// Ack persists the consumer's high-water mark for channelID to the
// channel's spool ack file. Subscribe does not read that file back: replay
// always starts from the fromSequence its caller passes.
func (h *Hub) Ack(channelID string, sequence int64) {
	cl := h.channelFor(channelID)
	cl.mu.Lock()
	sp := cl.spool
	cl.mu.Unlock()
	if sp != nil {
		if err := sp.persistAck(sequence); err != nil {
			h.log.Warn("evidence ack persist failed", "channel_id", channelID, "error", err)
		}
	}
}

// Close flushes and closes every channel's spool.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for _, cl := range h.channels {
		if cl.spool != nil {
			if err := cl.spool.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
