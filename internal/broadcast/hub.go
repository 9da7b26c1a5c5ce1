// Package broadcast fans session snapshots out to attached viewers.
//
// Each viewer owns a bounded queue that its transport goroutine drains.
// Publish never blocks: a viewer whose queue is full is evicted, which its
// transport sees as a closed queue.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/buzzer/internal/buzzer"
	"github.com/playperu/buzzer/internal/metrics"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBufferSize        = 16

	// EventSessionUpdate tags snapshot envelopes.
	EventSessionUpdate = "session-update"
)

type Kind int

const (
	KindSnapshot Kind = iota
	KindHeartbeat
)

// Message is one item in a viewer queue. Heartbeats carry no data.
type Message struct {
	Kind Kind
	Data []byte
}

// Envelope is the serialized form of a snapshot message.
type Envelope struct {
	Type string         `json:"type"`
	Data buzzer.Session `json:"data"`
}

// Viewer is an attached output channel.
type Viewer struct {
	ch chan Message
}

// Messages returns the viewer queue. It is closed once the hub drops the viewer.
func (v *Viewer) Messages() <-chan Message {
	return v.ch
}

type Option func(*Hub)

func WithClock(c clockwork.Clock) Option {
	return func(h *Hub) { h.clock = c }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) { h.interval = d }
}

func WithBufferSize(n int) Option {
	return func(h *Hub) { h.bufferSize = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

type Hub struct {
	mu      sync.Mutex
	viewers map[*Viewer]struct{}
	last    []byte
	closed  bool

	clock      clockwork.Clock
	interval   time.Duration
	bufferSize int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		viewers:    make(map[*Viewer]struct{}),
		clock:      clockwork.NewRealClock(),
		interval:   DefaultHeartbeatInterval,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.bufferSize = max(h.bufferSize, 1)
	if h.metrics == nil {
		h.metrics = metrics.Discard()
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	return h
}

// Attach registers a new viewer. The last published snapshot, if any, is
// already queued when Attach returns. After Close the viewer comes back with
// its queue already closed.
func (h *Hub) Attach() *Viewer {
	v := &Viewer{ch: make(chan Message, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(v.ch)
		return v
	}
	if h.last != nil {
		v.ch <- Message{Kind: KindSnapshot, Data: h.last}
	}
	h.viewers[v] = struct{}{}
	h.metrics.ViewersActive.Set(float64(len(h.viewers)))
	h.logger.Debug("viewer attached", "viewers", len(h.viewers))
	return v
}

// Detach removes a viewer and closes its queue. Unknown or already
// detached viewers are ignored.
func (h *Hub) Detach(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removeLocked(v) {
		h.logger.Debug("viewer detached", "viewers", len(h.viewers))
	}
}

// Publish queues snap for every viewer.
func (h *Hub) Publish(snap buzzer.Session) {
	data, err := json.Marshal(Envelope{Type: EventSessionUpdate, Data: snap})
	if err != nil {
		h.logger.Error("marshal session snapshot", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = data
	h.metrics.SnapshotsPublished.Inc()
	for v := range h.viewers {
		select {
		case v.ch <- Message{Kind: KindSnapshot, Data: data}:
		default:
			h.logger.Warn("evicting slow viewer", "session_id", snap.SessionID)
			h.metrics.ViewersEvicted.Inc()
			h.removeLocked(v)
		}
	}
}

// Run emits heartbeats until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			h.heartbeat()
		}
	}
}

func (h *Hub) heartbeat() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		select {
		case v.ch <- Message{Kind: KindHeartbeat}:
		default:
			// A full queue already has traffic pending.
		}
	}
}

// Count returns the number of attached viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Close detaches every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for v := range h.viewers {
		h.removeLocked(v)
	}
}

func (h *Hub) removeLocked(v *Viewer) bool {
	if _, ok := h.viewers[v]; !ok {
		return false
	}
	delete(h.viewers, v)
	close(v.ch)
	h.metrics.ViewersActive.Set(float64(len(h.viewers)))
	return true
}
