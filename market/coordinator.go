package market

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/internal/obs"
)

// Coordinator ingests raw push-feed events, drops duplicate and out-of-order
// deliveries, and fans the survivors out to registered consumers.
//
// Dedup keys on (symbol, sequence), never on price content: two ticks with
// identical prices but distinct sequence numbers are both real. Consumers
// receive events on bounded channels and must keep up; a full channel drops
// the event for that consumer and counts it, it never blocks the feed.
type Coordinator struct {
	mu        sync.Mutex
	marks     map[string]watermark
	lastTicks map[string]Tick
	consumers []*consumer
	closed    bool
	log       zerolog.Logger
}

type watermark struct {
	seq  uint64
	time time.Time
}

type consumer struct {
	name string
	ch   chan Event
}

func NewCoordinator(log zerolog.Logger) *Coordinator {
	return &Coordinator{
		marks:     make(map[string]watermark),
		lastTicks: make(map[string]Tick),
		log:       log.With().Str("component", "coordinator").Logger(),
	}
}

// Subscribe registers a consumer and returns its delivery channel. Buffer
// sizes the channel; each consumer owns its own backpressure.
func (c *Coordinator) Subscribe(name string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := &consumer{name: name, ch: make(chan Event, buffer)}
	c.consumers = append(c.consumers, sub)
	return sub.ch
}

// Ingest accepts one raw event. It returns false when the event is a
// duplicate or out-of-order delivery and was dropped.
func (c *Coordinator) Ingest(ev Event) bool {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return false
	}

	key := ev.Symbol()
	mark, seen := c.marks[key]
	if seen && !c.advances(ev, mark) {
		c.mu.Unlock()
		obs.DuplicatesDropped.WithLabelValues(key).Inc()
		c.log.Debug().Str("symbol", key).Uint64("seq", ev.Seq()).Msg("duplicate event dropped")
		return false
	}
	next := watermark{seq: ev.Seq(), time: ev.At()}
	if next.seq < mark.seq {
		// An unsequenced event must not rewind the sequence watermark.
		next.seq = mark.seq
	}
	c.marks[key] = next

	if t, ok := ev.(Tick); ok {
		c.lastTicks[t.Instrument] = t
		obs.TicksTotal.WithLabelValues(t.Instrument).Inc()
	}

	subs := c.consumers
	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			obs.ConsumerOverflow.WithLabelValues(sub.name).Inc()
			c.log.Warn().Str("consumer", sub.name).Str("symbol", key).Msg("consumer queue full, event dropped")
		}
	}
	return true
}

// advances reports whether ev moves the per-symbol watermark forward.
// Sequence numbers decide between sequenced events; an event carrying no
// sequence falls back to a strictly increasing timestamp, so a channel the
// venue leaves unsequenced is not starved by sequenced neighbors.
func (c *Coordinator) advances(ev Event, mark watermark) bool {
	if ev.Seq() == 0 || mark.seq == 0 {
		return ev.At().After(mark.time)
	}
	return ev.Seq() > mark.seq
}

// LastTick returns the most recent accepted tick for a symbol. RiskGuard
// uses this watermark for its staleness check.
func (c *Coordinator) LastTick(symbol string) (Tick, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastTicks[symbol]
	return t, ok
}

// Close stops delivery and closes every consumer channel.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, sub := range c.consumers {
		close(sub.ch)
	}
}
