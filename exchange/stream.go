package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/backoff"
)

// Stream connects to the exchange's private websocket and converts raw
// messages into typed market events. It reconnects with backoff and leaves
// dedup to the coordinator: after a reconnect the exchange replays recent
// messages, and the sequence watermark absorbs them.
type Stream struct {
	url       string
	apiKey    string
	symbols   []string
	reconnect backoff.Config
	log       zerolog.Logger

	dial func(ctx context.Context, url string) (wsConn, error)

	// failures counts consecutive failed sessions and drives the redial
	// delay. Touched only by Run's goroutine.
	failures int
}

// wsConn is the slice of *websocket.Conn the stream uses; tests substitute
// a fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

func NewStream(url, apiKey string, symbols []string, log zerolog.Logger) *Stream {
	return &Stream{
		url:       url,
		apiKey:    apiKey,
		symbols:   symbols,
		reconnect: backoff.Default(),
		log:       log.With().Str("component", "stream").Logger(),
		dial: func(ctx context.Context, url string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

type streamMsg struct {
	Type       string `json:"type"`
	Instrument string `json:"instId"`
	Sequence   uint64 `json:"seq"`
	Timestamp  int64  `json:"ts"`

	// tick fields
	Bid  string `json:"bidPx"`
	Ask  string `json:"askPx"`
	Mark string `json:"markPx"`
	Last string `json:"lastPx"`

	// fill fields
	OrderID   string `json:"ordId"`
	ClientKey string `json:"clientOrderId"`
	Units     string `json:"fillSz"`
	Price     string `json:"fillPx"`
	Side      string `json:"side"`

	// account fields
	Equity     string `json:"equity"`
	MarginUsed string `json:"marginUsed"`
}

type subscribeReq struct {
	Op      string   `json:"op"`
	Args    []string `json:"args"`
	APIKey  string   `json:"apiKey,omitempty"`
	Channel string   `json:"channel,omitempty"`
}

// Run pushes events into deliver until ctx is done. deliver is expected to
// be the coordinator's Ingest; its return value is ignored here because a
// rejected duplicate is not a stream failure.
func (s *Stream) Run(ctx context.Context, deliver func(market.Event) bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		healthy, err := s.runOnce(ctx, deliver)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if healthy {
			// The session was up and reading frames before it broke;
			// start the backoff over.
			s.failures = 0
		}
		s.log.Warn().Err(err).Int("failures", s.failures).Msg("stream disconnected, reconnecting")

		// Jittered wait before redial, growing across consecutive dead
		// sessions; the same Config shape the REST retries use.
		t := time.NewTimer(s.reconnect.Delay(s.failures))
		s.failures++
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// runOnce drives one websocket session. healthy reports whether the session
// got as far as reading frames, which resets the reconnect backoff.
func (s *Stream) runOnce(ctx context.Context, deliver func(market.Event) bool) (healthy bool, _ error) {
	conn, err := s.dial(ctx, s.url)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeReq{Op: "subscribe", Args: s.symbols, APIKey: s.apiKey}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return healthy, nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return healthy, fmt.Errorf("read: %w", err)
		}
		healthy = true

		ev, ok, err := parseMessage(raw)
		if err != nil {
			// A malformed message is logged and skipped; killing the
			// connection over it would cost a resubscribe for nothing.
			s.log.Error().Err(err).Str("raw", trimForErr(string(raw))).Msg("bad stream message")
			continue
		}
		if !ok {
			continue
		}
		deliver(ev)
	}
}

// parseMessage converts one raw frame into a typed event. ok=false means a
// heartbeat or other ignorable frame.
func parseMessage(raw []byte) (market.Event, bool, error) {
	var msg streamMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false, fmt.Errorf("decode: %w", err)
	}

	at := time.UnixMilli(msg.Timestamp).UTC()

	switch strings.ToLower(msg.Type) {
	case "heartbeat", "pong", "subscribed":
		return nil, false, nil

	case "tick":
		bid, err := parseFloat(msg.Bid)
		if err != nil {
			return nil, false, fmt.Errorf("bid: %w", err)
		}
		ask, err := parseFloat(msg.Ask)
		if err != nil {
			return nil, false, fmt.Errorf("ask: %w", err)
		}
		mark, err := parseFloat(msg.Mark)
		if err != nil {
			return nil, false, fmt.Errorf("mark: %w", err)
		}
		last, _ := parseFloat(msg.Last)
		return market.Tick{
			Instrument: trimContract(msg.Instrument),
			Sequence:   msg.Sequence,
			Time:       at,
			Bid:        bid,
			Ask:        ask,
			Mark:       mark,
			Last:       last,
		}, true, nil

	case "fill":
		units, err := parseFloat(msg.Units)
		if err != nil {
			return nil, false, fmt.Errorf("fill size: %w", err)
		}
		if strings.EqualFold(msg.Side, SideSell) {
			units = -units
		}
		price, err := parseFloat(msg.Price)
		if err != nil {
			return nil, false, fmt.Errorf("fill price: %w", err)
		}
		return market.Fill{
			Instrument: trimContract(msg.Instrument),
			Sequence:   msg.Sequence,
			Time:       at,
			IntentKey:  msg.ClientKey,
			OrderID:    msg.OrderID,
			Units:      units,
			Price:      price,
		}, true, nil

	case "account":
		equity, err := parseFloat(msg.Equity)
		if err != nil {
			return nil, false, fmt.Errorf("equity: %w", err)
		}
		used, _ := parseFloat(msg.MarginUsed)
		return market.AccountUpdate{
			Sequence:   msg.Sequence,
			Time:       at,
			Equity:     equity,
			MarginUsed: used,
		}, true, nil

	default:
		return nil, false, nil
	}
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
