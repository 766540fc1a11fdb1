package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/backoff"
)

func TestParseTick(t *testing.T) {
	raw := []byte(`{"type":"tick","instId":"BTC-USDT-SWAP","seq":42,"ts":1700000000000,
		"bidPx":"49999.5","askPx":"50000.5","markPx":"50000.1","lastPx":"50000.0"}`)

	ev, ok, err := parseMessage(raw)
	require.NoError(t, err)
	require.True(t, ok)

	tick, isTick := ev.(market.Tick)
	require.True(t, isTick)
	assert.Equal(t, "BTC-USDT", tick.Instrument)
	assert.Equal(t, uint64(42), tick.Sequence)
	assert.Equal(t, 49999.5, tick.Bid)
	assert.Equal(t, 50000.1, tick.Mark)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), tick.Time)
}

func TestParseFillSignsSells(t *testing.T) {
	raw := []byte(`{"type":"fill","instId":"ETH-USDT-SWAP","seq":7,"ts":1700000000000,
		"ordId":"o9","clientOrderId":"key-9","fillSz":"2","fillPx":"3000.5","side":"sell"}`)

	ev, ok, err := parseMessage(raw)
	require.NoError(t, err)
	require.True(t, ok)

	fill, isFill := ev.(market.Fill)
	require.True(t, isFill)
	assert.Equal(t, "ETH-USDT", fill.Instrument)
	assert.Equal(t, "key-9", fill.IntentKey)
	assert.Equal(t, -2.0, fill.Units)
	assert.Equal(t, 3000.5, fill.Price)
}

func TestParseAccount(t *testing.T) {
	raw := []byte(`{"type":"account","seq":3,"ts":1700000000000,"equity":"9800","marginUsed":"450"}`)

	ev, ok, err := parseMessage(raw)
	require.NoError(t, err)
	require.True(t, ok)

	acct, isAcct := ev.(market.AccountUpdate)
	require.True(t, isAcct)
	assert.Equal(t, 9800.0, acct.Equity)
	assert.Equal(t, 450.0, acct.MarginUsed)
	assert.Empty(t, acct.Symbol())
}

func TestParseSkipsHeartbeats(t *testing.T) {
	for _, raw := range []string{
		`{"type":"heartbeat"}`,
		`{"type":"pong"}`,
		`{"type":"subscribed","instId":"BTC-USDT-SWAP"}`,
		`{"type":"somethingNew"}`,
	} {
		_, ok, err := parseMessage([]byte(raw))
		assert.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
}

func TestParseMalformed(t *testing.T) {
	_, _, err := parseMessage([]byte(`not json`))
	assert.Error(t, err)

	_, _, err = parseMessage([]byte(`{"type":"tick","bidPx":"abc"}`))
	assert.Error(t, err)
}

// fakeConn scripts a websocket session: frames are replayed, then readErr.
type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	readErr error
	written []any
	closed  bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		if c.readErr == nil {
			return 0, nil, errors.New("eof")
		}
		return 0, nil, c.readErr
	}
	raw := c.frames[0]
	c.frames = c.frames[1:]
	return 1, raw, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestRunDeliversAndSubscribes(t *testing.T) {
	conn := &fakeConn{
		frames: [][]byte{
			[]byte(`{"type":"subscribed"}`),
			[]byte(`{"type":"tick","instId":"BTC-USDT-SWAP","seq":1,"ts":1700000000000,"bidPx":"1","askPx":"2","markPx":"1.5","lastPx":"1.4"}`),
			[]byte(`garbage`),
			[]byte(`{"type":"tick","instId":"BTC-USDT-SWAP","seq":2,"ts":1700000001000,"bidPx":"1","askPx":"2","markPx":"1.6","lastPx":"1.5"}`),
		},
		readErr: errors.New("connection reset"),
	}

	s := NewStream("wss://test", "key", []string{"BTC-USDT-SWAP"}, zerolog.Nop())
	dials := 0
	s.dial = func(ctx context.Context, url string) (wsConn, error) {
		dials++
		if dials > 1 {
			return nil, errors.New("no more")
		}
		return conn, nil
	}
	s.reconnect.InitialDelay = time.Millisecond
	s.reconnect.MaxDelay = time.Millisecond

	var mu sync.Mutex
	var got []market.Event
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, func(ev market.Event) bool {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
			if len(got) == 2 {
				cancel()
			}
			return true
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	// The malformed frame is skipped; both real ticks arrive in order.
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq())
	assert.Equal(t, uint64(2), got[1].Seq())

	require.NotEmpty(t, conn.written)
	sub, isSub := conn.written[0].(subscribeReq)
	require.True(t, isSub)
	assert.Equal(t, "subscribe", sub.Op)
	assert.Equal(t, []string{"BTC-USDT-SWAP"}, sub.Args)
}

func TestReconnectBackoffGrowsAndResets(t *testing.T) {
	s := NewStream("wss://test", "key", nil, zerolog.Nop())
	s.reconnect = backoff.Config{
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
		JitterFactor: 0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two dead dials, then a session that reads a frame before dying, then
	// one more dead dial.
	dials := 0
	s.dial = func(ctx context.Context, url string) (wsConn, error) {
		dials++
		switch dials {
		case 3:
			return &fakeConn{
				frames:  [][]byte{[]byte(`{"type":"heartbeat"}`)},
				readErr: errors.New("connection reset"),
			}, nil
		case 4:
			cancel()
			return nil, errors.New("refused")
		default:
			return nil, errors.New("refused")
		}
	}

	s.Run(ctx, func(market.Event) bool { return true })

	require.Equal(t, 4, dials)
	// Two dead dials pushed failures to 2; the healthy third session reset
	// the counter before its own disconnect bumped it back to 1. Without
	// the reset it would sit at 3 here.
	assert.Equal(t, 1, s.failures)
}
