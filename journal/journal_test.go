package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransition(at time.Time) TransitionRecord {
	return TransitionRecord{
		Time: at, Symbol: "BTC-USDT", From: "OPEN", To: "CLOSING",
		Reason: "close intent", IntentKey: "k1", Units: 1.0, Price: 50000,
	}
}

func TestCSVWritesAllRecordTypes(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenCSV(dir)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, j.Transition(sampleTransition(now)))
	require.NoError(t, j.Action(ActionRecord{
		Time: now, Symbol: "BTC-USDT", Action: "CLOSE", Origin: "risk-guard",
		IntentKey: "k1", Protective: true, Outcome: "dispatched",
	}))
	require.NoError(t, j.Drift(DriftRecord{
		Time: now, Symbol: "BTC-USDT", Field: "units",
		Local: 1.0, Remote: 0.8, Resolution: "rest-wins",
	}))
	require.NoError(t, j.Mode(ModeRecord{Time: now, Symbol: "BTC-USDT", Mode: "unverified", Reason: "feed gap"}))
	require.NoError(t, j.Close())

	f, err := os.Open(filepath.Join(dir, "transitions.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one row")
	assert.Equal(t, "symbol", rows[0][1])
	assert.Equal(t, "BTC-USDT", rows[1][1])
	assert.Equal(t, "CLOSING", rows[1][3])

	for _, name := range []string{"actions.csv", "drift.csv", "modes.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestCSVAppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	j, err := OpenCSV(dir)
	require.NoError(t, err)
	require.NoError(t, j.Transition(sampleTransition(now)))
	require.NoError(t, j.Close())

	j, err = OpenCSV(dir)
	require.NoError(t, err)
	require.NoError(t, j.Transition(sampleTransition(now.Add(time.Second))))
	require.NoError(t, j.Close())

	f, err := os.Open(filepath.Join(dir, "transitions.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3, "one header, two rows")
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, j.Transition(sampleTransition(base)))
	require.NoError(t, j.Transition(TransitionRecord{
		Time: base.Add(time.Second), Symbol: "BTC-USDT",
		From: "CLOSING", To: "CLOSED", Reason: "feed fill",
	}))
	require.NoError(t, j.Transition(TransitionRecord{
		Time: base, Symbol: "ETH-USDT", From: "", To: "OPENING", Reason: "open intent",
	}))

	got, err := j.Transitions("BTC-USDT", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "CLOSING", got[0].To)
	assert.Equal(t, "CLOSED", got[1].To)
	assert.Equal(t, base, got[0].Time)
	assert.Equal(t, 1.0, got[0].Units)

	limited, err := j.Transitions("BTC-USDT", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteActionAndDriftQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, j.Action(ActionRecord{
		Time: base, Symbol: "BTC-USDT", Action: "REDUCE", Origin: "risk-guard",
		IntentKey: "k9", Units: 0.5, Protective: true, Degraded: true, Outcome: "dispatched",
	}))
	require.NoError(t, j.Action(ActionRecord{
		Time: base.Add(-time.Hour), Symbol: "BTC-USDT", Action: "SCALE",
		Outcome: "rejected", Detail: "insufficient margin",
	}))
	require.NoError(t, j.Drift(DriftRecord{
		Time: base, Symbol: "ETH-USDT", Field: "units", Local: 2, Remote: 1.5, Resolution: "rest-wins",
	}))
	require.NoError(t, j.Mode(ModeRecord{Time: base, Symbol: "BTC-USDT", Mode: "unverified", Reason: "order outcome unknown"}))

	acts, err := j.Actions("BTC-USDT", base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.True(t, acts[0].Protective)
	assert.True(t, acts[0].Degraded)
	assert.Equal(t, "REDUCE", acts[0].Action)

	drift, err := j.DriftSince(base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, 1.5, drift[0].Remote)

	modes, err := j.Modes("BTC-USDT")
	require.NoError(t, err)
	require.Len(t, modes, 1)
	assert.Equal(t, "unverified", modes[0].Mode)
}
