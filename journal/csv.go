package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// CSV writes one file per record type under a directory. Rows are flushed
// on every write so a crash loses at most the row being written.
type CSV struct {
	mu          sync.Mutex
	transitions *csvFile
	actions     *csvFile
	drift       *csvFile
	modes       *csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func openCSVFile(path string, header []string) (*csvFile, error) {
	info, err := os.Stat(path)
	fresh := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
	}
	return &csvFile{f: f, w: w}, nil
}

func (c *csvFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// OpenCSV creates (or appends to) the journal files in dir.
func OpenCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	j := &CSV{}
	var err error
	if j.transitions, err = openCSVFile(filepath.Join(dir, "transitions.csv"),
		[]string{"time", "symbol", "from", "to", "reason", "intent_key", "units", "price"}); err != nil {
		return nil, err
	}
	if j.actions, err = openCSVFile(filepath.Join(dir, "actions.csv"),
		[]string{"time", "symbol", "action", "origin", "intent_key", "units", "price", "protective", "degraded", "outcome", "detail"}); err != nil {
		j.Close()
		return nil, err
	}
	if j.drift, err = openCSVFile(filepath.Join(dir, "drift.csv"),
		[]string{"time", "symbol", "field", "local", "remote", "resolution"}); err != nil {
		j.Close()
		return nil, err
	}
	if j.modes, err = openCSVFile(filepath.Join(dir, "modes.csv"),
		[]string{"time", "symbol", "mode", "reason"}); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) Transition(r TransitionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitions.write([]string{
		fmtTime(r.Time), r.Symbol, r.From, r.To, r.Reason, r.IntentKey,
		fmtFloat(r.Units), fmtFloat(r.Price),
	})
}

func (j *CSV) Action(r ActionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.actions.write([]string{
		fmtTime(r.Time), r.Symbol, r.Action, r.Origin, r.IntentKey,
		fmtFloat(r.Units), fmtFloat(r.Price),
		strconv.FormatBool(r.Protective), strconv.FormatBool(r.Degraded),
		r.Outcome, r.Detail,
	})
}

func (j *CSV) Drift(r DriftRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.drift.write([]string{
		fmtTime(r.Time), r.Symbol, r.Field,
		fmtFloat(r.Local), fmtFloat(r.Remote), r.Resolution,
	})
}

func (j *CSV) Mode(r ModeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.modes.write([]string{fmtTime(r.Time), r.Symbol, r.Mode, r.Reason})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	for _, c := range []*csvFile{j.transitions, j.actions, j.drift, j.modes} {
		if c == nil {
			continue
		}
		c.w.Flush()
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
