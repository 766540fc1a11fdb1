package journal

import "time"

// Transitions returns the lifecycle history for one symbol, oldest first.
// limit <= 0 means no limit.
func (j *SQLite) Transitions(symbol string, limit int) ([]TransitionRecord, error) {
	q := `SELECT ts, symbol, from_state, to_state, reason, intent_key, units, price
	      FROM transitions WHERE symbol = ? ORDER BY ts, id`
	args := []any{symbol}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		var ms int64
		if err := rows.Scan(&ms, &r.Symbol, &r.From, &r.To, &r.Reason, &r.IntentKey, &r.Units, &r.Price); err != nil {
			return nil, err
		}
		r.Time = millisTime(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Actions returns intent outcomes for a symbol since a point in time.
func (j *SQLite) Actions(symbol string, since time.Time) ([]ActionRecord, error) {
	rows, err := j.db.Query(
		`SELECT ts, symbol, action, origin, intent_key, units, price, protective, degraded, outcome, detail
		 FROM actions WHERE symbol = ? AND ts >= ? ORDER BY ts, id`,
		symbol, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		var ms int64
		var prot, degr int
		if err := rows.Scan(&ms, &r.Symbol, &r.Action, &r.Origin, &r.IntentKey,
			&r.Units, &r.Price, &prot, &degr, &r.Outcome, &r.Detail); err != nil {
			return nil, err
		}
		r.Time = millisTime(ms)
		r.Protective = prot != 0
		r.Degraded = degr != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// DriftSince returns all drift found after a point in time, across
// symbols. Useful for spotting systematic divergence.
func (j *SQLite) DriftSince(since time.Time) ([]DriftRecord, error) {
	rows, err := j.db.Query(
		`SELECT ts, symbol, field, local, remote, resolution
		 FROM drift WHERE ts >= ? ORDER BY ts, id`,
		since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DriftRecord
	for rows.Next() {
		var r DriftRecord
		var ms int64
		if err := rows.Scan(&ms, &r.Symbol, &r.Field, &r.Local, &r.Remote, &r.Resolution); err != nil {
			return nil, err
		}
		r.Time = millisTime(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Modes returns the verified/unverified history for one symbol.
func (j *SQLite) Modes(symbol string) ([]ModeRecord, error) {
	rows, err := j.db.Query(
		`SELECT ts, symbol, mode, reason FROM modes WHERE symbol = ? ORDER BY ts, id`,
		symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeRecord
	for rows.Next() {
		var r ModeRecord
		var ms int64
		if err := rows.Scan(&ms, &r.Symbol, &r.Mode, &r.Reason); err != nil {
			return nil, err
		}
		r.Time = millisTime(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}
