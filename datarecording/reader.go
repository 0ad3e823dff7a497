package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
)

// RunReader answers questions about a run recorded through Attach.
type RunReader struct {
	db *sql.DB
}

// KindStats summarizes the transactions of one access kind.
type KindStats struct {
	Kind       string
	Count      int
	AvgLatency float64
	MaxLatency uint64
	Retries    int
}

// MsgTypeStats summarizes the delivered messages of one type.
type MsgTypeStats struct {
	Type       string
	Count      int
	AvgLatency float64
}

// TransitionCount is how often a controller kind took a transition.
type TransitionCount struct {
	Machine   string
	FromState string
	Event     string
	ToState   string
	Count     int
}

// OpenRun opens a recorded database read-only.
func OpenRun(filename string) (*RunReader, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", "file:"+filename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &RunReader{db: db}, nil
}

// Close closes the database.
func (r *RunReader) Close() error {
	return r.db.Close()
}

// Tables returns the names of the tables in the database, sorted.
func (r *RunReader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

func (r *RunReader) hasTable(ctx context.Context, name string) (bool, error) {
	var n int

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		name).Scan(&n)

	return n > 0, err
}

// Summary returns the headline metrics in the order they were recorded.
func (r *RunReader) Summary(ctx context.Context) ([]SummaryEntry, error) {
	return Select[SummaryEntry](ctx, r, SummaryTable, "1 ORDER BY rowid")
}

// KindStats returns latency and retry figures per access kind.
func (r *RunReader) KindStats(ctx context.Context) ([]KindStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT Kind, COUNT(*), AVG(CompleteCycle - IssueCycle),
			MAX(CompleteCycle - IssueCycle), SUM(Retries)
		FROM `+TxnTable+`
		GROUP BY Kind ORDER BY Kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []KindStats

	for rows.Next() {
		var s KindStats

		err := rows.Scan(&s.Kind, &s.Count, &s.AvgLatency, &s.MaxLatency,
			&s.Retries)
		if err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// MsgTypeStats returns delivery counts and network latency per message
// type.
func (r *RunReader) MsgTypeStats(ctx context.Context) ([]MsgTypeStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT Type, COUNT(*), AVG(DeliverCycle - IssueCycle)
		FROM `+MsgTable+`
		GROUP BY Type ORDER BY COUNT(*) DESC, Type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []MsgTypeStats

	for rows.Next() {
		var s MsgTypeStats
		if err := rows.Scan(&s.Type, &s.Count, &s.AvgLatency); err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// SlowestTxns returns the n transactions that took the longest.
func (r *RunReader) SlowestTxns(ctx context.Context, n int) ([]TxnEntry, error) {
	return Select[TxnEntry](ctx, r, TxnTable,
		"1 ORDER BY CompleteCycle - IssueCycle DESC, ID LIMIT ?", n)
}

// LineTxns returns the transactions on the line holding addr, in issue
// order.
func (r *RunReader) LineTxns(
	ctx context.Context,
	addr uint64,
	lineSize uint64,
) ([]TxnEntry, error) {
	start := addr &^ (lineSize - 1)

	return Select[TxnEntry](ctx, r, TxnTable,
		"Addr >= ? AND Addr < ? ORDER BY IssueCycle, ID",
		start, start+lineSize)
}

// TransitionCounts returns how often each transition was taken. A run
// recorded without transitions yields nothing.
func (r *RunReader) TransitionCounts(
	ctx context.Context,
) ([]TransitionCount, error) {
	ok, err := r.hasTable(ctx, TransitionTable)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT Machine, FromState, Event, ToState, COUNT(*)
		FROM `+TransitionTable+`
		GROUP BY Machine, FromState, Event, ToState
		ORDER BY Machine, COUNT(*) DESC, FromState, Event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []TransitionCount

	for rows.Next() {
		var c TransitionCount

		err := rows.Scan(&c.Machine, &c.FromState, &c.Event, &c.ToState,
			&c.Count)
		if err != nil {
			return nil, err
		}

		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// Select reads the rows of a table that satisfy cond into entries of type
// T. Columns are matched to fields by name; columns without a field are
// dropped. cond may carry ORDER BY and LIMIT clauses.
func Select[T any](
	ctx context.Context,
	r *RunReader,
	tableName string,
	cond string,
	args ...any,
) ([]T, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", tableName, cond)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var entries []T

	for rows.Next() {
		var entry T

		v := reflect.ValueOf(&entry).Elem()
		dest := make([]any, len(columns))

		for i, col := range columns {
			field := v.FieldByName(col)
			if field.IsValid() && field.CanSet() {
				dest[i] = field.Addr().Interface()
			} else {
				dest[i] = new(any)
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
