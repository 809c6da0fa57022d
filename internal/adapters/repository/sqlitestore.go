package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/pkg/metrics"
)

const defaultSQLiteDSN = "file:crowdpulse.db?_pragma=busy_timeout(5000)"

// SQLiteStore is a durable Store backed by a single SQLite database.
// Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens dsn and creates the schema if needed.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = defaultSQLiteDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			end_time INTEGER NOT NULL,
			capacity_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			event_id TEXT NOT NULL REFERENCES events(id),
			ts INTEGER NOT NULL,
			vibe INTEGER,
			crowd TEXT NOT NULL,
			line_minutes REAL,
			is_inside INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_event_ts ON feedback(event_id, ts)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_event_id ON feedback(event_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}

// PutEvent implements Store.PutEvent.
func (s *SQLiteStore) PutEvent(ctx context.Context, ev model.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	var capacity sql.NullString
	if ev.Capacity != nil {
		raw, err := json.Marshal(ev.Capacity)
		if err != nil {
			return fmt.Errorf("encode capacity: %w", err)
		}
		capacity = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, name, type, end_time, capacity_json) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, type = excluded.type,
			end_time = excluded.end_time, capacity_json = excluded.capacity_json`,
		ev.ID, ev.Name, ev.Type, ev.EndTime.UnixNano(), capacity,
	)
	return err
}

// GetEvent implements Store.GetEvent.
func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, end_time, capacity_json FROM events WHERE id = ?`, eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	return ev, err
}

// ListEvents implements Store.ListEvents.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, end_time, capacity_json FROM events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (model.Event, error) {
	var (
		ev       model.Event
		endNanos int64
		capacity sql.NullString
	)
	if err := r.Scan(&ev.ID, &ev.Name, &ev.Type, &endNanos, &capacity); err != nil {
		return model.Event{}, err
	}
	ev.EndTime = time.Unix(0, endNanos).UTC()
	if capacity.Valid {
		var p model.CapacityProfile
		if err := json.Unmarshal([]byte(capacity.String), &p); err != nil {
			return model.Event{}, fmt.Errorf("decode capacity for %s: %w", ev.ID, err)
		}
		ev.Capacity = &p
	}
	return ev, nil
}

// AppendFeedback implements Store.AppendFeedback.
func (s *SQLiteStore) AppendFeedback(ctx context.Context, fb model.Feedback) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, fb.EventID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fb.EventID)
	}
	if err != nil {
		return err
	}

	var (
		vibe sql.NullInt64
		line sql.NullFloat64
	)
	if fb.Vibe != nil {
		vibe = sql.NullInt64{Int64: int64(*fb.Vibe), Valid: true}
	}
	if fb.LineMinutes != nil {
		line = sql.NullFloat64{Float64: *fb.LineMinutes, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, event_id, ts, vibe, crowd, line_minutes, is_inside)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, id) DO NOTHING`,
		fb.ID, fb.EventID, fb.Timestamp.UnixNano(), vibe, string(fb.Crowd), line, fb.IsInside,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, fb.EventID, fb.ID)
	}
	return nil
}

// Feedback implements Store.Feedback.
func (s *SQLiteStore) Feedback(ctx context.Context, eventID string, since time.Time) ([]model.Feedback, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, vibe, crowd, line_minutes, is_inside FROM feedback
		WHERE event_id = ? AND ts >= ? ORDER BY ts`, eventID, sinceNanos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Feedback, 0)
	for rows.Next() {
		var (
			fb     = model.Feedback{EventID: eventID}
			tsNano int64
			vibe   sql.NullInt64
			crowd  string
			line   sql.NullFloat64
		)
		if err := rows.Scan(&fb.ID, &tsNano, &vibe, &crowd, &line, &fb.IsInside); err != nil {
			return nil, err
		}
		fb.Timestamp = time.Unix(0, tsNano).UTC()
		fb.Crowd = model.CrowdLevel(crowd)
		if vibe.Valid {
			v := int(vibe.Int64)
			fb.Vibe = &v
		}
		if line.Valid {
			l := line.Float64
			fb.LineMinutes = &l
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// Prune implements Store.Prune.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordRepositoryPruned(int(n))
	}
	return int(n), nil
}

// Count implements Store.Count. Errors count as zero.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
