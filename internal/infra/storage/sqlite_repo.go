package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const eventColumns = `id, session_id, timestamp, event_type, region, actor_id, target_id, payload, tick`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payload := string(event.Payload)
	if payload == "" {
		payload = "null"
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Timestamp, event.EventType, event.Region,
		event.ActorID, event.TargetID, payload, event.Tick,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload string
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.Timestamp, &e.EventType, &e.Region,
			&e.ActorID, &e.TargetID, &payload, &e.Tick,
		)
		if err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]StoredEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? ORDER BY tick ASC, seq ASC`
	return r.getMany(ctx, query, sessionID)
}

func (r *SQLiteEventRepository) GetByType(ctx context.Context, eventType string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_type = ? ORDER BY timestamp DESC, seq DESC LIMIT ?`
	return r.getMany(ctx, query, eventType, limit)
}

func (r *SQLiteEventRepository) MaxPayloadID(ctx context.Context, eventType string) (int, error) {
	query := `SELECT COALESCE(MAX(CAST(json_extract(payload, '$.id') AS INTEGER)), 0) FROM events WHERE event_type = ?`
	var id int
	if err := r.db.QueryRowContext(ctx, query, eventType).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read max payload id: %w", err)
	}
	return id, nil
}

// ---------------------------------------------------------
// SQLiteKPIRepository
// ---------------------------------------------------------

const kpiColumns = `id, session_id, region, taken_at, tick, section_throughput, punctuality, avg_delay, track_utilization`

type SQLiteKPIRepository struct {
	db *sql.DB
}

func NewSQLiteKPIRepository(db *sql.DB) *SQLiteKPIRepository {
	return &SQLiteKPIRepository{db: db}
}

func (r *SQLiteKPIRepository) Append(ctx context.Context, s KPISnapshot) error {
	query := `
		INSERT INTO kpi_snapshots (session_id, region, taken_at, tick, section_throughput, punctuality, avg_delay, track_utilization)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.Region, s.TakenAt, s.Tick,
		s.SectionThroughput, s.Punctuality, s.AvgDelay, s.TrackUtilization,
	)
	if err != nil {
		return fmt.Errorf("failed to append kpi snapshot: %w", err)
	}
	return nil
}

func scanKPI(row interface{ Scan(...interface{}) error }) (KPISnapshot, error) {
	var s KPISnapshot
	err := row.Scan(
		&s.ID, &s.SessionID, &s.Region, &s.TakenAt, &s.Tick,
		&s.SectionThroughput, &s.Punctuality, &s.AvgDelay, &s.TrackUtilization,
	)
	return s, err
}

func (r *SQLiteKPIRepository) LatestByRegion(ctx context.Context, region string) (*KPISnapshot, error) {
	query := `SELECT ` + kpiColumns + ` FROM kpi_snapshots WHERE region = ? ORDER BY id DESC LIMIT 1`
	s, err := scanKPI(r.db.QueryRowContext(ctx, query, region))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteKPIRepository) History(ctx context.Context, region string, limit int) ([]KPISnapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + kpiColumns + ` FROM kpi_snapshots WHERE region = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, region, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []KPISnapshot
	for rows.Next() {
		s, err := scanKPI(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
