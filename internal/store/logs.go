package store

import (
	"context"
	"fmt"
	"time"
)

// LogEntry is a persisted activity event, queryable from the UI.
type LogEntry struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddLog appends an activity event.
func (s *Store) AddLog(ctx context.Context, eventType, level, message string, details *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (event_type, level, message, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		eventType, level, message, details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add log: %w", err)
	}
	return nil
}

// GetLogs returns events newest first, optionally filtered by event type.
func (s *Store) GetLogs(ctx context.Context, eventType string, limit, offset int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, event_type, level, message, details, created_at FROM logs`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Level, &e.Message, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// PruneLogs drops events older than the cutoff and returns the number
// removed.
func (s *Store) PruneLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return res.RowsAffected()
}
