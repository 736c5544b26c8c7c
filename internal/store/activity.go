package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ActivityKind classifies an activity entry.
type ActivityKind string

const (
	ActivityDemo        ActivityKind = "demo"
	ActivityEasterEgg   ActivityKind = "easter_egg"
	ActivityVideoAction ActivityKind = "video_action"
	ActivityGame        ActivityKind = "game"
	ActivityError       ActivityKind = "error"
)

// Activity is one entry of the demo activity log.
type Activity struct {
	ID        string          `json:"id"`
	Kind      ActivityKind    `json:"kind"`
	Message   string          `json:"message"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

// ActivityRepository provides access to the activity log.
type ActivityRepository struct {
	db *sql.DB
}

// Activity returns the activity repository for this store.
func (s *Store) Activity() *ActivityRepository {
	return &ActivityRepository{db: s.db}
}

// Record appends an entry. detail is stored as JSON; nil stores an empty object.
func (r *ActivityRepository) Record(ctx context.Context, kind ActivityKind, message string, detail any) (*Activity, error) {
	raw := json.RawMessage("{}")
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return nil, fmt.Errorf("encode activity detail: %w", err)
		}
		raw = b
	}

	a := &Activity{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Message:   message,
		Detail:    raw,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity (id, kind, message, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Message, string(a.Detail), a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an entry by its ID.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*Activity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, message, detail, created_at FROM activity WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	list, err := scanActivities(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// List returns up to limit entries, newest first. An empty kind lists all kinds.
func (r *ActivityRepository) List(ctx context.Context, kind ActivityKind, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	// ULIDs sort by creation time.
	if kind == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, kind, message, detail, created_at FROM activity ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, kind, message, detail, created_at FROM activity WHERE kind = ? ORDER BY id DESC LIMIT ?`,
			string(kind), limit)
	}
	if err != nil {
		return nil, err
	}
	return scanActivities(rows)
}

// Count returns the number of entries of kind, or of all kinds when empty.
func (r *ActivityRepository) Count(ctx context.Context, kind ActivityKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity WHERE kind = ?`, string(kind)).Scan(&n)
	}
	return n, err
}

func scanActivities(rows *sql.Rows) ([]*Activity, error) {
	defer rows.Close()

	var list []*Activity
	for rows.Next() {
		a := &Activity{}
		var kind, detail string
		if err := rows.Scan(&a.ID, &kind, &a.Message, &detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = ActivityKind(kind)
		a.Detail = json.RawMessage(detail)
		list = append(list, a)
	}
	return list, rows.Err()
}
