// Package audit records an append-only trail of domain activity. It observes
// the event bus; nothing in the processing path waits on it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit trail row.
type Entry struct {
	EntityType string
	EntityID   string
	Action     string
	Before     any
	After      any
}

// Repository persists audit entries.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates an audit repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record appends one entry.
func (r *Repository) Record(ctx context.Context, entry Entry) error {
	before, err := marshalNullable(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before: %w", err)
	}
	after, err := marshalNullable(entry.After)
	if err != nil {
		return fmt.Errorf("marshal audit after: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, before_json, after_json)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.EntityType, entry.EntityID, entry.Action, before, after)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
