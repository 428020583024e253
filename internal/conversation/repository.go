package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orcazap_backend/platform/db"
)

// Conversation is one customer dialogue on one channel.
type Conversation struct {
	ID              uuid.UUID
	ContactID       uuid.UUID
	ChannelID       uuid.UUID
	State           State
	WindowExpiresAt *time.Time
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Repository provides Postgres persistence for conversations and contacts.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a conversation repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const conversationColumns = `id, contact_id, channel_id, state, window_expires_at, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ContactID, &c.ChannelID, &c.State,
		&c.WindowExpiresAt, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertContact creates or refreshes a contact by phone and returns its ID.
// The name is only overwritten when the new value is non-empty.
func (r *Repository) UpsertContact(ctx context.Context, phone, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO contacts (phone, name)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE contacts.name END,
			updated_at = now()
		RETURNING id`,
		phone, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert contact: %w", err)
	}
	return id, nil
}

// GetOrCreate returns the conversation for a (contact, channel) pair, creating
// it in INBOUND when none exists. The UNIQUE constraint makes concurrent
// callers converge on the same row.
func (r *Repository) GetOrCreate(ctx context.Context, contactID, channelID uuid.UUID) (*Conversation, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversations (contact_id, channel_id, state)
		VALUES ($1, $2, 'INBOUND')
		ON CONFLICT (contact_id, channel_id) DO NOTHING`,
		contactID, channelID)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE contact_id = $1 AND channel_id = $2`,
		contactID, channelID)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

// GetByID loads a conversation.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// UpdateStateIfCurrent moves a conversation from an expected state to the next
// one. The WHERE clause on the expected state is the optimistic concurrency
// guard: a false return means another worker moved the row first and the
// caller must re-read. A non-nil windowExpiresAt also refreshes the reply
// window deadline.
func (r *Repository) UpdateStateIfCurrent(ctx context.Context, q db.Querier, id uuid.UUID, expected, next State, windowExpiresAt *time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE conversations
		SET state = $3,
		    window_expires_at = COALESCE($4, window_expires_at),
		    updated_at = now()
		WHERE id = $1 AND state = $2`,
		id, expected, next, windowExpiresAt)
	if err != nil {
		return false, fmt.Errorf("update conversation state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetContactPhone returns the phone number of the contact behind a
// conversation.
func (r *Repository) GetContactPhone(ctx context.Context, conversationID uuid.UUID) (string, error) {
	var phone string
	err := r.db.QueryRow(ctx, `
		SELECT ct.phone
		FROM conversations cv
		JOIN contacts ct ON ct.id = cv.contact_id
		WHERE cv.id = $1`, conversationID).Scan(&phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get contact phone: %w", err)
	}
	return phone, nil
}

// TouchLastMessage records inbound activity on the conversation.
func (r *Repository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = $2, updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// ListExpired returns non-terminal conversations whose reply window deadline
// has passed.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE window_expires_at IS NOT NULL
		  AND window_expires_at < $1
		  AND state NOT IN ('WON', 'LOST')
		ORDER BY window_expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}
