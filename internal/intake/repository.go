package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orcazap_backend/platform/db"
)

// Channel is one WhatsApp business number the system listens on.
type Channel struct {
	ID            uuid.UUID
	PhoneNumberID string
	DisplayPhone  string
	VerifyToken   string
	IsActive      bool
}

// InboundMessage is a ledger row for one inbound event. A nil ConversationID
// means the event is persisted but has had no effect on any conversation yet.
type InboundMessage struct {
	ID                uuid.UUID
	ConversationID    *uuid.UUID
	ProviderMessageID string
	SenderPhone       string
	SenderName        string
	ChannelID         uuid.UUID
	MessageType       string
	TextContent       string
	EnqueuedAt        *time.Time
	CreatedAt         time.Time
}

// ErrMessageNotFound is returned when a ledger row does not exist.
var ErrMessageNotFound = errors.New("message not found")

// Repository persists the message ledger and resolves channels.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates an intake repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ResolveChannel finds the active channel for a webhook's phone_number_id.
// Returns (nil, nil) when unknown; the delivery is acknowledged and dropped.
func (r *Repository) ResolveChannel(ctx context.Context, phoneNumberID string) (*Channel, error) {
	var ch Channel
	err := r.db.QueryRow(ctx, `
		SELECT id, phone_number_id, display_phone, verify_token, is_active
		FROM channels
		WHERE phone_number_id = $1 AND is_active`, phoneNumberID).
		Scan(&ch.ID, &ch.PhoneNumberID, &ch.DisplayPhone, &ch.VerifyToken, &ch.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	return &ch, nil
}

// GetChannel loads a channel by ID.
func (r *Repository) GetChannel(ctx context.Context, id uuid.UUID) (*Channel, error) {
	var ch Channel
	err := r.db.QueryRow(ctx, `
		SELECT id, phone_number_id, display_phone, verify_token, is_active
		FROM channels WHERE id = $1`, id).
		Scan(&ch.ID, &ch.PhoneNumberID, &ch.DisplayPhone, &ch.VerifyToken, &ch.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("channel %s: %w", id, ErrMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

// RegisterInbound is the idempotency ledger write: a single atomic insert
// whose unique constraint on provider_message_id decides Registered versus
// AlreadySeen. There is no read-then-write window.
func (r *Repository) RegisterInbound(ctx context.Context, msg ExtractedMessage, channelID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO messages (provider_message_id, direction, message_type, sender_phone,
			sender_name, channel_id, raw_payload, text_content)
		VALUES ($1, 'inbound', $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_message_id) DO NOTHING`,
		msg.ExternalID, msg.MessageType, msg.SenderPhone, msg.SenderName,
		channelID, msg.RawPayload, msg.Text)
	if err != nil {
		return false, fmt.Errorf("register inbound message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEnqueued stamps a ledger row once its task reached the queue.
func (r *Repository) MarkEnqueued(ctx context.Context, externalID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages SET enqueued_at = $2
		WHERE provider_message_id = $1`, externalID, at)
	if err != nil {
		return fmt.Errorf("mark enqueued: %w", err)
	}
	return nil
}

// GetInboundByExternalID loads a ledger row for worker processing.
func (r *Repository) GetInboundByExternalID(ctx context.Context, externalID string) (*InboundMessage, error) {
	var m InboundMessage
	err := r.db.QueryRow(ctx, `
		SELECT id, conversation_id, provider_message_id, sender_phone, sender_name, channel_id,
			message_type, text_content, enqueued_at, created_at
		FROM messages
		WHERE provider_message_id = $1 AND direction = 'inbound'`, externalID).
		Scan(&m.ID, &m.ConversationID, &m.ProviderMessageID, &m.SenderPhone, &m.SenderName,
			&m.ChannelID, &m.MessageType, &m.TextContent, &m.EnqueuedAt, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inbound message: %w", err)
	}
	return &m, nil
}

// ListUnenqueued returns inbound events that were persisted but never reached
// the queue, older than the grace cutoff. Feeds the reconciliation sweep.
func (r *Repository) ListUnenqueued(ctx context.Context, olderThan time.Time, limit int) ([]InboundMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, provider_message_id, sender_phone, sender_name, channel_id,
			message_type, text_content, enqueued_at, created_at
		FROM messages
		WHERE direction = 'inbound' AND enqueued_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list unenqueued messages: %w", err)
	}
	defer rows.Close()

	var out []InboundMessage
	for rows.Next() {
		var m InboundMessage
		err := rows.Scan(&m.ID, &m.ConversationID, &m.ProviderMessageID, &m.SenderPhone, &m.SenderName,
			&m.ChannelID, &m.MessageType, &m.TextContent, &m.EnqueuedAt, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan unenqueued message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BindConversation links a processed inbound event to its conversation. Runs
// inside the worker's commit transaction; a bound event is the processed
// checkpoint that makes task redelivery a no-op.
func (r *Repository) BindConversation(ctx context.Context, q db.Querier, messageID, conversationID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE messages SET conversation_id = $2
		WHERE id = $1`, messageID, conversationID)
	if err != nil {
		return fmt.Errorf("bind message to conversation: %w", err)
	}
	return nil
}

// InsertOutbound records a sent message inside the worker's commit
// transaction, keyed by the provider message ID the sender returned.
func (r *Repository) InsertOutbound(ctx context.Context, q db.Querier, conversationID, channelID uuid.UUID, providerMessageID, text string) error {
	raw, err := json.Marshal(map[string]any{"text": map[string]string{"body": text}})
	if err != nil {
		return fmt.Errorf("marshal outbound payload: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO messages (provider_message_id, conversation_id, direction, message_type,
			channel_id, raw_payload, text_content)
		VALUES ($1, $2, 'outbound', 'text', $3, $4, $5)
		ON CONFLICT (provider_message_id) DO NOTHING`,
		providerMessageID, conversationID, channelID, raw, text)
	if err != nil {
		return fmt.Errorf("insert outbound message: %w", err)
	}
	return nil
}
