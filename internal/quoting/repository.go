package quoting

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

// ApprovalStatus is the approval lifecycle status.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is the human gate record for one quote. It is immutable once
// decided.
type Approval struct {
	ID        uuid.UUID
	QuoteID   uuid.UUID
	Status    ApprovalStatus
	Reasons   []string
	DecidedBy *uuid.UUID
	DecidedAt *time.Time
	CreatedAt time.Time
}

// PendingApproval is one row of the operator's work queue.
type PendingApproval struct {
	Approval
	ConversationID uuid.UUID
	TotalCents     int64
	QuoteStatus    Status
}

// ErrQuoteNotFound is returned when a quote does not exist.
var ErrQuoteNotFound = errors.New("quote not found")

// ErrApprovalNotFound is returned when an approval does not exist.
var ErrApprovalNotFound = errors.New("approval not found")

// Repository persists quotes and approvals.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a quoting repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertQuote writes a new quote with its lines serialized as JSONB.
func (r *Repository) InsertQuote(ctx context.Context, q db.Querier, quote *Quote) error {
	lines, err := json.Marshal(quote.Lines)
	if err != nil {
		return fmt.Errorf("marshal quote lines: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO quotes (id, conversation_id, status, line_items, subtotal_cents,
			freight_cents, freight_determined, discount_bps, total_cents, margin_bps,
			payment_method, delivery_day, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		quote.ID, quote.ConversationID, quote.Status, lines, quote.SubtotalCents,
		quote.FreightCents, quote.FreightDetermined, quote.DiscountBps,
		quote.TotalCents, quote.MarginBps, quote.PaymentMethod, quote.DeliveryDay,
		quote.ValidUntil)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

const quoteColumns = `id, conversation_id, status, line_items, subtotal_cents, freight_cents,
	freight_determined, discount_bps, total_cents, margin_bps, payment_method, delivery_day,
	valid_until, created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var quote Quote
	var lines []byte
	err := row.Scan(&quote.ID, &quote.ConversationID, &quote.Status, &lines, &quote.SubtotalCents,
		&quote.FreightCents, &quote.FreightDetermined, &quote.DiscountBps,
		&quote.TotalCents, &quote.MarginBps, &quote.PaymentMethod, &quote.DeliveryDay,
		&quote.ValidUntil, &quote.CreatedAt, &quote.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &quote.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal quote lines: %w", err)
	}
	return &quote, nil
}

// GetQuote loads a quote by ID.
func (r *Repository) GetQuote(ctx context.Context, q db.Querier, id uuid.UUID) (*Quote, error) {
	quote, err := scanQuote(q.QueryRow(ctx, `
		SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return quote, nil
}

// GetActiveQuoteByConversation returns the newest pending or dispatched quote
// for a conversation, or (nil, nil) when there is none.
func (r *Repository) GetActiveQuoteByConversation(ctx context.Context, q db.Querier, conversationID uuid.UUID) (*Quote, error) {
	quote, err := scanQuote(q.QueryRow(ctx, `
		SELECT `+quoteColumns+` FROM quotes
		WHERE conversation_id = $1 AND status IN ('pending_approval', 'dispatched')
		ORDER BY created_at DESC
		LIMIT 1`, conversationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active quote: %w", err)
	}
	return quote, nil
}

// UpdateQuoteStatusIfCurrent performs a one-way status move. The expected
// status in the WHERE clause keeps replayed tasks from rewinding a quote.
func (r *Repository) UpdateQuoteStatusIfCurrent(ctx context.Context, q db.Querier, id uuid.UUID, expected, next Status) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE quotes SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("update quote status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireActiveByConversation expires every quote of a conversation that is
// still pending or dispatched. Used by the window expiry sweep.
func (r *Repository) ExpireActiveByConversation(ctx context.Context, q db.Querier, conversationID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE quotes SET status = 'expired', updated_at = now()
		WHERE conversation_id = $1 AND status IN ('pending_approval', 'dispatched')`,
		conversationID)
	if err != nil {
		return fmt.Errorf("expire quotes: %w", err)
	}
	return nil
}

// InsertApproval writes the pending approval for a quote with all gate
// reasons.
func (r *Repository) InsertApproval(ctx context.Context, q db.Querier, approval *Approval) error {
	_, err := q.Exec(ctx, `
		INSERT INTO approvals (id, quote_id, status, reasons)
		VALUES ($1, $2, $3, $4)`,
		approval.ID, approval.QuoteID, approval.Status, approval.Reasons)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// GetApproval loads an approval by ID.
func (r *Repository) GetApproval(ctx context.Context, q db.Querier, id uuid.UUID) (*Approval, error) {
	var a Approval
	err := q.QueryRow(ctx, `
		SELECT id, quote_id, status, reasons, decided_by, decided_at, created_at
		FROM approvals WHERE id = $1`, id).
		Scan(&a.ID, &a.QuoteID, &a.Status, &a.Reasons, &a.DecidedBy, &a.DecidedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &a, nil
}

// ListApprovals returns the operator work queue for a status, newest first.
func (r *Repository) ListApprovals(ctx context.Context, status ApprovalStatus, limit int) ([]PendingApproval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.quote_id, a.status, a.reasons, a.decided_by, a.decided_at, a.created_at,
			q.conversation_id, q.total_cents, q.status
		FROM approvals a
		JOIN quotes q ON q.id = a.quote_id
		WHERE a.status = $1
		ORDER BY a.created_at DESC
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []PendingApproval
	for rows.Next() {
		var item PendingApproval
		err := rows.Scan(&item.ID, &item.QuoteID, &item.Status, &item.Reasons,
			&item.DecidedBy, &item.DecidedAt, &item.CreatedAt,
			&item.ConversationID, &item.TotalCents, &item.QuoteStatus)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DecideApprovalIfPending records a decision. The pending guard makes
// redelivered decision tasks no-ops.
func (r *Repository) DecideApprovalIfPending(ctx context.Context, q db.Querier, id uuid.UUID, decision ApprovalStatus, decidedBy uuid.UUID, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE approvals SET status = $2, decided_by = $3, decided_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id, decision, decidedBy, at)
	if err != nil {
		return false, fmt.Errorf("decide approval: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
