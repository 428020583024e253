package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/conversation"
	"orcazap_backend/internal/intake"
	"orcazap_backend/internal/parsing"
	"orcazap_backend/internal/quoting"
	"orcazap_backend/platform/db"
)

// The processor depends on narrow interfaces rather than the concrete
// repositories so tests can substitute fakes. Methods that must join a
// worker-owned transaction take an explicit db.Querier.

// Ledger reads and annotates the inbound message ledger.
type Ledger interface {
	GetInboundByExternalID(ctx context.Context, externalID string) (*intake.InboundMessage, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*intake.Channel, error)
	ListUnenqueued(ctx context.Context, olderThan time.Time, limit int) ([]intake.InboundMessage, error)
	MarkEnqueued(ctx context.Context, externalID string, at time.Time) error
	BindConversation(ctx context.Context, q db.Querier, messageID, conversationID uuid.UUID) error
	InsertOutbound(ctx context.Context, q db.Querier, conversationID, channelID uuid.UUID, providerMessageID, text string) error
}

// Conversations manages contacts and conversation state.
type Conversations interface {
	UpsertContact(ctx context.Context, phone, name string) (uuid.UUID, error)
	GetOrCreate(ctx context.Context, contactID, channelID uuid.UUID) (*conversation.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	GetContactPhone(ctx context.Context, conversationID uuid.UUID) (string, error)
	UpdateStateIfCurrent(ctx context.Context, q db.Querier, id uuid.UUID, expected, next conversation.State, windowExpiresAt *time.Time) (bool, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]conversation.Conversation, error)
}

// Rules reads the pricing catalog.
type Rules interface {
	LookupItemExact(ctx context.Context, token string) (*catalog.Item, error)
	LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Quotes persists quotes and approvals.
type Quotes interface {
	InsertQuote(ctx context.Context, q db.Querier, quote *quoting.Quote) error
	GetQuote(ctx context.Context, q db.Querier, id uuid.UUID) (*quoting.Quote, error)
	GetActiveQuoteByConversation(ctx context.Context, q db.Querier, conversationID uuid.UUID) (*quoting.Quote, error)
	UpdateQuoteStatusIfCurrent(ctx context.Context, q db.Querier, id uuid.UUID, expected, next quoting.Status) (bool, error)
	ExpireActiveByConversation(ctx context.Context, q db.Querier, conversationID uuid.UUID) error
	InsertApproval(ctx context.Context, q db.Querier, approval *quoting.Approval) error
	GetApproval(ctx context.Context, q db.Querier, id uuid.UUID) (*quoting.Approval, error)
	DecideApprovalIfPending(ctx context.Context, q db.Querier, id uuid.UUID, decision quoting.ApprovalStatus, decidedBy uuid.UUID, at time.Time) (bool, error)
}

// TxBeginner starts a database transaction. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Extractor is the optional LLM capture fallback.
type Extractor interface {
	Enabled() bool
	Extract(ctx context.Context, messageText string) (*parsing.Capture, error)
}
