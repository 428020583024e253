package approvals

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"orcazap_backend/internal/quoting"
	"orcazap_backend/internal/worker"
	"orcazap_backend/platform/apperr"
	"orcazap_backend/platform/db"
	"orcazap_backend/platform/httpkit"
	"orcazap_backend/platform/logger"
	"orcazap_backend/platform/validator"
)

const msgInvalidRequest = "invalid request"
const msgValidationFailed = "validation failed"

const defaultListLimit = 50

// DecisionEnqueuer hands an operator decision to the task queue so it is
// applied by the worker, exactly like every other conversation event.
type DecisionEnqueuer interface {
	EnqueueApprovalDecision(ctx context.Context, payload worker.ApprovalDecisionPayload) error
}

// ApprovalReader reads approvals for the operator surface.
type ApprovalReader interface {
	ListApprovals(ctx context.Context, status quoting.ApprovalStatus, limit int) ([]quoting.PendingApproval, error)
	GetApproval(ctx context.Context, q db.Querier, id uuid.UUID) (*quoting.Approval, error)
}

// Handler owns the operator approval endpoints.
type Handler struct {
	repo  ApprovalReader
	pool  db.Querier
	queue DecisionEnqueuer
	val   *validator.Validator
	log   *logger.Logger
}

func NewHandler(repo ApprovalReader, pool db.Querier, queue DecisionEnqueuer, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{repo: repo, pool: pool, queue: queue, val: val, log: log}
}

// RegisterRoutes mounts the approval endpoints on the protected router.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/:id/decide", h.Decide)
}

type listRequest struct {
	Status string `form:"status" validate:"omitempty,oneof=pending approved rejected"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

type approvalResponse struct {
	ID             uuid.UUID  `json:"id"`
	QuoteID        uuid.UUID  `json:"quote_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Status         string     `json:"status"`
	Reasons        []string   `json:"reasons"`
	TotalCents     int64      `json:"total_cents"`
	QuoteStatus    string     `json:"quote_status"`
	DecidedBy      *uuid.UUID `json:"decided_by,omitempty"`
}

// List returns the operator work queue.
// GET /api/v1/approvals?status=pending
func (h *Handler) List(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	status := quoting.ApprovalStatus(req.Status)
	if req.Status == "" {
		status = quoting.ApprovalPending
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	rows, err := h.repo.ListApprovals(c.Request.Context(), status, limit)
	if err != nil {
		h.log.DatabaseError("list approvals", err)
		httpkit.Error(c, http.StatusInternalServerError, "could not list approvals", nil)
		return
	}

	out := make([]approvalResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, approvalResponse{
			ID:             row.ID,
			QuoteID:        row.QuoteID,
			ConversationID: row.ConversationID,
			Status:         string(row.Status),
			Reasons:        row.Reasons,
			TotalCents:     row.TotalCents,
			QuoteStatus:    string(row.QuoteStatus),
			DecidedBy:      row.DecidedBy,
		})
	}

	httpkit.OK(c, gin.H{"approvals": out})
}

type decideRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

// Decide accepts an operator decision and queues it for the worker. The
// endpoint only checks that the approval exists and is still pending; the
// worker owns the actual application, guarded by the same pending check.
// POST /api/v1/approvals/:id/decide
func (h *Handler) Decide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid approval id", nil)
		return
	}

	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	userID, ok := c.Get(httpkit.ContextUserIDKey)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing identity", nil)
		return
	}
	decidedBy, ok := userID.(uuid.UUID)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing identity", nil)
		return
	}

	approval, err := h.repo.GetApproval(c.Request.Context(), h.pool, id)
	if errors.Is(err, quoting.ErrApprovalNotFound) {
		httpkit.HandleError(c, apperr.NotFound("approval not found"))
		return
	}
	if err != nil {
		h.log.DatabaseError("get approval", err)
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "could not load approval", err))
		return
	}
	if approval.Status != quoting.ApprovalPending {
		httpkit.HandleError(c, apperr.Conflict("approval already decided"))
		return
	}

	payload := worker.ApprovalDecisionPayload{
		ApprovalID: approval.ID.String(),
		Decision:   req.Decision,
		DecidedBy:  decidedBy.String(),
	}
	if err := h.queue.EnqueueApprovalDecision(c.Request.Context(), payload); err != nil {
		h.log.Error("enqueue approval decision failed", "approval_id", approval.ID.String(), "error", err.Error())
		httpkit.Error(c, http.StatusServiceUnavailable, "could not queue decision", nil)
		return
	}

	httpkit.JSON(c, http.StatusAccepted, gin.H{
		"approval_id": approval.ID,
		"decision":    req.Decision,
		"status":      "queued",
	})
}
