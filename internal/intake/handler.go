package intake

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orcazap_backend/platform/config"
	"orcazap_backend/platform/httpkit"
	"orcazap_backend/platform/logger"
)

// Handler owns the webhook endpoints. The POST path is on the provider's
// clock: it must ack fast, so all it does is extract, register and enqueue.
type Handler struct {
	service     *Service
	verifyToken string
	log         *logger.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(service *Service, cfg config.WhatsAppConfig, log *logger.Logger) *Handler {
	return &Handler{
		service:     service,
		verifyToken: cfg.GetWhatsAppVerifyToken(),
		log:         log,
	}
}

// RegisterRoutes mounts the webhook endpoints on the public router.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, appSecret string) {
	rg.GET("/webhooks/whatsapp", h.Verify)
	rg.POST("/webhooks/whatsapp", VerifySignature(appSecret, h.log), h.Receive)
}

// Verify answers Meta's subscription handshake.
// GET /webhooks/whatsapp
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	c.String(http.StatusOK, challenge)
}

// Receive accepts a webhook delivery.
// POST /webhooks/whatsapp
func (h *Handler) Receive(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}

	messages := ExtractMessages(&payload)
	for _, msg := range messages {
		if err := h.service.Receive(c.Request.Context(), msg); err != nil {
			// A storage failure means the event was NOT persisted; a non-2xx
			// makes the provider redeliver, which is safe because the ledger
			// deduplicates.
			h.log.WithExternalID(msg.ExternalID).Error("intake failed", "error", err.Error())
			httpkit.Error(c, http.StatusInternalServerError, "intake failed", nil)
			return
		}
	}

	httpkit.OK(c, gin.H{"status": "received", "messages": len(messages)})
}
