package intake

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"orcazap_backend/platform/logger"
)

func verifyRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &Handler{verifyToken: token, log: logger.New("development")}
	r := gin.New()
	r.GET("/webhooks/whatsapp", h.Verify)
	return r
}

func TestVerifyHandshake(t *testing.T) {
	r := verifyRouter("topsecret")

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=topsecret&hub.challenge=12345", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "12345" {
		t.Errorf("challenge echo = %q, want 12345", w.Body.String())
	}
}

func TestVerifyHandshakeRejectsBadToken(t *testing.T) {
	r := verifyRouter("topsecret")

	cases := []string{
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1",
		"/webhooks/whatsapp?hub.mode=unsubscribe&hub.verify_token=topsecret&hub.challenge=1",
		"/webhooks/whatsapp",
	}
	for _, url := range cases {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want 403", url, w.Code)
		}
	}
}
