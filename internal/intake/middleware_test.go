package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"orcazap_backend/platform/logger"
)

func signatureRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", VerifySignature(secret, logger.New("development")), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return r
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsValid(t *testing.T) {
	const secret = "app-secret"
	const body = `{"object":"whatsapp_business_account"}`

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(secret, body))

	w := httptest.NewRecorder()
	signatureRouter(secret).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	// The middleware must restore the body for the handler.
	if w.Body.String() != body {
		t.Errorf("handler saw body %q", w.Body.String())
	}
}

func TestVerifySignatureRejectsTampered(t *testing.T) {
	const secret = "app-secret"

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{"tampered":true}`))
	req.Header.Set("X-Hub-Signature-256", sign(secret, `{"original":true}`))

	w := httptest.NewRecorder()
	signatureRouter(secret).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestVerifySignatureRejectsMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{}`))

	w := httptest.NewRecorder()
	signatureRouter("app-secret").ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestVerifySignatureDisabledWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{}`))

	w := httptest.NewRecorder()
	signatureRouter("").ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
