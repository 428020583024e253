package intake

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orcazap_backend/platform/logger"
)

// VerifySignature validates the X-Hub-Signature-256 header: an HMAC-SHA256 of
// the raw request body keyed with the app secret. The body is restored for
// downstream handlers. An empty secret disables verification (local dev).
func VerifySignature(appSecret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if appSecret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		header := c.GetHeader("X-Hub-Signature-256")
		expected := strings.TrimPrefix(header, "sha256=")
		if expected == "" {
			log.Warn("webhook signature missing", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing signature"})
			return
		}

		mac := hmac.New(sha256.New, []byte(appSecret))
		mac.Write(body)
		computed := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(computed), []byte(expected)) {
			log.Warn("webhook signature mismatch", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Next()
	}
}
