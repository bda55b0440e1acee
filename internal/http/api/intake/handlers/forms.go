package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/formsentry/formsentry/internal/account"
	"github.com/formsentry/formsentry/internal/moderation"
	"github.com/formsentry/formsentry/internal/ratelimit"
	"github.com/formsentry/formsentry/internal/submission"
	"github.com/formsentry/formsentry/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Payload validation errors surfaced with a 4xx status.
var (
	errUnsupportedContentType = errors.New("unsupported content type")
	errMalformedPayload       = errors.New("payload must be a flat object with no nested values")
)

// FormsHandler handles third-party form submissions.
type FormsHandler struct {
	accounts  *account.Service
	store     *submission.Store
	limiter   ratelimit.Limiter
	moderator *moderation.Orchestrator
}

// NewFormsHandler constructs a FormsHandler.
func NewFormsHandler(accounts *account.Service, store *submission.Store, limiter ratelimit.Limiter, moderator *moderation.Orchestrator) *FormsHandler {
	return &FormsHandler{
		accounts:  accounts,
		store:     store,
		limiter:   limiter,
		moderator: moderator,
	}
}

// Submit accepts one form submission, stores it, and queues moderation.
// The response is written before moderation runs; its outcome is never
// reported to the caller.
func (h *FormsHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	clientIP := resolveClientIP(c)
	log.Infof("intake: request from %s (query=%s)", clientIP, util.MaskSensitiveQuery(c.Request.URL.RawQuery))

	apiKey := strings.TrimSpace(c.Query("api_key"))
	if apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing api_key"})
		return
	}

	settings, pol, errAuth := h.accounts.Authenticate(ctx, apiKey)
	if errAuth != nil {
		switch {
		case errors.Is(errAuth, account.ErrInvalidKeyFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API Key"})
		case errors.Is(errAuth, account.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded for this period."})
		default:
			log.WithError(errAuth).Error("intake: authentication failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred. Please try again later."})
		}
		return
	}

	allowed, errAllow := h.limiter.Allow(ctx, settings.APIKey, pol.MaxRequestsPerMinute)
	if errAllow != nil {
		// Limiter backend trouble must not take the intake path down.
		log.WithError(errAllow).Warn("intake: burst limiter unavailable, admitting request")
		allowed = true
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Slow down."})
		return
	}

	payload, errParse := parsePayload(c)
	if errParse != nil {
		if errors.Is(errParse, errUnsupportedContentType) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported content type"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data: " + errParse.Error()})
		return
	}

	submissionID, errStore := h.store.Create(ctx, settings.UserID, payload, clientIP)
	if errStore != nil {
		log.WithError(errStore).Errorf("intake: store failed for user %d", settings.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store form submission."})
		return
	}

	h.moderator.Enqueue(moderation.Job{
		SubmissionID: submissionID,
		FormData:     payload,
		IPAddress:    clientIP,
		Policy:       pol,
	})

	log.Infof("intake: stored submission %d for user %d", submissionID, settings.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "Form submitted successfully."})
}

// parsePayload decodes the request body into a flat map of scalar values.
func parsePayload(c *gin.Context) (map[string]any, error) {
	contentType := c.ContentType()
	switch {
	case strings.Contains(contentType, "application/json"):
		return parseJSONPayload(c)
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		return parseFormPayload(c)
	default:
		return nil, errUnsupportedContentType
	}
}

func parseJSONPayload(c *gin.Context) (map[string]any, error) {
	var raw any
	if errDecode := json.NewDecoder(c.Request.Body).Decode(&raw); errDecode != nil {
		return nil, errMalformedPayload
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil, errMalformedPayload
	}
	for _, value := range payload {
		switch value.(type) {
		case string, float64, bool, nil:
		default:
			// Nested objects and arrays are rejected before storage.
			return nil, errMalformedPayload
		}
	}
	return payload, nil
}

func parseFormPayload(c *gin.Context) (map[string]any, error) {
	if errParse := c.Request.ParseForm(); errParse != nil {
		return nil, errMalformedPayload
	}
	payload := make(map[string]any, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) == 0 {
			payload[key] = ""
			continue
		}
		payload[key] = values[0]
	}
	return payload, nil
}

// resolveClientIP mirrors the header order honored by the intake edge:
// X-Forwarded-For, then X-Real-IP, then the socket address.
func resolveClientIP(c *gin.Context) string {
	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			forwarded = strings.TrimSpace(forwarded[:idx])
		}
		if forwarded != "" {
			return forwarded
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	if remote := c.ClientIP(); remote != "" {
		return remote
	}
	return "0.0.0.0"
}
