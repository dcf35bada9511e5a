package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"webphone/internal/auth"
	"webphone/internal/relay"
	"webphone/internal/reporting"
	"webphone/internal/telephony"
	"webphone/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return the response.
type Handlers struct {
	Relay   *relay.Service
	Reports *reporting.Service
}

// --- Credentials ---

// Token mints an access credential for the browser client.
func (h Handlers) Token(c *gin.Context) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "relay not configured"})
		return
	}
	vt, err := h.Relay.IssueToken(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vt)
}

// --- Call control ---

type startCallRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type callSIDRequest struct {
	CallSID string `json:"callSid"`
}

func (h Handlers) StartCall(c *gin.Context) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "relay not configured"})
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": telephony.KindCallOriginationFailed})
		return
	}
	res, err := h.Relay.StartCall(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Call started with SID: %s", res.CallSID),
		"callSid": res.CallSID,
	})
}

func (h Handlers) EndCall(c *gin.Context) {
	h.callCommand(c, telephony.KindCallTerminationFailed, h.relayEnd, "Call ended")
}

func (h Handlers) Hold(c *gin.Context) {
	h.callCommand(c, telephony.KindHoldResumeFailed, h.relayHold, "Call on hold")
}

func (h Handlers) Resume(c *gin.Context) {
	h.callCommand(c, telephony.KindHoldResumeFailed, h.relayResume, "Call resumed")
}

func (h Handlers) relayEnd(c *gin.Context, sid string) error {
	return h.Relay.EndCall(c.Request.Context(), sid)
}

func (h Handlers) relayHold(c *gin.Context, sid string) error {
	return h.Relay.Hold(c.Request.Context(), sid)
}

func (h Handlers) relayResume(c *gin.Context, sid string) error {
	return h.Relay.Resume(c.Request.Context(), sid)
}

// callCommand runs a {callSid} command and answers with plain text on success.
func (h Handlers) callCommand(c *gin.Context, kind telephony.Kind, run func(*gin.Context, string) error, okText string) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "relay not configured"})
		return
	}
	var req callSIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": kind})
		return
	}
	if err := run(c, req.CallSID); err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, okText)
}

// --- Reporting ---

func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	identity, err := auth.Identity(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		rng.To = t
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{Identity: identity, Range: rng})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps the telephony taxonomy onto the relay's JSON error body.
// Provider bodies never reach the client; the cause is logged instead.
func writeError(c *gin.Context, err error) {
	log := logger.FromGin(c)

	te, ok := telephony.AsError(err)
	if !ok {
		log.Error("relay command failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := te.HTTPStatus()
	if status >= 500 {
		log.Error("relay command failed", "op", te.Op, "kind", te.Kind, "reason", te.Reason, "code", te.Code, "err", err)
	} else {
		log.Warn("relay command rejected", "op", te.Op, "kind", te.Kind, "reason", te.Reason, "code", te.Code)
	}

	msg := te.Message
	if msg == "" {
		msg = string(te.Reason)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": te.Kind})
}
