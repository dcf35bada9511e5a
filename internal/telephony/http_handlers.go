package telephony

import (
	"context"
	"net/http"
	"time"

	"webphone/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VoiceRequest is the provider-agnostic form of a voice webhook.
type VoiceRequest struct {
	CallSID       string `json:"call_sid"`
	ParentCallSID string `json:"parent_call_sid,omitempty"`
	From          string `json:"from"`
	To            string `json:"to"`
	CallerName    string `json:"caller_name,omitempty"`
	Inbound       bool   `json:"inbound"`
}

// VoiceRouter decides what the provider should do with a call leg.
type VoiceRouter interface {
	RouteVoice(ctx context.Context, req VoiceRequest) (Instruction, error)
}

// IncomingNotifier is told about inbound calls that are about to ring a client identity.
type IncomingNotifier interface {
	NotifyIncoming(ctx context.Context, identity string, req VoiceRequest)
}

// StatusSink consumes call progress events.
type StatusSink interface {
	HandleStatus(ctx context.Context, ev StatusEvent) error
}

// WebhookHandler converts provider webhooks to internal types and delegates.
// No business logic here.
type WebhookHandler struct {
	Router   VoiceRouter
	Incoming IncomingNotifier
	Status   StatusSink

	Now func() time.Time
}

// HandleVoice answers the provider's request for call instructions with TwiML.
func (h WebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Router == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "voice router not configured"})
		return
	}

	form, err := ParseTwilioVoice(c.Request)
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	req := VoiceRequest{
		CallSID:       form.CallSid,
		ParentCallSID: form.ParentCallSid,
		From:          form.From,
		To:            form.To,
		CallerName:    form.CallerName,
		Inbound:       form.IsInbound(),
	}

	in, err := h.Router.RouteVoice(c.Request.Context(), req)
	if err != nil {
		log.Error("voice routing failed", "call_sid", req.CallSID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
		return
	}

	twiml, err := RenderTwiML(in)
	if err != nil {
		log.Error("twiml render failed", "call_sid", req.CallSID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	if req.Inbound && in.Action == VoiceActionConnectClient && h.Incoming != nil {
		h.Incoming.NotifyIncoming(c.Request.Context(), in.Target, req)
	}

	log.Debug("voice instructions issued", "call_sid", req.CallSID, "action", in.Action, "inbound", req.Inbound)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, twiml)
}

// HandleStatus records a status callback. The provider ignores the body, so 204 is returned.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Status == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status sink not configured"})
		return
	}

	form, err := ParseTwilioStatus(c.Request)
	if err != nil {
		log.Warn("status webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" || form.CallStatus == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid and CallStatus required"})
		return
	}

	ev := form.ToStatusEvent(h.Now())
	if err := h.Status.HandleStatus(c.Request.Context(), ev); err != nil {
		log.Error("status handling failed", "call_sid", ev.CallSID, "status", ev.Status, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status handling failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
