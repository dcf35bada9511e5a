package main

import (
	"context"
	"time"

	"webphone/internal/auth"
	"webphone/internal/events"
	"webphone/internal/httpapi"
	"webphone/internal/telephony"
	"webphone/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d *deps) {
	r.Use(httpapi.CORS(d.cfg.App.AllowedOrigins))
	r.Use(httpapi.ClientIP())

	// health
	checks := map[string]httpapi.Check{}
	if d.db != nil {
		checks["postgres"] = func(ctx context.Context) error { return utils.PingPostgres(ctx, d.db, 2*time.Second) }
	}
	if d.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return d.rdb.Ping(ctx).Err() }
	}
	r.GET("/healthz", httpapi.Healthz)
	r.GET("/readyz", httpapi.Readyz(checks, 3*time.Second))

	// browser-facing relay commands
	h := httpapi.Handlers{Relay: d.relay, Reports: d.reports}
	r.GET("/token", h.Token)
	r.POST("/call", h.StartCall)
	r.POST("/endCall", h.EndCall)
	r.POST("/hold", h.Hold)
	r.POST("/resume", h.Resume)

	// provider webhooks
	{
		wh := telephony.WebhookHandler{Router: d.router, Incoming: d.relay, Status: d.relay}
		hooks := r.Group("/")
		if d.cfg.Twilio.ValidateWebhooks {
			hooks.Use(telephony.RequireSignature(d.cfg.Twilio.AuthToken, d.cfg.App.PublicBaseURL))
		}
		hooks.POST("/voice", wh.HandleVoice)
		hooks.POST("/status", wh.HandleStatus)
	}

	// token-scoped
	authed := r.Group("/")
	authed.Use(auth.RequireVoiceToken(d.tokens))
	{
		ws := events.Handler{Hub: d.hub, Upgrader: events.Upgrader(d.cfg.App.AllowedOrigins)}
		authed.GET("/events", ws.ServeWS)
		authed.GET("/calls/summary", h.CallsSummary)
	}
}
