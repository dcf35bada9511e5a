package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webphone/internal/audit"
	"webphone/internal/auth"
	"webphone/internal/calls"
	"webphone/internal/config"
	"webphone/internal/events"
	"webphone/internal/relay"
	"webphone/internal/reporting"
	"webphone/internal/routing"
	"webphone/internal/telephony"
	"webphone/pkg/logger"
	"webphone/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// deps is everything the route table needs. Built once in main, no globals.
type deps struct {
	cfg config.Config
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	provider telephony.Provider
	tokens   *auth.Manager
	hub      *events.Hub
	relay    *relay.Service
	router   telephony.VoiceRouter
	reports  *reporting.Service
}

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	d, cleanup, err := build(rootCtx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	// A bad credential shows up here instead of on the first call.
	if err := d.provider.HealthCheck(rootCtx); err != nil {
		log.Warn("provider health check failed", "provider", d.provider.Name(), "err", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, d)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("relay listening", "addr", srv.Addr, "env", cfg.App.Env, "identity", cfg.Voice.Identity)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// build opens optional stores and assembles the services. Postgres and Redis are
// used only when configured; without them records live in memory and the call cap is off.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*deps, func(), error) {
	d := &deps{cfg: cfg, log: log}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*deps, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	var (
		callRepo  calls.Repository
		auditRepo audit.Repository
	)
	if cfg.HasPostgres() {
		db, err := utils.OpenPostgres(ctx, utils.PostgresConfig{DSN: cfg.PostgresDSN()})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = db.Close() })
		d.db = db

		cr := calls.NewPostgresRepo(db)
		if err := cr.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		ar := audit.NewPostgresRepo(db)
		if err := ar.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		callRepo, auditRepo = cr, ar
	} else {
		log.Info("postgres not configured, keeping call records in memory")
		callRepo, auditRepo = calls.NewMemoryRepo(), audit.NewMemoryRepo()
	}

	var callCap relay.CallCap
	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		d.rdb = rdb
		callCap = relay.NewRedisCallCap(rdb, cfg.Redis.MaxActiveCalls, relay.DefaultSlotTTL)
	} else {
		log.Info("redis not configured, active call cap disabled")
	}

	provider, err := telephony.NewTwilioClient(telephony.TwilioOptions{
		AccountSID:        cfg.Twilio.AccountSID,
		AuthToken:         cfg.Twilio.AuthToken,
		BaseURL:           cfg.Twilio.APIBaseURL,
		CallerID:          cfg.Twilio.PhoneNumber,
		VoiceURL:          cfg.VoiceURL(),
		StatusCallbackURL: cfg.StatusCallbackURL(),
		Identity:          cfg.Voice.Identity,
		HoldMessage:       cfg.Voice.HoldMessage,
		HoldMusicURL:      cfg.Voice.HoldMusicURL,
	})
	if err != nil {
		return fail(err)
	}
	d.provider = provider

	tokens, err := auth.NewManager(cfg.Twilio, cfg.Voice.TokenTTL)
	if err != nil {
		return fail(err)
	}
	d.tokens = tokens

	d.hub = events.NewHub(log)
	auditSvc := audit.NewService(auditRepo)
	records := calls.NewService(callRepo)

	rs, err := relay.New(relay.Deps{
		Identity: cfg.Voice.Identity,
		Tokens:   tokens,
		Calls:    provider,
		Records:  records,
		Audit:    auditSvc,
		Cap:      callCap,
		Events:   d.hub,
		Log:      log,
	})
	if err != nil {
		return fail(err)
	}
	d.relay = rs

	engine := routing.NewRoutingEngine(cfg.Voice.Identity, cfg.Voice.Greeting)
	engine.InboundGreeting = cfg.Voice.InboundGreeting
	engine.FallbackNumber = cfg.Voice.FallbackNumber
	engine.Presence = d.hub
	if callCap != nil {
		engine.Busy = callCap
	}
	engine.Audit = routing.AuditAdapter{Audit: auditSvc}
	d.router = routing.NewVoiceRouter(engine)

	d.reports = reporting.NewService(callRepo)

	return d, cleanup, nil
}
