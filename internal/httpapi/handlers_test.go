package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"webphone/internal/auth"
	"webphone/internal/calls"
	"webphone/internal/relay"
	"webphone/internal/reporting"
	"webphone/internal/telephony"

	"github.com/gin-gonic/gin"
)

type stubTokens struct{}

func (stubTokens) MintVoiceToken(now time.Time, identity string) (auth.VoiceToken, error) {
	return auth.VoiceToken{Token: "jwt", Identity: identity, ExpiresAt: now.Add(time.Hour)}, nil
}

type stubCalls struct {
	originateErr error
	controlErr   error
}

func (s stubCalls) OriginateCall(ctx context.Context, req telephony.OriginateRequest) (telephony.OriginateResult, error) {
	if s.originateErr != nil {
		return telephony.OriginateResult{}, s.originateErr
	}
	return telephony.OriginateResult{CallSID: "CA123", Status: "queued", To: req.To}, nil
}

func (s stubCalls) TerminateCall(ctx context.Context, sid string) error { return s.controlErr }

func (s stubCalls) SetCallHoldState(ctx context.Context, sid string, hold bool) error {
	return s.controlErr
}

func newRouter(t *testing.T, cc telephony.CallControl) (*gin.Engine, *calls.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := calls.NewMemoryRepo()
	svc, err := relay.New(relay.Deps{
		Identity: "web-user",
		Tokens:   stubTokens{},
		Calls:    cc,
		Records:  calls.NewService(repo),
	})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	h := Handlers{Relay: svc, Reports: reporting.NewService(repo)}

	r := gin.New()
	r.Use(CORS([]string{"*"}), ClientIP())
	r.GET("/token", h.Token)
	r.POST("/call", h.StartCall)
	r.POST("/endCall", h.EndCall)
	r.POST("/hold", h.Hold)
	r.POST("/resume", h.Resume)
	r.GET("/calls/summary", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "web-user"))
		c.Next()
	}, h.CallsSummary)
	return r, repo
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestToken(t *testing.T) {
	r, _ := newRouter(t, stubCalls{})
	w := do(r, http.MethodGet, "/token", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Token     string    `json:"token"`
		Identity  string    `json:"identity"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token != "jwt" || body.Identity != "web-user" || body.ExpiresAt.IsZero() {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestStartCall(t *testing.T) {
	r, _ := newRouter(t, stubCalls{})

	w := do(r, http.MethodPost, "/call", `{"phoneNumber":"+15551234567"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["callSid"] != "CA123" || body["message"] != "Call started with SID: CA123" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStartCall_MissingNumber(t *testing.T) {
	r, _ := newRouter(t, stubCalls{})

	for _, payload := range []string{`{}`, `{"phoneNumber":""}`, ``} {
		w := do(r, http.MethodPost, "/call", payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", payload, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"kind":"call_origination_failed"`) {
			t.Fatalf("%q: expected kind in body, got %s", payload, w.Body.String())
		}
	}
}

func TestStartCall_ProviderErrorIsMapped(t *testing.T) {
	perr := &telephony.Error{Op: "originate_call", Kind: telephony.KindCallOriginationFailed, Reason: telephony.ReasonInvalidArgument, Code: 21211, Message: "invalid phone number", Err: errors.New("raw provider body")}
	r, _ := newRouter(t, stubCalls{originateErr: perr})

	w := do(r, http.MethodPost, "/call", `{"phoneNumber":"+15551234567"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "raw provider body") {
		t.Fatalf("provider detail leaked: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "invalid phone number") {
		t.Fatalf("expected public message, got %s", w.Body.String())
	}
}

func TestCallCommands_PlainText(t *testing.T) {
	r, _ := newRouter(t, stubCalls{})

	cases := map[string]string{
		"/endCall": "Call ended",
		"/hold":    "Call on hold",
		"/resume":  "Call resumed",
	}
	for path, want := range cases {
		w := do(r, http.MethodPost, path, `{"callSid":"CA123"}`)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("%s: got %d %q", path, w.Code, w.Body.String())
		}
		if w := do(r, http.MethodPost, path, `{}`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 for missing callSid, got %d", path, w.Code)
		}
	}
}

func TestCallCommands_NotFound(t *testing.T) {
	nf := &telephony.Error{Kind: telephony.KindCallTerminationFailed, Reason: telephony.ReasonNotFound, Message: "call not found"}
	r, _ := newRouter(t, stubCalls{controlErr: nf})

	w := do(r, http.MethodPost, "/endCall", `{"callSid":"CA404"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHoldConflictMapsTo409(t *testing.T) {
	conflict := &telephony.Error{Kind: telephony.KindHoldResumeFailed, Reason: telephony.ReasonConflict, Message: "call is not in progress"}
	r, _ := newRouter(t, stubCalls{controlErr: conflict})

	w := do(r, http.MethodPost, "/hold", `{"callSid":"CA123"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"kind":"hold_resume_failed"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestCallsSummary(t *testing.T) {
	r, repo := newRouter(t, stubCalls{})
	now := time.Now().UTC()
	_ = repo.Create(context.Background(), calls.Record{ProviderCallID: "c1", Identity: "web-user", Status: calls.CallStatusCompleted, DurationSeconds: 12, CreatedAt: now.Add(-time.Minute)})

	w := do(r, http.MethodGet, "/calls/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out reporting.CallsSummary
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.TotalCalls != 1 || out.TotalDurationSeconds != 12 {
		t.Fatalf("unexpected summary %+v", out)
	}

	if w := do(r, http.MethodGet, "/calls/summary?from=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newRouter(t, stubCalls{})

	req := httptest.NewRequest(http.MethodOptions, "/call", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive origin header")
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin for foreign origin, got %q", got)
	}
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/readyz", Readyz(map[string]Check{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("down") },
	}, time.Second))

	w := do(r, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redis":"down"`) || !strings.Contains(w.Body.String(), `"postgres":"ok"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
