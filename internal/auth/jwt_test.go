package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webphone/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func testManager(t *testing.T, appSID string) *Manager {
	t.Helper()
	m, err := NewManager(config.TwilioConfig{
		AccountSID: "AC123",
		APIKey:     "SK456",
		APISecret:  "secret",
		AppSID:     appSID,
	}, 15*time.Minute)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestMintAndVerifyVoiceToken(t *testing.T) {
	m := testManager(t, "AP789")

	now := time.Unix(1700000000, 0).UTC()
	vt, err := m.MintVoiceToken(now, "web-user")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if vt.Token == "" || vt.Identity != "web-user" {
		t.Fatalf("unexpected token: %+v", vt)
	}
	if !vt.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", vt.ExpiresAt)
	}

	claims, err := m.Verify(vt.Token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "SK456" || claims.Subject != "AC123" || claims.ID != "SK456-1700000000" {
		t.Fatalf("unexpected registered claims: %+v", claims.RegisteredClaims)
	}
	g := claims.Grants
	if g.Identity != "web-user" || g.Voice == nil || g.Voice.Incoming == nil || !g.Voice.Incoming.Allow {
		t.Fatalf("unexpected grants: %+v", g)
	}
	if g.Voice.Outgoing == nil || g.Voice.Outgoing.ApplicationSID != "AP789" {
		t.Fatalf("expected outgoing grant for application")
	}
}

func TestMintVoiceToken_SetsProviderContentType(t *testing.T) {
	m := testManager(t, "")

	vt, err := m.MintVoiceToken(time.Now(), "web-user")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	tok, _, err := jwt.NewParser().ParseUnverified(vt.Token, &Claims{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tok.Header["cty"] != "twilio-fpa;v=1" {
		t.Fatalf("unexpected cty header %v", tok.Header["cty"])
	}
	if c := tok.Claims.(*Claims); c.Grants.Voice.Outgoing != nil {
		t.Fatalf("outgoing grant must be omitted without an application")
	}
}

func TestMintVoiceToken_RejectsBadIdentity(t *testing.T) {
	m := testManager(t, "")
	for _, id := range []string{"", "has space", "semi;colon"} {
		if _, err := m.MintVoiceToken(time.Now(), id); err == nil {
			t.Fatalf("expected error for identity %q", id)
		}
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager(t, "")
	now := time.Unix(1700000000, 0).UTC()
	vt, _ := m.MintVoiceToken(now, "web-user")

	if _, err := m.Verify(vt.Token, now.Add(16*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	m := testManager(t, "")
	other, _ := NewManager(config.TwilioConfig{AccountSID: "AC123", APIKey: "SK456", APISecret: "other"}, time.Hour)

	now := time.Now()
	vt, _ := other.MintVoiceToken(now, "web-user")
	if _, err := m.Verify(vt.Token, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestNewManager_CapsTTL(t *testing.T) {
	m, err := NewManager(config.TwilioConfig{AccountSID: "AC1", APIKey: "SK1", APISecret: "s"}, 48*time.Hour)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	vt, _ := m.MintVoiceToken(now, "web-user")
	if !vt.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expected ttl capped at 24h, got %s", vt.ExpiresAt.Sub(now))
	}
}

func TestRequireVoiceToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testManager(t, "")
	vt, _ := m.MintVoiceToken(time.Now(), "web-user")

	r := gin.New()
	r.GET("/events", RequireVoiceToken(m), func(c *gin.Context) {
		id, err := Identity(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer", "/events", "Bearer " + vt.Token, http.StatusOK},
		{"query", "/events?token=" + vt.Token, "", http.StatusOK},
		{"missing", "/events", "", http.StatusUnauthorized},
		{"garbage", "/events?token=abc", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
		if tc.want == http.StatusOK && w.Body.String() != "web-user" {
			t.Fatalf("%s: unexpected identity %q", tc.name, w.Body.String())
		}
	}
}
