package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"webphone/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// contentType marks the token as a provider access token.
const contentType = "twilio-fpa;v=1"

// Provider limit on access token lifetime.
const maxTTL = 24 * time.Hour

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,121}$`)

type Manager struct {
	accountSID string
	apiKey     string
	apiSecret  []byte
	appSID     string
	ttl        time.Duration
}

func NewManager(tw config.TwilioConfig, ttl time.Duration) (*Manager, error) {
	if tw.AccountSID == "" {
		return nil, errors.New("TWILIO_ACCOUNT_SID is required")
	}
	if tw.APIKey == "" || tw.APISecret == "" {
		return nil, errors.New("TWILIO_API_KEY and TWILIO_API_SECRET are required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}

	return &Manager{
		accountSID: tw.AccountSID,
		apiKey:     tw.APIKey,
		apiSecret:  []byte(tw.APISecret),
		appSID:     tw.AppSID,
		ttl:        ttl,
	}, nil
}

// VoiceToken is a signed credential plus the values a client needs to schedule its refresh.
type VoiceToken struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

/* ===================== MINT ===================== */

// MintVoiceToken issues a credential that lets identity receive calls and, when an
// application is configured, place calls through it.
func (m *Manager) MintVoiceToken(now time.Time, identity string) (VoiceToken, error) {
	if !ValidIdentity(identity) {
		return VoiceToken{}, fmt.Errorf("invalid client identity %q", identity)
	}

	grant := &VoiceGrant{Incoming: &IncomingGrant{Allow: true}}
	if m.appSID != "" {
		grant.Outgoing = &OutgoingGrant{ApplicationSID: m.appSID}
	}

	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   m.accountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        fmt.Sprintf("%s-%d", m.apiKey, now.Unix()),
		},
		Grants: Grants{Identity: identity, Voice: grant},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["cty"] = contentType
	signed, err := t.SignedString(m.apiSecret)
	if err != nil {
		return VoiceToken{}, err
	}

	return VoiceToken{
		Token:     signed,
		Identity:  identity,
		ExpiresAt: time.Unix(exp.Unix(), 0).UTC(),
	}, nil
}

/* ===================== VERIFY ===================== */

// Verify checks a token minted by this Manager and returns its claims.
// Used to authenticate browser clients on relay endpoints such as /events.
func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.apiKey),
		jwt.WithSubject(m.accountSID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second), // clock skew tolerance
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	tok, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.apiSecret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	if cty, _ := tok.Header["cty"].(string); cty != contentType {
		return Claims{}, errors.New("unexpected token content type")
	}
	if claims.Grants.Identity == "" {
		return Claims{}, errors.New("identity missing")
	}
	if claims.Grants.Voice == nil {
		return Claims{}, errors.New("voice grant missing")
	}

	return claims, nil
}

// ValidIdentity reports whether s is usable as a client identity.
func ValidIdentity(s string) bool {
	return identityPattern.MatchString(s)
}
