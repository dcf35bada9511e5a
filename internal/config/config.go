package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the relay process.
// All values must come from env (or env-file loaded by the process runner).
// No handler should read raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Twilio TwilioConfig
	Voice  VoiceConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable URL of this service.
	// Provider webhooks (/voice, /status) are built from it.
	PublicBaseURL string

	// AllowedOrigins lists browser origins allowed by CORS. "*" allows any.
	AllowedOrigins []string
}

// DBConfig is optional. When Host is empty, call records and audit events stay in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. When Host is empty, the active-call cap is disabled.
type RedisConfig struct {
	Host string
	Port int

	MaxActiveCalls int
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// API key pair used to sign client access tokens.
	APIKey    string
	APISecret string

	// AppSID is the TwiML application used for client-originated calls.
	AppSID string

	// PhoneNumber is the caller ID for relay-originated calls.
	PhoneNumber string

	APIBaseURL       string
	ValidateWebhooks bool
}

type VoiceConfig struct {
	// Identity is the client name calls are bridged to.
	Identity string
	TokenTTL time.Duration

	Greeting        string
	InboundGreeting string
	HoldMessage     string
	HoldMusicURL    string

	// FallbackNumber receives inbound calls while the client is busy or offline. Optional.
	FallbackNumber string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.App.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	{
		n, err := optionalInt("MAX_ACTIVE_CALLS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.MaxActiveCalls = n
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.APIKey = strings.TrimSpace(os.Getenv("TWILIO_API_KEY"))
	c.Twilio.APISecret = os.Getenv("TWILIO_API_SECRET")
	c.Twilio.AppSID = strings.TrimSpace(os.Getenv("TWILIO_APP_SID"))
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Twilio.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_API_BASE_URL")), "/")
	c.Twilio.ValidateWebhooks = mustBool("TWILIO_VALIDATE_WEBHOOKS")

	c.Voice.Identity = strings.TrimSpace(os.Getenv("CLIENT_IDENTITY"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Voice.TokenTTL = mustDuration("TOKEN_TTL")
	c.Voice.Greeting = strings.TrimSpace(os.Getenv("VOICE_GREETING"))
	c.Voice.InboundGreeting = strings.TrimSpace(os.Getenv("INBOUND_GREETING"))
	c.Voice.HoldMessage = strings.TrimSpace(os.Getenv("HOLD_MESSAGE"))
	c.Voice.HoldMusicURL = strings.TrimSpace(os.Getenv("HOLD_MUSIC_URL"))
	c.Voice.FallbackNumber = strings.TrimSpace(os.Getenv("VOICE_FALLBACK_NUMBER"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
	}
	if len(c.App.AllowedOrigins) == 0 && !c.IsProduction() {
		c.App.AllowedOrigins = []string{"*"}
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.APIKey == "" {
		errs = append(errs, errors.New("TWILIO_API_KEY is required"))
	}
	if c.Twilio.APISecret == "" {
		errs = append(errs, errors.New("TWILIO_API_SECRET is required"))
	}
	if c.Twilio.PhoneNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}
	if c.Twilio.APIBaseURL == "" {
		c.Twilio.APIBaseURL = "https://api.twilio.com/2010-04-01"
	}
	if c.IsProduction() && !c.Twilio.ValidateWebhooks {
		errs = append(errs, errors.New("TWILIO_VALIDATE_WEBHOOKS must be true in production"))
	}

	if c.Voice.Identity == "" {
		c.Voice.Identity = "web-user"
	}
	if c.Voice.TokenTTL <= 0 {
		c.Voice.TokenTTL = time.Hour
	}
	// Provider rejects access tokens valid for more than 24h.
	if c.Voice.TokenTTL > 24*time.Hour {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must not exceed 24h, got %s", c.Voice.TokenTTL))
	}
	if c.Voice.Greeting == "" {
		c.Voice.Greeting = "You are connected to the web support agent."
	}
	if c.Voice.HoldMessage == "" {
		c.Voice.HoldMessage = "Please hold while we connect you."
	}

	if c.DB.Host != "" {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.MaxActiveCalls < 0 {
		errs = append(errs, fmt.Errorf("MAX_ACTIVE_CALLS must be >= 0, got %d", c.Redis.MaxActiveCalls))
	} else if c.Redis.MaxActiveCalls == 0 {
		c.Redis.MaxActiveCalls = 1
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) HasPostgres() bool { return c.DB.Host != "" }

func (c Config) HasRedis() bool { return c.Redis.Host != "" }

// VoiceURL is the webhook the provider fetches call instructions from.
func (c Config) VoiceURL() string { return c.App.PublicBaseURL + "/voice" }

// StatusCallbackURL receives call progress events from the provider.
func (c Config) StatusCallbackURL() string { return c.App.PublicBaseURL + "/status" }

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func mustBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
