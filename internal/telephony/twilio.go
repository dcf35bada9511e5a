package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHoldMusicURL is the provider's public hold music.
const DefaultHoldMusicURL = "http://com.twilio.music.classical.s3.amazonaws.com/BusyStrings.mp3"

// TwilioOptions configures TwilioClient.
type TwilioOptions struct {
	AccountSID string
	AuthToken  string

	// BaseURL defaults to https://api.twilio.com/2010-04-01
	BaseURL string

	// CallerID is the provider number relay-originated calls are placed from.
	CallerID string

	// VoiceURL is fetched by the provider once the dialed party answers.
	VoiceURL          string
	StatusCallbackURL string

	// Identity is the client the answered leg is bridged back to on resume.
	Identity string

	HoldMessage  string
	HoldMusicURL string

	HTTPClient *http.Client
}

// TwilioClient implements Provider over the provider's REST API.
type TwilioClient struct {
	opts TwilioOptions
	http *http.Client
}

func NewTwilioClient(opts TwilioOptions) (*TwilioClient, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token are required")
	}
	if opts.CallerID == "" {
		return nil, errors.New("telephony: twilio caller id is required")
	}
	if opts.VoiceURL == "" {
		return nil, errors.New("telephony: voice url is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HoldMusicURL == "" {
		opts.HoldMusicURL = DefaultHoldMusicURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioClient{opts: opts, http: hc}, nil
}

func (p *TwilioClient) Name() string { return "twilio" }

// HealthCheck fetches the account resource, which validates both reachability and credentials.
func (p *TwilioClient) HealthCheck(ctx context.Context) error {
	u := fmt.Sprintf("%s/Accounts/%s.json", p.opts.BaseURL, url.PathEscape(p.opts.AccountSID))
	return p.do(ctx, "health_check", KindDeviceInitFailed, http.MethodGet, u, nil, nil)
}

type twilioCall struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (p *TwilioClient) OriginateCall(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	const op = "originate_call"

	to, ok := NormalizeDialTarget(req.To)
	if !ok {
		return OriginateResult{}, InvalidArgument(op, KindCallOriginationFailed, "phone number is invalid")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.opts.CallerID)
	form.Set("Url", p.opts.VoiceURL)
	form.Set("Method", http.MethodPost)
	if p.opts.StatusCallbackURL != "" {
		form.Set("StatusCallback", p.opts.StatusCallbackURL)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var out twilioCall
	if err := p.do(ctx, op, KindCallOriginationFailed, http.MethodPost, p.callsURL(""), form, &out); err != nil {
		return OriginateResult{}, err
	}
	if out.SID == "" {
		return OriginateResult{}, newError(op, KindCallOriginationFailed, ReasonRejected, "provider returned no call id", nil)
	}
	return OriginateResult{CallSID: out.SID, Status: out.Status, From: out.From, To: out.To}, nil
}

func (p *TwilioClient) TerminateCall(ctx context.Context, callSID string) error {
	const op = "terminate_call"
	if !ValidCallSID(callSID) {
		return InvalidArgument(op, KindCallTerminationFailed, "callSid is invalid")
	}
	form := url.Values{}
	form.Set("Status", "completed")
	return p.do(ctx, op, KindCallTerminationFailed, http.MethodPost, p.callsURL(callSID), form, nil)
}

// SetCallHoldState swaps the live instructions of a call: hold plays music to the remote party,
// resume bridges the remote party back to the client identity.
func (p *TwilioClient) SetCallHoldState(ctx context.Context, callSID string, hold bool) error {
	op := "resume_call"
	if hold {
		op = "hold_call"
	}
	if !ValidCallSID(callSID) {
		return InvalidArgument(op, KindHoldResumeFailed, "callSid is invalid")
	}

	in := Instruction{Action: VoiceActionConnectClient, Target: p.opts.Identity}
	if hold {
		in = Instruction{Action: VoiceActionHold, Say: p.opts.HoldMessage, MusicURL: p.opts.HoldMusicURL}
	}
	twiml, err := RenderTwiML(in)
	if err != nil {
		return newError(op, KindHoldResumeFailed, ReasonInvalidArgument, "hold instructions are misconfigured", err)
	}

	form := url.Values{}
	form.Set("Twiml", twiml)
	return p.do(ctx, op, KindHoldResumeFailed, http.MethodPost, p.callsURL(callSID), form, nil)
}

func (p *TwilioClient) callsURL(callSID string) string {
	base := fmt.Sprintf("%s/Accounts/%s/Calls", p.opts.BaseURL, url.PathEscape(p.opts.AccountSID))
	if callSID == "" {
		return base + ".json"
	}
	return base + "/" + url.PathEscape(callSID) + ".json"
}

func (p *TwilioClient) do(ctx context.Context, op string, kind Kind, method, u string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return newError(op, kind, ReasonInvalidArgument, "request build failed", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.opts.AccountSID, p.opts.AuthToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return transportError(op, kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportError(op, kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var pe providerError
		if err := json.Unmarshal(raw, &pe); err != nil || pe.Status == 0 {
			pe.Status = resp.StatusCode
		}
		return fromProvider(op, kind, resp.StatusCode, pe)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(op, kind, ReasonRejected, "provider response unreadable", err)
	}
	return nil
}
