package softphone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"webphone/internal/telephony"
)

const maxErrorBody = 64 << 10

// RelayClient talks to the relay's HTTP surface.
type RelayClient struct {
	base string
	hc   *http.Client
}

func NewRelayClient(baseURL string, hc *http.Client) (*RelayClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("softphone: relay url must be absolute, got %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &RelayClient{base: u.String(), hc: hc}, nil
}

func (c *RelayClient) BaseURL() string { return c.base }

func (c *RelayClient) FetchCredential(ctx context.Context) (Credential, error) {
	var cred Credential
	if err := c.call(ctx, "fetch_credential", telephony.KindCredentialFetchFailed, http.MethodGet, "/token", nil, &cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (c *RelayClient) OriginateCall(ctx context.Context, phoneNumber string) (string, error) {
	const op = "originate_call"
	var out struct {
		Message string `json:"message"`
		CallSID string `json:"callSid"`
	}
	body := map[string]string{"phoneNumber": phoneNumber}
	if err := c.call(ctx, op, telephony.KindCallOriginationFailed, http.MethodPost, "/call", body, &out); err != nil {
		return "", err
	}
	if out.CallSID == "" {
		return "", &telephony.Error{Op: op, Kind: telephony.KindCallOriginationFailed, Reason: telephony.ReasonRejected, Message: "relay returned no call id"}
	}
	return out.CallSID, nil
}

func (c *RelayClient) TerminateCall(ctx context.Context, callSID string) error {
	return c.call(ctx, "terminate_call", telephony.KindCallTerminationFailed, http.MethodPost, "/endCall", map[string]string{"callSid": callSID}, nil)
}

func (c *RelayClient) SetCallHoldState(ctx context.Context, callSID string, hold bool) error {
	path := "/resume"
	if hold {
		path = "/hold"
	}
	return c.call(ctx, "set_hold_state", telephony.KindHoldResumeFailed, http.MethodPost, path, map[string]string{"callSid": callSID}, nil)
}

// call sends a JSON request. out may be nil for endpoints answering with plain text.
func (c *RelayClient) call(ctx context.Context, op string, kind telephony.Kind, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &telephony.Error{Op: op, Kind: kind, Reason: telephony.ReasonUnavailable, Message: "relay unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeRelayError(op, kind, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &telephony.Error{Op: op, Kind: kind, Reason: telephony.ReasonRejected, Message: "malformed relay response", Err: err}
	}
	return nil
}

type relayErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func decodeRelayError(op string, kind telephony.Kind, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &telephony.Error{Op: op, Kind: kind, Reason: reasonFromStatus(resp.StatusCode)}
	var body relayErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		e.Message = body.Error
		if body.Kind != "" {
			e.Kind = telephony.Kind(body.Kind)
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		e.Message = text
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	e.Err = errors.New(resp.Status)
	return e
}

func reasonFromStatus(code int) telephony.Reason {
	switch {
	case code == http.StatusBadRequest:
		return telephony.ReasonInvalidArgument
	case code == http.StatusNotFound:
		return telephony.ReasonNotFound
	case code == http.StatusConflict:
		return telephony.ReasonConflict
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return telephony.ReasonUpstreamAuth
	case code >= 500:
		return telephony.ReasonUnavailable
	default:
		return telephony.ReasonRejected
	}
}
