package telephony

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type recordedRequest struct {
	method string
	path   string
	user   string
	pass   string
	form   url.Values
}

func newTestProvider(t *testing.T, status int, body string) (*TwilioClient, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		user, pass, _ := r.BasicAuth()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, user: user, pass: pass, form: form})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	p, err := NewTwilioClient(TwilioOptions{
		AccountSID:        "AC1",
		AuthToken:         "secret",
		BaseURL:           srv.URL,
		CallerID:          "+15550000000",
		VoiceURL:          "https://relay.example.com/voice",
		StatusCallbackURL: "https://relay.example.com/status",
		Identity:          "web-user",
		HoldMessage:       "Please hold",
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return p, &reqs
}

func TestOriginateCall_PostsCallResource(t *testing.T) {
	p, reqs := newTestProvider(t, http.StatusCreated, `{"sid":"CA123","status":"queued","to":"+15551234567","from":"+15550000000"}`)

	res, err := p.OriginateCall(context.Background(), OriginateRequest{To: "+1 (555) 123-4567"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.CallSID != "CA123" {
		t.Fatalf("expected CA123, got %q", res.CallSID)
	}

	if len(*reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*reqs))
	}
	got := (*reqs)[0]
	if got.method != http.MethodPost || got.path != "/Accounts/AC1/Calls.json" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.user != "AC1" || got.pass != "secret" {
		t.Fatalf("expected basic auth with account credentials")
	}
	if got.form.Get("To") != "+15551234567" || got.form.Get("From") != "+15550000000" {
		t.Fatalf("unexpected to/from: %v", got.form)
	}
	if got.form.Get("Url") != "https://relay.example.com/voice" {
		t.Fatalf("expected voice url, got %q", got.form.Get("Url"))
	}
	if got.form.Get("StatusCallback") != "https://relay.example.com/status" {
		t.Fatalf("expected status callback")
	}
	if len(got.form["StatusCallbackEvent"]) != 4 {
		t.Fatalf("expected 4 status callback events, got %v", got.form["StatusCallbackEvent"])
	}
}

func TestOriginateCall_InvalidNumberNeverReachesProvider(t *testing.T) {
	p, reqs := newTestProvider(t, http.StatusCreated, `{}`)

	_, err := p.OriginateCall(context.Background(), OriginateRequest{To: "not-a-number"})
	if !errors.Is(err, KindCallOriginationFailed) || !errors.Is(err, ReasonInvalidArgument) {
		t.Fatalf("expected invalid origination error, got %v", err)
	}
	if len(*reqs) != 0 {
		t.Fatalf("expected no provider request")
	}
}

func TestOriginateCall_MapsProviderRejection(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusBadRequest, `{"code":21211,"message":"The 'To' number +1555 is not a valid phone number.","status":400}`)

	_, err := p.OriginateCall(context.Background(), OriginateRequest{To: "+15551234567"})
	te, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if te.Kind != KindCallOriginationFailed || te.Reason != ReasonInvalidArgument || te.Code != 21211 {
		t.Fatalf("unexpected mapping: %+v", te)
	}
	if strings.Contains(te.Message, "+1555") {
		t.Fatalf("public message must not leak the provider body: %q", te.Message)
	}
	if te.HTTPStatus() != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", te.HTTPStatus())
	}
}

func TestTerminateCall_CompletesCall(t *testing.T) {
	p, reqs := newTestProvider(t, http.StatusOK, `{"sid":"CA123","status":"completed"}`)

	if err := p.TerminateCall(context.Background(), "CA123"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got := (*reqs)[0]
	if got.path != "/Accounts/AC1/Calls/CA123.json" || got.form.Get("Status") != "completed" {
		t.Fatalf("unexpected request %s %v", got.path, got.form)
	}
}

func TestTerminateCall_UnknownCall(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusNotFound, `{"code":20404,"message":"The requested resource was not found","status":404}`)

	err := p.TerminateCall(context.Background(), "CA404")
	if !errors.Is(err, KindCallTerminationFailed) || !errors.Is(err, ReasonNotFound) {
		t.Fatalf("expected not found termination error, got %v", err)
	}
}

func TestTerminateCall_RejectsUnsafeSID(t *testing.T) {
	p, reqs := newTestProvider(t, http.StatusOK, `{}`)

	if err := p.TerminateCall(context.Background(), "../Accounts"); !errors.Is(err, ReasonInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(*reqs) != 0 {
		t.Fatalf("expected no provider request")
	}
}

func TestSetCallHoldState_SwapsInstructions(t *testing.T) {
	p, reqs := newTestProvider(t, http.StatusOK, `{"sid":"CA123","status":"in-progress"}`)

	if err := p.SetCallHoldState(context.Background(), "CA123", true); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := p.SetCallHoldState(context.Background(), "CA123", false); err != nil {
		t.Fatalf("resume: %v", err)
	}

	hold := (*reqs)[0].form.Get("Twiml")
	if !strings.Contains(hold, "<Say>Please hold</Say>") || !strings.Contains(hold, DefaultHoldMusicURL) {
		t.Fatalf("unexpected hold twiml: %s", hold)
	}
	resume := (*reqs)[1].form.Get("Twiml")
	if !strings.Contains(resume, "<Dial><Client>web-user</Client></Dial>") {
		t.Fatalf("unexpected resume twiml: %s", resume)
	}
}

func TestSetCallHoldState_CallNotInProgress(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusBadRequest, `{"code":21220,"message":"Call is not in-progress. Cannot redirect.","status":400}`)

	err := p.SetCallHoldState(context.Background(), "CA123", true)
	te, ok := AsError(err)
	if !ok || te.Kind != KindHoldResumeFailed || te.Reason != ReasonConflict {
		t.Fatalf("expected hold conflict, got %v", err)
	}
	if te.HTTPStatus() != http.StatusConflict {
		t.Fatalf("expected 409, got %d", te.HTTPStatus())
	}
}

func TestProviderOutageMapsToUnavailable(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusServiceUnavailable, `upstream down`)

	err := p.TerminateCall(context.Background(), "CA123")
	if !errors.Is(err, ReasonUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestNormalizeDialTarget(t *testing.T) {
	cases := map[string]struct {
		want string
		ok   bool
	}{
		"+15551234567":        {"+15551234567", true},
		" 555-123-4567 ":      {"5551234567", true},
		"sip:agent@pbx.local": {"sip:agent@pbx.local", true},
		"":                    {"", false},
		"sip:":                {"", false},
		"12":                  {"", false},
		"+1555abc":            {"", false},
	}
	for in, tc := range cases {
		got, ok := NormalizeDialTarget(in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("NormalizeDialTarget(%q) = %q, %v; want %q, %v", in, got, ok, tc.want, tc.ok)
		}
	}
}
