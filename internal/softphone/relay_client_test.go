package softphone

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"webphone/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	method string
	path   string
	body   map[string]string
}

func newRelayServer(t *testing.T, status int, contentType, body string) (*RelayClient, *[]seenRequest) {
	t.Helper()
	var seen []seenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(raw, &m)
		seen = append(seen, seenRequest{method: r.Method, path: r.URL.Path, body: m})
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := NewRelayClient(srv.URL+"/", nil)
	require.NoError(t, err)
	return c, &seen
}

func TestRelayClient_FetchCredential(t *testing.T) {
	c, seen := newRelayServer(t, http.StatusOK, "application/json",
		`{"token":"jwt","identity":"web-user","expires_at":"2030-01-01T00:00:00Z"}`)

	cred, err := c.FetchCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt", cred.Token)
	assert.Equal(t, "web-user", cred.Identity)
	assert.Equal(t, 2030, cred.ExpiresAt.Year())
	assert.Equal(t, http.MethodGet, (*seen)[0].method)
	assert.Equal(t, "/token", (*seen)[0].path)
}

func TestRelayClient_OriginateCall(t *testing.T) {
	c, seen := newRelayServer(t, http.StatusOK, "application/json",
		`{"message":"Call started with SID: CA123","callSid":"CA123"}`)

	sid, err := c.OriginateCall(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "CA123", sid)
	assert.Equal(t, "/call", (*seen)[0].path)
	assert.Equal(t, "+15551234567", (*seen)[0].body["phoneNumber"])
}

func TestRelayClient_DecodesErrorTaxonomy(t *testing.T) {
	c, _ := newRelayServer(t, http.StatusBadRequest, "application/json",
		`{"error":"invalid phone number","kind":"call_origination_failed"}`)

	_, err := c.OriginateCall(context.Background(), "+1")
	te, ok := telephony.AsError(err)
	require.True(t, ok)
	assert.Equal(t, telephony.KindCallOriginationFailed, te.Kind)
	assert.Equal(t, telephony.ReasonInvalidArgument, te.Reason)
	assert.Equal(t, "invalid phone number", te.Message)
}

func TestRelayClient_PlainTextCommands(t *testing.T) {
	c, seen := newRelayServer(t, http.StatusOK, "text/plain", "Call ended")

	ctx := context.Background()
	require.NoError(t, c.TerminateCall(ctx, "CA123"))
	require.NoError(t, c.SetCallHoldState(ctx, "CA123", true))
	require.NoError(t, c.SetCallHoldState(ctx, "CA123", false))

	paths := []string{(*seen)[0].path, (*seen)[1].path, (*seen)[2].path}
	assert.Equal(t, []string{"/endCall", "/hold", "/resume"}, paths)
	assert.Equal(t, "CA123", (*seen)[1].body["callSid"])
}

func TestRelayClient_NotFoundKeepsCommandKind(t *testing.T) {
	c, _ := newRelayServer(t, http.StatusNotFound, "text/plain", "call not found")

	err := c.TerminateCall(context.Background(), "CA404")
	assert.ErrorIs(t, err, telephony.KindCallTerminationFailed)
	assert.ErrorIs(t, err, telephony.ReasonNotFound)
}

func TestNewRelayClient_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewRelayClient("localhost:8080", nil)
	assert.Error(t, err)
}
