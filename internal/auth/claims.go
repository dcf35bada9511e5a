package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the provider access-token claims the relay mints for browser clients.
// iss is the API key, sub the account SID; the grant carries the client identity.
type Claims struct {
	jwt.RegisteredClaims

	Grants Grants `json:"grants"`
}

type Grants struct {
	Identity string      `json:"identity"`
	Voice    *VoiceGrant `json:"voice,omitempty"`
}

// VoiceGrant scopes the token to placing calls through one application and receiving calls.
// Ref: https://www.twilio.com/docs/iam/access-tokens#voice-grant
type VoiceGrant struct {
	Incoming *IncomingGrant `json:"incoming,omitempty"`
	Outgoing *OutgoingGrant `json:"outgoing,omitempty"`
}

type IncomingGrant struct {
	Allow bool `json:"allow"`
}

type OutgoingGrant struct {
	ApplicationSID string            `json:"application_sid"`
	Params         map[string]string `json:"params,omitempty"`
}
