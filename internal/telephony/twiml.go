package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder. Only the verbs the relay emits are modelled.

type VoiceAction string

const (
	VoiceActionConnectClient VoiceAction = "connect_client"
	VoiceActionConnectNumber VoiceAction = "connect_number"
	VoiceActionHold          VoiceAction = "hold"
	VoiceActionReject        VoiceAction = "reject"
	VoiceActionHangup        VoiceAction = "hangup"
)

// Instruction is a provider-agnostic description of what the provider should do with a call leg.
type Instruction struct {
	Action VoiceAction `json:"action"`

	// Say is spoken before the action, if set.
	Say string `json:"say,omitempty"`

	// Target is the client identity, phone number or sip: URI to connect to.
	Target string `json:"target,omitempty"`

	// MusicURL is looped while on hold.
	MusicURL string `json:"music_url,omitempty"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Loop    int      `xml:"loop,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	Loop    string   `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Client  string    `xml:"Client,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderTwiML maps an Instruction to a TwiML document.
func RenderTwiML(in Instruction) (string, error) {
	var r twimlResponse

	if s := strings.TrimSpace(in.Say); s != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: s})
	}

	switch in.Action {
	case VoiceActionReject:
		r.Verbs = []any{twimlReject{Reason: "busy"}}
	case VoiceActionHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case VoiceActionConnectClient:
		if strings.TrimSpace(in.Target) == "" {
			return "", errors.New("telephony: client identity required for connect_client")
		}
		r.Verbs = append(r.Verbs, twimlDial{Client: in.Target})
	case VoiceActionConnectNumber:
		if strings.TrimSpace(in.Target) == "" {
			return "", errors.New("telephony: target required for connect_number")
		}
		d := twimlDial{}
		if strings.HasPrefix(strings.ToLower(in.Target), "sip:") {
			d.Sip = &twimlSip{URI: in.Target}
		} else {
			d.Number = in.Target
		}
		r.Verbs = append(r.Verbs, d)
	case VoiceActionHold:
		if strings.TrimSpace(in.MusicURL) == "" {
			return "", errors.New("telephony: music url required for hold")
		}
		r.Verbs = append(r.Verbs, twimlPlay{Loop: "0", URL: in.MusicURL})
	default:
		return "", errors.New("telephony: unknown voice action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
