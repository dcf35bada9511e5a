package telephony

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// The provider sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml#request-parameters
type TwilioVoiceForm struct {
	CallSid       string
	ParentCallSid string
	AccountSid    string
	From          string
	To            string
	Direction     string
	CallStatus    string
	CallerName    string
}

func ParseTwilioVoice(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	return TwilioVoiceForm{
		CallSid:       r.PostFormValue("CallSid"),
		ParentCallSid: r.PostFormValue("ParentCallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallerName:    r.PostFormValue("CallerName"),
	}, nil
}

// IsInbound reports whether the call was placed by an outside party to a provider number,
// as opposed to a leg the relay originated through the REST API.
func (f TwilioVoiceForm) IsInbound() bool {
	return f.Direction == "inbound"
}

// TwilioStatusForm is the status callback payload.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioStatusForm struct {
	TwilioVoiceForm
	CallDuration string
	Timestamp    string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	voice, err := ParseTwilioVoice(r)
	if err != nil {
		return TwilioStatusForm{}, err
	}
	return TwilioStatusForm{
		TwilioVoiceForm: voice,
		CallDuration:    r.PostFormValue("CallDuration"),
		Timestamp:       r.PostFormValue("Timestamp"),
	}, nil
}

func (f TwilioStatusForm) ToStatusEvent(received time.Time) StatusEvent {
	at := received
	if f.Timestamp != "" {
		if t, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
			at = t
		}
	}
	dur, _ := strconv.Atoi(strings.TrimSpace(f.CallDuration))
	return StatusEvent{
		CallSID:         f.CallSid,
		ParentCallSID:   f.ParentCallSid,
		Status:          CallStatus(f.CallStatus),
		Direction:       f.Direction,
		From:            f.From,
		To:              f.To,
		DurationSeconds: dur,
		OccurredAt:      at.UTC(),
	}
}

func normalizePhone(s string) string {
	// "anonymous" and "client:<name>" are kept as-is.
	return strings.TrimSpace(s)
}
