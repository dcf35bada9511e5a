package telephony

import (
	"strings"
	"testing"
)

func TestRenderTwiMLReject(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: VoiceActionReject, Say: "ignored"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, `<Reject reason="busy">`) {
		t.Fatalf("expected reject in xml: %s", xml)
	}
	if strings.Contains(xml, "<Say>") {
		t.Fatalf("reject must not speak: %s", xml)
	}
}

func TestRenderTwiMLGreetThenDialClient(t *testing.T) {
	xml, err := RenderTwiML(Instruction{
		Action: VoiceActionConnectClient,
		Say:    "You are connected to the web support agent.",
		Target: "web-user",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := `<Response><Say>You are connected to the web support agent.</Say><Dial><Client>web-user</Client></Dial></Response>`
	if !strings.Contains(xml, want) {
		t.Fatalf("expected %q in xml: %s", want, xml)
	}
	if !strings.HasPrefix(xml, "<?xml") {
		t.Fatalf("expected xml header")
	}
}

func TestRenderTwiMLConnectRequiresTarget(t *testing.T) {
	if _, err := RenderTwiML(Instruction{Action: VoiceActionConnectClient}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := RenderTwiML(Instruction{Action: VoiceActionConnectNumber}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderTwiMLConnectSip(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: VoiceActionConnectNumber, Target: "sip:agent@pbx.example.com"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Sip>sip:agent@pbx.example.com</Sip>") {
		t.Fatalf("expected sip dial: %s", xml)
	}
}

func TestRenderTwiMLHoldLoopsMusic(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: VoiceActionHold, Say: "Please hold", MusicURL: "https://music.example.com/hold.mp3"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, `<Say>Please hold</Say><Play loop="0">https://music.example.com/hold.mp3</Play>`) {
		t.Fatalf("unexpected hold xml: %s", xml)
	}
}

func TestRenderTwiMLEscapesText(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: VoiceActionHangup, Say: "Tom & <Jerry>"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "Tom &amp; &lt;Jerry&gt;") {
		t.Fatalf("expected escaped text: %s", xml)
	}
}

func TestRenderTwiMLUnknownAction(t *testing.T) {
	if _, err := RenderTwiML(Instruction{Action: "dance"}); err == nil {
		t.Fatalf("expected error")
	}
}
