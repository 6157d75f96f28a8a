package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseCarrierStart(t *testing.T) {
	raw := []byte(`{
		"event": "start",
		"sequenceNumber": "1",
		"start": {
			"accountSid": "AC123",
			"streamSid": "MZ123",
			"callSid": "CA123",
			"tracks": ["inbound"],
			"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
			"customParameters": {"overrides": "eyJ9"}
		},
		"streamSid": "MZ123"
	}`)
	msg, err := ParseCarrierMessage(raw)
	if err != nil {
		t.Fatalf("ParseCarrierMessage() error = %v", err)
	}
	if msg.Event != CarrierStart || msg.Start.CallSid != "CA123" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Start.MediaFormat.SampleRate != 8000 {
		t.Fatalf("sampleRate = %d", msg.Start.MediaFormat.SampleRate)
	}
	if msg.Start.CustomParameters["overrides"] != "eyJ9" {
		t.Fatalf("customParameters = %v", msg.Start.CustomParameters)
	}
}

func TestParseCarrierRejectsMissingPayload(t *testing.T) {
	cases := []string{
		`{"event":"start"}`,
		`{"event":"media","streamSid":"MZ1"}`,
		`{"event":"media","media":{"payload":""}}`,
		`{"event":"mark","mark":{}}`,
		`{"event":"bogus"}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseCarrierMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseCarrierMessage(%s) should fail", raw)
		}
	}
	if _, err := ParseCarrierMessage([]byte(`{"event":"warble"}`)); !errors.Is(err, ErrUnsupportedCarrierEvent) {
		t.Fatalf("unsupported event error = %v", err)
	}
}

func TestParseCarrierEventsWithoutRequiredPayload(t *testing.T) {
	for _, raw := range []string{
		`{"event":"connected","protocol":"Call","version":"1.0.0"}`,
		`{"event":"stop","streamSid":"MZ1","stop":{"callSid":"CA1"}}`,
		`{"event":"dtmf","dtmf":{"digit":"5"}}`,
	} {
		if _, err := ParseCarrierMessage([]byte(raw)); err != nil {
			t.Fatalf("ParseCarrierMessage(%s) error = %v", raw, err)
		}
	}
}

func TestOutboundFrames(t *testing.T) {
	media, _ := json.Marshal(OutboundMedia("MZ1", "//79"))
	var decoded map[string]any
	json.Unmarshal(media, &decoded)
	if decoded["event"] != "media" || decoded["streamSid"] != "MZ1" {
		t.Fatalf("media frame = %s", media)
	}
	if decoded["media"].(map[string]any)["payload"] != "//79" {
		t.Fatalf("media payload = %s", media)
	}

	mark, _ := json.Marshal(OutboundMark("MZ1", "commit"))
	decoded = map[string]any{}
	json.Unmarshal(mark, &decoded)
	if decoded["event"] != "mark" || decoded["mark"].(map[string]any)["name"] != "commit" {
		t.Fatalf("mark frame = %s", mark)
	}

	clear, _ := json.Marshal(OutboundClear("MZ1"))
	decoded = map[string]any{}
	json.Unmarshal(clear, &decoded)
	if decoded["event"] != "clear" || decoded["streamSid"] != "MZ1" {
		t.Fatalf("clear frame = %s", clear)
	}
	if _, present := decoded["media"]; present {
		t.Fatalf("clear frame should not carry media: %s", clear)
	}
}
