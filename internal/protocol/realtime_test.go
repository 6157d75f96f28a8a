package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseModelEventFoldsLegacyNames(t *testing.T) {
	evt, err := ParseModelEvent([]byte(`{"type":"response.audio.delta","delta":"//79","item_id":"item_1"}`))
	if err != nil {
		t.Fatalf("ParseModelEvent() error = %v", err)
	}
	if evt.Type != ModelOutputAudioDelta {
		t.Fatalf("Type = %q, want %q", evt.Type, ModelOutputAudioDelta)
	}
	if evt.Delta != "//79" || evt.ItemID != "item_1" {
		t.Fatalf("event = %+v", evt)
	}

	evt, err = ParseModelEvent([]byte(`{"type":"response.output_audio.delta","delta":"AA=="}`))
	if err != nil {
		t.Fatalf("ParseModelEvent() error = %v", err)
	}
	if evt.Type != ModelOutputAudioDelta {
		t.Fatalf("GA name should pass through, got %q", evt.Type)
	}
}

func TestParseModelErrorEvent(t *testing.T) {
	evt, err := ParseModelEvent([]byte(`{"type":"error","error":{"type":"invalid_request_error","code":"bad_item","message":"no such item"}}`))
	if err != nil {
		t.Fatalf("ParseModelEvent() error = %v", err)
	}
	if evt.Type != ModelError || evt.Error == nil {
		t.Fatalf("event = %+v", evt)
	}
	if got := evt.Error.String(); got != "bad_item: no such item" {
		t.Fatalf("Error.String() = %q", got)
	}
}

func TestItemTruncateAlwaysCarriesContentIndex(t *testing.T) {
	raw, err := json.Marshal(ItemTruncate("item_9", 1250))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(raw, &decoded)
	if decoded["type"] != ModelItemTruncate || decoded["item_id"] != "item_9" {
		t.Fatalf("truncate = %s", raw)
	}
	ci, present := decoded["content_index"]
	if !present || ci != float64(0) {
		t.Fatalf("content_index = %v (present=%v), want 0", ci, present)
	}
	if decoded["audio_end_ms"] != float64(1250) {
		t.Fatalf("audio_end_ms = %v", decoded["audio_end_ms"])
	}
}

func TestResponseCreateOmitsEmptyOverrides(t *testing.T) {
	raw, _ := json.Marshal(ResponseCreate(nil))
	var decoded map[string]any
	json.Unmarshal(raw, &decoded)
	if decoded["type"] != ModelResponseCreate {
		t.Fatalf("frame = %s", raw)
	}
	if _, present := decoded["response"]; present {
		t.Fatalf("empty response overrides should be omitted: %s", raw)
	}

	raw, _ = json.Marshal(ResponseCreate(map[string]any{"instructions": "say goodbye"}))
	json.Unmarshal(raw, &decoded)
	if decoded["response"].(map[string]any)["instructions"] != "say goodbye" {
		t.Fatalf("frame = %s", raw)
	}
}

func TestInputAudioAppendShape(t *testing.T) {
	raw, _ := json.Marshal(InputAudioAppend("cGF5bG9hZA=="))
	var decoded map[string]any
	json.Unmarshal(raw, &decoded)
	if decoded["type"] != ModelInputAudioAppend || decoded["audio"] != "cGF5bG9hZA==" {
		t.Fatalf("frame = %s", raw)
	}
}
