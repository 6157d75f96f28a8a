package protocol

import (
	"encoding/json"
	"fmt"
)

// Model event kinds the bridge sends. The realtime protocol is JSON text
// frames with a "type" discriminator.
const (
	ModelSessionUpdate     = "session.update"
	ModelInputAudioAppend  = "input_audio_buffer.append"
	ModelInputAudioCommit  = "input_audio_buffer.commit"
	ModelInputAudioClear   = "input_audio_buffer.clear"
	ModelItemTruncate      = "conversation.item.truncate"
	ModelResponseCreate    = "response.create"
	ModelResponseCancel    = "response.cancel"
)

// Model event kinds the bridge consumes, in their GA names. Legacy aliases
// from before the output_* rename are folded in by CanonicalModelEvent.
const (
	ModelSessionCreated        = "session.created"
	ModelSessionUpdated        = "session.updated"
	ModelResponseCreated       = "response.created"
	ModelResponseDone          = "response.done"
	ModelResponseCancelled     = "response.cancelled"
	ModelOutputItemAdded       = "response.output_item.added"
	ModelOutputItemDone        = "response.output_item.done"
	ModelOutputAudioDelta      = "response.output_audio.delta"
	ModelOutputAudioDone       = "response.output_audio.done"
	ModelOutputTranscriptDelta = "response.output_audio_transcript.delta"
	ModelOutputTranscriptDone  = "response.output_audio_transcript.done"
	ModelOutputTextDelta       = "response.output_text.delta"
	ModelOutputTextDone        = "response.output_text.done"
	ModelSpeechStarted         = "input_audio_buffer.speech_started"
	ModelSpeechStopped         = "input_audio_buffer.speech_stopped"
	ModelInputAudioCommitted   = "input_audio_buffer.committed"
	ModelInputAudioCleared     = "input_audio_buffer.cleared"
	ModelInputTranscriptDone   = "conversation.item.input_audio_transcription.completed"
	ModelInputTranscriptFailed = "conversation.item.input_audio_transcription.failed"
	ModelRateLimitsUpdated     = "rate_limits.updated"
	ModelError                 = "error"
)

// legacyModelEvents maps pre-rename event names onto their GA equivalents.
// The protocol renamed response.audio.* to response.output_audio.* (and the
// transcript/text variants); servers may still emit either form.
var legacyModelEvents = map[string]string{
	"response.audio.delta":            ModelOutputAudioDelta,
	"response.audio.done":             ModelOutputAudioDone,
	"response.audio_transcript.delta": ModelOutputTranscriptDelta,
	"response.audio_transcript.done":  ModelOutputTranscriptDone,
	"response.text.delta":             ModelOutputTextDelta,
	"response.text.done":              ModelOutputTextDone,
}

// CanonicalModelEvent returns the GA name for t, folding legacy aliases.
func CanonicalModelEvent(t string) string {
	if ga, ok := legacyModelEvents[t]; ok {
		return ga
	}
	return t
}

// ModelServerEvent is the union of fields the bridge reads from server
// events. Unknown fields are ignored by encoding/json.
type ModelServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`

	// response.output_audio.delta / transcript.delta / text.delta
	Delta string `json:"delta,omitempty"`

	// response.output_item.{added,done}
	Item *ModelItem `json:"item,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`
	ItemID     string `json:"item_id,omitempty"`

	// response.done / response.created
	Response *ModelResponse `json:"response,omitempty"`

	// error
	Error *ModelErrorDetail `json:"error,omitempty"`
}

type ModelItem struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

type ModelResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// ModelErrorDetail is the nested error object in a model error event:
// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type ModelErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *ModelErrorDetail) String() string {
	if e == nil {
		return "unknown error"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// ParseModelEvent decodes a server event and canonicalizes its type.
func ParseModelEvent(raw []byte) (*ModelServerEvent, error) {
	var evt ModelServerEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("invalid model event: %w", err)
	}
	evt.Type = CanonicalModelEvent(evt.Type)
	return &evt, nil
}

// ── Client events ──

type sessionUpdateEvent struct {
	Type    string         `json:"type"`
	Session map[string]any `json:"session"`
}

func (e sessionUpdateEvent) EventType() string    { return e.Type }
func (e inputAudioAppendEvent) EventType() string { return e.Type }
func (e bareEvent) EventType() string             { return e.Type }
func (e itemTruncateEvent) EventType() string     { return e.Type }
func (e responseCreateEvent) EventType() string   { return e.Type }

// SessionUpdate wraps a session payload in a session.update event.
func SessionUpdate(session map[string]any) any {
	return sessionUpdateEvent{Type: ModelSessionUpdate, Session: session}
}

type inputAudioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// InputAudioAppend forwards one base64 audio chunk to the model's input
// buffer. The payload stays base64; the bridge never transcodes.
func InputAudioAppend(audioB64 string) any {
	return inputAudioAppendEvent{Type: ModelInputAudioAppend, Audio: audioB64}
}

type bareEvent struct {
	Type string `json:"type"`
}

func InputAudioCommit() any { return bareEvent{Type: ModelInputAudioCommit} }
func InputAudioClear() any  { return bareEvent{Type: ModelInputAudioClear} }
func ResponseCancel() any   { return bareEvent{Type: ModelResponseCancel} }

type itemTruncateEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

// ItemTruncate tells the model how much of the assistant item the caller
// actually heard before interrupting.
func ItemTruncate(itemID string, audioEndMs int64) any {
	return itemTruncateEvent{
		Type:       ModelItemTruncate,
		ItemID:     itemID,
		AudioEndMs: audioEndMs,
	}
}

type responseCreateEvent struct {
	Type     string         `json:"type"`
	Response map[string]any `json:"response,omitempty"`
}

// ResponseCreate requests a model response, optionally with per-turn
// overrides (voice, output format, temperature, max tokens).
func ResponseCreate(overrides map[string]any) any {
	return responseCreateEvent{Type: ModelResponseCreate, Response: overrides}
}
