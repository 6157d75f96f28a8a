// Package realtime holds the realtime-model session configuration and the
// ephemeral-credential client. The session record is owned by the control
// plane, sanitized by the token minter, and merged into session.update
// events by the bridge.
package realtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Audio formats the carrier can speak. Telephony-bridged calls are always
// μ-law 8 kHz; the bridge forces this regardless of configured preference.
const (
	FormatG711ULaw = "g711_ulaw"
	FormatG711ALaw = "g711_alaw"
	FormatPCM16    = "pcm16"
)

const (
	TurnDetectionOff       = "none"
	TurnDetectionServerVAD = "server_vad"
)

const (
	NoiseReductionOff       = "off"
	NoiseReductionNearField = "near_field"
)

// MaxTokensUnbounded is the accepted spelling for "no response token limit".
// The wire protocol spells it "inf".
const MaxTokensUnbounded = "unbounded"

var (
	ErrInstructionsAndPrompt = errors.New("exactly one of instructions or prompt must be set")
	ErrTemperatureRange      = errors.New("temperature must be in [0, 2]")
	ErrVADThresholdRange     = errors.New("vad threshold must be in [0, 1]")
	ErrPrefixPaddingRange    = errors.New("prefix padding must be in [0, 2000] ms")
	ErrSilenceDurationRange  = errors.New("silence duration must be in [50, 5000] ms")
	ErrMaxTokensInvalid      = errors.New(`max response tokens must be a positive integer or "unbounded"`)
)

// PromptRef points at a stored prompt instead of inline instructions.
type PromptRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// TurnDetection configures how the model decides turn boundaries.
// Type "none" disables it; "server_vad" enables energy-based detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    *bool   `json:"create_response,omitempty"`
	InterruptResponse *bool   `json:"interrupt_response,omitempty"`
}

// Transcription enables input-audio transcription on the model side.
type Transcription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// SessionConfig is the full realtime session record. Zero values mean
// "unset"; the control plane layers defaults under runtime overrides and
// the bridge layers both under carrier-provided parameters.
type SessionConfig struct {
	Model             string
	Instructions      string
	Prompt            *PromptRef
	Voice             string
	Modalities        []string
	InputAudioFormat  string
	OutputAudioFormat string
	InputSampleRate   int
	ToolChoice        string
	Tools             []map[string]any
	Temperature       *float64
	MaxOutputTokens   string
	TurnDetection     *TurnDetection
	Transcription     *Transcription
	NoiseReduction    string
}

// Validate checks the range invariants. requireIdentity additionally
// enforces the mint-time invariant that exactly one of instructions or
// prompt is populated.
func (c *SessionConfig) Validate(requireIdentity bool) error {
	if requireIdentity {
		hasInstructions := strings.TrimSpace(c.Instructions) != ""
		hasPrompt := c.Prompt != nil && strings.TrimSpace(c.Prompt.ID) != ""
		if hasInstructions == hasPrompt {
			return ErrInstructionsAndPrompt
		}
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return ErrTemperatureRange
	}
	if c.MaxOutputTokens != "" {
		if _, err := parseMaxTokens(c.MaxOutputTokens); err != nil {
			return err
		}
	}
	if td := c.TurnDetection; td != nil && td.Type == TurnDetectionServerVAD {
		if td.Threshold < 0 || td.Threshold > 1 {
			return ErrVADThresholdRange
		}
		if td.PrefixPaddingMs < 0 || td.PrefixPaddingMs > 2000 {
			return ErrPrefixPaddingRange
		}
		if td.SilenceDurationMs != 0 && (td.SilenceDurationMs < 50 || td.SilenceDurationMs > 5000) {
			return ErrSilenceDurationRange
		}
	}
	return nil
}

// parseMaxTokens accepts a positive integer or "unbounded" and returns the
// wire value (int or the string "inf").
func parseMaxTokens(v string) (any, error) {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, MaxTokensUnbounded) || v == "inf" {
		return "inf", nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return nil, ErrMaxTokensInvalid
	}
	return n, nil
}

// UpdatePayload renders the config as a session.update session object,
// starting from {type: "realtime"}. Unset fields are omitted.
func (c *SessionConfig) UpdatePayload() map[string]any {
	session := map[string]any{"type": "realtime"}
	if c.Model != "" {
		session["model"] = c.Model
	}
	if strings.TrimSpace(c.Instructions) != "" {
		session["instructions"] = c.Instructions
	} else if c.Prompt != nil && c.Prompt.ID != "" {
		prompt := map[string]any{"id": c.Prompt.ID}
		if c.Prompt.Version != "" {
			prompt["version"] = c.Prompt.Version
		}
		session["prompt"] = prompt
	}
	if c.Voice != "" {
		session["voice"] = c.Voice
	}
	if len(c.Modalities) > 0 {
		session["modalities"] = append([]string(nil), c.Modalities...)
	}
	if c.InputAudioFormat != "" {
		session["input_audio_format"] = c.InputAudioFormat
	}
	if c.OutputAudioFormat != "" {
		session["output_audio_format"] = c.OutputAudioFormat
	}
	if c.InputSampleRate > 0 {
		session["input_audio_sample_rate"] = c.InputSampleRate
	}
	if c.ToolChoice != "" {
		session["tool_choice"] = c.ToolChoice
	}
	if len(c.Tools) > 0 {
		session["tools"] = c.Tools
	}
	if c.Temperature != nil {
		session["temperature"] = *c.Temperature
	}
	if c.MaxOutputTokens != "" {
		if v, err := parseMaxTokens(c.MaxOutputTokens); err == nil {
			session["max_response_output_tokens"] = v
		}
	}
	if td := c.TurnDetection; td != nil {
		if td.Type == TurnDetectionOff || td.Type == "off" {
			session["turn_detection"] = nil
		} else {
			detection := map[string]any{"type": td.Type}
			if td.Threshold > 0 {
				detection["threshold"] = td.Threshold
			}
			if td.PrefixPaddingMs > 0 {
				detection["prefix_padding_ms"] = td.PrefixPaddingMs
			}
			if td.SilenceDurationMs > 0 {
				detection["silence_duration_ms"] = td.SilenceDurationMs
			}
			if td.CreateResponse != nil {
				detection["create_response"] = *td.CreateResponse
			}
			if td.InterruptResponse != nil {
				detection["interrupt_response"] = *td.InterruptResponse
			}
			session["turn_detection"] = detection
		}
	}
	if tr := c.Transcription; tr != nil && tr.Model != "" {
		transcription := map[string]any{"model": tr.Model}
		if tr.Language != "" {
			transcription["language"] = tr.Language
		}
		if tr.Prompt != "" {
			transcription["prompt"] = tr.Prompt
		}
		session["input_audio_transcription"] = transcription
	}
	if c.NoiseReduction == NoiseReductionNearField {
		session["input_audio_noise_reduction"] = map[string]any{"type": NoiseReductionNearField}
	}
	return session
}

// allowedOverrideKeys is the set of session fields a carrier-supplied
// override blob may set. Everything else is stripped: the upstream rejects
// unknown fields, and the blob is untrusted input.
var allowedOverrideKeys = map[string]bool{
	"instructions":               true,
	"prompt":                     true,
	"input_audio_transcription":  true,
	"turn_detection":             true,
	"tools":                      true,
	"tool_choice":                true,
	"temperature":                true,
	"max_response_output_tokens": true,
	"voice":                      true,
	"input_audio_format":         true,
	"output_audio_format":        true,
	"modalities":                 true,
}

// FilterOverrides keeps only the allow-listed session keys from a decoded
// override blob.
func FilterOverrides(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if allowedOverrideKeys[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ForceCarrierAudio pins both audio formats to μ-law 8 kHz on a session
// payload. The carrier cannot speak anything else on a bridged call, so a
// mismatched override would produce garbage audio.
func ForceCarrierAudio(session map[string]any) {
	session["input_audio_format"] = FormatG711ULaw
	session["output_audio_format"] = FormatG711ULaw
}

// MergeSession layers overrides on top of base, returning base mutated.
// Keys present in overrides win.
func MergeSession(base, overrides map[string]any) map[string]any {
	for k, v := range overrides {
		base[k] = v
	}
	return base
}

// ValidateExpirySeconds bounds the requested credential lifetime.
func ValidateExpirySeconds(seconds int) error {
	if seconds < 60 || seconds > 3600 {
		return fmt.Errorf("expires_after.seconds must be in [60, 3600], got %d", seconds)
	}
	return nil
}
