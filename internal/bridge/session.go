package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/antoniostano/switchboard/internal/control"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/protocol"
	"github.com/antoniostano/switchboard/internal/realtime"
	"github.com/antoniostano/switchboard/internal/transcript"
)

// overridesParam is the custom parameter the control document may attach
// to the carrier's start frame: a base64 JSON blob of session overrides.
const overridesParam = "overrides"

// commitMark is the carrier mark name that commits the input buffer and
// requests a response, used by push-to-talk style deployments.
const commitMark = "commit"

// Session is the per-call state machine. The carrier and model read loops
// of one call drive it concurrently; the mutex serializes them. Outbound
// traffic goes through the toModel and toCarrier channels, each drained by
// a single writer goroutine; sends abort once the session shuts down so a
// dead writer never wedges a read loop.
type Session struct {
	log          *slog.Logger
	metrics      *observability.Metrics
	controlState *control.State
	transcripts  transcript.Store

	toModel   chan<- any
	toCarrier chan<- protocol.CarrierMessage
	frames    *FrameBuffer
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	streamSid string
	callSid   string
	overrides map[string]any

	modelReady        bool
	lastAssistantItem string
	responseStartMs   int64
	latestMediaMs     int64
	responseActive    bool
	interrupted       bool
	markSeq           int
}

func NewSession(
	controlState *control.State,
	transcripts transcript.Store,
	metrics *observability.Metrics,
	log *slog.Logger,
	toModel chan<- any,
	toCarrier chan<- protocol.CarrierMessage,
	opts ...FrameBufferOption,
) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		log:             log,
		metrics:         metrics,
		controlState:    controlState,
		transcripts:     transcripts,
		toModel:         toModel,
		toCarrier:       toCarrier,
		done:            make(chan struct{}),
		responseStartMs: -1,
	}
	if metrics != nil {
		opts = append([]FrameBufferOption{WithDropHook(func(n int) {
			metrics.FrameDrops.Add(float64(n))
		})}, opts...)
	}
	s.frames = NewFrameBuffer(s.sendFrame, log, opts...)
	return s
}

// sendModel forwards one client event to the model writer, giving up once
// the session is shut down.
func (s *Session) sendModel(evt any) {
	select {
	case s.toModel <- evt:
	case <-s.done:
	}
}

func (s *Session) sendCarrier(msg protocol.CarrierMessage) {
	select {
	case s.toCarrier <- msg:
	case <-s.done:
	}
}

// sendFrame runs on the pacer goroutine.
func (s *Session) sendFrame(frame []byte) {
	s.mu.Lock()
	sid := s.streamSid
	s.mu.Unlock()
	s.sendCarrier(protocol.OutboundMedia(sid, base64.StdEncoding.EncodeToString(frame)))
}

// TranscriptKey is callSid when known, streamSid during the window before
// start completes. Publishers and subscribers agree on this rule.
func (s *Session) TranscriptKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptKeyLocked()
}

func (s *Session) transcriptKeyLocked() string {
	if s.callSid != "" {
		return s.callSid
	}
	return s.streamSid
}

// CallSid is safe for logging from either read loop.
func (s *Session) CallSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSid
}

// HandleStart records stream identity and decodes carrier-provided
// overrides. Returns the session overrides actually applied.
func (s *Session) HandleStart(start *protocol.StartPayload) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSid = start.StreamSid
	s.callSid = start.CallSid
	s.overrides = decodeOverrides(start.CustomParameters[overridesParam], s.log)
	s.log.Info("carrier stream started",
		"stream_sid", s.streamSid, "call_sid", s.callSid,
		"overrides", len(s.overrides))
	return s.overrides
}

// decodeOverrides unpacks the base64 JSON blob and filters it to the
// session allow-list. The blob is untrusted input; anything unrecognized
// or unparseable is dropped, never fatal.
func decodeOverrides(blob string, log *slog.Logger) map[string]any {
	if blob == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(blob); err != nil {
			log.Warn("override blob not base64, ignoring", "error", err)
			return nil
		}
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Warn("override blob not json, ignoring", "error", err)
		return nil
	}
	return realtime.FilterOverrides(parsed)
}

// BuildSessionUpdate merges configuration for the session.update sent on
// session.created: control-plane state underneath carrier overrides, with
// the audio codec forced to what telephony can carry.
func (s *Session) BuildSessionUpdate() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildSessionUpdateLocked()
}

func (s *Session) buildSessionUpdateLocked() map[string]any {
	session := s.controlState.SessionPayload()
	realtime.MergeSession(session, s.overrides)
	realtime.ForceCarrierAudio(session)
	return session
}

// HandleCarrierMessage processes one parsed carrier frame. It returns
// false when the frame asks the call to end.
func (s *Session) HandleCarrierMessage(msg *protocol.CarrierMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Event {
	case protocol.CarrierConnected:
		// Informational; start carries the useful metadata.
	case protocol.CarrierMedia:
		if ts, err := strconv.ParseInt(msg.Media.Timestamp, 10, 64); err == nil {
			s.latestMediaMs = ts
		}
		if !s.modelReady {
			// The carrier paces itself and we cannot buffer arbitrarily;
			// frames before the model is ready are dropped.
			return true
		}
		s.sendModel(protocol.InputAudioAppend(msg.Media.Payload))
	case protocol.CarrierMark:
		if msg.Mark.Name == commitMark && s.modelReady {
			s.sendModel(protocol.InputAudioCommit())
			s.sendModel(protocol.ResponseCreate(s.responseOverrides()))
		}
	case protocol.CarrierDTMF:
		s.log.Info("dtmf received", "digit", msg.DTMF.Digit, "call_sid", s.callSid)
	case protocol.CarrierStop:
		s.log.Info("carrier stream stopped", "call_sid", s.callSid)
		return false
	}
	return true
}

// responseOverrides builds the per-turn response.create overrides from
// the remembered carrier parameters. Output format always defaults to
// μ-law so a turn never flips codec mid-call.
func (s *Session) responseOverrides() map[string]any {
	out := map[string]any{"output_audio_format": realtime.FormatG711ULaw}
	if v, ok := s.overrides["output_audio_format"]; ok {
		out["output_audio_format"] = v
	}
	if v, ok := s.overrides["voice"]; ok {
		out["voice"] = v
	}
	if v, ok := s.overrides["temperature"]; ok {
		out["temperature"] = v
	}
	if v, ok := s.overrides["max_response_output_tokens"]; ok {
		out["max_output_tokens"] = v
	}
	return out
}

// HandleModelEvent processes one parsed model server event.
func (s *Session) HandleModelEvent(evt *protocol.ModelServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Type {
	case protocol.ModelSessionCreated:
		s.sendModel(protocol.SessionUpdate(s.buildSessionUpdateLocked()))
		s.modelReady = true
	case protocol.ModelSessionUpdated:
		s.log.Debug("model session updated", "call_sid", s.callSid)
	case protocol.ModelResponseCreated:
		s.responseActive = true
		s.interrupted = false
	case protocol.ModelOutputItemAdded, protocol.ModelOutputItemDone:
		if evt.Item != nil && evt.Item.ID != "" {
			s.lastAssistantItem = evt.Item.ID
		}
	case protocol.ModelOutputAudioDelta:
		s.handleAudioDelta(evt)
	case protocol.ModelOutputTranscriptDelta:
		s.appendTranscript(transcript.KindAudioTranscriptDelta, evt.Delta)
	case protocol.ModelOutputTextDelta:
		s.appendTranscript(transcript.KindTextDelta, evt.Delta)
	case protocol.ModelOutputAudioDone, protocol.ModelOutputTranscriptDone,
		protocol.ModelOutputTextDone:
		// Per-stream terminators; response.done resets state.
	case protocol.ModelResponseDone, protocol.ModelResponseCancelled:
		s.responseActive = false
		s.responseStartMs = -1
		s.lastAssistantItem = ""
	case protocol.ModelSpeechStarted:
		s.handleBargeIn()
	case protocol.ModelSpeechStopped, protocol.ModelInputAudioCommitted,
		protocol.ModelInputAudioCleared:
		s.log.Debug("model buffer event", "type", evt.Type, "call_sid", s.callSid)
	case protocol.ModelInputTranscriptDone:
		s.appendTranscript(transcript.KindCallerTranscript, evt.Transcript)
	case protocol.ModelInputTranscriptFailed:
		s.log.Warn("input transcription failed", "call_sid", s.callSid)
	case protocol.ModelRateLimitsUpdated:
		s.log.Debug("rate limits updated", "call_sid", s.callSid)
	case protocol.ModelError:
		// The protocol keeps the socket open through error events.
		s.log.Error("model error event", "detail", evt.Error.String(), "call_sid", s.callSid)
	default:
		s.log.Debug("unhandled model event", "type", evt.Type)
	}
}

func (s *Session) handleAudioDelta(evt *protocol.ModelServerEvent) {
	if s.responseStartMs < 0 {
		s.responseStartMs = s.latestMediaMs
	}
	audio, err := base64.StdEncoding.DecodeString(evt.Delta)
	if err != nil {
		s.log.Warn("undecodable audio delta, dropping", "error", err)
		return
	}
	s.frames.Enqueue(audio)
	s.markSeq++
	s.sendCarrier(protocol.OutboundMark(s.streamSid, fmt.Sprintf("chunk-%d", s.markSeq)))
}

// handleBargeIn runs the interruption protocol: stop our playback, tell
// the carrier to drop its own buffer, and tell the model how much of the
// assistant item the caller actually heard. The truncate fires at most
// once per response.
func (s *Session) handleBargeIn() {
	s.frames.Clear()
	s.sendCarrier(protocol.OutboundClear(s.streamSid))

	if s.responseActive && s.lastAssistantItem != "" && !s.interrupted {
		var audioEndMs int64
		if s.responseStartMs >= 0 {
			audioEndMs = s.latestMediaMs - s.responseStartMs
			if audioEndMs < 0 {
				audioEndMs = 0
			}
		}
		s.sendModel(protocol.ItemTruncate(s.lastAssistantItem, audioEndMs))
		s.interrupted = true
		if s.metrics != nil {
			s.metrics.BargeIns.Inc()
		}
		s.log.Info("barge-in truncated response",
			"item_id", s.lastAssistantItem, "audio_end_ms", audioEndMs, "call_sid", s.callSid)
	}
	s.lastAssistantItem = ""
	s.responseStartMs = -1
}

func (s *Session) appendTranscript(kind, text string) {
	if s.transcripts == nil || text == "" {
		return
	}
	// Wall-clock ms, the same scale external publishers use.
	entry := transcript.Entry{
		Kind: kind,
		Text: text,
		At:   time.Now().UnixMilli(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := s.transcriptKeyLocked()
	if err := s.transcripts.Append(ctx, key, entry); err != nil {
		// Transcripts are best-effort; a store failure never ends the call.
		s.log.Warn("transcript append failed", "error", err, "key", key)
	}
}

// Shutdown stops the pacer and releases any read loop blocked on a
// channel send. Safe to call more than once.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
	s.frames.Shutdown()
}
