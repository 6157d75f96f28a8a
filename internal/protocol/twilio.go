package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CarrierEvent identifies the media-stream payload variants exchanged with
// the carrier over its WebSocket. Client→server: connected, start, media,
// mark, stop, dtmf. Server→client: media, mark, clear.
type CarrierEvent string

const (
	CarrierConnected CarrierEvent = "connected"
	CarrierStart     CarrierEvent = "start"
	CarrierMedia     CarrierEvent = "media"
	CarrierMark      CarrierEvent = "mark"
	CarrierStop      CarrierEvent = "stop"
	CarrierDTMF      CarrierEvent = "dtmf"
	CarrierClear     CarrierEvent = "clear"
)

var ErrUnsupportedCarrierEvent = errors.New("unsupported carrier event")

// CarrierMessage is the envelope for every carrier media-stream frame.
// Exactly one of the payload pointers is set depending on Event.
type CarrierMessage struct {
	Event          CarrierEvent  `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	DTMF           *DTMFPayload  `json:"dtmf,omitempty"`
}

// StartPayload carries the stream metadata the carrier sends once per call.
type StartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the negotiated audio encoding ("audio/x-mulaw",
// 8000 Hz, mono for public telephony).
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64 μ-law audio frame. Timestamp is the
// carrier's media clock in milliseconds since stream start.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type StopPayload struct {
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
}

type DTMFPayload struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// ParseCarrierMessage decodes a carrier frame and validates the payload
// required by its event kind. A malformed frame is an error on that frame
// only; callers log and drop, never close the connection for one bad frame.
func ParseCarrierMessage(raw []byte) (*CarrierMessage, error) {
	var msg CarrierMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid carrier envelope: %w", err)
	}
	switch msg.Event {
	case CarrierStart:
		if msg.Start == nil || msg.Start.StreamSid == "" {
			return nil, errors.New("start frame missing payload")
		}
	case CarrierMedia:
		if msg.Media == nil || msg.Media.Payload == "" {
			return nil, errors.New("media frame missing payload")
		}
	case CarrierMark:
		if msg.Mark == nil || msg.Mark.Name == "" {
			return nil, errors.New("mark frame missing name")
		}
	case CarrierConnected, CarrierStop, CarrierDTMF:
		// No required payload beyond the envelope.
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCarrierEvent, msg.Event)
	}
	return &msg, nil
}

// OutboundMedia builds a server→carrier media frame for one μ-law chunk.
func OutboundMedia(streamSid, payloadB64 string) CarrierMessage {
	return CarrierMessage{
		Event:     CarrierMedia,
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: payloadB64},
	}
}

// OutboundMark builds a server→carrier mark frame used for playback
// synchronization.
func OutboundMark(streamSid, name string) CarrierMessage {
	return CarrierMessage{
		Event:     CarrierMark,
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	}
}

// OutboundClear builds the frame that tells the carrier to drop its own
// buffered playback, used on barge-in.
func OutboundClear(streamSid string) CarrierMessage {
	return CarrierMessage{Event: CarrierClear, StreamSid: streamSid}
}
