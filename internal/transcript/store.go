// Package transcript keeps per-call transcript logs for live streaming.
// Entries are append-only; readers page with a cursor equal to the count of
// entries already seen. Logs expire thirty minutes after the last append.
package transcript

import (
	"context"
	"errors"
	"time"
)

const DefaultTTL = 30 * time.Minute

var ErrInvalidKey = errors.New("transcript key must not be empty")

// Entry kinds. Assistant speech arrives as audio-transcript deltas, text
// responses as text deltas, and the caller's side from input transcription.
const (
	KindAudioTranscriptDelta = "audio-transcript-delta"
	KindTextDelta            = "text-delta"
	KindCallerTranscript     = "caller-transcript"
)

// Entry is one transcript line. At is a monotonic-ms timestamp.
type Entry struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// Store is the transcript log. Range returns entries starting at cursor
// (a count of entries already consumed) plus the next cursor value.
// Reading a missing or expired key yields no entries and leaves the cursor
// unchanged; that is how a live stream waits for a call to begin.
type Store interface {
	Append(ctx context.Context, key string, entry Entry) error
	Range(ctx context.Context, key string, cursor int) ([]Entry, int, error)
}
