// Package bridge relays audio between the carrier media stream and the
// realtime model WebSocket, one session per call.
package bridge

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// FrameSize is one 20 ms G.711 μ-law frame at 8 kHz.
	FrameSize = 160
	// FrameInterval is the carrier's frame cadence.
	FrameInterval = 20 * time.Millisecond
	// ulawSilence pads partial frames; 0xFF is μ-law digital silence.
	ulawSilence = 0xFF
	// maxQueuedFrames bounds the egress queue at two seconds of audio.
	maxQueuedFrames = 100
)

// FrameSink delivers one paced frame toward the carrier. The buffer never
// knows the wire format beyond bytes.
type FrameSink func(frame []byte)

// FrameBuffer smooths bursty model audio into carrier-paced 20 ms frames.
// The model delivers tens to hundreds of ms of speech per delta; sending
// those unpaced causes jitter and cut-off on the phone leg.
type FrameBuffer struct {
	sink     FrameSink
	interval time.Duration
	max      int
	log      *slog.Logger
	onDrop   func(n int)

	mu      sync.Mutex
	frames  [][]byte
	running bool
	closed  bool
	dropped int64
}

// FrameBufferOption configures a FrameBuffer.
type FrameBufferOption func(*FrameBuffer)

// WithFrameInterval overrides the pacing interval, for tests.
func WithFrameInterval(d time.Duration) FrameBufferOption {
	return func(b *FrameBuffer) { b.interval = d }
}

// WithMaxFrames overrides the queue bound, for tests.
func WithMaxFrames(n int) FrameBufferOption {
	return func(b *FrameBuffer) { b.max = n }
}

// WithDropHook reports each overflow shed, called outside the buffer lock.
func WithDropHook(hook func(n int)) FrameBufferOption {
	return func(b *FrameBuffer) { b.onDrop = hook }
}

func NewFrameBuffer(sink FrameSink, log *slog.Logger, opts ...FrameBufferOption) *FrameBuffer {
	if log == nil {
		log = slog.Default()
	}
	b := &FrameBuffer{
		sink:     sink,
		interval: FrameInterval,
		max:      maxQueuedFrames,
		log:      log,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Enqueue splits audio into full frames, padding the trailing partial
// frame with μ-law silence, and arms the pacer if it is idle. Oversized
// backlogs shed their oldest half so playback stays near realtime.
func (b *FrameBuffer) Enqueue(audio []byte) {
	if len(audio) == 0 {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for off := 0; off < len(audio); off += FrameSize {
		end := off + FrameSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := make([]byte, FrameSize)
		copied := copy(frame, audio[off:end])
		for i := copied; i < FrameSize; i++ {
			frame[i] = ulawSilence
		}
		b.frames = append(b.frames, frame)
	}
	var dropped int
	if len(b.frames) > b.max {
		dropped = b.max / 2
		b.frames = b.frames[dropped:]
		b.dropped += int64(dropped)
		b.log.Warn("egress queue overflow, dropping oldest frames",
			"dropped", dropped, "remaining", len(b.frames))
	}
	start := !b.running
	if start {
		b.running = true
	}
	b.mu.Unlock()

	if dropped > 0 && b.onDrop != nil {
		b.onDrop(dropped)
	}
	if start {
		go b.pace()
	}
}

// Clear drops all pending frames. The pacer, if armed, finds the queue
// empty on its next tick and disarms.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	b.frames = nil
	b.mu.Unlock()
}

// Shutdown drops pending frames and refuses further enqueues.
func (b *FrameBuffer) Shutdown() {
	b.mu.Lock()
	b.closed = true
	b.frames = nil
	b.mu.Unlock()
}

// Dropped reports the total frames shed by overflow.
func (b *FrameBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// pace releases one frame per interval until the queue drains.
func (b *FrameBuffer) pace() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for range ticker.C {
		b.mu.Lock()
		if b.closed || len(b.frames) == 0 {
			b.running = false
			b.mu.Unlock()
			return
		}
		frame := b.frames[0]
		b.frames = b.frames[1:]
		b.mu.Unlock()
		b.sink(frame)
	}
}
