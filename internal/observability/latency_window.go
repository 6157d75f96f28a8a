package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// StageStats summarizes one latency stage over the current window.
type StageStats struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	P99MS   float64 `json:"p99_ms"`
}

// LatencyWindow keeps a bounded ring of duration samples per named stage.
// Stages appear on first observation; an idle process reports none.
type LatencyWindow struct {
	mu     sync.Mutex
	size   int
	stages map[string]*stageRing
}

type stageRing struct {
	samples []float64
	next    int
	full    bool
	last    float64
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 256
	}
	return &LatencyWindow{size: size, stages: make(map[string]*stageRing)}
}

func (w *LatencyWindow) Observe(stage string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	ring, ok := w.stages[stage]
	if !ok {
		ring = &stageRing{samples: make([]float64, w.size)}
		w.stages[stage] = ring
	}
	ring.samples[ring.next] = ms
	ring.next++
	if ring.next == len(ring.samples) {
		ring.next = 0
		ring.full = true
	}
	ring.last = ms
}

// Snapshot reports all stages sorted by name.
func (w *LatencyWindow) Snapshot() []StageStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]StageStats, 0, len(w.stages))
	for name, ring := range w.stages {
		n := ring.next
		if ring.full {
			n = len(ring.samples)
		}
		if n == 0 {
			continue
		}
		values := make([]float64, n)
		copy(values, ring.samples[:n])
		sort.Float64s(values)

		var sum float64
		for _, v := range values {
			sum += v
		}
		out = append(out, StageStats{
			Stage:   name,
			Samples: n,
			LastMS:  round2(ring.last),
			AvgMS:   round2(sum / float64(n)),
			P50MS:   round2(percentile(values, 0.50)),
			P95MS:   round2(percentile(values, 0.95)),
			P99MS:   round2(percentile(values, 0.99)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// percentile takes the nearest-rank value from an ascending slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
