package detect

import (
	"sync"
	"time"

	"github.com/mikeyg42/sentinel/internal/capture"
)

// DefaultVoiceThreshold is the mean-magnitude cutoff on the ±32767 sample
// scale above which a chunk counts as voice.
const DefaultVoiceThreshold = 1500

// VoiceStats are cumulative counters for one detector.
type VoiceStats struct {
	ChunksProcessed uint64
	VoiceChunks     uint64
	LastMean        float64
	LastVoiceAt     time.Time
}

// VoiceDetector is a cheap energy gate over PCM chunks. It is not a speech
// classifier: anything loud enough counts. No adaptation, no spectral
// analysis.
type VoiceDetector struct {
	mu        sync.Mutex
	threshold float64
	stats     VoiceStats
}

// NewVoiceDetector creates a detector with the given mean-magnitude
// threshold. Non-positive thresholds use DefaultVoiceThreshold.
func NewVoiceDetector(threshold int) *VoiceDetector {
	if threshold <= 0 {
		threshold = DefaultVoiceThreshold
	}
	return &VoiceDetector{threshold: float64(threshold)}
}

// Classify reports whether the chunk's mean absolute sample magnitude is
// strictly above the threshold. A chunk sitting exactly on the threshold
// reports no voice. Nil and empty chunks report no voice.
func (d *VoiceDetector) Classify(chunk *capture.AudioChunk) bool {
	if chunk == nil || len(chunk.Samples) == 0 {
		return false
	}

	var sum uint64
	for _, s := range chunk.Samples {
		if s < 0 {
			// -32768 has no positive int16 counterpart; widen first.
			sum += uint64(-int32(s))
		} else {
			sum += uint64(s)
		}
	}
	mean := float64(sum) / float64(len(chunk.Samples))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.ChunksProcessed++
	d.stats.LastMean = mean

	voice := mean > d.threshold
	if voice {
		d.stats.VoiceChunks++
		d.stats.LastVoiceAt = time.Now()
	}
	return voice
}

// Stats returns a copy of the cumulative counters.
func (d *VoiceDetector) Stats() VoiceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
