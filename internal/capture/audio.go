package capture

import (
	"encoding/binary"
	"time"
)

// AudioChunk is a fixed-length run of mono PCM samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the samples as little-endian s16le bytes.
func (c *AudioChunk) Bytes() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ChunkFromBytes decodes little-endian s16le bytes into a chunk. A trailing
// odd byte is ignored.
func ChunkFromBytes(data []byte, sampleRate, channels int) *AudioChunk {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return &AudioChunk{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// Duration reports the playback time the chunk covers.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// AudioSource yields PCM chunks from an input device. NextChunk never
// blocks: nil means no chunk is buffered yet. Capture runs on the source's
// own goroutine into a bounded buffer; overflow drops chunks and counts
// them rather than stalling or aborting.
type AudioSource interface {
	// NextChunk returns the oldest buffered chunk, or nil when none.
	NextChunk() *AudioChunk
	// ID identifies the device for idempotent switch checks.
	ID() string
	Close() error
}

// AudioSourceStats is implemented by sources that track capture counters.
type AudioSourceStats interface {
	// Stats reports chunks delivered, chunks dropped on overflow, and
	// device-side overflow reads tolerated.
	Stats() (delivered, dropped, overflows int64)
}

// chunkSamples converts a chunk duration to a sample count.
func chunkSamples(sampleRate, chunkMillis int) int {
	n := sampleRate * chunkMillis / 1000
	if n <= 0 {
		n = 1
	}
	return n
}
