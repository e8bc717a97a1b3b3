package capture

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// MalgoSource captures PCM chunks through miniaudio. It is the alternate
// backend for platforms where PortAudio is unavailable.
type MalgoSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	index  int
	ch     chan *AudioChunk
	log    watchlog.Logger

	sampleRate int
	chunkBytes int

	mu      sync.Mutex
	pending []byte
	closed  bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

// OpenMalgo opens the capture device at index (-1 for the system default)
// and starts delivering chunkMillis-sized chunks at sampleRate.
func OpenMalgo(index, sampleRate, chunkMillis int) (*MalgoSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo init: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if index >= 0 {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			freeMalgoContext(ctx)
			return nil, fmt.Errorf("list capture devices: %w", err)
		}
		if index >= len(infos) {
			freeMalgoContext(ctx)
			return nil, fmt.Errorf("capture device %d out of range (%d devices)", index, len(infos))
		}
		deviceConfig.Capture.DeviceID = infos[index].ID.Pointer()
	}

	s := &MalgoSource{
		ctx:        ctx,
		index:      index,
		ch:         make(chan *AudioChunk, 16),
		log:        watchlog.L().Named("malgo"),
		sampleRate: sampleRate,
		chunkBytes: chunkSamples(sampleRate, chunkMillis) * 2,
	}

	callbacks := malgo.DeviceCallbacks{Data: s.onData}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		freeMalgoContext(ctx)
		return nil, fmt.Errorf("open capture device %d: %w", index, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeMalgoContext(ctx)
		return nil, fmt.Errorf("start capture device %d: %w", index, err)
	}
	s.device = device

	s.log.Info("microphone opened",
		watchlog.Int("index", index),
		watchlog.Int("sample_rate", sampleRate),
		watchlog.Int("chunk_bytes", s.chunkBytes))
	return s, nil
}

// onData runs on the miniaudio capture thread. It accumulates raw bytes and
// emits whole chunks into the bounded buffer, dropping when full.
func (s *MalgoSource) onData(_, input []byte, _ uint32) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, input...)

	var ready [][]byte
	for len(s.pending) >= s.chunkBytes {
		raw := make([]byte, s.chunkBytes)
		copy(raw, s.pending[:s.chunkBytes])
		s.pending = s.pending[s.chunkBytes:]
		ready = append(ready, raw)
	}
	s.mu.Unlock()

	for _, raw := range ready {
		chunk := &AudioChunk{
			Samples:    decodeS16LE(raw),
			SampleRate: s.sampleRate,
			Channels:   1,
		}
		select {
		case s.ch <- chunk:
			s.delivered.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

func decodeS16LE(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples
}

// NextChunk returns the oldest buffered chunk, or nil when none is ready.
func (s *MalgoSource) NextChunk() *AudioChunk {
	select {
	case chunk := <-s.ch:
		return chunk
	default:
		return nil
	}
}

// ID returns a stable identifier for the selected device.
func (s *MalgoSource) ID() string { return fmt.Sprintf("malgo:%d", s.index) }

// Stats reports capture counters. Miniaudio handles device-side overflow
// internally, so only delivery drops are observable here.
func (s *MalgoSource) Stats() (delivered, dropped, overflows int64) {
	return s.delivered.Load(), s.dropped.Load(), 0
}

// Close stops capture and releases the device and context.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
	}
	freeMalgoContext(s.ctx)
	return nil
}

func freeMalgoContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}

var (
	_ AudioSource      = (*MalgoSource)(nil)
	_ AudioSourceStats = (*MalgoSource)(nil)
)
