package capture

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// PortAudioSource captures PCM chunks from a PortAudio input device on a
// background goroutine. NextChunk drains a bounded buffer and never blocks.
type PortAudioSource struct {
	stream  *portaudio.Stream
	buf     []int16
	index   int
	ch      chan *AudioChunk
	done    chan struct{}
	stopped chan struct{}
	log     watchlog.Logger

	sampleRate int

	delivered atomic.Int64
	dropped   atomic.Int64
	overflows atomic.Int64
}

// OpenPortAudio opens the input device at index (-1 for the system default)
// and starts capturing chunkMillis-sized chunks at sampleRate.
func OpenPortAudio(index, sampleRate, chunkMillis int) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	dev, err := inputDevice(index)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	buf := make([]int16, chunkSamples(sampleRate, chunkMillis))
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = len(buf)

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open microphone %d: %w", index, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start microphone %d: %w", index, err)
	}

	s := &PortAudioSource{
		stream:     stream,
		buf:        buf,
		index:      index,
		ch:         make(chan *AudioChunk, 16),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		log:        watchlog.L().Named("portaudio"),
		sampleRate: sampleRate,
	}
	go s.capture()

	s.log.Info("microphone opened",
		watchlog.Int("index", index),
		watchlog.String("device", dev.Name),
		watchlog.Int("sample_rate", sampleRate),
		watchlog.Int("chunk_samples", len(buf)))
	return s, nil
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("audio device %d out of range (%d devices)", index, len(devices))
	}
	dev := devices[index]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("audio device %d (%s) has no input channels", index, dev.Name)
	}
	return dev, nil
}

func (s *PortAudioSource) capture() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// The host skipped samples but the buffer content is
				// still usable. Count it and deliver anyway.
				s.overflows.Add(1)
			} else {
				s.log.Debug("microphone read failed", watchlog.Error(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		samples := make([]int16, len(s.buf))
		copy(samples, s.buf)
		chunk := &AudioChunk{Samples: samples, SampleRate: s.sampleRate, Channels: 1}

		select {
		case s.ch <- chunk:
			s.delivered.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

// NextChunk returns the oldest buffered chunk, or nil when none is ready.
func (s *PortAudioSource) NextChunk() *AudioChunk {
	select {
	case chunk := <-s.ch:
		return chunk
	default:
		return nil
	}
}

// ID returns a stable identifier for the selected device.
func (s *PortAudioSource) ID() string { return fmt.Sprintf("portaudio:%d", s.index) }

// Stats reports capture counters.
func (s *PortAudioSource) Stats() (delivered, dropped, overflows int64) {
	return s.delivered.Load(), s.dropped.Load(), s.overflows.Load()
}

// Close stops the capture goroutine and releases the stream.
func (s *PortAudioSource) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	<-s.stopped

	var first error
	if err := s.stream.Stop(); err != nil {
		first = fmt.Errorf("stop microphone: %w", err)
	}
	if err := s.stream.Close(); err != nil && first == nil {
		first = fmt.Errorf("close microphone: %w", err)
	}
	if err := portaudio.Terminate(); err != nil && first == nil {
		first = fmt.Errorf("terminate portaudio: %w", err)
	}
	return first
}

var (
	_ AudioSource      = (*PortAudioSource)(nil)
	_ AudioSourceStats = (*PortAudioSource)(nil)
)

// MicrophoneInfo describes one input-capable audio device.
type MicrophoneInfo struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"`
}

// ListMicrophones enumerates input-capable audio devices. Indices are global
// device indices, usable as AudioConfig.DeviceIndex.
func ListMicrophones() ([]MicrophoneInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	var mics []MicrophoneInfo
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		mics = append(mics, MicrophoneInfo{
			Index:      i,
			Name:       dev.Name,
			Channels:   dev.MaxInputChannels,
			SampleRate: dev.DefaultSampleRate,
		})
	}
	return mics, nil
}
