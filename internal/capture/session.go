// Package capture records from an input device and exposes the captured
// audio as pull-able PCM16.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/pcm"
	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultInterval   = 10 * time.Millisecond
	ResampleQuality   = 4
	// MaxQueueSeconds bounds the pull queue when nothing consumes it.
	MaxQueueSeconds = 4
)

// Opener opens input devices. *device.Backend satisfies it.
type Opener interface {
	CaptureDevices() ([]audio.DeviceInfo, error)
	OpenCapture(index int, f audio.Format, recv audio.DataFunc) (audio.Device, error)
}

type Listener interface {
	RecordingStarted(id string)
	RecordingPaused(id string, paused bool)
	RecordingStopped(id string)
}

type nopListener struct{}

func (nopListener) RecordingStarted(string)      {}
func (nopListener) RecordingPaused(string, bool) {}
func (nopListener) RecordingStopped(string)      {}

// Listeners fans every notification out to each listener in order.
type Listeners []Listener

func (ls Listeners) RecordingStarted(id string) {
	for _, l := range ls {
		l.RecordingStarted(id)
	}
}

func (ls Listeners) RecordingPaused(id string, paused bool) {
	for _, l := range ls {
		l.RecordingPaused(id, paused)
	}
}

func (ls Listeners) RecordingStopped(id string) {
	for _, l := range ls {
		l.RecordingStopped(id)
	}
}

type Config struct {
	DeviceIndex int
	SampleRate  int
	Channels    int
	// Output is the render format the monitor stream is resampled to.
	Output audio.Format
}

// Session owns one recording. Tick moves newly captured frames from the
// device ring into a queue; Pull hands them out in whole frames.
type Session struct {
	id       string
	log      zerolog.Logger
	opener   Opener
	listener Listener

	mu        sync.Mutex
	cfg       Config
	enabled   bool
	recording bool
	paused    bool
	dev       audio.Device
	ring      *ring
	lastPos   int
	lastA     []byte
	lastB     []byte
	pitch     float64

	qmu        sync.Mutex
	queue      []byte
	frameBytes int
}

func NewSession(opener Opener, cfg Config, listener Listener) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		cfg.Channels = DefaultChannels
	}
	if listener == nil {
		listener = nopListener{}
	}

	id := uuid.NewString()
	return &Session{
		id:         id,
		log:        log.With().Str("capture", id).Logger(),
		opener:     opener,
		listener:   listener,
		cfg:        cfg,
		enabled:    true,
		frameBytes: cfg.Channels * audio.BytesPerSample,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Format is the PCM16 layout Pull returns.
func (s *Session) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audio.Format{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}
}

// Record opens the input device and starts filling the ring.
func (s *Session) Record() error {
	s.mu.Lock()

	if s.recording {
		s.mu.Unlock()
		s.log.Warn().Msg("Already recording")
		return audio.ErrAlreadyRecording
	}
	if !s.enabled {
		s.mu.Unlock()
		return audio.ErrComponentDisabled
	}

	s.releaseLocked()

	f := audio.Format{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}
	r := newRing(f.SampleRate, f.BytesPerFrame())
	dev, err := s.opener.OpenCapture(s.cfg.DeviceIndex, f, r.write)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open input %d: %w", s.cfg.DeviceIndex, err)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		s.mu.Unlock()
		return fmt.Errorf("failed to start input %d: %w", s.cfg.DeviceIndex, err)
	}

	s.dev = dev
	s.ring = r
	s.lastPos = 0
	s.pitch = Pitch(f, s.cfg.Output)
	s.recording = true
	s.paused = false
	s.mu.Unlock()

	s.log.Info().Int("device", s.cfg.DeviceIndex).Float64("pitch", s.pitch).Msgf("Recording: %dHz, %d channels", f.SampleRate, f.Channels)
	s.listener.RecordingStarted(s.id)
	return nil
}

// Pitch is the playback rate adjustment for monitoring a recording through
// an output with a different format.
func Pitch(rec, out audio.Format) float64 {
	if out.SampleRate <= 0 || out.Channels <= 0 {
		return 1
	}
	return float64(rec.SampleRate*rec.Channels) / float64(out.SampleRate*out.Channels)
}

func (s *Session) Pitch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pitch
}

// Tick copies frames captured since the last tick into the queue. While
// paused they are dropped. The queue holds at most MaxQueueSeconds of
// audio; the oldest frames go first when nobody pulls.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.ring == nil {
		return
	}

	pos := s.ring.position()
	if pos == s.lastPos {
		return
	}

	span := pos - s.lastPos
	if span < 0 {
		span += s.ring.frames
	}

	a, b := s.ring.lock(s.lastPos, span)
	if !s.paused {
		s.qmu.Lock()
		s.queue = append(s.queue, a...)
		s.queue = append(s.queue, b...)
		if limit := MaxQueueSeconds * s.ring.frames * s.frameBytes; len(s.queue) > limit {
			drop := len(s.queue) - limit
			s.queue = s.queue[:copy(s.queue, s.queue[drop:])]
		}
		s.qmu.Unlock()
	}
	s.lastA, s.lastB = a, b
	s.ring.unlock()

	s.lastPos = pos
}

// Pull removes exactly frameCount frames from the queue, or returns nil when
// fewer are available.
func (s *Session) Pull(frameCount int) []byte {
	n := frameCount * s.frameBytes

	s.qmu.Lock()
	defer s.qmu.Unlock()

	if n <= 0 || len(s.queue) < n {
		return nil
	}
	out := make([]byte, n)
	copy(out, s.queue)
	s.queue = s.queue[:copy(s.queue, s.queue[n:])]
	return out
}

// Queued returns the number of frames waiting to be pulled.
func (s *Session) Queued() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue) / s.frameBytes
}

func (s *Session) Pause(paused bool) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		s.log.Warn().Msg("Not recording")
		return audio.ErrNotRecording
	}
	s.paused = paused
	s.mu.Unlock()

	if paused {
		s.log.Info().Msg("Recording paused")
	} else {
		s.log.Info().Msg("Recording resumed")
	}
	s.listener.RecordingPaused(s.id, paused)
	return nil
}

func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Stop ends the recording. It is a no-op when not recording.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}

	s.log.Info().Msg("Stopping recording")
	if s.ring != nil {
		s.ring.zero(s.lastA, s.lastB)
	}
	s.releaseLocked()
	s.mu.Unlock()

	s.listener.RecordingStopped(s.id)
}

func (s *Session) releaseLocked() {
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Input close error")
		}
		s.dev = nil
	}
	s.ring = nil
	s.lastPos = 0
	s.lastA, s.lastB = nil, nil
	s.recording = false
	s.paused = false

	s.qmu.Lock()
	s.queue = s.queue[:0]
	s.qmu.Unlock()
}

// AvailableInputs lists the input devices.
func (s *Session) AvailableInputs() ([]audio.DeviceInfo, error) {
	return s.opener.CaptureDevices()
}

// Run ticks until ctx is done, then stops the recording.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Session) Close() error {
	s.Stop()
	s.SetEnabled(false)
	return nil
}

// Streamer returns the recording as a beep stream at the output rate, for
// monitoring through the speaker. Missing frames play as silence.
func (s *Session) Streamer() beep.Streamer {
	s.mu.Lock()
	rec := audio.Format{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}
	out := s.cfg.Output
	s.mu.Unlock()

	ratio := 1.0
	if out.SampleRate > 0 {
		ratio = float64(rec.SampleRate) / float64(out.SampleRate)
	}
	return beep.ResampleRatio(ResampleQuality, ratio, &monitor{session: s, channels: rec.Channels})
}

type monitor struct {
	session  *Session
	channels int
	floats   []float64
}

func (m *monitor) Stream(samples [][2]float64) (int, bool) {
	data := m.session.Pull(len(samples))
	if data == nil {
		clear(samples)
		return len(samples), true
	}

	m.floats = pcm.BytesToFloats(m.floats, data)
	for i := range samples {
		if m.channels == 1 {
			samples[i] = [2]float64{m.floats[i], m.floats[i]}
		} else {
			samples[i] = [2]float64{m.floats[2*i], m.floats[2*i+1]}
		}
	}
	return len(samples), true
}

func (m *monitor) Err() error {
	return nil
}
