package render

import (
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const SpeakerBufferSize = time.Millisecond * 250

// Sink is the process-wide audio output beep mixes into.
type Sink interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

type beepSpeaker struct{}

func (beepSpeaker) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}

func (beepSpeaker) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (beepSpeaker) Clear()                  { speaker.Clear() }
func (beepSpeaker) Lock()                   { speaker.Lock() }
func (beepSpeaker) Unlock()                 { speaker.Unlock() }

// DefaultSink plays through the system default output.
func DefaultSink() Sink {
	return beepSpeaker{}
}

// Speaker renders in pull mode: the beep speaker callback pulls frames from
// the stream. When a redirector is attached and running, the frames go to
// it and the local output stays silent.
type Speaker struct {
	sink       Sink
	outputRate int
	redirect   Redirector

	mu       sync.Mutex
	initDone bool
	chain    *chain
	ctrl     *beep.Ctrl
	monitor  *beep.Ctrl
	channels int
	volume   int
}

// NewSpeaker creates a pull mode renderer. redirect may be nil.
func NewSpeaker(sink Sink, outputRate int, redirect Redirector) *Speaker {
	if sink == nil {
		sink = DefaultSink()
	}
	return &Speaker{
		sink:       sink,
		outputRate: outputRate,
		redirect:   redirect,
		volume:     100,
	}
}

func (s *Speaker) OutputFormat() audio.Format {
	return audio.Format{SampleRate: s.outputRate, Channels: 2}
}

func (s *Speaker) initSink() error {
	if s.initDone {
		return nil
	}
	rate := beep.SampleRate(s.outputRate)
	if err := s.sink.Init(rate, rate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	s.initDone = true
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", s.outputRate, SpeakerBufferSize)
	return nil
}

// StreamStarting hooks the stream into the speaker and starts the
// redirector at the stream's own sample rate.
func (s *Speaker) StreamStarting(st audio.Stream, pitch float64) error {
	f := st.Format()

	s.mu.Lock()
	if err := s.initSink(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.channels = f.Channels
	s.chain = newChain(newStreamSource(st, f.Channels, s.redirect), rateRatio(pitch, f.Channels, 2), s.volume)
	s.ctrl = &beep.Ctrl{Streamer: s.chain.volume}
	ctrl := s.ctrl
	s.mu.Unlock()

	s.sink.Play(ctrl)

	if s.redirect != nil {
		if err := s.redirect.Start(f.SampleRate); err != nil {
			log.Warn().Err(err).Msg("Output redirect failed to start")
		}
	}
	return nil
}

func (s *Speaker) SetPitch(pitch float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chain == nil {
		return
	}
	s.sink.Lock()
	s.chain.resampler.SetRatio(rateRatio(pitch, s.channels, 2))
	s.sink.Unlock()
}

// StreamStarving never gives up in pull mode; silence is rendered while the
// queue refills.
func (s *Speaker) StreamStarving(audio.Status) bool {
	return false
}

func (s *Speaker) StreamPausing(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return
	}
	s.sink.Lock()
	s.ctrl.Paused = paused
	s.sink.Unlock()
}

func (s *Speaker) StreamStopping() {
	s.mu.Lock()
	active := s.chain != nil
	s.chain = nil
	s.ctrl = nil
	monitor := s.monitor
	s.mu.Unlock()

	if active {
		s.sink.Clear()
		// Clear drops every streamer, the monitor included.
		if monitor != nil {
			s.sink.Play(monitor)
		}
	}
	if s.redirect != nil {
		s.redirect.Stop()
	}
}

// Monitor mixes st into the output next to the stream, replacing any
// previous monitor. A nil st removes it.
func (s *Speaker) Monitor(st beep.Streamer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monitor != nil {
		s.sink.Lock()
		s.monitor.Streamer = nil
		s.sink.Unlock()
		s.monitor = nil
	}
	if st == nil {
		return nil
	}
	if err := s.initSink(); err != nil {
		return err
	}
	s.monitor = &beep.Ctrl{Streamer: st}
	s.sink.Play(s.monitor)
	return nil
}

func (s *Speaker) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain != nil && s.chain.source.Finished()
}

// SetOutput moves the redirected output. Without a redirector only the
// system default is available.
func (s *Speaker) SetOutput(index int) error {
	if s.redirect != nil {
		return s.redirect.SetOutput(index)
	}
	if index > 0 {
		return fmt.Errorf("%w: output %d (pull mode plays on the default output)", audio.ErrNoDevice, index)
	}
	return nil
}

func (s *Speaker) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = percent
	if s.chain == nil {
		return
	}
	s.sink.Lock()
	s.chain.setVolume(percent)
	s.sink.Unlock()
	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", percent, percentToExponent(float64(percent)))
}
