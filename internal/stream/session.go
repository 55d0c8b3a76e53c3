// Package stream drives one playback session: playlist resolution, opening
// the stream, waiting for it to become playable, and watching it while it
// plays. The session is advanced by Tick; nothing in it blocks for long.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/playlist"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// MinEngineVersion is the oldest decoder engine the session works with.
	MinEngineVersion = 0x00010000

	CatchInterval    = 100 * time.Millisecond
	CatchAttempts    = 60
	TeardownDelay    = 50 * time.Millisecond
	TeardownInterval = 10 * time.Millisecond
	TeardownPolls    = 5
	DefaultInterval  = 20 * time.Millisecond
)

// Engine opens streams. *decoder.Engine satisfies it.
type Engine interface {
	Version() uint32
	Open(location string, hint audio.StreamType, raw audio.RawFormat) (audio.Stream, error)
	SetOutputDevice(index int) error
	OutputDevices() ([]audio.DeviceInfo, error)
	Close() error
}

// Renderer is the render path a session plays through.
type Renderer interface {
	OutputFormat() audio.Format
	StreamStarting(s audio.Stream, pitch float64) error
	SetPitch(pitch float64)
	// StreamStarving reports whether playback should be abandoned.
	StreamStarving(st audio.Status) bool
	StreamPausing(paused bool)
	StreamStopping()
	// Finished reports that the render path consumed the whole stream.
	Finished() bool
	SetOutput(index int) error
}

type Resolver interface {
	Resolve(ctx context.Context, location string) (playlist.Entry, error)
}

type State int

const (
	StateIdle State = iota
	StateResolvingPlaylist
	StateOpening
	StateCatching
	StatePlaying
	StateStopping
	StateError

	// Display only; derived from StatePlaying and the session flags.
	StatePaused
	StateStarving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResolvingPlaylist:
		return "RESOLVING"
	case StateOpening:
		return "OPENING"
	case StateCatching:
		return "BUFFERING"
	case StatePlaying:
		return "LIVE"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	case StatePaused:
		return "PAUSED"
	case StateStarving:
		return "STARVING"
	default:
		return "UNKNOWN"
	}
}

// Options configure a session.
type Options struct {
	URL         string
	Type        audio.StreamType
	Raw         audio.RawFormat
	PlayOnStart bool

	CatchInterval time.Duration
	CatchAttempts int
}

// Snapshot is a consistent copy of the session state for display.
type Snapshot struct {
	ID          string
	State       State
	Display     State
	URL         string
	ResolvedURL string
	Paused      bool
	Starving    bool
	Busy        bool
	FillPercent int
	Tags        []string
	SampleRate  float64
	Channels    int
	Pitch       float64
	Attempts    int
	Unstable    bool
	Err         error
}

type resolveResult struct {
	entry playlist.Entry
	err   error
}

// Session owns one stream at a time. All state changes happen under mu;
// listener calls are queued while it is held and delivered after.
type Session struct {
	id       string
	log      zerolog.Logger
	engine   Engine
	renderer Renderer
	resolver Resolver
	listener Listener

	// sleep is used by teardown. Tests replace it.
	sleep func(time.Duration)

	mu      sync.Mutex
	opts    Options
	enabled bool
	state   State
	paused  bool
	caught  bool

	resolvedURL string
	stream      audio.Stream
	status      audio.Status

	tags         TagRing
	trackChanged bool

	channels   int
	sampleRate float64
	pitch      float64

	attempts int
	nextPoll time.Time

	cancelResolve context.CancelFunc
	resolveCh     chan resolveResult

	unstable  bool
	leakedURL string
	lastErr   error

	events []func(Listener)
	halt   *pendingHalt
}

// NewSession checks the engine version and creates an idle session.
func NewSession(engine Engine, renderer Renderer, resolver Resolver, opts Options, listener Listener) (*Session, error) {
	if v := engine.Version(); v < MinEngineVersion {
		return nil, fmt.Errorf("%w: decoder engine version %08x, need at least %08x", audio.ErrInitialization, v, MinEngineVersion)
	}
	if opts.CatchInterval <= 0 {
		opts.CatchInterval = CatchInterval
	}
	if opts.CatchAttempts <= 0 {
		opts.CatchAttempts = CatchAttempts
	}
	if listener == nil {
		listener = NopListener{}
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		log:      log.With().Str("session", id).Logger(),
		engine:   engine,
		renderer: renderer,
		resolver: resolver,
		listener: listener,
		sleep:    time.Sleep,
		opts:     opts,
		enabled:  true,
		pitch:    1,
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

// unlock releases mu, delivers queued notifications and then finishes a
// pending stop sequence.
func (s *Session) unlock() {
	events, h := s.events, s.halt
	s.events, s.halt = nil, nil
	s.mu.Unlock()

	for _, e := range events {
		e(s.listener)
	}
	if h != nil {
		s.finishHalt(h)
	}
}

func (s *Session) emit(e func(Listener)) {
	s.events = append(s.events, e)
}

// Start plays the configured URL when PlayOnStart is set.
func (s *Session) Start() error {
	s.mu.Lock()
	play := s.opts.PlayOnStart
	s.mu.Unlock()

	if !play {
		return nil
	}
	return s.Play()
}

// SetURL changes the URL used by the next Play.
func (s *Session) SetURL(url string) {
	s.mu.Lock()
	s.opts.URL = url
	s.mu.Unlock()
}

func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Session) active() bool {
	switch s.state {
	case StateResolvingPlaylist, StateOpening, StateCatching, StatePlaying, StateStopping:
		return true
	}
	return false
}

// Play starts acquiring the configured URL. It returns once the acquisition
// is scheduled; progress is made by Tick.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.unlock()

	if s.active() {
		s.log.Warn().Msg("Already playing")
		return audio.ErrAlreadyPlaying
	}
	if !s.enabled {
		return audio.ErrComponentDisabled
	}
	if s.unstable {
		return audio.ErrUnstableShutdown
	}
	url := strings.TrimSpace(s.opts.URL)
	if url == "" {
		return audio.ErrEmptyURL
	}

	s.tags.Reset()
	s.trackChanged = false
	s.paused = false
	s.caught = false
	s.status = audio.Status{}
	s.attempts = 0
	s.lastErr = nil
	s.channels = 0
	s.sampleRate = 0
	s.pitch = 1

	s.teardownLocked()
	if s.unstable {
		s.lastErr = audio.ErrUnstableShutdown
		return audio.ErrUnstableShutdown
	}

	s.resolvedURL = url
	if _, ok := playlist.DetectType(url); ok && s.resolver != nil {
		ctx, cancel := context.WithCancel(context.Background())
		ch := make(chan resolveResult, 1)
		s.cancelResolve = cancel
		s.resolveCh = ch
		s.state = StateResolvingPlaylist

		go func() {
			entry, err := s.resolver.Resolve(ctx, url)
			ch <- resolveResult{entry: entry, err: err}
		}()
		s.log.Info().Str("url", url).Msg("Resolving playlist")
		return nil
	}

	s.state = StateOpening
	s.log.Info().Str("url", url).Msg("Opening stream")
	return nil
}

// Tick advances the session by one step of the control schedule.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.unlock()

	switch s.state {
	case StateResolvingPlaylist:
		s.tickResolving()
	case StateOpening:
		s.tickOpening(now)
	case StateCatching:
		s.tickCatching(now)
	case StatePlaying:
		s.tickPlaying()
	}
}

func (s *Session) tickResolving() {
	var res resolveResult
	select {
	case res = <-s.resolveCh:
	default:
		return
	}
	s.cancelResolve()
	s.cancelResolve = nil
	s.resolveCh = nil

	if res.err != nil {
		err := res.err
		if !errors.Is(err, audio.ErrPlaylist) {
			err = fmt.Errorf("%w: %w", audio.ErrPlaylist, err)
		}
		s.failLocked(err)
		return
	}

	s.resolvedURL = res.entry.ResolvedURL
	s.log.Info().Str("url", s.resolvedURL).Msgf("URL from %s playlist", res.entry.Type)
	s.state = StateOpening
}

func (s *Session) tickOpening(now time.Time) {
	st, err := s.engine.Open(s.resolvedURL, s.opts.Type, s.opts.Raw)
	if err != nil {
		s.failLocked(err)
		return
	}
	s.stream = st
	s.state = StateCatching
	s.attempts = 0
	s.nextPoll = now
}

func (s *Session) tickCatching(now time.Time) {
	if now.Before(s.nextPoll) {
		return
	}
	s.nextPoll = now.Add(s.opts.CatchInterval)
	s.attempts++

	st, err := s.stream.Poll()
	s.status = st
	s.log.Debug().Msgf("Stream open state: %s, buffer fill %d starving %v networkBusy %v", st.OpenState, st.FillPercent, st.Starving, st.Busy)

	if err != nil || st.OpenState == audio.OpenError {
		if err == nil {
			err = audio.ErrOpen
		}
		s.failLocked(err)
		return
	}

	if st.OpenState != audio.OpenReady {
		if s.attempts >= s.opts.CatchAttempts {
			if strings.HasPrefix(s.resolvedURL, "http") {
				s.log.Error().Msg("Can't start playback. Make sure the stream type is right and the network is reachable.")
			} else {
				s.log.Error().Msg("Can't start playback. Unrecognized audio type.")
			}
			s.failLocked(fmt.Errorf("%w: stream not ready after %d attempts", audio.ErrAcquisitionTimeout, s.attempts))
		}
		return
	}

	f := s.stream.Format()
	s.channels = f.Channels
	s.sampleRate = float64(f.SampleRate)
	s.pitch = PitchCompensation(s.sampleRate, s.channels, s.renderer.OutputFormat())
	s.log.Info().Msgf("Stream format: %d channels, %.0f Hz, pitch %.5f", s.channels, s.sampleRate, s.pitch)

	if err := s.renderer.StreamStarting(s.stream, s.pitch); err != nil {
		s.failLocked(err)
		return
	}

	s.caught = true
	s.state = StatePlaying
	s.emit(func(l Listener) { l.PlaybackStarted(s.id) })

	s.drainTagsLocked()
}

func (s *Session) tickPlaying() {
	if s.renderer.Finished() {
		s.log.Info().Msg("Stream finished")
		s.stopLocked()
		return
	}

	st, err := s.stream.Poll()
	s.status = st
	if err != nil || st.OpenState == audio.OpenError {
		if err == nil {
			err = audio.ErrOpen
		}
		s.failLocked(err)
		return
	}

	if !s.paused && s.renderer.StreamStarving(st) {
		s.log.Warn().Msg("Stream buffer starving - stopping playback")
		s.failLocked(audio.ErrStarvation)
		return
	}

	s.drainTagsLocked()
}

func (s *Session) drainTagsLocked() {
	for {
		tag, ok := s.stream.NextTag()
		if !ok {
			break
		}

		if !s.trackChanged {
			s.tags.Reset()
			s.trackChanged = true
		}

		switch {
		case tag.IsString:
			s.tags.Add(tag.String())
		case tag.Name == audio.SampleRateChangeTag:
			rate, ok := tag.Float32()
			if !ok || rate <= 0 {
				s.log.Warn().Msg("Malformed sample rate change tag")
				continue
			}
			s.log.Info().Msgf("Stream samplerate change from %.0f to %.0f", s.sampleRate, rate)
			s.sampleRate = float64(rate)
			s.pitch = PitchCompensation(s.sampleRate, s.channels, s.renderer.OutputFormat())
			s.renderer.SetPitch(s.pitch)
		}
	}

	if s.trackChanged {
		tags := s.tags.Ordered()
		if len(tags) > 0 {
			s.log.Info().Msgf("Track changed %s", tags[len(tags)-1])
		}
		s.emit(func(l Listener) { l.TrackChanged(s.id, tags) })
		s.trackChanged = false
	}
}

// Pause pauses or resumes a playing session.
func (s *Session) Pause(paused bool) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state != StatePlaying {
		s.log.Warn().Msg("Not playing")
		return audio.ErrNotPlaying
	}

	s.renderer.StreamPausing(paused)
	s.paused = paused
	if paused {
		s.log.Info().Msg("Paused")
	} else {
		s.log.Info().Msg("Resumed")
	}
	s.emit(func(l Listener) { l.PlaybackPaused(s.id, paused) })
	return nil
}

// TogglePause flips the pause flag of a playing session.
func (s *Session) TogglePause() error {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()
	return s.Pause(!paused)
}

// Stop ends playback. Stopping an idle or failed session does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.unlock()

	if s.state == StateIdle || s.state == StateError || s.state == StateStopping {
		return
	}
	s.stopLocked()
}

func (s *Session) stopLocked() {
	s.log.Info().Msg("Stopping")
	s.haltLocked(nil)
}

// failLocked runs the stop sequence and leaves the session in StateError.
func (s *Session) failLocked(err error) {
	s.log.Error().Err(err).Msg("Playback failed")
	s.haltLocked(err)
}

// pendingHalt is the rest of a stop sequence, finished once mu is released
// so the settle delay does not block Snapshot or Stop callers.
type pendingHalt struct {
	stream     audio.Stream
	url        string
	err        error
	wasPlaying bool
}

// haltLocked detaches the stream and leaves the session in StateStopping.
// unlock finishes the sequence. err is nil for a regular stop.
func (s *Session) haltLocked(err error) {
	s.halt = &pendingHalt{stream: s.stream, url: s.resolvedURL, err: err, wasPlaying: s.caught}
	s.state = StateStopping

	if s.caught {
		s.renderer.StreamStopping()
		s.caught = false
	}
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
		s.resolveCh = nil
	}
	s.stream = nil

	s.paused = false
	s.status = audio.Status{}
	s.tags.Reset()
	s.trackChanged = false
}

func (s *Session) finishHalt(h *pendingHalt) {
	stable := h.stream == nil || s.settle(h.stream)

	s.mu.Lock()
	defer s.unlock()

	if !stable {
		s.unstable = true
		s.leakedURL = h.url
	}

	if h.err == nil {
		s.state = StateIdle
		s.emit(func(l Listener) { l.PlaybackStopped(s.id) })
		if !stable {
			s.lastErr = audio.ErrUnstableShutdown
			s.emit(func(l Listener) { l.Error(s.id, audio.ErrUnstableShutdown) })
		}
		return
	}

	err := h.err
	if !stable {
		err = errors.Join(err, audio.ErrUnstableShutdown)
	}
	s.lastErr = err
	s.state = StateError

	if h.wasPlaying {
		s.emit(func(l Listener) { l.PlaybackStopped(s.id) })
	}
	s.emit(func(l Listener) { l.Error(s.id, err) })
}

// teardownLocked releases a stream still attached when playback starts.
func (s *Session) teardownLocked() {
	if s.stream == nil {
		return
	}
	if !s.settle(s.stream) {
		s.unstable = true
		s.leakedURL = s.resolvedURL
	}
	s.stream = nil
}

// settle gives a detached stream a moment to finish opening and releases
// it. A stream still buffering after the last poll, for a reason other
// than an unreachable URL, is left alive and settle returns false.
func (s *Session) settle(st audio.Stream) bool {
	s.log.Debug().Msg("Waiting for stream to finish opening before releasing it")
	s.sleep(TeardownDelay)

	var (
		status audio.Status
		err    error
	)
	for i := 0; i < TeardownPolls; i++ {
		s.sleep(TeardownInterval)
		status, err = st.Poll()
		s.log.Debug().Msgf("Stream open state: %s, buffer fill %d starving %v networkBusy %v", status.OpenState, status.FillPercent, status.Starving, status.Busy)
		if err == nil && status.OpenState == audio.OpenReady {
			break
		}
	}

	if status.OpenState == audio.OpenBuffering && !errors.Is(err, audio.ErrNetURL) {
		s.log.Error().Msgf("Stream is in an unstable state, restart required [%s %v]", status.OpenState, err)
		return false
	}

	if cerr := st.Close(); cerr != nil {
		s.log.Warn().Err(cerr).Msg("Stream close error")
	}
	return true
}

// Close stops playback, disables the session and releases the engine
// unless a previous teardown was unstable.
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	s.enabled = false
	unstable, leaked := s.unstable, s.leakedURL
	s.mu.Unlock()

	if unstable {
		s.log.Warn().Str("url", leaked).Msg("Leaving unstable stream and decoder engine open")
		return audio.ErrUnstableShutdown
	}
	return s.engine.Close()
}

// Run ticks the session until ctx is done, then stops it.
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
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// SetOutput selects the output device on the engine and the render path.
func (s *Session) SetOutput(index int) error {
	if err := s.engine.SetOutputDevice(index); err != nil {
		return err
	}
	return s.renderer.SetOutput(index)
}

func (s *Session) AvailableOutputs() ([]audio.DeviceInfo, error) {
	return s.engine.OutputDevices()
}

// LastError is the error that ended the last playback, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		State:       s.state,
		Display:     s.state,
		URL:         s.opts.URL,
		ResolvedURL: s.resolvedURL,
		Paused:      s.paused,
		Starving:    s.status.Starving,
		Busy:        s.status.Busy,
		FillPercent: s.status.FillPercent,
		Tags:        s.tags.Ordered(),
		SampleRate:  s.sampleRate,
		Channels:    s.channels,
		Pitch:       s.pitch,
		Attempts:    s.attempts,
		Unstable:    s.unstable,
		Err:         s.lastErr,
	}
	if s.state == StatePlaying {
		switch {
		case s.paused:
			snap.Display = StatePaused
		case s.status.Starving:
			snap.Display = StateStarving
		}
	}
	return snap
}

// PitchCompensation is the playback rate factor for a stream of rate and
// channels played through out.
func PitchCompensation(rate float64, channels int, out audio.Format) float64 {
	if rate <= 0 || channels <= 0 || out.SampleRate <= 0 || out.Channels <= 0 {
		return 1
	}
	return (rate * float64(channels)) / float64(out.SampleRate*out.Channels)
}
