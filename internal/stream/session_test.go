package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/playlist"
)

type fakeStream struct {
	mu     sync.Mutex
	states []audio.OpenState
	polls  int
	err    error
	format audio.Format
	tags   []audio.Tag
	closed bool
}

func (f *fakeStream) Poll() (audio.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		st = f.states[f.polls]
	}
	f.polls++
	if st == audio.OpenError {
		return audio.Status{OpenState: st}, f.err
	}
	return audio.Status{OpenState: st, FillPercent: 50}, nil
}

func (f *fakeStream) ReadFrames([]byte) (int, error) { return 0, nil }
func (f *fakeStream) Format() audio.Format           { return f.format }

func (f *fakeStream) NextTag() (audio.Tag, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tags) == 0 {
		return audio.Tag{}, false
	}
	t := f.tags[0]
	f.tags = f.tags[1:]
	return t, true
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) pushTags(tags ...audio.Tag) {
	f.mu.Lock()
	f.tags = append(f.tags, tags...)
	f.mu.Unlock()
}

type fakeEngine struct {
	version uint32
	stream  *fakeStream
	openErr error
	opened  []string
	output  int
	closed  bool
}

func (e *fakeEngine) Version() uint32 { return e.version }

func (e *fakeEngine) Open(location string, _ audio.StreamType, _ audio.RawFormat) (audio.Stream, error) {
	e.opened = append(e.opened, location)
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.stream, nil
}

func (e *fakeEngine) SetOutputDevice(index int) error {
	e.output = index
	return nil
}

func (e *fakeEngine) OutputDevices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{Index: 0, Name: "Speakers", IsDefault: true}}, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

type fakeRenderer struct {
	started  int
	pitch    float64
	pitches  []float64
	starving bool
	paused   []bool
	stopped  int
	finished bool
	output   int
}

func (r *fakeRenderer) OutputFormat() audio.Format {
	return audio.Format{SampleRate: 48000, Channels: 2}
}

func (r *fakeRenderer) StreamStarting(_ audio.Stream, pitch float64) error {
	r.started++
	r.pitch = pitch
	return nil
}

func (r *fakeRenderer) SetPitch(p float64)               { r.pitches = append(r.pitches, p) }
func (r *fakeRenderer) StreamStarving(audio.Status) bool { return r.starving }
func (r *fakeRenderer) StreamPausing(p bool)             { r.paused = append(r.paused, p) }
func (r *fakeRenderer) StreamStopping()                  { r.stopped++ }
func (r *fakeRenderer) Finished() bool                   { return r.finished }
func (r *fakeRenderer) SetOutput(i int) error {
	r.output = i
	return nil
}

type event struct {
	kind string
	tags []string
	err  error
}

type recorder struct {
	mu     sync.Mutex
	events []event
	// onStarted runs inside the PlaybackStarted callback.
	onStarted func()
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) PlaybackStarted(string) {
	if r.onStarted != nil {
		r.onStarted()
	}
	r.add(event{kind: "started"})
}
func (r *recorder) PlaybackPaused(_ string, p bool) { r.add(event{kind: fmt.Sprintf("paused:%v", p)}) }
func (r *recorder) PlaybackStopped(string)          { r.add(event{kind: "stopped"}) }
func (r *recorder) TrackChanged(_ string, tags []string) {
	r.add(event{kind: "track", tags: tags})
}
func (r *recorder) Error(_ string, err error) { r.add(event{kind: "error", err: err}) }

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	entry playlist.Entry
	err   error
}

func (f *fakeResolver) Resolve(context.Context, string) (playlist.Entry, error) {
	return f.entry, f.err
}

type harness struct {
	session  *Session
	engine   *fakeEngine
	stream   *fakeStream
	renderer *fakeRenderer
	events   *recorder
	now      time.Time
}

func newHarness(t *testing.T, url string, states ...audio.OpenState) *harness {
	t.Helper()
	if len(states) == 0 {
		states = []audio.OpenState{audio.OpenReady}
	}
	h := &harness{
		stream:   &fakeStream{states: states, format: audio.Format{SampleRate: 44100, Channels: 2}},
		renderer: &fakeRenderer{},
		events:   &recorder{},
		now:      time.Unix(1000, 0),
	}
	h.engine = &fakeEngine{version: 0x00010200, stream: h.stream}

	s, err := NewSession(h.engine, h.renderer, nil, Options{URL: url}, h.events)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	s.sleep = func(time.Duration) {}
	h.session = s
	return h
}

// tick advances the clock by one catch interval and ticks the session.
func (h *harness) tick() {
	h.session.Tick(h.now)
	h.now = h.now.Add(CatchInterval)
}

func (h *harness) play(t *testing.T) {
	t.Helper()
	if err := h.session.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	h.tick() // open
	h.tick() // first catch attempt
	if got := h.session.State(); got != StatePlaying {
		t.Fatalf("State() = %s, want LIVE", got)
	}
}

func TestNewSessionRejectsOldEngine(t *testing.T) {
	_, err := NewSession(&fakeEngine{version: 0x00000900}, &fakeRenderer{}, nil, Options{}, nil)
	if !errors.Is(err, audio.ErrInitialization) {
		t.Errorf("NewSession() error = %v, want ErrInitialization", err)
	}
}

func TestPlayMisuse(t *testing.T) {
	h := newHarness(t, "   ")
	if err := h.session.Play(); !errors.Is(err, audio.ErrEmptyURL) {
		t.Errorf("Play() with blank URL = %v, want ErrEmptyURL", err)
	}
	if h.session.State() != StateIdle {
		t.Error("misuse must not change state")
	}

	h.session.SetURL("http://radio/stream.mp3")
	h.session.SetEnabled(false)
	if err := h.session.Play(); !errors.Is(err, audio.ErrComponentDisabled) {
		t.Errorf("Play() while disabled = %v, want ErrComponentDisabled", err)
	}

	h.session.SetEnabled(true)
	if err := h.session.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := h.session.Play(); !errors.Is(err, audio.ErrAlreadyPlaying) {
		t.Errorf("second Play() = %v, want ErrAlreadyPlaying", err)
	}
	if len(h.events.kinds()) != 0 {
		t.Errorf("misuse produced notifications: %v", h.events.kinds())
	}
}

func TestAcquisitionBound(t *testing.T) {
	h := newHarness(t, "http://radio/stream", audio.OpenBuffering)
	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	h.tick() // open

	for i := 1; i < CatchAttempts; i++ {
		h.tick()
		if h.session.State() != StateCatching {
			t.Fatalf("gave up after %d attempts", i)
		}
	}
	if h.stream.polls != CatchAttempts-1 {
		t.Fatalf("polls = %d, want %d", h.stream.polls, CatchAttempts-1)
	}

	h.tick()
	snap := h.session.Snapshot()
	if snap.State != StateError {
		t.Fatalf("State = %s after %d attempts, want ERROR", snap.State, CatchAttempts)
	}
	if snap.Attempts != CatchAttempts {
		t.Errorf("Attempts = %d, want exactly %d", snap.Attempts, CatchAttempts)
	}
	if !errors.Is(h.session.LastError(), audio.ErrAcquisitionTimeout) {
		t.Errorf("LastError() = %v, want ErrAcquisitionTimeout", h.session.LastError())
	}
	if h.renderer.started != 0 {
		t.Error("renderer should never start")
	}
	if got := h.events.kinds(); len(got) != 1 || got[0] != "error" {
		t.Errorf("events = %v, want [error]", got)
	}

	// Still buffering at teardown: the stream is left alone and the session
	// refuses to play again.
	if !snap.Unstable || h.stream.closed {
		t.Errorf("Unstable = %v, closed = %v; want unstable and not closed", snap.Unstable, h.stream.closed)
	}
	if !errors.Is(h.session.LastError(), audio.ErrUnstableShutdown) {
		t.Errorf("LastError() = %v, want it to carry ErrUnstableShutdown", h.session.LastError())
	}
	if err := h.session.Play(); !errors.Is(err, audio.ErrUnstableShutdown) {
		t.Errorf("Play() after unstable shutdown = %v, want ErrUnstableShutdown", err)
	}
	if err := h.session.Close(); !errors.Is(err, audio.ErrUnstableShutdown) {
		t.Errorf("Close() = %v, want ErrUnstableShutdown", err)
	}
	if h.engine.closed {
		t.Error("engine must not be released after an unstable shutdown")
	}
	if h.session.leakedURL != "http://radio/stream" {
		t.Errorf("leakedURL = %q, want the abandoned stream location", h.session.leakedURL)
	}
}

func TestCatchPollsAtCadence(t *testing.T) {
	h := newHarness(t, "http://radio/stream", audio.OpenLoading)
	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	h.tick()

	now := h.now
	h.session.Tick(now)
	h.session.Tick(now.Add(CatchInterval / 2))
	if h.stream.polls != 1 {
		t.Errorf("polls = %d within one interval, want 1", h.stream.polls)
	}
	h.session.Tick(now.Add(CatchInterval))
	if h.stream.polls != 2 {
		t.Errorf("polls = %d after one interval, want 2", h.stream.polls)
	}
}

func TestCatchStartsPlayback(t *testing.T) {
	h := newHarness(t, "http://radio/stream", audio.OpenLoading, audio.OpenBuffering, audio.OpenReady)
	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		h.tick()
	}

	snap := h.session.Snapshot()
	if snap.State != StatePlaying || snap.Attempts != 3 {
		t.Fatalf("State = %s Attempts = %d, want LIVE after 3", snap.State, snap.Attempts)
	}
	if snap.Channels != 2 || snap.SampleRate != 44100 {
		t.Errorf("format = %d ch %.0f Hz", snap.Channels, snap.SampleRate)
	}
	if h.renderer.started != 1 || math.Abs(h.renderer.pitch-0.91875) > 1e-9 {
		t.Errorf("renderer started %d times with pitch %v", h.renderer.started, h.renderer.pitch)
	}
	if h.events.count("started") != 1 {
		t.Errorf("events = %v, want one started", h.events.kinds())
	}
	if h.engine.opened[0] != "http://radio/stream" {
		t.Errorf("opened %v", h.engine.opened)
	}
}

func TestCatchFailsOnStreamError(t *testing.T) {
	h := newHarness(t, "http://radio/missing", audio.OpenLoading, audio.OpenError)
	h.stream.err = &audio.StatusError{StatusCode: 404, Status: "404 Not Found"}
	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	h.tick()
	h.tick()
	h.tick()

	if h.session.State() != StateError {
		t.Fatalf("State() = %s, want ERROR", h.session.State())
	}
	if !errors.Is(h.session.LastError(), audio.ErrNetURL) {
		t.Errorf("LastError() = %v, want ErrNetURL", h.session.LastError())
	}
	if !h.stream.closed {
		t.Error("failed stream should be closed")
	}
}

func TestOpenError(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	h.engine.openErr = audio.ErrOpen
	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	h.tick()

	if h.session.State() != StateError || !errors.Is(h.session.LastError(), audio.ErrOpen) {
		t.Errorf("State() = %s LastError() = %v", h.session.State(), h.session.LastError())
	}
}

func TestTagWraparound(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	h.play(t)

	for i := 1; i <= 5; i++ {
		h.stream.pushTags(audio.Tag{Name: "StreamTitle", IsString: true, Payload: []byte(fmt.Sprintf("tag%d", i))})
	}
	h.tick()

	want := []string{"StreamTitle = tag2", "StreamTitle = tag3", "StreamTitle = tag4", "StreamTitle = tag5"}
	got := h.session.Snapshot().Tags
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Tags = %v, want %v", got, want)
	}
	if n := h.events.count("track"); n != 1 {
		t.Errorf("track changes = %d, want exactly 1 per batch", n)
	}

	h.tick()
	if n := h.events.count("track"); n != 1 {
		t.Errorf("track changes = %d after an empty tick, want 1", n)
	}

	h.stream.pushTags(audio.Tag{Name: "StreamTitle", IsString: true, Payload: []byte("next")})
	h.tick()
	if got := h.session.Snapshot().Tags; len(got) != 1 || got[0] != "StreamTitle = next" {
		t.Errorf("Tags = %v, want the new batch only", got)
	}
	if n := h.events.count("track"); n != 2 {
		t.Errorf("track changes = %d, want 2", n)
	}
}

func TestTagRingSlots(t *testing.T) {
	var r TagRing
	for i := 1; i <= 5; i++ {
		r.Add(fmt.Sprintf("t%d", i))
	}
	want := [TagSlots]string{"t5", "t2", "t3", "t4"}
	if r.Slots() != want {
		t.Errorf("Slots() = %v, want %v", r.Slots(), want)
	}

	r.Reset()
	if len(r.Ordered()) != 0 {
		t.Errorf("Ordered() after Reset = %v", r.Ordered())
	}
}

func TestSampleRateChange(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	h.play(t)

	h.stream.pushTags(audio.NewSampleRateTag(22050))
	h.tick()

	want := 22050.0 * 2 / (48000 * 2)
	if len(h.renderer.pitches) != 1 || math.Abs(h.renderer.pitches[0]-want) > 1e-9 {
		t.Errorf("SetPitch calls = %v, want [%v]", h.renderer.pitches, want)
	}
	snap := h.session.Snapshot()
	if snap.SampleRate != 22050 || snap.State != StatePlaying {
		t.Errorf("SampleRate = %v State = %s", snap.SampleRate, snap.State)
	}
	if h.renderer.started != 1 {
		t.Error("sample rate change must not restart the stream")
	}
}

func TestPitchCompensation(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		channels int
		out      audio.Format
		want     float64
	}{
		{"44.1k stereo on 48k stereo", 44100, 2, audio.Format{SampleRate: 48000, Channels: 2}, 0.91875},
		{"48k stereo on 48k stereo", 48000, 2, audio.Format{SampleRate: 48000, Channels: 2}, 1},
		{"22.05k mono on 44.1k stereo", 22050, 1, audio.Format{SampleRate: 44100, Channels: 2}, 0.25},
		{"unknown output", 44100, 2, audio.Format{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PitchCompensation(tt.rate, tt.channels, tt.out)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PitchCompensation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStopIdempotence(t *testing.T) {
	h := newHarness(t, "http://radio/stream")

	h.session.Stop()
	if len(h.events.kinds()) != 0 {
		t.Fatalf("Stop() on idle session emitted %v", h.events.kinds())
	}

	h.play(t)
	h.session.Stop()
	h.session.Stop()

	if n := h.events.count("stopped"); n != 1 {
		t.Errorf("stopped notifications = %d, want 1", n)
	}
	if h.renderer.stopped != 1 {
		t.Errorf("renderer stopped %d times, want 1", h.renderer.stopped)
	}
	if !h.stream.closed {
		t.Error("stream should be closed")
	}
	if h.session.State() != StateIdle {
		t.Errorf("State() = %s, want IDLE", h.session.State())
	}

	// Play again after a completed stop.
	h.stream.closed = false
	h.play(t)
	if h.events.count("started") != 2 {
		t.Errorf("events = %v", h.events.kinds())
	}
}

func TestStopReleasesLockWhileSettling(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	h.play(t)

	var (
		during  Snapshot
		playErr error
		checked bool
	)
	h.session.sleep = func(time.Duration) {
		if checked {
			return
		}
		checked = true

		done := make(chan struct{})
		go func() {
			defer close(done)
			during = h.session.Snapshot()
			h.session.Stop()
			playErr = h.session.Play()
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("session locked while the stream settles")
		}
	}

	h.session.Stop()

	if during.State != StateStopping {
		t.Errorf("State while settling = %s, want STOPPING", during.State)
	}
	if !errors.Is(playErr, audio.ErrAlreadyPlaying) {
		t.Errorf("Play() while settling = %v, want ErrAlreadyPlaying", playErr)
	}
	if got := h.session.State(); got != StateIdle {
		t.Errorf("State() = %s after Stop, want IDLE", got)
	}
	if !h.stream.closed {
		t.Error("stream not released")
	}
	if got := h.events.kinds(); len(got) != 2 || got[1] != "stopped" {
		t.Errorf("events = %v, want [started stopped]", got)
	}
}

func TestStopDuringAcquisition(t *testing.T) {
	h := newHarness(t, "http://radio/stream", audio.OpenLoading)
	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	h.tick()
	h.tick()

	h.session.Stop()
	if h.session.State() != StateIdle {
		t.Errorf("State() = %s, want IDLE", h.session.State())
	}
	if !h.stream.closed {
		t.Error("stream still loading should be closed")
	}
	if h.renderer.stopped != 0 {
		t.Error("renderer was never started and must not be stopped")
	}
	if got := h.events.kinds(); len(got) != 1 || got[0] != "stopped" {
		t.Errorf("events = %v, want [stopped]", got)
	}

	polls := h.stream.polls
	h.tick()
	if h.stream.polls != polls {
		t.Error("no polling after Stop")
	}
}

func TestPause(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	if err := h.session.Pause(true); !errors.Is(err, audio.ErrNotPlaying) {
		t.Errorf("Pause() while idle = %v, want ErrNotPlaying", err)
	}

	h.play(t)
	if err := h.session.Pause(true); err != nil {
		t.Fatalf("Pause(true) error = %v", err)
	}
	snap := h.session.Snapshot()
	if !snap.Paused || snap.Display != StatePaused || snap.State != StatePlaying {
		t.Errorf("snapshot = %+v, want paused while playing", snap)
	}

	// Starvation is not checked while paused.
	h.renderer.starving = true
	h.tick()
	if h.session.State() != StatePlaying {
		t.Errorf("State() = %s while paused, want LIVE", h.session.State())
	}
	h.renderer.starving = false

	if err := h.session.TogglePause(); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(h.renderer.paused) != "[true false]" {
		t.Errorf("renderer pause calls = %v", h.renderer.paused)
	}
	if h.events.count("paused:true") != 1 || h.events.count("paused:false") != 1 {
		t.Errorf("events = %v", h.events.kinds())
	}
}

func TestStarvationStops(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	h.play(t)

	h.renderer.starving = true
	h.tick()

	if h.session.State() != StateError {
		t.Fatalf("State() = %s, want ERROR", h.session.State())
	}
	if !errors.Is(h.session.LastError(), audio.ErrStarvation) {
		t.Errorf("LastError() = %v, want ErrStarvation", h.session.LastError())
	}
	if got := fmt.Sprint(h.events.kinds()); got != "[started stopped error]" {
		t.Errorf("events = %s", got)
	}
	if h.renderer.stopped != 1 || !h.stream.closed {
		t.Errorf("renderer stopped = %d, stream closed = %v", h.renderer.stopped, h.stream.closed)
	}

	h.session.Stop()
	if h.events.count("stopped") != 1 {
		t.Error("Stop() after failure should not notify")
	}
	if err := h.session.Play(); err != nil {
		t.Errorf("Play() after failure = %v, want a fresh start", err)
	}
}

func TestFinishedStops(t *testing.T) {
	h := newHarness(t, "/music/song.wav")
	h.play(t)

	h.renderer.finished = true
	h.tick()
	if h.session.State() != StateIdle {
		t.Errorf("State() = %s, want IDLE", h.session.State())
	}
	if h.session.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", h.session.LastError())
	}
	if h.events.count("stopped") != 1 || h.events.count("error") != 0 {
		t.Errorf("events = %v", h.events.kinds())
	}
}

func TestPlaylistResolution(t *testing.T) {
	h := newHarness(t, "http://radio/listen.PLS")
	h.session.resolver = &fakeResolver{entry: playlist.Entry{Type: playlist.PLS, ResolvedURL: "http://a/b.mp3"}}

	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	if h.session.State() != StateResolvingPlaylist {
		t.Fatalf("State() = %s, want RESOLVING", h.session.State())
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.session.State() == StateResolvingPlaylist && time.Now().Before(deadline) {
		h.tick()
		time.Sleep(time.Millisecond)
	}
	h.tick()
	h.tick()

	if h.session.State() != StatePlaying {
		t.Fatalf("State() = %s, want LIVE", h.session.State())
	}
	if h.engine.opened[0] != "http://a/b.mp3" || h.session.Snapshot().ResolvedURL != "http://a/b.mp3" {
		t.Errorf("opened %v", h.engine.opened)
	}
}

func TestPlaylistFailure(t *testing.T) {
	h := newHarness(t, "http://radio/listen.m3u")
	h.session.resolver = &fakeResolver{err: fmt.Errorf("%w: no entries", audio.ErrPlaylist)}

	if err := h.session.Play(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.session.State() == StateResolvingPlaylist && time.Now().Before(deadline) {
		h.tick()
		time.Sleep(time.Millisecond)
	}

	if h.session.State() != StateError {
		t.Fatalf("State() = %s, want ERROR", h.session.State())
	}
	if !errors.Is(h.session.LastError(), audio.ErrPlaylist) {
		t.Errorf("LastError() = %v, want ErrPlaylist", h.session.LastError())
	}
	if len(h.engine.opened) != 0 {
		t.Error("engine must not be opened after a playlist failure")
	}
	if got := h.events.kinds(); len(got) != 1 || got[0] != "error" {
		t.Errorf("events = %v, want [error]", got)
	}
}

func TestNotificationsOutsideLock(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	var seen State
	h.events.onStarted = func() {
		seen = h.session.State()
	}
	h.play(t)
	if seen != StatePlaying {
		t.Errorf("listener saw %s, want LIVE", seen)
	}
}

func TestStartHonorsPlayOnStart(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	if err := h.session.Start(); err != nil || h.session.State() != StateIdle {
		t.Errorf("Start() without PlayOnStart = %v, state %s", err, h.session.State())
	}

	h.session.opts.PlayOnStart = true
	if err := h.session.Start(); err != nil || h.session.State() != StateOpening {
		t.Errorf("Start() with PlayOnStart = %v, state %s", err, h.session.State())
	}
}

func TestSetOutput(t *testing.T) {
	h := newHarness(t, "http://radio/stream")
	if err := h.session.SetOutput(2); err != nil {
		t.Fatal(err)
	}
	if h.engine.output != 2 || h.renderer.output != 2 {
		t.Errorf("engine output = %d renderer output = %d, want 2", h.engine.output, h.renderer.output)
	}

	outputs, err := h.session.AvailableOutputs()
	if err != nil || len(outputs) != 1 {
		t.Errorf("AvailableOutputs() = %v, %v", outputs, err)
	}
}

func TestListenersFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	ls := Listeners{a, b}
	ls.PlaybackStarted("x")
	ls.TrackChanged("x", []string{"t"})
	ls.Error("x", audio.ErrStarvation)

	for _, r := range []*recorder{a, b} {
		if got := fmt.Sprint(r.kinds()); got != "[started track error]" {
			t.Errorf("events = %s", got)
		}
	}
}
