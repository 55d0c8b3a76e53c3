package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/config"
	"github.com/glebovdev/audiostream/internal/stream"
)

type fakePlayer struct {
	snap    stream.Snapshot
	outputs []audio.DeviceInfo
	output  int
	plays   int
	stops   int
}

func (p *fakePlayer) Play() error                                   { p.plays++; return nil }
func (p *fakePlayer) Stop()                                         { p.stops++ }
func (p *fakePlayer) TogglePause() error                            { p.snap.Paused = !p.snap.Paused; return nil }
func (p *fakePlayer) SetOutput(i int) error                         { p.output = i; return nil }
func (p *fakePlayer) AvailableOutputs() ([]audio.DeviceInfo, error) { return p.outputs, nil }
func (p *fakePlayer) Snapshot() stream.Snapshot                     { return p.snap }

type fakeRecorder struct {
	recording bool
	paused    bool
}

func (r *fakeRecorder) Record() error        { r.recording = true; return nil }
func (r *fakeRecorder) Stop()                { r.recording = false }
func (r *fakeRecorder) Recording() bool      { return r.recording }
func (r *fakeRecorder) Paused() bool         { return r.paused }
func (r *fakeRecorder) Queued() int          { return 480 }
func (r *fakeRecorder) Format() audio.Format { return audio.Format{SampleRate: 48000, Channels: 2} }

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"nil slice", nil, ""},
		{"single part", []string{"LIVE"}, "LIVE"},
		{"two parts", []string{"LIVE", "44.1kHz stereo"}, "LIVE │ 44.1kHz stereo"},
		{"empty parts skipped", []string{"● LIVE", "", "▁▁▁▁▁"}, "● LIVE │ ▁▁▁▁▁"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinParts(tt.parts); got != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, got, tt.expected)
			}
		})
	}
}

func TestStatusRendererFormatBufferHealth(t *testing.T) {
	renderer := &StatusRenderer{}

	for _, percent := range []int{0, 50, 100, 120} {
		t.Run(fmt.Sprint(percent), func(t *testing.T) {
			if n := len([]rune(renderer.formatBufferHealth(percent))); n != 5 {
				t.Errorf("formatBufferHealth(%d) returned %d runes, want 5", percent, n)
			}
		})
	}

	if renderer.formatBufferHealth(0) == renderer.formatBufferHealth(100) {
		t.Error("0% and 100% buffer health should look different")
	}
}

func TestStatusRendererAdvanceAnimation(t *testing.T) {
	p := &fakePlayer{snap: stream.Snapshot{FillPercent: 80}}
	renderer := NewStatusRenderer(p, nil)

	for i := 0; i < renderer.ticksPerFrame-1; i++ {
		renderer.AdvanceAnimation()
	}
	if renderer.animFrame != 0 {
		t.Error("Animation frame changed before ticksPerFrame ticks")
	}
	renderer.AdvanceAnimation()
	if renderer.animFrame != 1 {
		t.Errorf("animFrame = %d, want 1", renderer.animFrame)
	}

	for i := renderer.ticksPerFrame; i < renderer.bufferTicksPerUpdate; i++ {
		renderer.AdvanceAnimation()
	}
	if renderer.bufferHealth != 80 {
		t.Errorf("bufferHealth = %d, want 80 after an update period", renderer.bufferHealth)
	}
}

func TestStatusRendererRender(t *testing.T) {
	tests := []struct {
		name     string
		snap     stream.Snapshot
		contains []string
	}{
		{"idle", stream.Snapshot{Display: stream.StateIdle}, []string{"IDLE"}},
		{"resolving", stream.Snapshot{Display: stream.StateResolvingPlaylist}, []string{"RESOLVING"}},
		{"opening", stream.Snapshot{Display: stream.StateOpening}, []string{"CONNECTING"}},
		{"catching", stream.Snapshot{Display: stream.StateCatching, Attempts: 12}, []string{"BUFFERING 12/60"}},
		{"playing", stream.Snapshot{Display: stream.StatePlaying, SampleRate: 44100, Channels: 2, Busy: true},
			[]string{"LIVE", "44.1kHz stereo", "BUSY"}},
		{"paused", stream.Snapshot{Display: stream.StatePaused, SampleRate: 22050, Channels: 1},
			[]string{"PAUSED", "22.1kHz mono"}},
		{"starving", stream.Snapshot{Display: stream.StateStarving}, []string{"STARVING"}},
		{"error", stream.Snapshot{Display: stream.StateError, Err: audio.ErrStarvation}, []string{"✗", audio.ErrStarvation.Error()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := NewStatusRenderer(&fakePlayer{snap: tt.snap}, nil)
			got := renderer.Render()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Render() = %q, expected to contain %q", got, want)
				}
			}
		})
	}
}

func TestStatusRendererRecording(t *testing.T) {
	rec := &fakeRecorder{recording: true}
	renderer := NewStatusRenderer(&fakePlayer{}, rec)
	renderer.SetMuted(true)

	got := renderer.Render()
	if !strings.Contains(got, "REC") || !strings.Contains(got, "MUTED") {
		t.Errorf("Render() = %q, want REC and MUTED", got)
	}

	rec.recording = false
	if got := renderer.Render(); strings.Contains(got, "REC") {
		t.Errorf("Render() = %q after recording stopped", got)
	}
}

func TestNextOutput(t *testing.T) {
	devices := []audio.DeviceInfo{{Index: 0, Name: "A"}, {Index: 1, Name: "B", IsDefault: true}, {Index: 2, Name: "C"}}

	tests := []struct {
		current int
		want    int
	}{
		{-1, 0},
		{0, 1},
		{1, 2},
		{2, 0},
		{7, 0},
	}
	for _, tt := range tests {
		got, ok := nextOutput(devices, tt.current)
		if !ok || got != tt.want {
			t.Errorf("nextOutput(%d) = %d, %v, want %d", tt.current, got, ok, tt.want)
		}
	}

	if _, ok := nextOutput(nil, 0); ok {
		t.Error("nextOutput with no devices should fail")
	}
}

func TestTagsText(t *testing.T) {
	got := tagsText([]string{"title = One", "artist = Two"}, "red")
	lines := strings.Split(got, "\n")
	if len(lines) != stream.TagSlots {
		t.Fatalf("got %d lines, want %d", len(lines), stream.TagSlots)
	}
	if !strings.Contains(lines[0], "title = One") || lines[3] != " -" {
		t.Errorf("tagsText() = %q", got)
	}
}

func TestFriendlyErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"404", fmt.Errorf("open: %w", &audio.StatusError{StatusCode: 404, Status: "404 Not Found"}), "404"},
		{"other status", &audio.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}, "500"},
		{"unstable", audio.ErrUnstableShutdown, "Restart"},
		{"timeout sentinel", audio.ErrAcquisitionTimeout, "did not start"},
		{"starvation", audio.ErrStarvation, "ran out of data"},
		{"empty url", audio.ErrEmptyURL, "--url"},
		{"no such host", errors.New("dial tcp: lookup example.com: no such host"), "Unable to connect"},
		{"playlist", fmt.Errorf("%w: no entries", audio.ErrPlaylist), "playlist"},
		{"dial truncation", errors.New("failed to connect: dial tcp something"), "failed to connect"},
		{"generic", errors.New("some error"), "some error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := friendlyErrorMessage(tt.err); !strings.Contains(got, tt.contains) {
				t.Errorf("friendlyErrorMessage(%v) = %q, expected to contain %q", tt.err, got, tt.contains)
			}
		})
	}

	long := friendlyErrorMessage(errors.New(strings.Repeat("x", 200)))
	if len(long) > 110 {
		t.Errorf("long error not truncated, got length %d", len(long))
	}
}

func TestInfoText(t *testing.T) {
	cfg := config.DefaultConfig()
	u := NewUI(&fakePlayer{}, &fakeRecorder{recording: true, paused: true}, nil, cfg)

	got := u.infoText(stream.Snapshot{
		URL:         "http://example.com/live.pls",
		ResolvedURL: "http://example.com/live",
		Display:     stream.StatePlaying,
		SampleRate:  48000,
		Channels:    2,
		Pitch:       1,
		FillPercent: 40,
		Starving:    true,
	})
	for _, want := range []string{"live.pls", "Resolved: http://example.com/live", "48.0kHz stereo", "pitch 1.000", "buffer 40%", "starving", "paused"} {
		if !strings.Contains(got, want) {
			t.Errorf("infoText() missing %q:\n%s", want, got)
		}
	}

	u.recorder = nil
	if got := u.recordText(); got != "disabled" {
		t.Errorf("recordText() = %q, want disabled", got)
	}
}

func TestHelpTextFollowsState(t *testing.T) {
	p := &fakePlayer{snap: stream.Snapshot{Display: stream.StateIdle}}
	u := NewUI(p, nil, nil, config.DefaultConfig())

	if got := u.getHelpText(); !strings.Contains(got, "play") {
		t.Errorf("idle help = %q", got)
	}
	p.snap.Display = stream.StatePlaying
	if got := u.getHelpText(); !strings.Contains(got, "pause") {
		t.Errorf("playing help = %q", got)
	}
	p.snap.Display = stream.StatePaused
	if got := u.getHelpText(); !strings.Contains(got, "resume") {
		t.Errorf("paused help = %q", got)
	}
}

func TestListenerIgnoredAfterStop(t *testing.T) {
	u := NewUI(&fakePlayer{}, nil, nil, config.DefaultConfig())
	u.stopped.Store(true)

	// Must not block on the application's update queue.
	u.PlaybackStarted("id")
	u.TrackChanged("id", []string{"a = b"})
	u.Error("id", audio.ErrStarvation)
	u.RecordingStopped("id")
}

func TestIsActiveOutput(t *testing.T) {
	u := NewUI(&fakePlayer{}, nil, nil, config.DefaultConfig())

	u.outputIndex = -1
	if !u.isActiveOutput(audio.DeviceInfo{Index: 3, IsDefault: true}) {
		t.Error("default device should be active when no output is selected")
	}
	u.outputIndex = 2
	if u.isActiveOutput(audio.DeviceInfo{Index: 3, IsDefault: true}) || !u.isActiveOutput(audio.DeviceInfo{Index: 2}) {
		t.Error("explicit output selection not honored")
	}
}

func TestVolumeBarText(t *testing.T) {
	colors := barColors{fill: "green", empty: "white", muted: "gray"}

	tests := []struct {
		name     string
		level    volumeLevel
		filled   int
		contains []string
		excludes []string
	}{
		{"normal", volumeLevel{percent: 70}, 7, []string{" 70%", "[green] ██"}, []string{"▒▒", "::s"}},
		{"muted", volumeLevel{percent: 40, muted: true}, 4, []string{"[gray::s] 40%", "[gray] ██"}, []string{"[green]"}},
		{"held while starving", volumeLevel{percent: 50, held: true}, 5, []string{"[green::d] 50%", " ▒▒"}, []string{" ██"}},
		{"silent", volumeLevel{percent: 0}, 0, nil, []string{"%"}},
		{"full", volumeLevel{percent: 100}, 10, []string{"100%"}, []string{"░░"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := volumeBarText(tt.level, colors)
			lines := strings.Split(got, "\n")
			if len(lines) != volumeBarHeight+2 {
				t.Fatalf("got %d lines, want %d", len(lines), volumeBarHeight+2)
			}
			if empty := strings.Count(got, "░░"); empty != volumeBarHeight-tt.filled {
				t.Errorf("%d empty cells, want %d", empty, volumeBarHeight-tt.filled)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("volumeBarText() missing %q:\n%s", want, got)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("volumeBarText() contains %q:\n%s", bad, got)
				}
			}
		})
	}
}

func TestCurrentLevel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.Volume = 60
	p := &fakePlayer{}
	u := NewUI(p, nil, nil, cfg)

	if got := u.currentLevel(); got != (volumeLevel{percent: 60}) {
		t.Errorf("currentLevel() = %+v", got)
	}

	p.snap.Starving = true
	u.toggleMute()
	if got := u.currentLevel(); got != (volumeLevel{percent: 60, muted: true, held: true}) {
		t.Errorf("muted currentLevel() = %+v", got)
	}
}
