package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/glebovdev/audiostream/internal/audio"
)

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, "Outputs", []audio.DeviceInfo{
		{Index: 0, Name: "Speakers", IsDefault: true},
		{Index: 1, Name: "HDMI"},
	})
	printDevices(&buf, "Inputs", nil)

	want := "Outputs:\n  [0] Speakers (default)\n  [1] HDMI\nInputs:\n  (none)\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestConsoleListener(t *testing.T) {
	var buf bytes.Buffer
	done := 0
	c := &consoleListener{out: &buf, done: func() { done++ }}

	c.PlaybackStarted("id")
	c.TrackChanged("id", []string{"StreamTitle = Song", "StreamUrl = x"})
	c.PlaybackStopped("id")
	c.Error("id", audio.ErrStarvation)

	out := buf.String()
	if !strings.Contains(out, "Now playing: StreamTitle = Song | StreamUrl = x") {
		t.Errorf("output = %q", out)
	}
	if done != 2 {
		t.Errorf("done called %d times, want 2", done)
	}
	if !errors.Is(c.Err(), audio.ErrStarvation) {
		t.Errorf("Err() = %v, want ErrStarvation", c.Err())
	}
}
