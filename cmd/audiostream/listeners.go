package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/glebovdev/audiostream/internal/capture"
	"github.com/glebovdev/audiostream/internal/render"
	"github.com/rs/zerolog/log"
)

// logListener writes session and recording events to the log.
type logListener struct{}

func (logListener) PlaybackStarted(id string) {
	log.Info().Str("session", id).Msg("Playback started")
}

func (logListener) PlaybackPaused(id string, paused bool) {
	log.Info().Str("session", id).Bool("paused", paused).Msg("Playback paused")
}

func (logListener) PlaybackStopped(id string) {
	log.Info().Str("session", id).Msg("Playback stopped")
}

func (logListener) TrackChanged(id string, tags []string) {
	log.Info().Str("session", id).Strs("tags", tags).Msg("Track changed")
}

func (logListener) Error(id string, err error) {
	log.Error().Str("session", id).Err(err).Msg("Playback error")
}

func (logListener) RecordingStarted(id string) {
	log.Info().Str("capture", id).Msg("Recording started")
}

func (logListener) RecordingPaused(id string, paused bool) {
	log.Info().Str("capture", id).Bool("paused", paused).Msg("Recording paused")
}

func (logListener) RecordingStopped(id string) {
	log.Info().Str("capture", id).Msg("Recording stopped")
}

// consoleListener prints the stream's tags when running without the
// terminal interface and ends the run once playback stops.
type consoleListener struct {
	out  io.Writer
	done func()

	mu  sync.Mutex
	err error
}

func (c *consoleListener) PlaybackStarted(string) {
	fmt.Fprintln(c.out, "Playing")
}

func (c *consoleListener) PlaybackPaused(_ string, paused bool) {
	if paused {
		fmt.Fprintln(c.out, "Paused")
	} else {
		fmt.Fprintln(c.out, "Resumed")
	}
}

func (c *consoleListener) PlaybackStopped(string) {
	fmt.Fprintln(c.out, "Stopped")
	c.done()
}

func (c *consoleListener) TrackChanged(_ string, tags []string) {
	fmt.Fprintf(c.out, "Now playing: %s\n", strings.Join(tags, " | "))
}

func (c *consoleListener) Error(_ string, err error) {
	c.fail(err)
}

func (c *consoleListener) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.done()
}

// Err is the error that ended playback, if any.
func (c *consoleListener) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// monitorListener routes the recording to the speaker while it runs.
type monitorListener struct {
	speaker  *render.Speaker
	recorder *capture.Session
}

func (m *monitorListener) RecordingStarted(string) {
	if err := m.speaker.Monitor(m.recorder.Streamer()); err != nil {
		log.Warn().Err(err).Msg("Failed to monitor recording")
	}
}

func (m *monitorListener) RecordingPaused(string, bool) {}

func (m *monitorListener) RecordingStopped(string) {
	m.speaker.Monitor(nil)
}
