// Package decoder is the streaming decoder engine: it connects to a URL or
// local file, strips shoutcast metadata, decodes MPEG, Ogg Vorbis, WAV or
// raw PCM and exposes the result as a pollable audio.Stream.
package decoder

import (
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/go-resty/resty/v2"
)

const (
	// Version is reported to sessions so they can refuse an older engine.
	Version uint32 = 0x00010200

	StreamBufferSize = 64 * 1024
	PrebufferPercent = 25
	StarvingBytes    = 4096
	NetworkReadSize  = 4096
	DecodeFrames     = 1024
	ReadTimeout      = 5 * time.Second
)

// DeviceLister enumerates output devices. *device.Backend satisfies it.
type DeviceLister interface {
	PlaybackDevices() ([]audio.DeviceInfo, error)
}

type Engine struct {
	client  *resty.Client
	devices DeviceLister

	mu           sync.Mutex
	outputDevice int
	closed       bool
}

// NewEngine creates an engine. devices may be nil, in which case only the
// system default output is listed.
func NewEngine(userAgent string, devices DeviceLister) *Engine {
	return &Engine{
		client:       newStreamClient(userAgent),
		devices:      devices,
		outputDevice: -1,
	}
}

func (e *Engine) Version() uint32 {
	return Version
}

// Open starts connecting to location and returns immediately. Progress is
// observed through Poll on the returned stream.
func (e *Engine) Open(location string, hint audio.StreamType, raw audio.RawFormat) (audio.Stream, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("%w: engine closed", audio.ErrOpen)
	}
	if location == "" {
		return nil, audio.ErrEmptyURL
	}

	s := newStream(e.client, location, hint, raw, StreamBufferSize)
	s.start()
	return s, nil
}

// SetOutputDevice selects the output by index; -1 is the system default.
func (e *Engine) SetOutputDevice(index int) error {
	if index >= 0 {
		devices, err := e.OutputDevices()
		if err != nil {
			return err
		}
		if index >= len(devices) {
			return fmt.Errorf("%w: output %d", audio.ErrNoDevice, index)
		}
	}

	e.mu.Lock()
	e.outputDevice = index
	e.mu.Unlock()
	return nil
}

func (e *Engine) OutputDevice() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputDevice
}

func (e *Engine) OutputDevices() ([]audio.DeviceInfo, error) {
	if e.devices == nil {
		return []audio.DeviceInfo{{Index: 0, Name: "Default output", IsDefault: true}}, nil
	}
	return e.devices.PlaybackDevices()
}

// Close refuses further opens. Streams already opened stay owned by their
// callers.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
