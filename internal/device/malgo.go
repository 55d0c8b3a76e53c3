// Package device wraps miniaudio (via malgo) for device enumeration,
// direct playback, secondary outputs and capture. All devices run signed
// 16-bit little-endian PCM.
package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/rs/zerolog/log"
)

// Backend owns the miniaudio context. Devices opened from it must be closed
// before the backend.
type Backend struct {
	mu         sync.Mutex
	ctx        *malgo.AllocatedContext
	sampleRate int
	channels   int
}

// NewBackend initializes miniaudio. sampleRate and channels are the
// software format reported for every device.
func NewBackend(sampleRate, channels int) (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("component", "miniaudio").Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize malgo context: %w", audio.ErrInitialization, err)
	}

	return &Backend{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (b *Backend) PlaybackDevices() ([]audio.DeviceInfo, error) {
	return b.list(malgo.Playback)
}

func (b *Backend) CaptureDevices() ([]audio.DeviceInfo, error) {
	return b.list(malgo.Capture)
}

func (b *Backend) list(kind malgo.DeviceType) ([]audio.DeviceInfo, error) {
	infos, err := b.devices(kind)
	if err != nil {
		return nil, err
	}

	out := make([]audio.DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = audio.DeviceInfo{
			Index:      i,
			Name:       info.Name(),
			SampleRate: b.sampleRate,
			Channels:   b.channels,
			IsDefault:  info.IsDefault != 0,
		}
	}
	return out, nil
}

func (b *Backend) devices(kind malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil, fmt.Errorf("%w: backend closed", audio.ErrNoDevice)
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return infos, nil
}

// OpenPlayback opens an output device. fill is called on the device thread
// with a buffer to fill completely. index -1 selects the system default.
func (b *Backend) OpenPlayback(index int, f audio.Format, fill audio.DataFunc) (audio.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1

	infos, err := b.devices(malgo.Playback)
	if err != nil {
		return nil, err
	}
	if i, ok := resolveIndex(index, len(infos)); !ok {
		return nil, fmt.Errorf("%w: output %d", audio.ErrNoDevice, index)
	} else if i >= 0 {
		cfg.Playback.DeviceID = infos[i].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, _ []byte, _ uint32) {
			fill(pOutputSample)
		},
	}
	return b.open(cfg, callbacks, "playback", f, index)
}

// OpenCapture opens an input device. recv gets every captured buffer on the
// device thread and must not retain it.
func (b *Backend) OpenCapture(index int, f audio.Format, recv audio.DataFunc) (audio.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1

	infos, err := b.devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	if i, ok := resolveIndex(index, len(infos)); !ok {
		return nil, fmt.Errorf("%w: input %d", audio.ErrNoDevice, index)
	} else if i >= 0 {
		cfg.Capture.DeviceID = infos[i].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			recv(pInputSamples)
		},
	}
	return b.open(cfg, callbacks, "capture", f, index)
}

func (b *Backend) open(cfg malgo.DeviceConfig, callbacks malgo.DeviceCallbacks, kind string, f audio.Format, index int) (audio.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil, fmt.Errorf("%w: backend closed", audio.ErrNoDevice)
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s device: %w", kind, err)
	}

	log.Debug().Str("kind", kind).Int("device", index).Msgf("Device initialized: %dHz, %d channels", f.SampleRate, f.Channels)
	return &malgoDevice{dev: dev}, nil
}

// Close releases the miniaudio context.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("malgo context uninit error")
	}
	b.ctx.Free()
	b.ctx = nil
	return nil
}

// resolveIndex maps a configured device index onto an enumeration of count
// devices. -1 means the system default.
func resolveIndex(index, count int) (int, bool) {
	switch {
	case index < 0:
		return -1, true
	case index < count:
		return index, true
	default:
		return 0, false
	}
}

type malgoDevice struct {
	mu      sync.Mutex
	dev     *malgo.Device
	started bool
}

func (d *malgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev == nil {
		return fmt.Errorf("device closed")
	}
	if d.started {
		return nil
	}
	if err := d.dev.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	d.started = true
	return nil
}

func (d *malgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev == nil || !d.started {
		return nil
	}
	d.started = false
	return d.dev.Stop()
}

func (d *malgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev == nil {
		return nil
	}
	if d.started {
		if err := d.dev.Stop(); err != nil {
			log.Warn().Err(err).Msg("device stop error")
		}
	}
	d.dev.Uninit()
	d.dev = nil
	return nil
}
