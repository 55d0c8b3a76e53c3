package render

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/pcm"
	"github.com/rs/zerolog/log"
)

// PlaybackOpener opens hardware outputs. *device.Backend satisfies it.
type PlaybackOpener interface {
	OpenPlayback(index int, f audio.Format, fill audio.DataFunc) (audio.Device, error)
}

// Device renders in direct mode: it owns a hardware output and fills it
// from the stream on the device thread. The output is muted while the
// stream starves, and the stream is abandoned after Grace starving ticks.
type Device struct {
	opener     PlaybackOpener
	outputRate int

	mu       sync.Mutex
	index    int
	dev      audio.Device
	guard    Guard
	channels int
	volume   int

	// Guarded by renderMu, which the device callback holds while pulling.
	renderMu sync.Mutex
	chain    *chain
	frames   [][2]float64
	out      []byte

	muted  atomic.Bool
	paused atomic.Bool
}

func NewDevice(opener PlaybackOpener, index, outputRate int) *Device {
	return &Device{
		opener:     opener,
		outputRate: outputRate,
		index:      index,
		guard:      Guard{Limit: DefaultStarvationGrace},
		volume:     100,
	}
}

func (d *Device) OutputFormat() audio.Format {
	return audio.Format{SampleRate: d.outputRate, Channels: 2}
}

func (d *Device) StreamStarting(st audio.Stream, pitch float64) error {
	f := st.Format()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.renderMu.Lock()
	d.channels = f.Channels
	d.chain = newChain(newStreamSource(st, f.Channels, nil), rateRatio(pitch, f.Channels, 2), d.volume)
	d.renderMu.Unlock()

	d.guard.Reset()
	d.muted.Store(false)
	d.paused.Store(false)

	return d.openLocked()
}

func (d *Device) openLocked() error {
	dev, err := d.opener.OpenPlayback(d.index, d.OutputFormat(), d.fill)
	if err != nil {
		return fmt.Errorf("failed to open output %d: %w", d.index, err)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		return err
	}
	d.dev = dev
	return nil
}

func (d *Device) closeLocked() {
	if d.dev == nil {
		return
	}
	if err := d.dev.Close(); err != nil {
		log.Warn().Err(err).Msg("Output close error")
	}
	d.dev = nil
}

// fill runs on the device thread.
func (d *Device) fill(buf []byte) {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()

	if d.chain == nil || d.paused.Load() {
		clear(buf)
		return
	}

	n := len(buf) / (2 * audio.BytesPerSample)
	if cap(d.frames) < n {
		d.frames = make([][2]float64, n)
	}
	frames := d.frames[:n]

	got, _ := d.chain.volume.Stream(frames)
	if d.muted.Load() {
		clear(buf)
		return
	}
	d.out = pcm.FramesToBytes(d.out, frames[:got], 2)
	c := copy(buf, d.out)
	clear(buf[c:])
}

func (d *Device) SetPitch(pitch float64) {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()

	if d.chain != nil {
		d.chain.resampler.SetRatio(rateRatio(pitch, d.channels, 2))
	}
}

// StreamStarving mutes while the stream has nothing to play and reports
// true once the grace period ran out.
func (d *Device) StreamStarving(st audio.Status) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	starving := st.Starving || st.OpenState == audio.OpenError
	d.muted.Store(starving)
	return d.guard.Observe(!starving)
}

func (d *Device) StreamPausing(paused bool) {
	d.paused.Store(paused)
}

func (d *Device) StreamStopping() {
	d.mu.Lock()
	d.closeLocked()
	d.mu.Unlock()

	d.renderMu.Lock()
	d.chain = nil
	d.renderMu.Unlock()
}

func (d *Device) Finished() bool {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	return d.chain != nil && d.chain.source.Finished()
}

// SetOutput selects the hardware output, reopening it when playing.
func (d *Device) SetOutput(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.index
	d.index = index
	if d.dev == nil {
		return nil
	}

	d.closeLocked()
	if err := d.openLocked(); err != nil {
		log.Warn().Err(err).Int("device", index).Msg("Switching output failed, restoring previous")
		d.index = prev
		if rerr := d.openLocked(); rerr != nil {
			log.Error().Err(rerr).Msg("Failed to restore previous output")
		}
		return err
	}
	log.Info().Int("device", index).Msg("Output device changed")
	return nil
}

func (d *Device) Output() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index
}

func (d *Device) SetVolume(percent int) {
	d.mu.Lock()
	d.volume = percent
	d.mu.Unlock()

	d.renderMu.Lock()
	if d.chain != nil {
		d.chain.setVolume(percent)
	}
	d.renderMu.Unlock()
}
