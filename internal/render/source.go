// Package render holds the two render paths a stream session can drive:
// Speaker pulls frames through the beep speaker, Device plays them on a
// selectable hardware output.
package render

import (
	"math"
	"sync/atomic"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/pcm"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

const (
	ResampleQuality     = 4
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

// Redirector receives the decoded frames instead of the local output while
// it runs. *redirect.Redirector satisfies it.
type Redirector interface {
	Start(sampleRate int) error
	Stop()
	Running() bool
	Push(samples []float64, channels int)
	SetOutput(index int) error
}

// streamSource adapts an audio.Stream to a beep.Streamer. It never blocks:
// missing frames are rendered as silence, and the first empty read that
// carries an error or EOF marks the source finished.
type streamSource struct {
	stream   audio.Stream
	channels int
	redirect Redirector

	buf      []byte
	floats   []float64
	relay    []float64
	finished atomic.Bool
}

func newStreamSource(s audio.Stream, channels int, redirect Redirector) *streamSource {
	if channels < 1 {
		channels = 2
	}
	return &streamSource{stream: s, channels: channels, redirect: redirect}
}

func (src *streamSource) Stream(samples [][2]float64) (int, bool) {
	frameBytes := src.channels * audio.BytesPerSample
	need := len(samples) * frameBytes
	if cap(src.buf) < need {
		src.buf = make([]byte, need)
	}

	frames := 0
	if !src.finished.Load() {
		n, err := src.stream.ReadFrames(src.buf[:need])
		if n == 0 && err != nil {
			src.finished.Store(true)
		}
		frames = n / frameBytes
		src.floats = pcm.BytesToFloats(src.floats, src.buf[:frames*frameBytes])
	} else {
		src.floats = src.floats[:0]
	}

	for i := 0; i < frames; i++ {
		if src.channels == 1 {
			v := src.floats[i]
			samples[i] = [2]float64{v, v}
		} else {
			off := i * src.channels
			samples[i] = [2]float64{src.floats[off], src.floats[off+1]}
		}
	}
	for i := frames; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	if src.redirect != nil && src.redirect.Running() {
		// Relay the whole block so the redirector sees a stable buffer size.
		total := len(samples) * src.channels
		if cap(src.relay) < total {
			src.relay = make([]float64, total)
		}
		src.relay = src.relay[:total]
		n := copy(src.relay, src.floats)
		clear(src.relay[n:])
		src.redirect.Push(src.relay, src.channels)

		for i := range samples {
			samples[i] = [2]float64{}
		}
	}

	return len(samples), true
}

func (src *streamSource) Err() error {
	return nil
}

// Finished reports that the stream ran dry for good.
func (src *streamSource) Finished() bool {
	return src.finished.Load()
}

// rateRatio converts a session pitch, which counts channels on both sides,
// into a pure resampling ratio. The render path maps channels itself.
func rateRatio(pitch float64, streamChannels, outputChannels int) float64 {
	if pitch <= 0 || streamChannels <= 0 || outputChannels <= 0 {
		return 1
	}
	return pitch * float64(outputChannels) / float64(streamChannels)
}

// chain is source → resampler → volume.
type chain struct {
	source    *streamSource
	resampler *beep.Resampler
	volume    *effects.Volume
}

func newChain(src *streamSource, ratio float64, volumePercent int) *chain {
	resampler := beep.ResampleRatio(ResampleQuality, ratio, src)
	return &chain{
		source:    src,
		resampler: resampler,
		volume: &effects.Volume{
			Streamer: resampler,
			Base:     2,
			Volume:   percentToExponent(float64(volumePercent)),
			Silent:   volumePercent == 0,
		},
	}
}

func (c *chain) setVolume(percent int) {
	c.volume.Volume = percentToExponent(float64(percent))
	c.volume.Silent = percent == 0
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}
