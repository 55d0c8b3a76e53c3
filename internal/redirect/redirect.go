// Package redirect plays the decoded stream on a secondary output device
// instead of the main render path.
package redirect

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/buffer"
	"github.com/glebovdev/audiostream/internal/pcm"
	"github.com/rs/zerolog/log"
)

// InitialCapacity is the starting size of each buffer slot.
const InitialCapacity = 64 * 1024

// Opener opens hardware outputs. *device.Backend satisfies it.
type Opener interface {
	OpenPlayback(index int, f audio.Format, fill audio.DataFunc) (audio.Device, error)
}

// Redirector hands frames from the render callback to a secondary output.
// Push runs on the render thread, the device drains on its own thread and
// the DoubleBuffer is the only thing they share.
type Redirector struct {
	opener    Opener
	autoStart bool
	buf       *buffer.DoubleBuffer

	mu         sync.Mutex
	index      int
	dev        audio.Device
	sampleRate int

	running  atomic.Bool
	changed  atomic.Bool
	channels atomic.Int32
	pushed   atomic.Int32

	// Render thread only.
	blockLen  int
	blockChan int
	scratch   []byte
}

// New creates a stopped redirector bound to output index. With autoStart a
// detected format change restarts the device on the next Tick.
func New(opener Opener, index int, autoStart bool) *Redirector {
	r := &Redirector{
		opener:    opener,
		autoStart: autoStart,
		buf:       buffer.NewDoubleBuffer(InitialCapacity),
		index:     index,
	}
	r.channels.Store(2)
	return r
}

// Start opens the output at sampleRate. Calling it while running restarts
// the device.
func (r *Redirector) Start(sampleRate int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(sampleRate)
}

func (r *Redirector) startLocked(sampleRate int) error {
	r.stopLocked()

	f := audio.Format{SampleRate: sampleRate, Channels: int(r.channels.Load())}
	dev, err := r.opener.OpenPlayback(r.index, f, r.fill)
	if err != nil {
		return fmt.Errorf("failed to open redirect output %d: %w", r.index, err)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		return fmt.Errorf("failed to start redirect output %d: %w", r.index, err)
	}

	r.dev = dev
	r.sampleRate = sampleRate
	r.running.Store(true)
	log.Info().Int("device", r.index).Msgf("Redirecting output: %dHz, %d channels", sampleRate, f.Channels)
	return nil
}

// Stop closes the output and drops whatever is still buffered.
func (r *Redirector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Redirector) stopLocked() {
	r.running.Store(false)
	if r.dev != nil {
		if err := r.dev.Close(); err != nil {
			log.Warn().Err(err).Msg("Redirect output close error")
		}
		r.dev = nil
	}
	r.buf.Clear()
}

func (r *Redirector) Running() bool {
	return r.running.Load()
}

// Push encodes one render block to PCM16 and queues it. A change in block
// size or channel count is flagged once for the control side.
func (r *Redirector) Push(samples []float64, channels int) {
	if len(samples) != r.blockLen || channels != r.blockChan {
		first := r.blockLen == 0
		r.blockLen = len(samples)
		r.blockChan = channels
		r.pushed.Store(int32(channels))

		if !first || int32(channels) != r.channels.Load() {
			if !r.changed.Swap(true) {
				log.Debug().Int("samples", len(samples)).Int("channels", channels).Msg("Redirect block format changed")
			}
		}
	}

	if !r.running.Load() {
		return
	}
	r.scratch = pcm.FloatsToBytes(r.scratch, samples)
	r.buf.Append(r.scratch)
}

// fill runs on the device thread. Short data plays as silence.
func (r *Redirector) fill(out []byte) {
	if !r.buf.DrainInto(out) {
		clear(out)
	}
}

// Tick restarts the output when the producer reported a new block format or
// the stream moved to a different sample rate.
func (r *Redirector) Tick(sampleRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Load() {
		return
	}
	formatChanged := r.changed.Swap(false)
	rateChanged := sampleRate > 0 && sampleRate != r.sampleRate
	if !formatChanged && !rateChanged {
		return
	}
	if !r.autoStart {
		log.Warn().Msg("Redirect format changed, auto start disabled")
		return
	}

	if sampleRate <= 0 {
		sampleRate = r.sampleRate
	}
	if ch := r.pushed.Load(); ch > 0 {
		r.channels.Store(ch)
	}
	if err := r.startLocked(sampleRate); err != nil {
		log.Error().Err(err).Msg("Redirect restart failed")
	}
}

// SetOutput moves the redirect to another output, restarting it when
// running.
func (r *Redirector) SetOutput(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.index
	r.index = index
	if !r.running.Load() {
		return nil
	}
	if err := r.startLocked(r.sampleRate); err != nil {
		r.index = prev
		if rerr := r.startLocked(r.sampleRate); rerr != nil {
			log.Error().Err(rerr).Msg("Failed to restore redirect output")
		}
		return err
	}
	return nil
}

func (r *Redirector) Output() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Buffered reports how many encoded bytes are waiting for the device.
func (r *Redirector) Buffered() int {
	return r.buf.Len()
}

// Close stops the output and releases the buffers.
func (r *Redirector) Close() error {
	r.Stop()
	r.buf.Release()
	return nil
}
