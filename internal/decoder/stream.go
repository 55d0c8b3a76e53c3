package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// stream decodes one source into a bounded PCM16 queue on its own goroutine.
// The control schedule polls it; the render path drains it with ReadFrames.
type stream struct {
	location string
	hint     audio.StreamType
	raw      audio.RawFormat
	client   *resty.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	bodyMu    sync.Mutex
	body      io.Closer

	busy  atomic.Bool
	space chan struct{}

	mu       sync.Mutex
	state    audio.OpenState
	err      error
	queue    bytes.Buffer
	capacity int
	ended    bool
	format   audio.Format
	tags     []audio.Tag
}

func newStream(client *resty.Client, location string, hint audio.StreamType, raw audio.RawFormat, capacity int) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		location: location,
		hint:     hint,
		raw:      raw,
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		space:    make(chan struct{}, 1),
		state:    audio.OpenLoading,
		capacity: capacity,
	}
}

func (s *stream) start() {
	s.wg.Add(1)
	go s.run()
}

func (s *stream) run() {
	defer s.wg.Done()
	defer log.Debug().Str("url", s.location).Msg("Stream decoder stopped")

	s.setState(audio.OpenConnecting)

	src, err := connect(s.ctx, s.client, s.location)
	if err != nil {
		if s.ctx.Err() == nil {
			s.fail(err)
		}
		return
	}

	s.bodyMu.Lock()
	s.body = src.body
	s.bodyMu.Unlock()
	defer src.body.Close()

	if s.ctx.Err() != nil {
		return
	}

	var r io.Reader = &busyReader{reader: src.body, busy: &s.busy}
	if !src.local {
		r = &contextReader{reader: r, ctx: s.ctx, timeout: ReadTimeout}
		s.pushTags(headerTagsFrom(src.header)...)
		if metaint := parseMetaint(src.header); metaint > 0 {
			log.Debug().Msgf("ICY metadata interval: %d bytes", metaint)
			r = newICYReader(r, metaint, func(title string) {
				s.pushTags(audio.Tag{Name: TagStreamTitle, IsString: true, Payload: []byte(title)})
			})
		}
	}

	kind := selectDecoder(s.hint, src)
	log.Debug().Str("decoder", kind.String()).Msg("Decoding stream...")

	if kind == audio.StreamRaw {
		err = s.pumpRaw(r)
	} else {
		err = s.pumpDecoded(r, kind, src)
	}

	if err != nil && s.ctx.Err() == nil {
		s.fail(err)
		return
	}

	s.mu.Lock()
	s.ended = true
	if s.state != audio.OpenError {
		s.state = audio.OpenReady
	}
	s.mu.Unlock()
}

func (s *stream) pumpDecoded(r io.Reader, kind audio.StreamType, src *source) error {
	streamer, format, err := decode(kind, io.NopCloser(r))
	if err != nil {
		return fmt.Errorf("%w: failed to decode %s stream: %w", audio.ErrOpen, kind, err)
	}
	defer streamer.Close()

	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		channels = 2
	}
	rate := int(format.SampleRate)

	s.mu.Lock()
	s.format = audio.Format{SampleRate: rate, Channels: channels}
	s.state = audio.OpenBuffering
	s.mu.Unlock()

	if advertised := advertisedRate(src.header); advertised > 0 && advertised != rate {
		log.Debug().Int("advertised", advertised).Int("decoded", rate).Msg("Sample rate differs from advertised")
		s.pushTags(audio.NewSampleRateTag(float32(rate)))
	}

	samples := make([][2]float64, DecodeFrames)
	var chunk []byte
	for {
		n, ok := streamer.Stream(samples)
		if n > 0 {
			chunk = framesToPCM(chunk, samples[:n], channels)
			if !s.push(chunk) {
				return nil
			}
		}
		if !ok {
			return streamer.Err()
		}
	}
}

func (s *stream) pumpRaw(r io.Reader) error {
	width := s.raw.Format.BytesPerSample()
	channels := s.raw.Channels
	if channels < 1 {
		channels = 2
	}
	rate := s.raw.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	frame := width * channels

	s.mu.Lock()
	s.format = audio.Format{SampleRate: rate, Channels: channels}
	s.state = audio.OpenBuffering
	s.mu.Unlock()

	buf := make([]byte, NetworkReadSize-(NetworkReadSize%frame))
	var carry int
	var out []byte
	for {
		n, err := r.Read(buf[carry:])
		n += carry

		whole := n - n%frame
		if whole > 0 {
			out = convertRaw(out, buf[:whole], s.raw.Format)
			if !s.push(out) {
				return nil
			}
		}
		carry = copy(buf, buf[whole:n])

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// push appends PCM to the queue, waiting for room. It returns false once
// the stream is closed.
func (s *stream) push(p []byte) bool {
	for {
		s.mu.Lock()
		if s.queue.Len()+len(p) <= s.capacity || s.queue.Len() == 0 {
			s.queue.Write(p)
			if s.state == audio.OpenBuffering && s.queue.Len()*100 >= s.capacity*PrebufferPercent {
				s.state = audio.OpenReady
			}
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()

		select {
		case <-s.space:
		case <-s.ctx.Done():
			return false
		}
	}
}

func (s *stream) pushTags(tags ...audio.Tag) {
	if len(tags) == 0 {
		return
	}
	s.mu.Lock()
	s.tags = append(s.tags, tags...)
	s.mu.Unlock()
}

func (s *stream) setState(st audio.OpenState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *stream) fail(err error) {
	log.Error().Err(err).Str("url", s.location).Msg("Stream failed")
	s.mu.Lock()
	s.state = audio.OpenError
	s.err = err
	s.mu.Unlock()
}

func (s *stream) Poll() (audio.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := audio.Status{
		OpenState:   s.state,
		FillPercent: s.queue.Len() * 100 / s.capacity,
		Busy:        s.busy.Load(),
	}
	if st.FillPercent > 100 {
		st.FillPercent = 100
	}
	if s.state == audio.OpenReady && !s.ended && s.queue.Len() < StarvingBytes {
		st.Starving = true
	}
	if s.state == audio.OpenError {
		return st, s.err
	}
	return st, nil
}

// ReadFrames copies whole frames out of the queue without blocking.
func (s *stream) ReadFrames(p []byte) (int, error) {
	s.mu.Lock()
	frame := s.format.BytesPerFrame()
	if frame == 0 {
		err := s.err
		s.mu.Unlock()
		return 0, err
	}

	want := len(p) - len(p)%frame
	n, _ := s.queue.Read(p[:want])
	empty := n == 0
	ended := s.ended
	err := s.err
	s.mu.Unlock()

	if n > 0 {
		select {
		case s.space <- struct{}{}:
		default:
		}
	}

	if empty {
		if err != nil {
			return 0, err
		}
		if ended {
			return 0, io.EOF
		}
	}
	return n, nil
}

func (s *stream) NextTag() (audio.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tags) == 0 {
		return audio.Tag{}, false
	}
	t := s.tags[0]
	s.tags = s.tags[1:]
	return t, true
}

func (s *stream) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Close stops the decoder goroutine and waits for it. It is safe while the
// stream is still connecting.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.bodyMu.Lock()
		if s.body != nil {
			s.body.Close()
		}
		s.bodyMu.Unlock()

		s.wg.Wait()
	})
	return nil
}
