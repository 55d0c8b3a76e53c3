// Package audio holds the value types and capabilities shared by the
// decoder engine, the render path and the capture path.
package audio

import (
	"encoding/binary"
	"math"
	"strings"
)

// SampleRateChangeTag is emitted by a stream when the decoded sample rate
// differs from the one the source advertised. The payload is a
// little-endian float32.
const SampleRateChangeTag = "Sample Rate Change"

// BytesPerSample is the size of one PCM16 sample. Everything handed between
// the engine, the render path and the devices is signed 16-bit little-endian.
const BytesPerSample = 2

type StreamType int

const (
	StreamAuto StreamType = iota
	StreamMpeg
	StreamOggVorbis
	StreamWav
	StreamRaw
)

func (t StreamType) String() string {
	switch t {
	case StreamAuto:
		return "auto"
	case StreamMpeg:
		return "mpeg"
	case StreamOggVorbis:
		return "oggvorbis"
	case StreamWav:
		return "wav"
	case StreamRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseStreamType maps a config/flag value to a StreamType.
// Unknown values fall back to StreamAuto and ok=false.
func ParseStreamType(s string) (StreamType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StreamAuto, true
	case "mpeg", "mp3":
		return StreamMpeg, true
	case "oggvorbis", "ogg", "vorbis":
		return StreamOggVorbis, true
	case "wav":
		return StreamWav, true
	case "raw", "pcm":
		return StreamRaw, true
	default:
		return StreamAuto, false
	}
}

type SampleFormat int

const (
	PCM16 SampleFormat = iota
	PCM8
	PCM24
	PCM32
	PCMFloat
)

func (f SampleFormat) String() string {
	switch f {
	case PCM8:
		return "pcm8"
	case PCM16:
		return "pcm16"
	case PCM24:
		return "pcm24"
	case PCM32:
		return "pcm32"
	case PCMFloat:
		return "pcmfloat"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the width of one sample of this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case PCM8:
		return 1
	case PCM24:
		return 3
	case PCM32, PCMFloat:
		return 4
	default:
		return 2
	}
}

func ParseSampleFormat(s string) (SampleFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pcm16", "s16":
		return PCM16, true
	case "pcm8", "u8":
		return PCM8, true
	case "pcm24", "s24":
		return PCM24, true
	case "pcm32", "s32":
		return PCM32, true
	case "pcmfloat", "float", "f32":
		return PCMFloat, true
	default:
		return PCM16, false
	}
}

// RawFormat describes headerless PCM input. Data must be little endian.
type RawFormat struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// Format is the PCM16 layout a stream or device works with.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame is the size of one interleaved PCM16 frame.
func (f Format) BytesPerFrame() int {
	return f.Channels * BytesPerSample
}

type OpenState int

const (
	OpenLoading OpenState = iota
	OpenConnecting
	OpenBuffering
	OpenReady
	OpenError
)

func (s OpenState) String() string {
	switch s {
	case OpenLoading:
		return "LOADING"
	case OpenConnecting:
		return "CONNECTING"
	case OpenBuffering:
		return "BUFFERING"
	case OpenReady:
		return "READY"
	case OpenError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Status is what a stream reports when polled.
type Status struct {
	OpenState   OpenState
	FillPercent int
	Starving    bool
	Busy        bool
}

// Tag is a piece of metadata delivered in-stream.
type Tag struct {
	Name     string
	IsString bool
	Payload  []byte
}

func (t Tag) String() string {
	return t.Name + " = " + string(t.Payload)
}

// Float32 decodes a little-endian float32 payload, as carried by
// SampleRateChangeTag.
func (t Tag) Float32() (float32, bool) {
	if len(t.Payload) < 4 {
		return 0, false
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(t.Payload)), true
}

// NewSampleRateTag builds the tag announcing a new decoded sample rate.
func NewSampleRateTag(rate float32) Tag {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, math.Float32bits(rate))
	return Tag{Name: SampleRateChangeTag, Payload: payload}
}

// DeviceInfo describes a hardware endpoint.
type DeviceInfo struct {
	Index      int
	Name       string
	SampleRate int
	Channels   int
	IsDefault  bool
}

// Stream is one opened media source as seen by the control schedule.
// ReadFrames may be called from a realtime callback and never blocks.
type Stream interface {
	Poll() (Status, error)
	ReadFrames(p []byte) (int, error)
	NextTag() (Tag, bool)
	Format() Format
	Close() error
}

// DataFunc is a device callback. For playback it fills buf, for capture it
// receives buf. It runs on the device's realtime thread.
type DataFunc func(buf []byte)

// Device is an opened hardware endpoint.
type Device interface {
	Start() error
	Stop() error
	Close() error
}
