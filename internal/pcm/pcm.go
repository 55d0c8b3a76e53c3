// Package pcm converts between signed 16-bit little-endian PCM bytes and
// floating point samples, and normalizes raw input formats to PCM16.
package pcm

import (
	"encoding/binary"
	"math"
)

// BytesToFloats decodes PCM16 bytes into samples in [-1, 1). dst is reused
// when it has the right length. A trailing odd byte is ignored.
func BytesToFloats(dst []float64, src []byte) []float64 {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	for i := range n {
		dst[i] = float64(int16(binary.LittleEndian.Uint16(src[2*i:]))) / 32768.0
	}
	return dst
}

// FloatsToBytes encodes samples as PCM16 bytes, clamping to [-1, 1].
func FloatsToBytes(dst []byte, src []float64) []byte {
	n := len(src) * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	for i, f := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(FloatToInt16(f)))
	}
	return dst
}

// FloatToInt16 clamps and scales. 32767 keeps +1.0 from overflowing.
func FloatToInt16(f float64) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(f * 32767.0)
}

// FramesToBytes interleaves stereo frames keeping the first channels
// channels of each frame (1 or 2).
func FramesToBytes(dst []byte, frames [][2]float64, channels int) []byte {
	if channels < 1 {
		channels = 1
	} else if channels > 2 {
		channels = 2
	}

	n := len(frames) * channels * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	off := 0
	for _, fr := range frames {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(dst[off:], uint16(FloatToInt16(fr[ch])))
			off += 2
		}
	}
	return dst
}

// Convert8 turns unsigned 8-bit samples into PCM16.
func Convert8(dst, src []byte) []byte {
	dst = grow(dst, len(src)*2)
	for i, b := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16(int(b)-128)<<8))
	}
	return dst
}

// Convert24 keeps the upper 16 bits of packed 24-bit samples.
func Convert24(dst, src []byte) []byte {
	n := len(src) / 3
	dst = grow(dst, n*2)
	for i := range n {
		dst[2*i] = src[3*i+1]
		dst[2*i+1] = src[3*i+2]
	}
	return dst
}

// Convert32 keeps the upper 16 bits of 32-bit integer samples.
func Convert32(dst, src []byte) []byte {
	n := len(src) / 4
	dst = grow(dst, n*2)
	for i := range n {
		dst[2*i] = src[4*i+2]
		dst[2*i+1] = src[4*i+3]
	}
	return dst
}

// ConvertFloat turns little-endian float32 samples into PCM16.
func ConvertFloat(dst, src []byte) []byte {
	n := len(src) / 4
	dst = grow(dst, n*2)
	for i := range n {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(FloatToInt16(float64(f))))
	}
	return dst
}

// Scale applies a linear gain to PCM16 bytes in place.
func Scale(buf []byte, gain float64) {
	if gain == 1 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(buf[i:]))) / 32768.0
		binary.LittleEndian.PutUint16(buf[i:], uint16(FloatToInt16(s*gain)))
	}
}

func grow(dst []byte, n int) []byte {
	if cap(dst) < n {
		return make([]byte, n)
	}
	return dst[:n]
}
