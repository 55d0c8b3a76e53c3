package decoder

import (
	"fmt"
	"io"
	"strings"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/pcm"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// selectDecoder picks the decoder for a source. Local files are judged by
// extension first; remote streams honour an explicit hint, then the URL
// extension, then Content-Type. Shoutcast servers default to MPEG.
func selectDecoder(hint audio.StreamType, src *source) audio.StreamType {
	byExt := typeFromExtension(src.ext)

	if src.local && byExt != audio.StreamAuto {
		return byExt
	}
	if hint != audio.StreamAuto {
		return hint
	}
	if byExt != audio.StreamAuto {
		return byExt
	}
	if t := typeFromContentType(src.contentType); t != audio.StreamAuto {
		return t
	}
	return audio.StreamMpeg
}

func typeFromExtension(ext string) audio.StreamType {
	switch strings.ToLower(ext) {
	case ".mp3", ".mpga", ".mp2":
		return audio.StreamMpeg
	case ".ogg", ".oga":
		return audio.StreamOggVorbis
	case ".wav", ".wave":
		return audio.StreamWav
	case ".raw", ".pcm":
		return audio.StreamRaw
	}
	return audio.StreamAuto
}

func typeFromContentType(ct string) audio.StreamType {
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return audio.StreamMpeg
	case strings.Contains(ct, "ogg"), strings.Contains(ct, "vorbis"):
		return audio.StreamOggVorbis
	case strings.Contains(ct, "wav"):
		return audio.StreamWav
	}
	return audio.StreamAuto
}

func decode(kind audio.StreamType, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch kind {
	case audio.StreamMpeg:
		return mp3.Decode(rc)
	case audio.StreamOggVorbis:
		return vorbis.Decode(rc)
	case audio.StreamWav:
		return wav.Decode(rc)
	}
	return nil, beep.Format{}, fmt.Errorf("no decoder for %s", kind)
}

func framesToPCM(dst []byte, frames [][2]float64, channels int) []byte {
	return pcm.FramesToBytes(dst, frames, channels)
}

// convertRaw normalizes raw little-endian samples to PCM16.
func convertRaw(dst, src []byte, f audio.SampleFormat) []byte {
	switch f {
	case audio.PCM8:
		return pcm.Convert8(dst, src)
	case audio.PCM24:
		return pcm.Convert24(dst, src)
	case audio.PCM32:
		return pcm.Convert32(dst, src)
	case audio.PCMFloat:
		return pcm.ConvertFloat(dst, src)
	}
	if cap(dst) < len(src) {
		dst = make([]byte, len(src))
	}
	dst = dst[:len(src)]
	copy(dst, src)
	return dst
}
