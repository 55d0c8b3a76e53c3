package decoder

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/rs/zerolog/log"
)

const (
	maxMetaLen = 4080

	TagStreamTitle = "StreamTitle"
)

// headerTags are the shoutcast/icecast response headers surfaced as tags.
var headerTags = []string{"icy-name", "icy-genre", "icy-description", "icy-url", "icy-br"}

// icyReader strips in-band shoutcast metadata from the audio bytes. Every
// metaint audio bytes the server inserts one length byte (×16) followed by
// that many bytes of metadata.
type icyReader struct {
	r         *bufio.Reader
	metaint   int
	remaining int
	lastTitle string
	onTitle   func(title string)
}

func newICYReader(r io.Reader, metaint int, onTitle func(string)) *icyReader {
	return &icyReader{
		r:         bufio.NewReaderSize(r, NetworkReadSize),
		metaint:   metaint,
		remaining: metaint,
		onTitle:   onTitle,
	}
}

func (ir *icyReader) Read(p []byte) (int, error) {
	if ir.metaint <= 0 {
		return ir.r.Read(p)
	}

	if ir.remaining == 0 {
		if err := ir.readMeta(); err != nil {
			return 0, err
		}
		ir.remaining = ir.metaint
	}

	if len(p) > ir.remaining {
		p = p[:ir.remaining]
	}
	n, err := ir.r.Read(p)
	ir.remaining -= n
	return n, err
}

func (ir *icyReader) readMeta() error {
	lenByte, err := ir.r.ReadByte()
	if err != nil {
		return err
	}

	metaLen := int(lenByte) * 16
	if metaLen == 0 {
		return nil
	}

	if metaLen > maxMetaLen {
		log.Warn().Int("metaLen", metaLen).Msg("ICY metadata too large, skipping")
		_, err := io.CopyN(io.Discard, ir.r, int64(metaLen))
		return err
	}

	meta := make([]byte, metaLen)
	if _, err := io.ReadFull(ir.r, meta); err != nil {
		return fmt.Errorf("metadata content error: %w", err)
	}

	if title, ok := parseStreamTitle(string(meta)); ok && title != ir.lastTitle {
		ir.lastTitle = title
		if ir.onTitle != nil {
			ir.onTitle(title)
		}
	}
	return nil
}

func parseStreamTitle(meta string) (string, bool) {
	const key = "StreamTitle='"

	start := strings.Index(meta, key)
	if start < 0 {
		return "", false
	}
	start += len(key)

	end := strings.Index(meta[start:], "';")
	if end < 0 {
		return "", false
	}
	return meta[start : start+end], true
}

func parseMetaint(h http.Header) int {
	v, err := strconv.Atoi(strings.TrimSpace(h.Get("icy-metaint")))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// advertisedRate returns the sample rate announced by the server, or 0.
func advertisedRate(h http.Header) int {
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get("icy-sr"))); err == nil && v > 0 {
		return v
	}

	for _, field := range strings.Split(h.Get("ice-audio-info"), ";") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		k = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(k)), "ice-")
		if k != "samplerate" {
			continue
		}
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			return rate
		}
	}
	return 0
}

func headerTagsFrom(h http.Header) []audio.Tag {
	var tags []audio.Tag
	for _, name := range headerTags {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			tags = append(tags, audio.Tag{Name: name, IsString: true, Payload: []byte(v)})
		}
	}
	return tags
}
