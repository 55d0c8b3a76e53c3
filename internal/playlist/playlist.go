// Package playlist extracts the first playable URL from M3U, M3U8 and PLS
// playlists, local or remote.
package playlist

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/glebovdev/audiostream/internal/audio"
)

type Type int

const (
	M3U Type = iota
	M3U8
	PLS
)

func (t Type) String() string {
	switch t {
	case M3U:
		return "M3U"
	case M3U8:
		return "M3U8"
	case PLS:
		return "PLS"
	default:
		return "UNKNOWN"
	}
}

// Entry is the outcome of a resolution. Title is only set by PLS playlists
// that carry a Title line.
type Entry struct {
	Type        Type
	ResolvedURL string
	Title       string
}

// DetectType reports whether u points at a playlist, judging by the suffix
// of its path. Query strings and fragments are ignored.
func DetectType(u string) (Type, bool) {
	p := u
	if parsed, err := url.Parse(u); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	p = strings.ToLower(p)

	switch {
	case strings.HasSuffix(p, ".pls"):
		return PLS, true
	case strings.HasSuffix(p, ".m3u8"):
		return M3U8, true
	case strings.HasSuffix(p, ".m3u"):
		return M3U, true
	}
	return 0, false
}

// Parse returns the first media URL in text.
func Parse(text string, t Type) (string, error) {
	e, err := ParseEntry(text, t)
	if err != nil {
		return "", err
	}
	return e.ResolvedURL, nil
}

// ParseEntry is Parse keeping the PLS title.
func ParseEntry(text string, t Type) (Entry, error) {
	var e Entry
	var err error

	switch t {
	case M3U, M3U8:
		e.ResolvedURL = firstM3U(text)
	case PLS:
		e.ResolvedURL, e.Title = firstPLS(text)
	default:
		return Entry{}, fmt.Errorf("%w: unknown playlist type %d", audio.ErrPlaylist, t)
	}
	e.Type = t

	if e.ResolvedURL == "" {
		err = fmt.Errorf("%w: no playable entry in %s playlist", audio.ErrPlaylist, t)
	}
	return e, err
}

func firstM3U(text string) string {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && line[0] != '#' {
			return line
		}
	}
	return ""
}

// firstPLS returns the value of the first FileN= line and the Title seen
// before or after it, whichever comes first.
func firstPLS(text string) (file, title string) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) <= 4 {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		switch {
		case strings.EqualFold(line[:4], "FILE") && file == "":
			if found {
				file = strings.TrimSpace(value)
			} else {
				file = strings.TrimSpace(line)
			}
		case found && title == "" && len(key) > 5 && strings.EqualFold(key[:5], "TITLE"):
			title = strings.TrimSpace(value)
		}

		if file != "" && title != "" {
			break
		}
	}
	return file, title
}
