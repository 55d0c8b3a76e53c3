package playlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout = 15 * time.Second
	filePrefix     = "file://"
)

// Store persists resolved entries. *cache.Cache satisfies it.
type Store interface {
	Get(url string) (string, bool)
	Save(url, resolved string) error
}

// Resolver turns a playlist location into the first media URL it lists.
type Resolver struct {
	client *resty.Client
	store  Store
}

// NewResolver creates a resolver. store may be nil.
func NewResolver(userAgent string, store Store) *Resolver {
	return &Resolver{
		client: resty.New().
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", userAgent),
		store: store,
	}
}

// Resolve fetches and parses the playlist at location. Locations that are
// neither http(s) nor file:// are read as local paths. A file:// result is
// returned as a plain path.
func (r *Resolver) Resolve(ctx context.Context, location string) (Entry, error) {
	t, ok := DetectType(location)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s is not a playlist", audio.ErrPlaylist, location)
	}

	text, err := r.fetch(ctx, location)
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		if cached, ok := r.cached(location); ok {
			log.Warn().Err(err).Str("playlist", location).Msg("Playlist unavailable, using cached entry")
			return Entry{Type: t, ResolvedURL: cached}, nil
		}
		return Entry{}, fmt.Errorf("%w: can't read playlist from %s: %w", audio.ErrPlaylist, location, err)
	}

	entry, err := ParseEntry(text, t)
	if err != nil {
		return Entry{}, fmt.Errorf("can't parse playlist %s: %w", location, err)
	}

	if len(entry.ResolvedURL) >= len(filePrefix) && strings.EqualFold(entry.ResolvedURL[:len(filePrefix)], filePrefix) {
		entry.ResolvedURL = entry.ResolvedURL[len(filePrefix):]
	}

	log.Info().Str("playlist", location).Str("type", t.String()).Msgf("URL from playlist: %s", entry.ResolvedURL)

	if r.store != nil {
		if err := r.store.Save(location, entry.ResolvedURL); err != nil {
			log.Debug().Err(err).Msg("Failed to cache playlist entry")
		}
	}

	return entry, nil
}

func (r *Resolver) cached(location string) (string, bool) {
	if r.store == nil {
		return "", false
	}
	return r.store.Get(location)
}

func (r *Resolver) fetch(ctx context.Context, location string) (string, error) {
	lower := strings.ToLower(location)

	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		resp, err := r.client.R().SetContext(ctx).Get(location)
		if err != nil {
			return "", fmt.Errorf("failed to fetch playlist: %w", err)
		}
		if !resp.IsSuccess() {
			return "", &audio.StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
		}
		return resp.String(), nil

	case strings.HasPrefix(lower, filePrefix):
		location = location[len(filePrefix):]
	}

	data, err := os.ReadFile(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("playlist file not found: %w", err)
		}
		return "", err
	}
	return string(data), nil
}
