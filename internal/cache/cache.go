// Package cache keeps resolved playlist entries on disk so a station whose
// playlist host is down can still be tuned.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long a resolved playlist stays valid.
	DefaultExpiry = 24 * time.Hour
	// PlaylistSubdir is the subdirectory for resolved playlists.
	PlaylistSubdir = "playlists"
	// AppName is used for the cache directory name.
	AppName = "audiostream"
)

// Cache maps playlist URLs to the media URL they resolved to.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance. A non-positive expiry selects
// DefaultExpiry.
func NewCache(expiry time.Duration) (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return NewCacheAt(cacheDir, expiry), nil
}

// NewCacheAt creates a Cache rooted at dir.
func NewCacheAt(dir string, expiry time.Duration) *Cache {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Cache{
		baseDir: dir,
		expiry:  expiry,
	}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	return filepath.Join(userCacheDir, AppName), nil
}

func (c *Cache) dir() string {
	return filepath.Join(c.baseDir, PlaylistSubdir)
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir(), hashURL(url)+".url")
}

func hashURL(url string) string {
	hash := md5.Sum([]byte(url))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached resolution of a playlist URL. ok is false when the
// entry is missing or expired; expired entries are removed.
func (c *Cache) Get(url string) (resolved string, ok bool) {
	entryPath := c.path(url)

	info, err := os.Stat(entryPath)
	if err != nil {
		return "", false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(entryPath); err != nil {
			log.Debug().Err(err).Str("file", entryPath).Msg("Failed to remove expired cache file")
		}
		return "", false
	}

	data, err := os.ReadFile(entryPath)
	if err != nil {
		log.Debug().Err(err).Str("file", entryPath).Msg("Failed to read cache file")
		return "", false
	}

	resolved = strings.TrimSpace(string(data))
	if resolved == "" {
		return "", false
	}
	return resolved, true
}

// Save stores the resolution of a playlist URL.
func (c *Cache) Save(url, resolved string) error {
	if err := os.MkdirAll(c.dir(), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	entryPath := c.path(url)
	tmp := entryPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(resolved+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tmp, entryPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save cache file: %w", err)
	}

	return nil
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	entries, err := os.ReadDir(c.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(c.dir(), entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
