package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "audiostream"
	AppTagline      = "Terminal network audio player"
	AppProjectURL   = "https://github.com/glebovdev/audiostream"
	AppProjectShort = "github.com/glebovdev/audiostream"

	ConfigDir      = ".config/audiostream"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100

	DefaultOutputSampleRate   = 48000
	DefaultRawSampleRate      = 44100
	DefaultRawChannels        = 2
	DefaultPlaylistCacheHours = 24

	RenderPull   = "pull"
	RenderDirect = "direct"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/audiostream/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	MutedVolume      string `yaml:"muted_volume"`
	HeaderBackground string `yaml:"header_background"`
	HelpBackground   string `yaml:"help_background"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
	Error            string `yaml:"error"`
}

// RawConfig describes headerless PCM input. Only used with stream_type raw.
type RawConfig struct {
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	SampleFormat string `yaml:"sample_format"`
}

// RedirectConfig sends decoded audio to a second output device.
type RedirectConfig struct {
	Enabled   bool `yaml:"enabled"`
	DeviceID  int  `yaml:"device_id"`
	AutoStart bool `yaml:"auto_start"`
}

// RecordConfig selects and shapes the capture device.
type RecordConfig struct {
	Enabled       bool `yaml:"enabled"`
	DeviceID      int  `yaml:"device_id"`
	SampleRate    int  `yaml:"sample_rate"`
	Channels      int  `yaml:"channels"`
	RecordOnStart bool `yaml:"record_on_start"`
	// Monitor plays the recording through the speaker (pull mode only).
	Monitor bool `yaml:"monitor"`
}

type Config struct {
	URL                string         `yaml:"url"`
	StreamType         string         `yaml:"stream_type"`
	Raw                RawConfig      `yaml:"raw"`
	PlayOnStart        bool           `yaml:"play_on_start"`
	OutputDeviceID     int            `yaml:"output_device_id"`
	RenderMode         string         `yaml:"render_mode"`
	Volume             int            `yaml:"volume"`
	OutputSampleRate   int            `yaml:"output_sample_rate"`
	LogLevel           string         `yaml:"log_level"`
	Redirect           RedirectConfig `yaml:"redirect"`
	Record             RecordConfig   `yaml:"record"`
	PlaylistCacheHours int            `yaml:"playlist_cache_hours"`
	Theme              Theme          `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	return cfg, nil
}

// Normalize replaces out-of-range values with defaults.
func (c *Config) Normalize() {
	c.Volume = ClampVolume(c.Volume)

	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.Raw.SampleRate <= 0 {
		c.Raw.SampleRate = DefaultRawSampleRate
	}
	if c.Raw.Channels <= 0 {
		c.Raw.Channels = DefaultRawChannels
	}
	if c.Record.SampleRate <= 0 {
		c.Record.SampleRate = c.OutputSampleRate
	}
	if c.Record.Channels <= 0 {
		c.Record.Channels = 2
	}
	if c.PlaylistCacheHours <= 0 {
		c.PlaylistCacheHours = DefaultPlaylistCacheHours
	}

	switch strings.ToLower(c.RenderMode) {
	case RenderDirect:
		c.RenderMode = RenderDirect
	default:
		c.RenderMode = RenderPull
	}

	if _, ok := audio.ParseStreamType(c.StreamType); !ok {
		c.StreamType = audio.StreamAuto.String()
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = ""
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		StreamType: audio.StreamAuto.String(),
		Raw: RawConfig{
			SampleRate:   DefaultRawSampleRate,
			Channels:     DefaultRawChannels,
			SampleFormat: audio.PCM16.String(),
		},
		OutputDeviceID:     -1,
		RenderMode:         RenderPull,
		Volume:             DefaultVolume,
		OutputSampleRate:   DefaultOutputSampleRate,
		LogLevel:           "error",
		Redirect:           RedirectConfig{DeviceID: -1, AutoStart: true},
		Record:             RecordConfig{DeviceID: -1, SampleRate: DefaultOutputSampleRate, Channels: 2},
		PlaylistCacheHours: DefaultPlaylistCacheHours,
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff9d65",
			MutedVolume:      "#fe0702",
			HeaderBackground: "#473533",
			HelpBackground:   "#322f45",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff9d65",
			Error:            "#fe0702",
		},
	}
}

// StreamTypeHint returns the configured decoder hint.
func (c *Config) StreamTypeHint() audio.StreamType {
	t, _ := audio.ParseStreamType(c.StreamType)
	return t
}

// RawFormat returns the raw PCM layout. Unknown sample formats read as PCM16.
func (c *Config) RawFormat() audio.RawFormat {
	f, _ := audio.ParseSampleFormat(c.Raw.SampleFormat)
	return audio.RawFormat{
		SampleRate: c.Raw.SampleRate,
		Channels:   c.Raw.Channels,
		Format:     f,
	}
}

// PlaylistCacheExpiry converts PlaylistCacheHours to a duration.
func (c *Config) PlaylistCacheExpiry() time.Duration {
	return time.Duration(c.PlaylistCacheHours) * time.Hour
}

// ZerologLevel maps LogLevel onto zerolog. Unknown values mean error.
func (c *Config) ZerologLevel() zerolog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
