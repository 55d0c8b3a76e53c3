package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/cache"
	"github.com/glebovdev/audiostream/internal/capture"
	"github.com/glebovdev/audiostream/internal/config"
	"github.com/glebovdev/audiostream/internal/decoder"
	"github.com/glebovdev/audiostream/internal/device"
	"github.com/glebovdev/audiostream/internal/playlist"
	"github.com/glebovdev/audiostream/internal/redirect"
	"github.com/glebovdev/audiostream/internal/render"
	"github.com/glebovdev/audiostream/internal/stream"
	"github.com/glebovdev/audiostream/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	versionFlag     = flag.Bool("version", false, "Show version information")
	debugFlag       = flag.Bool("debug", false, "Enable debug logging")
	urlFlag         = flag.String("url", "", "Stream or playlist URL to play (file paths work too)")
	typeFlag        = flag.String("type", "", "Stream type: auto, mpeg, oggvorbis, wav or raw")
	deviceFlag      = flag.Int("device", -1, "Output device index (-1 for the system default)")
	recordFlag      = flag.Bool("record", false, "Start recording from the input device")
	listDevicesFlag = flag.Bool("list-devices", false, "List audio devices and exit")
	noUIFlag        = flag.Bool("no-ui", false, "Play without the terminal interface")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppTagline)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppTagline)
		os.Exit(0)
	}

	cfg, cfgErr := config.Load()
	if err := applyFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	setupLogging(cfg, *debugFlag, !*noUIFlag)
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Failed to load config, using defaults")
	}

	backend, err := device.NewBackend(cfg.OutputSampleRate, 2)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	if *listDevicesFlag {
		if err := listDevices(os.Stdout, backend); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, backend, !*noUIFlag); err != nil {
		log.Error().Err(err).Msg("Exiting with error")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		backend.Close()
		os.Exit(1)
	}
	log.Info().Msgf("%s stopped", config.AppName)
}

// applyFlags lets command line options override the config file.
func applyFlags(cfg *config.Config) error {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *urlFlag != "" {
		cfg.URL = *urlFlag
		cfg.PlayOnStart = true
	}
	if set["type"] {
		t, ok := audio.ParseStreamType(*typeFlag)
		if !ok {
			return fmt.Errorf("unknown stream type %q", *typeFlag)
		}
		cfg.StreamType = t.String()
	}
	if set["device"] {
		cfg.OutputDeviceID = *deviceFlag
	}
	if *recordFlag {
		cfg.Record.Enabled = true
		cfg.Record.RecordOnStart = true
	}
	return nil
}

func setupLogging(cfg *config.Config, debug, withUI bool) {
	level := cfg.ZerologLevel()
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	switch {
	case !withUI:
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	case debug || level < zerolog.ErrorLevel:
		cacheDir, err := cache.GetCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
			cacheDir = os.TempDir()
		}
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
		}
		logPath := filepath.Join(cacheDir, "debug.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
			logFile = os.Stderr
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
		fmt.Printf("Debug log: %s\n", logPath)
	default:
		// Avoid TUI corruption by only logging errors to /dev/null
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
	}

	log.Info().Msgf("Starting %s v%s", config.AppName, config.AppVersion)
	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
}

func listDevices(w io.Writer, backend *device.Backend) error {
	outputs, err := backend.PlaybackDevices()
	if err != nil {
		return fmt.Errorf("failed to list outputs: %w", err)
	}
	inputs, err := backend.CaptureDevices()
	if err != nil {
		return fmt.Errorf("failed to list inputs: %w", err)
	}
	printDevices(w, "Outputs", outputs)
	printDevices(w, "Inputs", inputs)
	return nil
}

func printDevices(w io.Writer, title string, devices []audio.DeviceInfo) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range devices {
		suffix := ""
		if d.IsDefault {
			suffix = " (default)"
		}
		fmt.Fprintf(w, "  [%d] %s%s\n", d.Index, d.Name, suffix)
	}
}

func run(cfg *config.Config, backend *device.Backend, withUI bool) error {
	userAgent := fmt.Sprintf("%s/%s", config.AppName, config.AppVersion)

	engine := decoder.NewEngine(userAgent, backend)
	if cfg.OutputDeviceID >= 0 {
		if err := engine.SetOutputDevice(cfg.OutputDeviceID); err != nil {
			log.Warn().Err(err).Msg("Configured output device unavailable, using the default")
			cfg.OutputDeviceID = -1
		}
	}

	var store playlist.Store
	if c, err := cache.NewCache(cfg.PlaylistCacheExpiry()); err != nil {
		log.Warn().Err(err).Msg("Playlist cache disabled")
	} else {
		store = c
		go func() {
			if err := c.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean playlist cache")
			}
		}()
	}
	resolver := playlist.NewResolver(userAgent, store)

	var (
		renderer stream.Renderer
		volume   ui.VolumeSetter
		spk      *render.Speaker
		redir    *redirect.Redirector
	)
	switch cfg.RenderMode {
	case config.RenderDirect:
		dev := render.NewDevice(backend, cfg.OutputDeviceID, cfg.OutputSampleRate)
		renderer, volume = dev, dev
	default:
		var r render.Redirector
		if cfg.Redirect.Enabled {
			redir = redirect.New(backend, cfg.Redirect.DeviceID, cfg.Redirect.AutoStart)
			r = redir
		}
		spk = render.NewSpeaker(render.DefaultSink(), cfg.OutputSampleRate, r)
		renderer, volume = spk, spk
	}
	volume.SetVolume(cfg.Volume)

	listeners := stream.Listeners{logListener{}}
	session, err := stream.NewSession(engine, renderer, resolver, stream.Options{
		URL:         cfg.URL,
		Type:        cfg.StreamTypeHint(),
		Raw:         cfg.RawFormat(),
		PlayOnStart: cfg.PlayOnStart,
	}, &listeners)
	if err != nil {
		return err
	}

	var (
		recorder       *capture.Session
		recordListener = capture.Listeners{logListener{}}
	)
	if cfg.Record.Enabled {
		recorder = capture.NewSession(backend, capture.Config{
			DeviceIndex: cfg.Record.DeviceID,
			SampleRate:  cfg.Record.SampleRate,
			Channels:    cfg.Record.Channels,
			Output:      renderer.OutputFormat(),
		}, &recordListener)
		if cfg.Record.Monitor && spk != nil {
			recordListener = append(recordListener, &monitorListener{speaker: spk, recorder: recorder})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, ctx := errgroup.WithContext(ctx)

	var (
		app     *ui.UI
		console *consoleListener
	)
	if withUI {
		var rec ui.Recorder
		if recorder != nil {
			rec = recorder
		}
		app = ui.NewUI(session, rec, volume, cfg)
		listeners = append(listeners, app)
		recordListener = append(recordListener, app)
	} else {
		console = &consoleListener{out: os.Stdout, done: cancel}
		listeners = append(listeners, console)
	}

	g.Go(func() error {
		return session.Run(ctx, stream.DefaultInterval)
	})
	if recorder != nil {
		g.Go(func() error {
			return recorder.Run(ctx, capture.DefaultInterval)
		})
	}
	if redir != nil {
		g.Go(func() error {
			return tickRedirect(ctx, redir, session)
		})
	}

	g.Go(func() error {
		select {
		case <-sigChan:
			log.Info().Msg("Received shutdown signal, cleaning up...")
			if app != nil {
				app.Shutdown()
			}
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if withUI {
		if err := session.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start playback")
		}
	} else if err := session.Play(); err != nil {
		console.fail(err)
	}
	if recorder != nil && cfg.Record.RecordOnStart {
		if err := recorder.Record(); err != nil {
			log.Error().Err(err).Msg("Failed to start recording")
		}
	}

	if app != nil {
		g.Go(func() error {
			defer cancel()
			return app.Run()
		})
	}

	runErr := g.Wait()

	if err := session.Close(); err != nil {
		if errors.Is(err, audio.ErrUnstableShutdown) {
			log.Warn().Err(err).Msg("Stream left running after an unstable shutdown")
		} else {
			log.Error().Err(err).Msg("Failed to close session")
		}
	}
	if recorder != nil {
		recorder.Close()
	}
	if redir != nil {
		redir.Close()
	}
	if spk != nil {
		spk.Monitor(nil)
	}
	if runErr == nil && console != nil {
		runErr = console.Err()
	}
	return runErr
}

// tickRedirect keeps the redirector's device format in step with the
// stream.
func tickRedirect(ctx context.Context, r *redirect.Redirector, s *stream.Session) error {
	ticker := time.NewTicker(stream.DefaultInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if rate := int(s.Snapshot().SampleRate); rate > 0 {
				r.Tick(rate)
			}
		}
	}
}
