package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikeyg42/sentinel/internal/api"
	"github.com/mikeyg42/sentinel/internal/archive"
	"github.com/mikeyg42/sentinel/internal/capture"
	"github.com/mikeyg42/sentinel/internal/catalog"
	"github.com/mikeyg42/sentinel/internal/config"
	"github.com/mikeyg42/sentinel/internal/detect"
	"github.com/mikeyg42/sentinel/internal/notify"
	"github.com/mikeyg42/sentinel/internal/session"
	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// Application holds every component so cleanup can run in one place, in
// reverse construction order.
type Application struct {
	store      *config.Store
	camera     *capture.Camera
	microphone capture.AudioSource
	controller *watcher.Controller
	server     *api.Server
	hub        *api.Hub
	preview    *api.Preview
	catalogDB  catalog.Store
	recorder   *catalog.Recorder
	archiver   *archive.Listener
	alerts     *notify.Listener

	log watchlog.Logger
}

func main() {
	var (
		configPath  = flag.String("config", "sentinel.json", "path to the configuration file")
		setupEmail  = flag.Bool("setup-email", false, "run the interactive Gmail authorization flow and exit")
		listDevices = flag.Bool("list-devices", false, "list cameras and microphones and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := watchlog.NewZap(cfg.Service.LogLevel, cfg.Service.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	watchlog.ReplaceGlobal(logger)
	defer watchlog.Sync(logger)

	store := config.NewStore(*configPath, cfg)

	if *listDevices {
		if err := printDevices(cfg); err != nil {
			logger.Error("device listing failed", watchlog.Error(err))
			os.Exit(1)
		}
		return
	}

	if *setupEmail {
		if err := runEmailSetup(store); err != nil {
			logger.Error("email setup failed", watchlog.Error(err))
			os.Exit(1)
		}
		logger.Info("email setup complete")
		return
	}

	app := &Application{store: store, log: logger}
	defer app.Cleanup()

	if err := app.Initialize(); err != nil {
		logger.Error("initialization failed", watchlog.Error(err))
		app.Cleanup()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("sentinel running",
		watchlog.String("config", store.Path()),
		watchlog.Bool("monitoring", app.controller.Monitoring()))

	if err := app.controller.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("controller stopped", watchlog.Error(err))
	}
}

func (app *Application) Initialize() error {
	cfg := app.store.Get()

	if err := os.MkdirAll(cfg.Output.Directory, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// Camera is mandatory; without frames there is nothing to watch.
	camera, err := capture.OpenCamera(cfg.Capture.CameraIndex, capture.ParseResolution(cfg.Capture.Resolution), cfg.Capture.FPS)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", cfg.Capture.CameraIndex, err)
	}
	app.camera = camera

	// A missing microphone degrades to video-only operation.
	app.microphone = openMicrophone(cfg, app.log)

	motion := detect.NewMotionDetector(detect.ParseMode(cfg.Detection.Mode))
	voice := detect.NewVoiceDetector(cfg.Detection.VoiceThreshold)

	width, height := camera.Dimensions()
	newSession := func(now time.Time) (watcher.Session, error) {
		out := app.store.Get().Output
		return session.New(out.Directory, now, session.Options{
			Width:       width,
			Height:      height,
			WriterFPS:   float64(out.WriterFPS),
			VideoPrefix: out.VideoPrefix,
			AudioPrefix: out.AudioPrefix,
			SampleRate:  app.store.Get().Audio.SampleRate,
		})
	}

	controller, err := watcher.New(watcher.Options{
		Frames:     camera,
		Audio:      app.microphone,
		Motion:     motion,
		Voice:      voice,
		Settings:   app.settingsSnapshot,
		NewSession: newSession,
		OpenCamera: func(index int, res capture.Resolution) (capture.FrameSource, error) {
			return capture.OpenCamera(index, res, app.store.Get().Capture.FPS)
		},
		OpenMicrophone: func(index int) (capture.AudioSource, error) {
			c := app.store.Get()
			c.Audio.DeviceIndex = index
			if src := openMicrophone(c, app.log); src != nil {
				return src, nil
			}
			return nil, fmt.Errorf("open microphone %d", index)
		},
		TickInterval:  time.Duration(cfg.Detection.TickMillis) * time.Millisecond,
		VoiceInterval: time.Duration(cfg.Detection.VoiceCheckMillis) * time.Millisecond,
		PreRollFrames: cfg.Capture.PreRollFrames,
		MinFreeBytes:  cfg.Output.MinFreeBytes,
		OutputDir:     cfg.Output.Directory,
		Monitoring:    cfg.Detection.MonitorOnStart,
	})
	if err != nil {
		return err
	}
	app.controller = controller

	if err := app.wireListeners(cfg); err != nil {
		return err
	}

	if cfg.API.Enabled {
		app.startAPI(cfg)
	}
	return nil
}

// settingsSnapshot maps the current configuration to the per-tick settings.
func (app *Application) settingsSnapshot() watcher.Settings {
	cfg := app.store.Get()
	return watcher.Settings{
		Sensitivity:     cfg.Detection.Sensitivity,
		Mode:            detect.ParseMode(cfg.Detection.Mode),
		VoiceEnabled:    cfg.Detection.VoiceEnabled,
		Linger:          time.Duration(cfg.Detection.LingerSeconds) * time.Second,
		CameraIndex:     cfg.Capture.CameraIndex,
		MicrophoneIndex: cfg.Audio.DeviceIndex,
		Resolution:      capture.ParseResolution(cfg.Capture.Resolution),
	}
}

func (app *Application) wireListeners(cfg config.Config) error {
	if cfg.Catalog.Enabled {
		db, err := catalog.NewPostgres(cfg.Catalog.DSN, cfg.Catalog.MaxOpenConns, cfg.Catalog.MaxIdleConns)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		app.catalogDB = db
		app.recorder = catalog.NewRecorder(db)
		app.controller.AddListener(app.recorder)
	}

	if cfg.Archive.Enabled {
		uploader, err := archive.NewUploader(cfg.Archive)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		app.archiver = archive.NewListener(uploader)
		app.controller.AddListener(app.archiver)
	}

	if cfg.Notify.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		notifier, err := notify.NewGmailNotifier(ctx, cfg.Notify.Gmail, cfg.Service.Name)
		cancel()
		if err != nil {
			// Alerts are optional; the daemon still records without them.
			app.log.Warn("email alerts disabled", watchlog.Error(err))
		} else {
			app.alerts = notify.NewListener(notifier, time.Duration(cfg.Notify.CooldownSeconds)*time.Second)
			app.controller.AddListener(app.alerts)
		}
	}

	return nil
}

func (app *Application) startAPI(cfg config.Config) {
	app.preview = api.NewPreview()
	app.controller.SetPreview(app.preview.Update)

	app.hub = api.NewHub(app.controller.Status, cfg.API.AllowedOrigins)
	app.controller.AddListener(app.hub)

	app.server = api.NewServer(api.Options{
		Addr:           cfg.API.Addr,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Controller:     app.controller,
		Config:         app.store,
		Recordings:     app.listRecordings,
		Devices:        app.listDevices,
		Preview:        app.preview,
		Hub:            app.hub,
	})
	app.server.Start()
}

func (app *Application) listRecordings(ctx context.Context, limit int) (any, error) {
	cfg := app.store.Get()
	if limit <= 0 {
		limit = cfg.Output.MaxListed
	}
	if app.catalogDB != nil {
		return app.catalogDB.RecentEvents(ctx, limit)
	}
	return catalog.ListRecordings(cfg.Output.Directory, cfg.Output.VideoPrefix, cfg.Output.AudioPrefix, limit)
}

func (app *Application) listDevices() (any, error) {
	cfg := app.store.Get()
	mics, err := capture.ListMicrophones()
	if err != nil {
		app.log.Warn("microphone enumeration failed", watchlog.Error(err))
	}
	return map[string]any{
		"cameras":     capture.ProbeCameras(cfg.Capture.ProbeLimit),
		"microphones": mics,
	}, nil
}

// Cleanup tears everything down in reverse construction order. Safe to call
// more than once; each component tolerates repeated closes.
func (app *Application) Cleanup() {
	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		app.server.Shutdown(ctx)
		cancel()
		app.server = nil
	}
	if app.hub != nil {
		app.hub.Close()
		app.hub = nil
	}
	if app.controller != nil {
		app.controller.Close()
		app.controller = nil
	}
	if app.preview != nil {
		app.preview.Close()
		app.preview = nil
	}
	if app.alerts != nil {
		app.alerts.Stop()
		app.alerts = nil
	}
	if app.archiver != nil {
		app.archiver.Stop()
		app.archiver = nil
	}
	if app.recorder != nil {
		app.recorder.Stop()
		app.recorder = nil
	}
	if app.catalogDB != nil {
		app.catalogDB.Close()
		app.catalogDB = nil
	}
}

// openMicrophone opens the configured audio backend. nil means no audio.
func openMicrophone(cfg config.Config, log watchlog.Logger) capture.AudioSource {
	switch cfg.Audio.Backend {
	case "none":
		return nil
	case "malgo":
		src, err := capture.OpenMalgo(cfg.Audio.DeviceIndex, cfg.Audio.SampleRate, cfg.Audio.ChunkMillis)
		if err != nil {
			log.Warn("malgo microphone unavailable, continuing without audio", watchlog.Error(err))
			return nil
		}
		return src
	default:
		src, err := capture.OpenPortAudio(cfg.Audio.DeviceIndex, cfg.Audio.SampleRate, cfg.Audio.ChunkMillis)
		if err != nil {
			log.Warn("portaudio microphone unavailable, continuing without audio", watchlog.Error(err))
			return nil
		}
		return src
	}
}

func printDevices(cfg *config.Config) error {
	cameras := capture.ProbeCameras(cfg.Capture.ProbeLimit)
	fmt.Printf("Cameras:\n")
	if len(cameras) == 0 {
		fmt.Printf("  (none found)\n")
	}
	for _, idx := range cameras {
		fmt.Printf("  [%d]\n", idx)
	}

	mics, err := capture.ListMicrophones()
	if err != nil {
		return fmt.Errorf("list microphones: %w", err)
	}
	fmt.Printf("Microphones:\n")
	if len(mics) == 0 {
		fmt.Printf("  (none found)\n")
	}
	for _, m := range mics {
		fmt.Printf("  [%d] %s (%d ch, %.0f Hz)\n", m.Index, m.Name, m.Channels, m.SampleRate)
	}
	return nil
}

// runEmailSetup walks the interactive OAuth flow and persists the sealed
// token plus, when freshly generated, the sealing key.
func runEmailSetup(store *config.Store) error {
	cfg := store.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	key, err := notify.Authorize(ctx, cfg.Notify.Gmail)
	if err != nil {
		return err
	}

	if key != cfg.Notify.Gmail.TokenKey {
		if _, err := store.Update(func(c *config.Config) {
			c.Notify.Gmail.TokenKey = key
		}); err != nil {
			return fmt.Errorf("persist token key: %w", err)
		}
	}
	return nil
}
