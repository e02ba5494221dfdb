package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/lightshow/fxrunner/internal/cache"
	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/dispatcher"
	"github.com/lightshow/fxrunner/internal/driver"
	"github.com/lightshow/fxrunner/internal/effect"
	"github.com/lightshow/fxrunner/internal/events/midiclock"
	"github.com/lightshow/fxrunner/internal/events/websocket"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/handlers"
	"github.com/lightshow/fxrunner/internal/influx"
	"github.com/lightshow/fxrunner/internal/logging"
	"github.com/lightshow/fxrunner/internal/monitor"
	intOtel "github.com/lightshow/fxrunner/internal/otel"
	"github.com/lightshow/fxrunner/internal/sequence"
	"github.com/lightshow/fxrunner/internal/storage"
	"github.com/lightshow/fxrunner/internal/track"
	"github.com/lightshow/fxrunner/internal/worker"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// build info, set via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "fxrunner"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// TrackContext is the track currently playing, attached to every log record
	TrackContext *track.Context = track.NewContext()

	// GroupCache holds the runtime groups of the venue by id and name
	GroupCache *cache.GroupCache = cache.NewGroupCache()

	SessionStartTime time.Time = time.Now()

	LogFilePath string
	LogFile     *os.File
	OTelLogFile *os.File

	// Services
	scheduler       *sequence.Scheduler
	handlerService  *handlers.Service
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	frameDriver     *driver.Driver
	eventDispatcher *dispatcher.Dispatcher
	influxManager   *influx.Manager
	recorder        *influx.Recorder
	wsClient        *websocket.Client
	midiListener    *midiclock.Listener

	storageBackend storage.Backend
)

func main() {
	flags := pflag.NewFlagSet(ServiceName, pflag.ExitOnError)
	configDir := flags.String("config", ".", "directory containing "+config.FileName)
	seedPath := flags.String("seed", "", "import a YAML venue file into the database and exit")
	flags.String("log-level", "", "override logLevel")
	flags.String("storage", "", "override storage.type")
	showVersion := flags.Bool("version", false, "print the version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", ServiceName, Version, BuildDate)
		return
	}

	if err := config.Load(*configDir); err != nil {
		// defaults still apply without a config file
		fmt.Fprintf(os.Stderr, "%v, using defaults\n", err)
	}
	bindFlagOverrides(flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := setupLogging(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer shutdownLogging()

	if *seedPath != "" {
		if err := seedDatabase(ctx, *seedPath); err != nil {
			Logger.Error("Seeding failed", "path", *seedPath, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx); err != nil {
		Logger.Error("Runner stopped with error", "error", err)
		os.Exit(1)
	}
}

// bindFlagOverrides lets command line flags win over the config file.
func bindFlagOverrides(flags *pflag.FlagSet) {
	overrides := map[string]string{
		"log-level": "logLevel",
		"storage":   "storage.type",
	}
	for flagName, key := range overrides {
		f := flags.Lookup(flagName)
		if f != nil && f.Changed {
			viper.Set(key, f.Value.String())
		}
	}
}

func setupLogging(ctx context.Context) error {
	LogFilePath = logging.LogFilePath(viper.GetString("logsDir"), ServiceName, SessionStartTime)
	f, err := logging.OpenLogFile(LogFilePath)
	if err != nil {
		return err
	}
	LogFile = f

	otelCfg := config.GetOTelConfig()
	providerCfg := intOtel.FromConfig(otelCfg, nil)
	if otelCfg.Enabled {
		OTelLogFile, err = logging.OpenLogFile(
			logging.LogFilePath(viper.GetString("logsDir"), ServiceName+".otel", SessionStartTime))
		if err != nil {
			return err
		}
		providerCfg.LogWriter = OTelLogFile
		providerCfg.ErrorLogger = slog.Default()
	}
	OTelProvider, err = intOtel.New(ctx, providerCfg)
	if err != nil {
		return fmt.Errorf("creating OTel provider: %w", err)
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.SetupOptions{
		Level:       viper.GetString("logLevel"),
		Console:     os.Stdout,
		File:        LogFile,
		Provider:    OTelProvider.LoggerProvider(),
		ServiceName: otelCfg.ServiceName,
		Context:     TrackContext.Attrs,
	})
	Logger = SlogManager.Logger()

	Logger.Info("Starting",
		"service", ServiceName,
		"version", Version,
		"buildDate", BuildDate,
		"logFile", LogFilePath,
		"otel", OTelProvider.Enabled(),
	)
	return nil
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if err := OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutting down OTel: %v\n", err)
	}
	if OTelLogFile != nil {
		OTelLogFile.Close()
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

func run(ctx context.Context) error {
	groups, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer storageBackend.Close()

	initInflux(ctx)
	defer func() {
		if influxManager != nil {
			if err := influxManager.Close(); err != nil {
				Logger.Warn("Failed to close InfluxDB", "error", err)
			}
		}
	}()

	// one lock for everything that writes fixture state or packs frames
	stage := &sync.Mutex{}
	clock := clockwork.NewRealClock()
	registry := effect.NewRegistry(clock)
	universe := fixture.NewUniverse()

	schedDeps := sequence.Dependencies{
		Registry:   registry,
		Fetcher:    storageBackend,
		Clock:      clock,
		LogManager: SlogManager,
		Lock:       stage,
	}
	if recorder != nil {
		schedDeps.Observer = recorder
	}
	scheduler, err = sequence.New(schedDeps)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	handlerService = handlers.NewService(handlers.Dependencies{
		Registry:   registry,
		Groups:     GroupCache,
		LogManager: SlogManager,
		Sequence:   scheduler,
		Lock:       stage,
	})

	var observers []worker.TrackObserver
	if recorder != nil {
		observers = append(observers, recorder)
	}
	workerManager, err = worker.NewManager(ctx, worker.Dependencies{
		Scheduler:  scheduler,
		Handlers:   handlerService,
		Universe:   universe,
		Groups:     GroupCache,
		Track:      TrackContext,
		LogManager: SlogManager,
		Observers:  observers,
	})
	if err != nil {
		return fmt.Errorf("creating worker manager: %w", err)
	}
	if err := workerManager.LoadTopology(groups); err != nil {
		Logger.Warn("Some groups could not be loaded", "error", err)
	}
	Logger.Info("Topology loaded", "groups", GroupCache.Len())

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(SlogManager.Zerolog("dispatcher")))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer eventDispatcher.Close()
	workerManager.RegisterHandlers(eventDispatcher)

	frameDriver, err = driver.New(driver.Dependencies{
		Tickers:    []driver.Ticker{scheduler, handlerService},
		Universe:   universe,
		Sink:       &driver.ChangesOnly{Next: driver.LogSink{Logger: SlogManager.Zerolog("frames")}},
		Clock:      clock,
		Interval:   config.TickInterval(),
		Lock:       stage,
		LogManager: SlogManager,
	})
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}

	startEventSources()
	defer stopEventSources()

	monDeps := monitor.Dependencies{
		Scheduler:  scheduler,
		Track:      TrackContext,
		Frames:     frameDriver,
		LogManager: SlogManager,
		Clock:      clock,
		Interval:   viper.GetDuration("statusInterval"),
		StatusPath: filepath.Join(viper.GetString("logsDir"), ServiceName+".status.json"),
	}
	if wsClient != nil {
		monDeps.Events = wsClient
	}
	if recorder != nil {
		monDeps.Writer = recorder
	}
	monitorService, err = monitor.NewService(monDeps)
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	if err := monitorService.Start(); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	defer monitorService.Stop()

	Logger.Info("Running", "tickInterval", config.TickInterval())
	if err := frameDriver.Run(ctx); err != nil {
		return err
	}

	Logger.Info("Shutting down")
	scheduler.Stop(true)
	return nil
}

func initInflux(ctx context.Context) {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		Logger.Debug("InfluxDB telemetry disabled")
		return
	}

	backup := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("influx_backup.%s.log.gzip", SessionStartTime.Format("20060102_150405")))
	influxManager = influx.NewManager(SlogManager.Zerolog("influx"), cfg, backup)
	if err := influxManager.Connect(ctx); err != nil {
		Logger.Warn("InfluxDB unavailable, telemetry disabled", "error", err)
		influxManager = nil
		return
	}
	recorder = influx.NewRecorder(influxManager, cfg.Bucket)
	Logger.Info("InfluxDB telemetry enabled", "url", cfg.URL(), "bucket", cfg.Bucket, "backupOnly", !influxManager.IsValid)
}

func startEventSources() {
	wsCfg := config.GetWebsocketConfig()
	if wsCfg.Enabled {
		wsClient = websocket.New(websocket.FromConfig(wsCfg), eventDispatcher, Logger.With("source", "websocket"))
		if err := wsClient.Start(); err != nil {
			// the client keeps retrying in the background
			Logger.Warn("Event stream not reachable yet", "url", wsCfg.URL, "error", err)
		}
	}

	midiCfg := config.GetMIDIConfig()
	if midiCfg.Enabled {
		midiListener = midiclock.NewListener(eventDispatcher, Logger.With("source", "midi"))
		if err := midiListener.Start(midiCfg.Port); err != nil {
			Logger.Error("MIDI clock disabled", "port", midiCfg.Port, "error", err)
			midiListener = nil
		}
	}

	if wsClient == nil && midiListener == nil {
		Logger.Warn("No event source enabled, only the render loop will run")
	}
}

func stopEventSources() {
	if midiListener != nil {
		midiListener.Close()
	}
	midi.CloseDriver()
	if wsClient != nil {
		if err := wsClient.Close(); err != nil {
			Logger.Warn("Failed to close event stream", "error", err)
		}
	}
}
