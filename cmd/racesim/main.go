package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/racedqn/autopilot/internal/agent"
	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/dispatcher"
	"github.com/racedqn/autopilot/internal/geo"
	"github.com/racedqn/autopilot/internal/influx"
	"github.com/racedqn/autopilot/internal/logging"
	"github.com/racedqn/autopilot/internal/monitor"
	intOtel "github.com/racedqn/autopilot/internal/otel"
	"github.com/racedqn/autopilot/internal/replay"
	"github.com/racedqn/autopilot/internal/session"
	"github.com/racedqn/autopilot/internal/sim"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/internal/track"
	"github.com/racedqn/autopilot/internal/worker"
	"github.com/racedqn/autopilot/internal/world"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "racesim"
)

// file paths
var (
	// ConfigDir holds racesim.cfg.json. RACESIM_CONFIG_DIR overrides the working directory.
	ConfigDir string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// DBLogger is used by the database and influx managers
	DBLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// Services
	sessionContext  *session.Context
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	influxManager   *influx.Manager

	// Storage backend (optional)
	storageBackend storage.Backend
)

func init() {
	ConfigDir = os.Getenv("RACESIM_CONFIG_DIR")
	if ConfigDir == "" {
		ConfigDir = "."
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()
	DBLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	sessionContext = session.NewContext()
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		if err := runCommand(args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		Logger.Error("Training run failed", "error", err)
		_ = SlogManager.Flush(context.Background())
		os.Exit(1)
	}
}

// setupLogging opens the session log file and rebuilds the logger with the
// file, OTel and Graylog outputs the config asks for.
func setupLogging() {
	err := config.Load(ConfigDir)
	if err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}

	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	if LogFile != nil {
		DBLogger = zerolog.New(LogFile).With().Timestamp().Str("component", "storage").Logger()
	}

	otelCfg, err := config.GetOTelConfig()
	if err != nil {
		Logger.Warn("Invalid otel config", "error", err)
	}
	if otelCfg.Enabled && LogFile != nil {
		pcfg := intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		}
		if otelCfg.Metrics {
			pcfg.MetricWriter = LogFile
			pcfg.MetricsPeriod = otelCfg.MetricsPeriod
		}
		OTelProvider, err = intOtel.New(pcfg)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	opts := []logging.Option{logging.WithContext(sessionContext.LogAttrs), logging.WithScope(AppName)}
	if viper.GetBool("logConsole") {
		opts = append(opts, logging.WithConsole())
	}
	if viper.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(viper.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect to graylog", "error", err)
		} else {
			opts = append(opts, logging.WithGraylog(w))
		}
	}

	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager.Setup(file, viper.GetString("logLevel"), otelLogProvider, opts...)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "build", BuildDate)
}

// loadTrack reads the centerline from track.file, or builds the oval.
func loadTrack(cfg config.TrackConfig) (*track.Track, error) {
	if cfg.File == "" {
		return track.FromPoints(track.Oval(cfg.OvalA, cfg.OvalB, cfg.OvalPoints), cfg.Width, cfg.Closed)
	}

	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("reading track file: %w", err)
	}
	parse := geo.ParsePolyline
	if cfg.LonLat {
		parse = geo.ParseLonLatPolyline
	}
	line, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing track file %s: %w", cfg.File, err)
	}
	return track.New(line, cfg.Width, cfg.Closed)
}

func setupInflux() {
	cfg := config.GetInfluxConfig()
	influxManager = influx.NewManager(DBLogger, filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("%s_influx_%s.gz", AppName, SessionStartTime.Format("20060102_150405"))))
	err := influxManager.Connect(cfg)
	if errors.Is(err, influx.ErrDisabled) {
		influxManager = nil
		return
	}
	if err != nil {
		Logger.Error("Failed to connect to InfluxDB", "error", err)
		influxManager = nil
		return
	}
	Logger.Info("InfluxDB ready", "online", influxManager.Online())
}

// setupPersistence creates the storage backend, the dispatcher and the
// worker, then registers the session. It returns the sim option that feeds
// replay batches to the worker, or nil when storage is off.
func setupPersistence(sess *session.Context) (sim.Option, error) {
	storageCfg, err := config.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	if !storageCfg.Enabled {
		Logger.Info("Replay persistence disabled")
		return nil, nil
	}

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	storageBackend = backend

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	workerManager = worker.NewManager(worker.Dependencies{
		Logger:  Logger,
		Session: sess,
	}, storageBackend)
	workerManager.RegisterHandlers(eventDispatcher)
	Logger.Debug("Worker handlers registered with dispatcher")

	if _, err := eventDispatcher.Dispatch(dispatcher.Event{
		Command: worker.CommandSessionStart,
		Payload: sess.Get(),
	}); err != nil {
		return nil, err
	}
	Logger.Info("Storage ready", "type", storageCfg.Type)
	return sim.WithPersistHook(workerManager.PersistHook(eventDispatcher)), nil
}

func run() error {
	setupLogging()
	defer func() {
		shutdownOTel()
		if LogFile != nil {
			LogFile.Close()
		}
	}()

	// leave headroom for the training goroutine and the storage workers
	numCPUs := runtime.NumCPU()
	runtime.GOMAXPROCS(int(math.Max(float64(numCPUs-1), 1)))
	Logger.Debug("Number of CPUs", "numCPUs", numCPUs)

	runCfg, err := config.GetRunConfig()
	if err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	simCfg, err := config.GetSimConfig()
	if err != nil {
		return err
	}
	dqnCfg, err := config.GetDQNConfig()
	if err != nil {
		return err
	}
	worldCfg, err := config.GetWorldConfig()
	if err != nil {
		return err
	}
	trackCfg, err := config.GetTrackConfig()
	if err != nil {
		return fmt.Errorf("invalid track config: %w", err)
	}

	tr, err := loadTrack(trackCfg)
	if err != nil {
		return err
	}
	Logger.Info("Track loaded", "points", tr.Len(), "length", tr.Length(), "closed", tr.Closed())

	w, err := world.New(worldCfg, tr)
	if err != nil {
		return fmt.Errorf("failed to build world: %w", err)
	}
	ag, err := agent.New(dqnCfg, Logger)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	buf := replay.New(runCfg.BufferCapacity)

	sessionContext.Start(runCfg.SceneName, tr.Length(), SessionStartTime)
	Logger.Info("Session started")

	opts := []sim.Option{sim.WithLogger(Logger)}
	persistOpt, err := setupPersistence(sessionContext)
	if err != nil {
		Logger.Error("Replay persistence unavailable", "error", err)
	} else if persistOpt != nil {
		opts = append(opts, persistOpt)
	}
	defer shutdownPersistence()

	s, err := sim.New(simCfg, w, w, tr, ag, buf, opts...)
	if err != nil {
		return err
	}

	setupInflux()
	defer func() {
		if influxManager != nil {
			influxManager.Close()
		}
	}()

	monDeps := monitor.Dependencies{
		Source:     s,
		Logger:     Logger,
		Session:    sessionContext,
		StatusFile: filepath.Join(viper.GetString("logsDir"), "status.txt"),
		Interval:   runCfg.MonitorInterval,
	}
	if influxManager != nil {
		monDeps.Influx = influxManager
	}
	monitorService = monitor.NewService(monDeps)
	if err := monitorService.Start(); err != nil {
		return err
	}
	defer monitorService.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tickLoop(ctx, s, w, runCfg)

	final := monitorService.Report(context.Background(), time.Now())
	Logger.Info("Training stopped",
		"steps", s.Steps(),
		"crashes", s.Crashes(),
		"epsilon", final.Epsilon,
		"buffer", final.BufferLen,
	)
	return nil
}

// tickLoop advances the controller and the world at a fixed step until the
// context ends or run.ticks is reached. The world always steps by the
// configured interval regardless of wall-clock jitter.
func tickLoop(ctx context.Context, s *sim.Simulation, w *world.World, cfg config.RunConfig) {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	dt := interval.Seconds()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; cfg.Ticks <= 0 || n < cfg.Ticks; n++ {
		select {
		case <-ctx.Done():
			Logger.Info("Interrupted", "ticks", n)
			return
		case <-ticker.C:
		}
		s.Tick(dt)
		w.Step(dt)
	}
}

func shutdownPersistence() {
	if eventDispatcher != nil {
		if n := eventDispatcher.Pending(worker.CommandReplayPersist); n > 0 {
			Logger.Info("Flushing queued replay batches", "pending", n)
		}
		eventDispatcher.Close()
	}
	if workerManager != nil {
		stored, failed, dropped := workerManager.Stats()
		Logger.Info("Replay batches", "stored", stored, "failed", failed, "dropped", dropped)
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		if exp, ok := storageBackend.(storage.Exportable); ok && exp.ExportedFilePath() != "" {
			Logger.Info("Replay exported", "path", exp.ExportedFilePath())
		}
	}
}

func shutdownOTel() {
	if OTelProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if err := OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down OTel provider: %v\n", err)
	}
}
