// Command tahti is a headless monitor window: it connects to an engine,
// replicates shared state over Redis with any other windows, and logs the
// transport as it moves. It exercises the same model a graphical window
// would drive.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tahtiseq/tahti/studio"
	"github.com/tahtiseq/tahti/studio/redisbus"
	"github.com/tahtiseq/tahti/version"
	"github.com/tahtiseq/tahti/wsengine"
)

var (
	engineURL  = flag.String("engine", "http://localhost:3004", "base URL of the engine's command channel")
	redisURL   = flag.String("redis", "", "redis URL for cross-window replication (empty runs standalone)")
	configFile = flag.String("config", "", "yaml config `file`; flags override its values")
	debug      = flag.Bool("debug", false, "log at debug level")
)

type config struct {
	Engine string `yaml:"engine"`
	Redis  string `yaml:"redis"`
	Window string `yaml:"window"`
}

func main() {
	flag.Parse()

	cfg := config{Engine: *engineURL, Redis: *redisURL}
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatalf("reading config: %v", err)
		}
		var fileCfg config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			log.Fatalf("parsing config: %v", err)
		}
		if !isFlagPassed("engine") && fileCfg.Engine != "" {
			cfg.Engine = fileCfg.Engine
		}
		if !isFlagPassed("redis") && fileCfg.Redis != "" {
			cfg.Redis = fileCfg.Redis
		}
		cfg.Window = fileCfg.Window
	}

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer logger.Sync()

	prefs := loadPrefs(logger)
	windowID := cfg.Window
	if windowID == "" {
		windowID = windowIDFromPrefs(prefs)
	}
	logger.Info("starting",
		zap.String("version", version.VersionOrHash),
		zap.String("windowId", windowID),
		zap.String("engine", cfg.Engine),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repl *studio.Replicator
	if cfg.Redis != "" {
		opt, err := redis.ParseURL(cfg.Redis)
		if err != nil {
			logger.Fatal("invalid redis URL", zap.Error(err))
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		bus := redisbus.New(rdb, "", logger)
		repl, err = studio.NewReplicator(windowID, bus, false)
		if err != nil {
			logger.Fatal("subscribing to replication bus", zap.Error(err))
		}
		defer repl.Close()
	}

	broker := studio.NewBroker()
	client, err := wsengine.New(cfg.Engine, broker, logger)
	if err != nil {
		logger.Fatal("bad engine URL", zap.Error(err))
	}
	go client.RunPushChannel(ctx)

	sched := studio.IntervalScheduler{Interval: studio.DefaultFrameInterval}
	model := studio.NewModel(broker, client, repl, sched, logger)
	defer model.Close()
	logTransport(model, logger)

	if err := model.Start(ctx); err != nil {
		logger.Warn("engine not reachable yet, waiting for push channel", zap.Error(err))
	}
	model.Run(ctx)

	studio.TrySend(broker.CloseEngine, struct{}{})
	select {
	case <-broker.FinishedEngine:
	case <-time.After(2 * time.Second):
		logger.Warn("push channel did not shut down in time")
	}
}

// logTransport logs the playhead once a second while playing and every
// play/pause flip immediately. It runs inside the model's notification
// callback, so reading accessors here is safe.
func logTransport(model *studio.Model, logger *zap.Logger) {
	var lastLog time.Time
	var wasPlaying bool
	model.OnChange(func() {
		playing := model.Playing()
		flipped := playing != wasPlaying
		wasPlaying = playing
		if !flipped && (!playing || time.Since(lastLog) < time.Second) {
			return
		}
		lastLog = time.Now()
		logger.Info("transport",
			zap.Bool("playing", playing),
			zap.Float64("positionBeats", model.PlayheadPosition()),
			zap.Float64("tempoBpm", model.TempoBPM()),
		)
	})
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadPrefs opens the per-user prefs file, creating the directory if needed.
// Prefs are best effort; a monitor without them still works.
func loadPrefs(logger *zap.Logger) *studio.Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(configDir, "Tahti")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("creating prefs dir", zap.Error(err))
		return nil
	}
	prefs, err := studio.LoadPrefs(filepath.Join(dir, "prefs.yml"))
	if err != nil {
		logger.Warn("loading prefs", zap.Error(err))
		return nil
	}
	return prefs
}

// windowIDFromPrefs returns the persisted window id, minting and saving one
// on first run so the same machine keeps a stable identity across restarts.
func windowIDFromPrefs(prefs *studio.Prefs) string {
	if prefs != nil {
		if v, ok := prefs.Get("windowId"); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	id := uuid.NewString()
	if prefs != nil {
		prefs.Set("windowId", id)
		_ = prefs.Save()
	}
	return id
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
