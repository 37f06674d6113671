package cli

import (
	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/event"
	"github.com/loomchat/loom/internal/imagegen"
	"github.com/loomchat/loom/internal/memory"
	"github.com/loomchat/loom/internal/provider"
	"github.com/loomchat/loom/internal/provider/ollama"
	"github.com/loomchat/loom/internal/telemetry"
)

// runtime bundles the wired-up subsystems a command needs.
type runtime struct {
	cfg     *config.Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus
	store   memory.Store
	mem     *memory.Manager
	ollama  *ollama.Client
	prov    provider.Provider
	images  *imagegen.Client
}

// configPath resolves the config file, honoring the --config flag.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "loom.yaml"
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath())
}

// buildRuntime loads config and wires every subsystem. Callers must
// Close when done so pending durable writes drain.
func buildRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := telemetry.NewLoggerWith(cfg.Logging.Level, cfg.Logging.Format)
	if verbose {
		logger = telemetry.NewLogger(true)
	}
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			logger.Warn("Log file unavailable, logging to stderr", "path", cfg.Logging.File, "error", err)
		}
	}
	metrics := telemetry.NewMetrics()

	bus := event.NewBus(logger)
	registerHooks(cfg, bus, logger)

	store, err := memory.Open(cfg.Memory)
	if err != nil {
		return nil, err
	}

	mem := memory.NewManager(store, cfg.Memory, bus, logger, metrics)

	client := ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	prov := provider.NewRetryProvider(client, provider.DefaultRetryConfig())

	var images *imagegen.Client
	if cfg.Image.Enabled {
		images = imagegen.NewClient(cfg.Image)
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		bus:     bus,
		store:   store,
		mem:     mem,
		ollama:  client,
		prov:    prov,
		images:  images,
	}, nil
}

// Close drains pending writes and releases the store.
func (rt *runtime) Close() {
	rt.mem.Close()
	rt.store.Close()
}

// registerHooks wires configured lifecycle hooks onto the bus.
func registerHooks(cfg *config.Config, bus *event.Bus, logger *telemetry.Logger) {
	if !cfg.Hooks.Enabled {
		return
	}
	for _, hc := range cfg.Hooks.Hooks {
		events := make([]event.EventType, 0, len(hc.Events))
		for _, e := range hc.Events {
			events = append(events, event.EventType(e))
		}
		switch hc.Type {
		case "shell":
			bus.Register(event.NewShellHook(hc.Name, hc.Command, events, hc.Blocking))
		case "webhook":
			bus.Register(event.NewWebhookHook(hc.Name, hc.URL, events, hc.Blocking))
		case "log":
			bus.Register(event.NewLogHook(hc.Name, events, logger, hc.Level))
		default:
			logger.Warn("Unknown hook type", "name", hc.Name, "type", hc.Type)
		}
	}
}
