// Command glyphoxa is the single stable entry point that hosts the SDK: it
// loads configuration, constructs the Service Container with every
// configured capability component, opens one Voice Pipeline session wired
// to those components, and serves health/readiness probes until signalled
// to shut down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"gopkg.in/yaml.v3"

	"github.com/glyphoxa-sdk/runtime/internal/container"
	"github.com/glyphoxa-sdk/runtime/internal/eventbus"
	"github.com/glyphoxa-sdk/runtime/internal/health"
	"github.com/glyphoxa-sdk/runtime/internal/lifecycle/modelload"
	"github.com/glyphoxa-sdk/runtime/internal/store/sqlite"
	"github.com/glyphoxa-sdk/runtime/internal/telemetry"
	"github.com/glyphoxa-sdk/runtime/internal/tools"
	"github.com/glyphoxa-sdk/runtime/internal/tools/builtin/fileio"
	"github.com/glyphoxa-sdk/runtime/internal/tools/builtin/memorytool"
	"github.com/glyphoxa-sdk/runtime/internal/tools/mcphost"
	"github.com/glyphoxa-sdk/runtime/internal/tools/tier"
	"github.com/glyphoxa-sdk/runtime/internal/voicepipeline"
	"github.com/glyphoxa-sdk/runtime/pkg/memory/postgres"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/llm"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/llm/anyllm"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/llm/openai"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/stt"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/stt/deepgram"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/stt/whisper"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/tts"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/tts/coqui"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "glyphoxa: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "glyphoxa: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("glyphoxa starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmProvider, err := newLLMProvider(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	sttProvider, err := newSTTProvider(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}
	ttsProvider, err := newTTSProvider(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}

	printStartupSummary(cfg, llmProvider != nil, sttProvider != nil, ttsProvider != nil)

	db, err := sqlite.Open(cfg.Server.SQLitePath)
	if err != nil {
		slog.Error("failed to open sqlite store", "err", err)
		return 1
	}
	defer db.Close()
	if err := sqlite.Migrate(ctx, db); err != nil {
		slog.Error("failed to migrate sqlite store", "err", err)
		return 1
	}

	bus := eventbus.New(logger)

	toolHost, closeMemoryStore, err := buildToolHost(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build tool host", "err", err)
		return 1
	}
	if closeMemoryStore != nil {
		defer closeMemoryStore()
	}
	defer toolHost.Close()

	components := []container.ComponentSpec{
		capabilityComponent("llm", llmProvider != nil),
		capabilityComponent("stt", sttProvider != nil),
		capabilityComponent("tts", ttsProvider != nil),
		{
			Name: "tools",
			Init: func(ctx context.Context) error { return toolHost.Calibrate(ctx) },
			Cleanup: func(ctx context.Context) error {
				return nil // toolHost itself is closed by the defer above
			},
		},
	}

	var telemetryQueue *telemetry.Queue
	if cfg.Server.TelemetryEnabled {
		telemetryQueue, err = telemetry.New(telemetry.Config{
			Store:  sqlite.NewTelemetryStore(db),
			Logger: logger,
		})
		if err != nil {
			slog.Error("failed to build telemetry queue", "err", err)
			return 1
		}
		telemetryQueue.SetConsent(telemetry.ConsentGranted)
	}

	svc, err := container.New(ctx, container.Config{
		Logger:     logger,
		Bus:        bus,
		ModelStore: sqlite.NewModelStore(db),
		// Downloader, Extractor, and Checksummer fetch and unpack model
		// artifacts from a remote source — an external collaborator this
		// binary does not ship one of yet. A nil value here is the
		// documented default: the loading service simply cannot resolve
		// models that aren't already present under ModelRoot.
		ModelLoadConfig: modelload.Config{ModelRoot: cfg.Server.ModelRoot},
		Telemetry:       telemetryQueue,
		Components:      components,
	})
	if err != nil {
		slog.Error("failed to initialise service container", "err", err)
		return 1
	}

	healthHandler := health.New(svc.Checkers()...)
	mux := http.NewServeMux()
	healthHandler.Register(mux)
	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped unexpectedly", "err", err)
		}
	}()

	selector := tier.NewSelector()
	session, err := voicepipeline.New(ctx, voicepipeline.Config{
		STT:          sttProvider,
		LLM:          llmProvider,
		TTS:          ttsProvider,
		Bus:          bus,
		Logger:       logger,
		ToolHost:     toolHost,
		ToolSelector: selector,
	})
	if err != nil {
		slog.Error("failed to open voice pipeline session", "err", err)
		_ = svc.Shutdown(context.Background())
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")
	<-ctx.Done()

	slog.Info("shutdown signal received, stopping…")
	if err := session.Close(); err != nil {
		slog.Warn("voice pipeline session close error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("container shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// capabilityComponent wraps an already-constructed provider in the
// lifecycle.Component contract the container expects: ready as soon as the
// provider was successfully built, failed if it wasn't configured at all.
// Construction happens before the container exists (providers need to be
// built to decide the startup summary), so Init only validates and
// publishes the transition; it does no I/O of its own.
func capabilityComponent(name string, configured bool) container.ComponentSpec {
	return container.ComponentSpec{
		Name: name,
		Init: func(ctx context.Context) error {
			if !configured {
				return fmt.Errorf("%s: no provider configured", name)
			}
			return nil
		},
		Cleanup: func(ctx context.Context) error { return nil },
	}
}

// buildToolHost constructs the mcphost.Host backing the voice pipeline's
// tool calling, registering the sandboxed fileio tools only when
// server.file_sandbox_dir is set and the memory tools only when a Postgres
// memory store is configured — no
// in-memory production substitute exists, so the tool set degrades rather
// than falling back to a throwaway store. External MCP servers declared in
// configuration are registered last. The returned close func releases the
// Postgres pool, if one was opened; it is nil otherwise.
func buildToolHost(ctx context.Context, cfg *serverConfig, logger *slog.Logger) (*mcphost.Host, func(), error) {
	host := mcphost.New()

	sandboxDir := cfg.Server.FileSandboxDir
	if sandboxDir != "" {
		if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create file sandbox dir: %w", err)
		}
		for _, t := range fileio.NewTools(sandboxDir) {
			if err := host.RegisterBuiltin(t); err != nil {
				return nil, nil, fmt.Errorf("register fileio tool: %w", err)
			}
		}
	}

	var closeStore func()
	if cfg.Server.Postgres.DSN != "" {
		store, err := postgres.NewStore(ctx, cfg.Server.Postgres.DSN, cfg.Server.Postgres.EmbeddingDimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres memory store: %w", err)
		}
		closeStore = store.Close
		for _, t := range memorytool.NewTools(store.L1(), store.L2(), store) {
			if err := host.RegisterBuiltin(t); err != nil {
				closeStore()
				return nil, nil, fmt.Errorf("register memory tool: %w", err)
			}
		}
	} else {
		logger.Info("no postgres DSN configured — session memory and knowledge graph tools are disabled")
	}

	for _, srv := range cfg.MCPServers {
		if err := host.RegisterServer(ctx, tools.ServerConfig{
			Name:      srv.Name,
			Transport: tools.Transport(srv.Transport),
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}); err != nil {
			if closeStore != nil {
				closeStore()
			}
			return nil, nil, fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
	}

	return host, closeStore, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// newLLMProvider constructs the configured LLM provider. voicepipeline.New
// rejects a nil LLM, so providers.llm.name is required, not optional.
func newLLMProvider(cfg providerConfig) (llm.Provider, error) {
	switch cfg.Name {
	case "":
		return nil, fmt.Errorf("providers.llm.name is required (want one of: openai, anyllm)")
	case "openai":
		return openai.New(cfg.APIKey, cfg.Model)
	case "anyllm":
		return anyllm.New(cfg.Backend, cfg.Model, anyllmlib.WithAPIKey(cfg.APIKey))
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want one of: openai, anyllm)", cfg.Name)
	}
}

// newSTTProvider constructs the configured STT provider. An empty name
// returns a nil provider without an error; the "stt" capability component
// then fails its Init, so the service container does not start.
func newSTTProvider(cfg providerConfig) (stt.Provider, error) {
	switch cfg.Name {
	case "":
		return nil, nil
	case "deepgram":
		return deepgram.New(cfg.APIKey)
	case "whisper":
		return whisper.New(cfg.ServerURL)
	default:
		return nil, fmt.Errorf("unknown stt provider %q (want one of: deepgram, whisper)", cfg.Name)
	}
}

// newTTSProvider constructs the configured TTS provider. voicepipeline.New
// rejects a nil TTS, so providers.tts.name is required, not optional.
func newTTSProvider(cfg providerConfig) (tts.Provider, error) {
	switch cfg.Name {
	case "":
		return nil, fmt.Errorf("providers.tts.name is required (want one of: elevenlabs, coqui)")
	case "elevenlabs":
		return elevenlabs.New(cfg.APIKey)
	case "coqui":
		return coqui.New(cfg.ServerURL)
	default:
		return nil, fmt.Errorf("unknown tts provider %q (want one of: elevenlabs, coqui)", cfg.Name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *serverConfig, hasLLM, hasSTT, hasTTS bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Glyphoxa — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model, hasLLM)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model, hasSTT)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model, hasTTS)
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCPServers))
	fmt.Printf("║  Memory store    : %-19s ║\n", memoryStoreLabel(cfg.Server.Postgres.DSN))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func memoryStoreLabel(dsn string) string {
	if dsn == "" {
		return "(disabled)"
	}
	return "postgres"
}

func printProvider(kind, name, model string, configured bool) {
	value := name
	if !configured || value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Configuration ──────────────────────────────────────────────────────────────

// LogLevel selects the minimum severity newLogger emits.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// providerConfig names one capability provider and its credentials.
// ServerURL is only meaningful for self-hosted backends (whisper, coqui);
// Backend is only meaningful for anyllm, naming the underlying any-llm-go
// provider (e.g. "anthropic", "ollama").
type providerConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	ServerURL string `yaml:"server_url"`
	Backend   string `yaml:"backend"`
}

// mcpServerConfig describes one external MCP tool server to connect at
// startup, mirroring tools.ServerConfig for YAML round-tripping.
type mcpServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// serverConfig is the top-level configuration document this binary loads
// from a YAML file at startup.
type serverConfig struct {
	Server struct {
		ListenAddr       string   `yaml:"listen_addr"`
		LogLevel         LogLevel `yaml:"log_level"`
		ModelRoot        string   `yaml:"model_root"`
		SQLitePath       string   `yaml:"sqlite_path"`
		FileSandboxDir   string   `yaml:"file_sandbox_dir"`
		TelemetryEnabled bool     `yaml:"telemetry_enabled"`
		Postgres         struct {
			DSN                 string `yaml:"dsn"`
			EmbeddingDimensions int    `yaml:"embedding_dimensions"`
		} `yaml:"postgres"`
	} `yaml:"server"`

	Providers struct {
		LLM providerConfig `yaml:"llm"`
		STT providerConfig `yaml:"stt"`
		TTS providerConfig `yaml:"tts"`
	} `yaml:"providers"`

	MCPServers []mcpServerConfig `yaml:"mcp_servers"`
}

// defaultEmbeddingDimensions matches OpenAI's text-embedding-3-small output;
// it is applied when a Postgres DSN is set without embedding_dimensions.
const defaultEmbeddingDimensions = 1536

func loadConfig(path string) (*serverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg serverConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.ModelRoot == "" {
		cfg.Server.ModelRoot = "models"
	}
	if cfg.Server.SQLitePath == "" {
		cfg.Server.SQLitePath = filepath.Join("data", "glyphoxa.db")
	}
	if cfg.Server.Postgres.DSN != "" && cfg.Server.Postgres.EmbeddingDimensions <= 0 {
		cfg.Server.Postgres.EmbeddingDimensions = defaultEmbeddingDimensions
	}
	return &cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case LogDebug:
		lvl = slog.LevelDebug
	case LogWarn:
		lvl = slog.LevelWarn
	case LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
