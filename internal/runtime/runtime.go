package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leafline-ai/voiced/internal/audiocache"
	"github.com/leafline-ai/voiced/internal/bus"
	"github.com/leafline-ai/voiced/internal/cachestore"
	"github.com/leafline-ai/voiced/internal/config"
	"github.com/leafline-ai/voiced/internal/httpapi"
	"github.com/leafline-ai/voiced/internal/hub"
	"github.com/leafline-ai/voiced/internal/natsserver"
	"github.com/leafline-ai/voiced/internal/synth"
	"github.com/leafline-ai/voiced/internal/transcribe"
	"github.com/leafline-ai/voiced/internal/usagelog"
)

// Runtime owns process lifecycle: it builds every component from config,
// serves HTTP until the context is cancelled, then unwinds in reverse.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cache := audiocache.New(store, r.cfg.Cache, r.logger)

	synthesizer, err := synth.New(r.cfg.Synth, cache, r.logger)
	if err != nil {
		return fmt.Errorf("build synthesizer: %w", err)
	}

	recognizer, err := transcribe.NewRecognizer(r.cfg.Transcribe)
	if err != nil {
		return fmt.Errorf("build recognizer: %w", err)
	}

	connHub, err := hub.New(r.cfg.Hub, synthesizer, r.logger)
	if err != nil {
		return fmt.Errorf("build hub: %w", err)
	}

	usage, err := usagelog.Open(ctx, r.cfg.UsageLog, r.logger)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	defer usage.Close()

	api := httpapi.New(r.cfg, synthesizer, recognizer, connHub, usage, r.logger)

	var busClient *bus.Client
	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("connect bus: %w", err)
		}
		connHub.SetPublisher(busClient.Publish)
		api.SetBusProbe(busClient.Healthy)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	api.Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pushStatus(ctx, connHub, cache, synthesizer)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("cache_backend", r.cfg.Cache.Backend),
		slog.String("synth_mode", r.cfg.Synth.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	busClient.Close()
	embedded.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// pushStatus feeds subscribed clients periodic cache statistics and
// announces lifecycle transitions on the system topic.
func (r *Runtime) pushStatus(ctx context.Context, connHub *hub.Hub, cache *audiocache.Cache, synthesizer *synth.Synthesizer) {
	connHub.AnnounceAgentStatus(map[string]string{"status": "started", "service": r.cfg.ServiceName})
	connHub.AnnounceModelStatus(map[string]any{"voices": synthesizer.Catalog().Voices()})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			connHub.AnnounceAgentStatus(map[string]string{"status": "stopping", "service": r.cfg.ServiceName})
			return
		case <-ticker.C:
			connHub.BroadcastMetrics(map[string]any{
				"cache":       cache.GetStats(),
				"connections": connHub.ConnectionCount(),
			})
		}
	}
}

func (r *Runtime) openStore(ctx context.Context) (cachestore.Store, error) {
	switch r.cfg.Cache.Backend {
	case "redis":
		store, err := cachestore.NewRedis(ctx, r.cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		r.logger.Info("cache store ready", slog.String("backend", "redis"),
			slog.String("addr", r.cfg.Cache.RedisAddr))
		return store, nil
	default:
		r.logger.Info("cache store ready", slog.String("backend", "memory"))
		return cachestore.NewMemory(), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
