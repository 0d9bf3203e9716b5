package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	appconfig "github.com/saker-ai/speech-uplink/internal/config"
	apphttp "github.com/saker-ai/speech-uplink/internal/http"
	applogger "github.com/saker-ai/speech-uplink/internal/logger"
	"github.com/saker-ai/speech-uplink/internal/metrics"
	"github.com/saker-ai/speech-uplink/internal/session"
	"github.com/saker-ai/speech-uplink/internal/storage"
	"github.com/saker-ai/speech-uplink/internal/ws"
)

// Server is the assembled speech uplink service.
type Server struct {
	cfg      appconfig.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	registry *session.Registry
	server   *http.Server
}

// New loads configPath (or the default search path when empty) and wires the service.
func New(configPath string) (*Server, error) {
	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load uplink config: %w", err)
	}

	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	logger.Info("uplink logger configured",
		zap.String("level", cfg.Log.Level),
		zap.String("format", cfg.Log.Format),
		zap.Bool("stdout", cfg.Log.Stdout),
		zap.Bool("file_enabled", cfg.Log.File.Enabled),
		zap.String("file_path", cfg.Log.File.Path),
	)
	logger.Info("uplink config loaded",
		zap.String("config_path", configPath),
		zap.String("root_dir", cfg.RootDir),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("target_sample_rate", cfg.Capture.TargetSampleRate),
		zap.Int("buffer_capacity", cfg.Capture.BufferCapacity),
		zap.Bool("uplink_enabled", cfg.Uplink.Enabled()),
		zap.Bool("recording_enabled", cfg.Recording.Enabled),
	)

	return NewWithConfig(cfg, logger)
}

// NewWithConfig wires the service from an already loaded configuration.
func NewWithConfig(cfg appconfig.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var store *storage.Store
	if cfg.Recording.Enabled {
		s, err := storage.NewStore(cfg.Recording.Dir)
		if err != nil {
			return nil, fmt.Errorf("open recording store: %w", err)
		}
		store = s
	}

	m := metrics.NewMetrics()
	registry := session.NewRegistry(m)
	wsHandler := ws.NewHandler(logger, cfg, registry, store, m)
	router := apphttp.NewRouter(apphttp.Deps{
		Config:    cfg,
		WSHandler: wsHandler,
		Registry:  registry,
		Store:     store,
		Metrics:   m,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		registry: registry,
		server:   httpServer,
	}, nil
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	if s == nil || s.server == nil {
		return nil
	}

	err := listen(s.server, s.cfg, s.logger)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Handler returns the HTTP handler, for tests that serve it without listening.
func (s *Server) Handler() http.Handler {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Handler
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	err := ignoreServerClosed(s.server.Shutdown(ctx))
	if active := s.registry.Len(); active > 0 {
		s.logger.Warn("shutdown with capture sessions still open", zap.Int("active_sessions", active))
	}
	_ = s.logger.Sync()
	return err
}

func ignoreServerClosed(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
