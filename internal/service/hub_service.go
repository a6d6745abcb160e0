package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"telemetry-hub/common/database"
	mqttcommon "telemetry-hub/common/mqtt"
	rediscommon "telemetry-hub/common/redis"
	"telemetry-hub/internal/archive"
	"telemetry-hub/internal/broadcast"
	"telemetry-hub/internal/config"
	httpapi "telemetry-hub/internal/http"
	"telemetry-hub/internal/hub"
	"telemetry-hub/internal/identity"
	"telemetry-hub/internal/ingest"
	"telemetry-hub/internal/metrics"
	"telemetry-hub/internal/registry"
	"telemetry-hub/internal/sink"
	"telemetry-hub/internal/storage"
	"telemetry-hub/internal/store"
	"telemetry-hub/internal/transport"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HubService wires the hub and its collaborators into one process.
type HubService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client

	registry  *registry.Registry
	transport *transport.Server
	sinks     []*sink.Async
	uploader  *archive.Uploader
	router    *httpapi.Router
	server    *Server

	cancel context.CancelFunc
	errCh  chan error
}

// NewHubService connects the optional backends and builds every component.
// Nothing runs until Start.
func NewHubService(cfg *config.Config, logger *zap.Logger) (*HubService, error) {
	s := &HubService{
		config: cfg,
		logger: logger,
		errCh:  make(chan error, 1),
	}
	if err := s.connectBackends(); err != nil {
		s.closeBackends()
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(promRegistry)

	logs, err := storage.NewLogStore(cfg.DataDir, logger)
	if err != nil {
		s.closeBackends()
		return nil, fmt.Errorf("failed to open log store: %w", err)
	}

	// sinks: csv always, mirrors when their backend is enabled
	writers := []sink.Writer{sink.NewCSVWriter(logs)}
	if s.redis != nil {
		writers = append(writers, sink.NewRedisStreamWriter(s.redis, cfg.SampleStream.Name, cfg.SampleStream.MaxLen))
	}
	if s.mqttClient != nil {
		writers = append(writers, sink.NewMQTTWriter(s.mqttClient, cfg.MQTTTopicPrefix, cfg.MQTT.QoS))
	}
	var fanout sink.Fanout
	for _, w := range writers {
		a := sink.NewAsync(w, cfg.Hub.SinkBuffer, m, logger)
		s.sinks = append(s.sinks, a)
		fanout = append(fanout, a)
	}

	s.registry = registry.New()
	resolver := identity.NewResolver(s.registry)
	s.transport = transport.NewServer(transport.Options{
		SendBuffer:   cfg.Hub.SendBuffer,
		PingInterval: cfg.Hub.PingInterval,
		PongWait:     cfg.Hub.PongWait,
	}, logger)
	broadcaster := broadcast.NewBroadcaster(s.registry, s.transport, m, logger)
	pipeline := ingest.NewPipeline(resolver, s.registry, fanout, broadcaster, m, logger)
	s.transport.SetHandler(hub.New(s.registry, resolver, pipeline, broadcaster, m, logger))

	var ledger *archive.LedgerRepository
	if s.db != nil {
		ledger = archive.NewLedgerRepository(s.db, logger)
		if err := ledger.EnsureSchema(context.Background()); err != nil {
			s.closeBackends()
			return nil, err
		}
	}
	if cfg.Archive.Enabled {
		s.uploader = s.newUploader(logs, ledger, m)
	}

	s.router = httpapi.NewRouter(logger)
	s.router.RegisterDeviceRoutes(httpapi.NewDevicesHandler(s.registry, logger))
	s.router.RegisterLogRoutes(httpapi.NewLogsHandler(logs, logger))
	s.router.RegisterArchiveRoutes(s.newArchiveHandler(ledger))
	s.router.RegisterDoctorRoutes(httpapi.NewDoctorHandler(
		s.registry, s.transport, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}), logger,
	))
	s.router.HandleHandler("/ws", s.transport)
	s.router.HandleHandler("/", http.FileServer(http.Dir(cfg.HTTP.StaticDir)))

	s.server = NewServer(cfg.HTTP.Addr, s.router, cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile, logger)
	return s, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (s *HubService) Handler() http.Handler {
	return s.router
}

// Err reports a fatal HTTP server error after Start.
func (s *HubService) Err() <-chan error {
	return s.errCh
}

// Start launches the sink workers, the archive loop and the HTTP server.
func (s *HubService) Start(ctx context.Context) error {
	s.logger.Info("Starting telemetry hub components")

	ctx, s.cancel = context.WithCancel(ctx)
	for _, a := range s.sinks {
		a.Start(ctx)
	}
	if s.uploader != nil {
		s.uploader.Start(ctx)
	}

	go func() {
		if err := s.server.Start(); err != nil {
			s.errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	s.logger.Info("Telemetry hub started",
		zap.String("addr", s.config.HTTP.Addr),
		zap.Int("sinks", len(s.sinks)),
		zap.Bool("archive", s.uploader != nil),
	)
	return nil
}

// Stop closes connections first so their offline transitions are still
// processed, then drains the sinks and releases the backends.
func (s *HubService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry hub")

	if err := s.transport.Shutdown(ctx); err != nil {
		s.logger.Error("Error closing websocket connections", zap.Error(err))
	}
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.uploader != nil {
		if err := s.uploader.Wait(ctx); err != nil {
			s.logger.Error("Archive loop did not stop", zap.Error(err))
		}
	}
	for _, a := range s.sinks {
		if err := a.Close(ctx); err != nil {
			s.logger.Error("Sink did not drain", zap.Error(err))
		}
	}

	s.closeBackends()
	s.logger.Info("Telemetry hub stopped",
		zap.Int("devices", s.registry.Len()),
	)
	return nil
}

func (s *HubService) connectBackends() error {
	cfg := s.config

	if cfg.RedisEnabled {
		s.redis = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), s.redis); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	if cfg.MQTTEnabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		s.mqttClient = client
	}

	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
	}
	return nil
}

func (s *HubService) closeBackends() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redis != nil {
		rediscommon.Close(s.redis)
	}
	if s.db != nil {
		database.Close(s.db)
	}
}

func (s *HubService) newUploader(logs *storage.LogStore, ledger *archive.LedgerRepository, m *metrics.Metrics) *archive.Uploader {
	var kv store.KV = store.NewMemoryKV()
	if s.redis != nil {
		kv = store.NewRedisKV(s.redis)
	}

	var l archive.Ledger
	if ledger != nil {
		l = ledger
	}

	objects := archive.NewHTTPObjectStore(s.config.Archive.Endpoint, s.config.Archive.Token, s.logger)
	return archive.NewUploader(logs, objects, kv, l, archive.Options{
		Prefix:   s.config.Archive.Prefix,
		Interval: s.config.Archive.Interval,
		Window:   s.config.Archive.Window,
	}, m, s.logger)
}

func (s *HubService) newArchiveHandler(ledger *archive.LedgerRepository) *httpapi.ArchiveHandler {
	var lister httpapi.UploadLister
	if ledger != nil {
		lister = ledger
	}
	var runner httpapi.PassRunner
	if s.uploader != nil {
		runner = s.uploader
	}
	return httpapi.NewArchiveHandler(lister, runner, s.logger)
}
