// Package hub dispatches connection lifecycle events and inbound messages to
// the registry, the identity resolver, the ingestion pipeline and the
// broadcaster.
package hub

import (
	"encoding/json"

	"telemetry-hub/internal/broadcast"
	"telemetry-hub/internal/identity"
	"telemetry-hub/internal/ingest"
	"telemetry-hub/internal/metrics"
	"telemetry-hub/internal/models"
	"telemetry-hub/internal/registry"

	"go.uber.org/zap"
)

// Session is one live connection as the hub sees it. The transport owns it.
type Session interface {
	broadcast.Peer
	Role() models.Role
	Address() string
	Binding() *identity.Binding
}

// Hub implements the transport's event handler.
type Hub struct {
	registry    *registry.Registry
	resolver    *identity.Resolver
	pipeline    *ingest.Pipeline
	broadcaster *broadcast.Broadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// New creates a Hub.
func New(
	reg *registry.Registry,
	resolver *identity.Resolver,
	pipeline *ingest.Pipeline,
	broadcaster *broadcast.Broadcaster,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		registry:    reg,
		resolver:    resolver,
		pipeline:    pipeline,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
	}
}

// OnConnect is called once per new connection. join makes the session
// visible to broadcasts; observers get the current snapshot before joining.
func (h *Hub) OnConnect(s Session, join func()) {
	h.metrics.ConnectionOpened(string(s.Role()))
	h.logger.Info("Connection opened",
		zap.String("conn_id", string(s.ID())),
		zap.String("role", string(s.Role())),
		zap.String("remote_addr", s.Address()),
	)

	if s.Role() == models.RoleObserver {
		h.broadcaster.Welcome(s, join)
		return
	}
	if join != nil {
		join()
	}
}

// OnMessage handles one inbound envelope. Unknown types are ignored.
func (h *Hub) OnMessage(s Session, env models.Envelope) {
	switch env.Type {
	case models.EventRegister:
		h.handleRegister(s, env)
	case models.EventSensorData:
		if _, ok := h.pipeline.Ingest(h.origin(s), env.Data); ok {
			h.updateRegistrySize()
		}
	default:
		h.logger.Debug("Ignoring message",
			zap.String("conn_id", string(s.ID())),
			zap.String("type", env.Type),
		)
	}
}

// OnDisconnect marks the device behind s offline and republishes the
// registry. A handle that was already superseded changes nothing and
// triggers no broadcast.
func (h *Hub) OnDisconnect(s Session) {
	h.metrics.ConnectionClosed(string(s.Role()))

	rec, changed := h.registry.MarkOffline(s.ID())
	h.logger.Info("Connection closed",
		zap.String("conn_id", string(s.ID())),
		zap.String("role", string(s.Role())),
		zap.String("device_id", rec.DeviceID),
	)
	if !changed {
		return
	}
	h.updateRegistrySize()
	h.broadcaster.BroadcastRegistry()
}

func (h *Hub) handleRegister(s Session, env models.Envelope) {
	var payload models.RegisterPayload
	if env.HasPayload() {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			// a malformed register is treated as one without an id
			h.logger.Debug("Malformed register payload",
				zap.String("conn_id", string(s.ID())),
				zap.Error(err),
			)
			payload = models.RegisterPayload{}
		}
	}

	deviceID := h.resolver.ForRegister(s.Binding(), payload.DeviceID)
	h.registry.UpsertOnRegister(deviceID, s.Address(), s.ID())

	if !s.Send(models.Encode(models.EventRegistered, models.RegisteredPayload{DeviceID: deviceID})) {
		h.logger.Warn("Dropped registered reply", zap.String("conn_id", string(s.ID())))
	}
	h.logger.Info("Device registered",
		zap.String("device_id", deviceID),
		zap.String("conn_id", string(s.ID())),
		zap.String("remote_addr", s.Address()),
	)

	h.updateRegistrySize()
	h.broadcaster.BroadcastRegistry()
}

func (h *Hub) origin(s Session) ingest.Origin {
	return ingest.Origin{Conn: s.ID(), Address: s.Address(), Binding: s.Binding()}
}

func (h *Hub) updateRegistrySize() {
	h.metrics.RegistrySize(h.registry.Len(), h.registry.Online())
}
