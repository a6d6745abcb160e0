// Package ingest validates inbound sensor samples and drives the registry,
// sink and broadcast updates for each one.
package ingest

import (
	"encoding/json"
	"time"

	"telemetry-hub/internal/identity"
	"telemetry-hub/internal/metrics"
	"telemetry-hub/internal/models"
	"telemetry-hub/internal/sink"

	"go.uber.org/zap"
)

// RegistryWriter is the registry surface the pipeline needs.
type RegistryWriter interface {
	ApplySample(deviceID, sourceAddress string, pos *models.Position, conn models.ConnID) (models.DeviceRecord, bool)
}

// Broadcaster fans samples out to observers. BroadcastRegistry is used when a
// sample registers its device implicitly.
type Broadcaster interface {
	BroadcastRegistry()
	BroadcastSample(event models.SampleEvent)
}

// Origin identifies the connection a message arrived on.
type Origin struct {
	Conn    models.ConnID
	Address string
	Binding *identity.Binding
}

// Pipeline is the sensor-data handler.
type Pipeline struct {
	resolver    *identity.Resolver
	registry    RegistryWriter
	sink        sink.Submitter
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewPipeline wires a Pipeline. sink may be nil when persistence is disabled.
func NewPipeline(
	resolver *identity.Resolver,
	registry RegistryWriter,
	submitter sink.Submitter,
	broadcaster Broadcaster,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:    resolver,
		registry:    registry,
		sink:        submitter,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest handles one sensor-data payload. An absent payload is ignored and
// reported as false. Anything else yields an event: identity is resolved,
// the registry updated, and the event handed to the sink and the broadcaster.
// Both hand-offs are non-blocking and independent of each other. A sample
// from an unknown device also triggers a registry broadcast ahead of the
// sample itself.
func (p *Pipeline) Ingest(origin Origin, payload json.RawMessage) (models.SampleEvent, bool) {
	if isAbsent(payload) {
		return models.SampleEvent{}, false
	}

	receivedAt := p.now()
	n := Normalize(payload, receivedAt)

	deviceID := p.resolver.ForSample(origin.Binding, n.ClaimedID)
	event := models.SampleEvent{
		DeviceID:      deviceID,
		ObservedAt:    n.ObservedAt,
		ReceivedAt:    receivedAt,
		Acceleration:  n.Acceleration,
		Position:      n.Position,
		SourceAddress: origin.Address,
	}

	_, implicit := p.registry.ApplySample(deviceID, origin.Address, event.Position, origin.Conn)

	if p.sink != nil {
		p.sink.Submit(sink.NewRecord(event))
	}
	if p.broadcaster != nil {
		if implicit {
			p.broadcaster.BroadcastRegistry()
		}
		p.broadcaster.BroadcastSample(event)
	}

	outcome := "accepted"
	if implicit {
		outcome = "implicit_registration"
	}
	p.metrics.Sample(outcome)
	p.logger.Debug("Sample accepted",
		zap.String("device_id", deviceID),
		zap.String("conn_id", string(origin.Conn)),
		zap.Bool("has_position", event.Position != nil),
		zap.Bool("implicit", implicit),
	)
	return event, true
}
