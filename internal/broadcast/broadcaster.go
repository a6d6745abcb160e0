// Package broadcast fans registry snapshots and live samples out to every
// connected observer.
package broadcast

import (
	"sync"

	"telemetry-hub/internal/metrics"
	"telemetry-hub/internal/models"

	"go.uber.org/zap"
)

// Peer is a connection the broadcaster can write to. Send must not block; it
// returns false when the message was dropped for that peer.
type Peer interface {
	ID() models.ConnID
	Send(msg []byte) bool
}

// ObserverSource lists the observer connections currently open. The
// transport owns this set.
type ObserverSource interface {
	Observers() []Peer
}

// SnapshotSource provides the registry view to publish.
type SnapshotSource interface {
	Snapshot() []models.DeviceRecord
}

// Broadcaster delivers "devices" and "sensor-data" messages. All deliveries
// are serialized on one mutex, which never covers network I/O: Peer.Send only
// enqueues. This keeps every observer's stream in the order the hub produced
// it, and a snapshot can never be overtaken by an older one.
type Broadcaster struct {
	mu        sync.Mutex
	registry  SnapshotSource
	observers ObserverSource
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(registry SnapshotSource, observers ObserverSource, m *metrics.Metrics, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		observers: observers,
		metrics:   m,
		logger:    logger,
	}
}

// BroadcastRegistry sends the current snapshot to every observer.
func (b *Broadcaster) BroadcastRegistry() {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := b.snapshotMessage()
	b.fanout(models.EventDevices, msg)
}

// BroadcastSample sends one accepted sample to every observer.
func (b *Broadcaster) BroadcastSample(event models.SampleEvent) {
	msg := models.Encode(models.EventSensorData, event.View())

	b.mu.Lock()
	defer b.mu.Unlock()

	b.fanout(models.EventSensorData, msg)
}

// Welcome queues the current snapshot for a new observer and then calls
// join, which should add the observer to the set ObserverSource returns.
// Both happen under the broadcast lock, so the snapshot is the first thing
// the observer receives.
func (b *Broadcaster) Welcome(p Peer, join func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := b.snapshotMessage()
	if !p.Send(msg) {
		b.metrics.Broadcast(models.EventDevices, 0, 1)
		b.logger.Debug("Dropped initial snapshot", zap.String("conn_id", string(p.ID())))
	} else {
		b.metrics.Broadcast(models.EventDevices, 1, 0)
	}
	if join != nil {
		join()
	}
}

func (b *Broadcaster) snapshotMessage() []byte {
	return models.Encode(models.EventDevices, models.Views(b.registry.Snapshot()))
}

func (b *Broadcaster) fanout(msgType string, msg []byte) {
	if msg == nil {
		return
	}

	delivered, dropped := 0, 0
	for _, p := range b.observers.Observers() {
		if p.Send(msg) {
			delivered++
			continue
		}
		dropped++
		b.logger.Debug("Dropped broadcast for slow observer",
			zap.String("type", msgType),
			zap.String("conn_id", string(p.ID())),
		)
	}
	b.metrics.Broadcast(msgType, delivered, dropped)
}
