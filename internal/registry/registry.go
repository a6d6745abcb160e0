// Package registry holds the authoritative in-memory device table.
//
// Every mutation runs under a single mutex and every read returns deep
// copies, so callers can hand results to slow consumers without holding the
// lock or observing later mutations.
package registry

import (
	"sync"
	"time"

	"telemetry-hub/internal/models"
)

// Registry maps deviceId to DeviceRecord. Records are never deleted; offline
// devices stay listed with an empty connection handle.
type Registry struct {
	mu      sync.Mutex
	records map[string]*models.DeviceRecord
	order   []string                 // first-registration order
	byConn  map[models.ConnID]string // live handle -> deviceId
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for LastSeenAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*models.DeviceRecord),
		byConn:  make(map[models.ConnID]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpsertOnRegister creates the record for deviceID or refreshes its address,
// handle and LastSeenAt. LastPosition is preserved. The previous handle, if
// any, is superseded.
func (r *Registry) UpsertOnRegister(deviceID, sourceAddress string, conn models.ConnID) models.DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec, _ := r.lookupOrCreate(deviceID, sourceAddress, now)
	rec.SourceAddress = sourceAddress
	rec.LastSeenAt = now
	r.attach(rec, conn, now)
	return rec.Clone()
}

// ApplySample records a sample for deviceID. An unknown id is registered
// implicitly with sourceAddress, and created reports that this call made the
// record. LastPosition only changes when pos is non-nil; LastSeenAt and the
// handle always change.
func (r *Registry) ApplySample(deviceID, sourceAddress string, pos *models.Position, conn models.ConnID) (models.DeviceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cur, created := r.lookupOrCreate(deviceID, sourceAddress, now)
	if pos != nil {
		p := *pos
		cur.LastPosition = &p
	}
	cur.LastSeenAt = now
	r.attach(cur, conn, now)
	return cur.Clone(), created
}

// MarkOffline clears the handle of the record currently holding conn. It
// reports whether a record changed; false means the handle was unknown or
// already superseded by a newer connection.
func (r *Registry) MarkOffline(conn models.ConnID) (models.DeviceRecord, bool) {
	if conn == "" {
		return models.DeviceRecord{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.byConn[conn]
	if !ok {
		return models.DeviceRecord{}, false
	}
	delete(r.byConn, conn)

	rec := r.records[deviceID]
	if rec == nil || rec.Conn != conn {
		return models.DeviceRecord{}, false
	}
	rec.Conn = ""
	rec.LastSeenAt = r.now()
	return rec.Clone(), true
}

// Snapshot returns copies of all records in first-registration order.
func (r *Registry) Snapshot() []models.DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.DeviceRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].Clone())
	}
	return out
}

// Get returns a copy of one record.
func (r *Registry) Get(deviceID string) (models.DeviceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return models.DeviceRecord{}, false
	}
	return rec.Clone(), true
}

// Contains reports whether deviceID has ever been registered.
func (r *Registry) Contains(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.records[deviceID]
	return ok
}

// Len returns the number of known devices, online or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}

// Online returns the number of records with a live handle.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byConn)
}

func (r *Registry) lookupOrCreate(deviceID, sourceAddress string, now time.Time) (*models.DeviceRecord, bool) {
	rec, ok := r.records[deviceID]
	if ok {
		return rec, false
	}
	rec = &models.DeviceRecord{
		DeviceID:      deviceID,
		SourceAddress: sourceAddress,
		LastSeenAt:    now,
	}
	r.records[deviceID] = rec
	r.order = append(r.order, deviceID)
	return rec, true
}

// attach makes conn the record's only live handle. A handle belongs to at
// most one record, so a connection that moves to a different deviceId leaves
// its previous record offline.
func (r *Registry) attach(rec *models.DeviceRecord, conn models.ConnID, now time.Time) {
	if rec.Conn == conn {
		if conn != "" {
			r.byConn[conn] = rec.DeviceID
		}
		return
	}
	if rec.Conn != "" && r.byConn[rec.Conn] == rec.DeviceID {
		delete(r.byConn, rec.Conn)
	}
	if conn != "" {
		if prevID, ok := r.byConn[conn]; ok && prevID != rec.DeviceID {
			if prev := r.records[prevID]; prev != nil && prev.Conn == conn {
				prev.Conn = ""
				prev.LastSeenAt = now
			}
		}
		r.byConn[conn] = rec.DeviceID
	}
	rec.Conn = conn
}
