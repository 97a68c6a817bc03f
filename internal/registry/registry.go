// Package registry holds the authoritative in-memory table of
// registered, authenticated clients: their serialized-write handles
// and advertised model catalogs. Grounded on llm-gateway's
// DynamoDBTenantStore read/cache pattern (internal/store/dynamodb.go),
// generalized from a single-key lookup cache to
// a full mutable registry since the core needs insert/remove/snapshot,
// not just cached reads.
package registry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/modelgate/modelgate/internal/wire"
)

// Writer is the minimal write surface a Record needs on the
// underlying control connection. *wire.Conn satisfies this.
type Writer interface {
	WriteMessage(m wire.Message) error
}

// Metrics is the last-known system telemetry for a client, refreshed
// by SystemInfo messages.
type Metrics struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	ComputerName  string
}

// Record is the per-client registry entry. writeMu serializes writes
// to Writer independently of the registry's own lock: writes to the
// client's writer handle go through the record's own write-serializing
// mutex, never the registry lock.
type Record struct {
	ClientID      string
	UserID        string
	ConnectedAt   time.Time
	Authenticated bool

	writeMu sync.Mutex
	writer  Writer

	mu             sync.RWMutex
	models         []wire.Model
	metrics        *Metrics
	lastHeartbeat  time.Time
}

func NewRecord(clientID, userID string, writer Writer) *Record {
	return &Record{
		ClientID:      clientID,
		UserID:        userID,
		ConnectedAt:   time.Now(),
		Authenticated: true,
		writer:        writer,
	}
}

// Send writes m to the client, serialized against any other sender on
// this record. Callers must not hold the registry lock while calling
// Send: the write can block on socket backpressure, and the registry
// lock must never be held across unbounded I/O.
func (r *Record) Send(m wire.Message) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.writer.WriteMessage(m)
}

// SetModels replaces the advertised catalog and refreshes the
// heartbeat timestamp. A nil slice leaves the prior catalog as-is —
// the catalog is replaced only when a new one is present.
func (r *Record) SetModels(models []wire.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHeartbeat = time.Now()
	if models != nil {
		r.models = models
	}
}

// SetMetrics replaces the last-known system metrics and refreshes the
// heartbeat timestamp.
func (r *Record) SetMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = &m
	r.lastHeartbeat = time.Now()
}

// Snapshot returns a read-only copy of the mutable fields, safe to
// hand to callers outside any lock.
type Snapshot struct {
	ClientID      string
	UserID        string
	ConnectedAt   time.Time
	Models        []wire.Model
	Metrics       *Metrics
	LastHeartbeat time.Time
}

func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ClientID:      r.ClientID,
		UserID:        r.UserID,
		ConnectedAt:   r.ConnectedAt,
		Models:        append([]wire.Model(nil), r.models...),
		Metrics:       r.metrics,
		LastHeartbeat: r.lastHeartbeat,
	}
}

func (r *Record) hasModel(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.models {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// Registry is the client_id -> Record table. The registry lock guards
// only the map and the first-seen order slice; it is never held
// across I/O.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Record
	order   []string // first-seen insertion order, for deterministic find_by_model tie-breaking
}

func New() *Registry {
	return &Registry{byID: make(map[string]*Record)}
}

// Insert fails if id is already present: at most one record per
// client_id is ever live.
func (g *Registry) Insert(id string, rec *Record) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.byID[id]; exists {
		return false
	}
	g.byID[id] = rec
	g.order = append(g.order, id)
	return true
}

// Remove is idempotent and safe to call from both the per-client
// reader (on disconnect) and the router (on write failure).
func (g *Registry) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byID[id]; !ok {
		return
	}
	delete(g.byID, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Get returns the record for id, or nil if absent.
func (g *Registry) Get(id string) *Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byID[id]
}

// WithClient hands fn a reference under the registry read lock. fn
// must not perform unbounded work: this holds the registry lock for
// its duration.
func (g *Registry) WithClient(id string, fn func(*Record)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if rec := g.byID[id]; rec != nil {
		fn(rec)
	}
}

// SnapshotKeys returns a stable list of client IDs usable for random
// selection.
func (g *Registry) SnapshotKeys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]string, len(g.order))
	copy(keys, g.order)
	return keys
}

// Len returns the number of registered clients.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byID)
}

// Snapshots returns a Snapshot per client in first-seen order, for the
// admin API and --monitor.
func (g *Registry) Snapshots() []Snapshot {
	g.mu.RLock()
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	recs := make([]*Record, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, g.byID[id])
	}
	g.mu.RUnlock()

	out := make([]Snapshot, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Snapshot())
	}
	return out
}

// FindByModel returns any client_id whose advertised catalog contains
// modelID. Among multiple matches, the first-seen client wins — a
// deliberately deterministic tie-break.
func (g *Registry) FindByModel(modelID string) (string, bool) {
	g.mu.RLock()
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	recs := make(map[string]*Record, len(g.byID))
	for k, v := range g.byID {
		recs[k] = v
	}
	g.mu.RUnlock()

	for _, id := range ids {
		if rec, ok := recs[id]; ok && rec.hasModel(modelID) {
			return id, true
		}
	}
	return "", false
}

// RandomClient picks a uniformly random registered client_id.
func (g *Registry) RandomClient() (string, bool) {
	keys := g.SnapshotKeys()
	if len(keys) == 0 {
		return "", false
	}
	return keys[rand.Intn(len(keys))], true
}
