package broadcast

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Publisher receives table events after every successful mutation.
// Implementations must not block on delivery.
type Publisher interface {
	Publish(tableID string, ev Event)
}

// Subscriber is an observer of one or more tables, typically a client
// connection.
type Subscriber interface {
	// ID uniquely identifies the subscriber within a registry.
	ID() string
	// Viewer is the player the subscriber sees the table as, or "" for a
	// spectator.
	Viewer() string
	// Deliver queues ev for the subscriber without blocking.
	Deliver(ev Event) error
}

// Registry maps table ids to their subscribers. It is safe for concurrent
// use.
//
// Table snapshots are delivered in version order: a tableUpdate that is not
// newer than the last one sent for its table is skipped, so a writer that
// publishes late cannot overwrite a newer snapshot at the observers.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]map[string]Subscriber
	logger *log.Logger

	pubMu    sync.Mutex
	versions map[string]int64
}

var _ Publisher = (*Registry)(nil)

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		tables:   make(map[string]map[string]Subscriber),
		logger:   logger.WithPrefix("broadcast"),
		versions: make(map[string]int64),
	}
}

// Subscribe registers sub for events on tableID. Subscribing twice is a
// no-op.
func (r *Registry) Subscribe(tableID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.tables[tableID]
	if !ok {
		subs = make(map[string]Subscriber)
		r.tables[tableID] = subs
	}
	subs[sub.ID()] = sub
	r.logger.Debug("Subscribed", "table", tableID, "subscriber", sub.ID(), "total", len(subs))
}

func (r *Registry) Unsubscribe(tableID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(tableID, sub.ID())
}

// UnsubscribeAll removes sub from every table, for disconnects.
func (r *Registry) UnsubscribeAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tableID := range r.tables {
		r.remove(tableID, sub.ID())
	}
}

func (r *Registry) remove(tableID, id string) {
	subs, ok := r.tables[tableID]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.tables, tableID)
	}
}

// Count returns the number of subscribers on tableID.
func (r *Registry) Count(tableID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables[tableID])
}

// Publish delivers ev to every subscriber of tableID, each receiving its own
// redacted view. Subscribers that fail to accept the event are dropped.
func (r *Registry) Publish(tableID string, ev Event) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	switch {
	case ev.Type == TypeTableUpdate && ev.Table != nil:
		if last, ok := r.versions[tableID]; ok && ev.Table.Version <= last {
			r.logger.Debug("Skipping stale snapshot", "table", tableID, "version", ev.Table.Version, "sent", last)
			return
		}
		r.versions[tableID] = ev.Table.Version
	case ev.Type == TypeRoomUpdate && ev.Room == nil:
		// A table created again under the same id starts over at version 1.
		delete(r.versions, tableID)
	}

	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.tables[tableID]))
	for _, sub := range r.tables[tableID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	var failed []Subscriber
	for _, sub := range subs {
		if err := sub.Deliver(ev.ForViewer(sub.Viewer())); err != nil {
			r.logger.Warn("Dropping subscriber", "table", tableID, "subscriber", sub.ID(), "error", err)
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		r.Unsubscribe(tableID, sub)
	}

	r.logger.Debug("Published", "table", tableID, "type", ev.Type, "recipients", len(subs)-len(failed))
}
