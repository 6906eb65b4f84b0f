// Package registry keeps the entities a dispatcher serves, indexed by
// unique id and by command topic.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kuretru/ha-minimqtt/entity"
)

var ErrDuplicate = errors.New("duplicate unique id")

type Cell struct {
	Entity       entity.Entity
	Registered   time.Time
	LastCommand  time.Time
	CommandCount int
}

type Registry struct {
	lock    sync.RWMutex
	order   []string
	byID    map[string]*Cell
	byTopic map[string]string
	now     func() time.Time
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:    make(map[string]*Cell),
		byTopic: make(map[string]string),
		now:     time.Now,
		logger:  logger,
	}
}

// Add rejects a second entity with the same unique id or command topic.
func (r *Registry) Add(e entity.Entity) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	id := e.UniqueID()
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("Registry: add %s: %w", id, ErrDuplicate)
	}
	topic := e.CommandTopic()
	if topic != "" {
		if owner, ok := r.byTopic[topic]; ok {
			return fmt.Errorf("Registry: add %s: command topic %s already owned by %s", id, topic, owner)
		}
		r.byTopic[topic] = id
	}
	r.byID[id] = &Cell{Entity: e, Registered: r.now()}
	r.order = append(r.order, id)
	r.logger.Debug("Registry: entity added", "entity", id, "component", e.Component())
	return nil
}

// ByCommandTopic finds the entity subscribed to topic.
func (r *Registry) ByCommandTopic(topic string) (entity.Entity, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.byTopic[topic]
	if !ok {
		return nil, false
	}
	return r.byID[id].Entity, true
}

// Touch records a command delivered to uniqueID.
func (r *Registry) Touch(uniqueID string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if cell, ok := r.byID[uniqueID]; ok {
		cell.LastCommand = r.now()
		cell.CommandCount++
	}
}

// Entities returns every entity in the order it was added.
func (r *Registry) Entities() []entity.Entity {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]entity.Entity, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byID[id].Entity)
	}
	return result
}

// Cells returns a snapshot of the bookkeeping of every entity.
func (r *Registry) Cells() []Cell {
	r.lock.RLock()
	defer r.lock.RUnlock()
	result := make([]Cell, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.byID[id])
	}
	return result
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.order)
}
