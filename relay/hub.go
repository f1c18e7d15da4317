// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nexus-goc/commandroom/lib/clock"
	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/lib/snapshot"
)

// HubConfig configures a [Hub].
type HubConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// Store, when non-nil, persists room documents. Rooms are loaded
	// from it on first open.
	Store *snapshot.Store

	// FlushInterval is how often [Hub.Run] saves changed rooms.
	FlushInterval time.Duration

	// AIDefaults is the assistant configuration of rooms created
	// without a snapshot. Zero means [schema.DefaultAIConfig].
	AIDefaults schema.AIConfig
}

// Hub holds every live room. Safe for concurrent use.
type Hub struct {
	clock  clock.Clock
	logger *slog.Logger
	store  *snapshot.Store

	flushInterval time.Duration
	aiDefaults    schema.AIConfig

	mutex sync.Mutex
	rooms map[string]*Room

	// persistMutex serializes snapshot writes against deletes so a
	// flush cannot resurrect a deleted room's file.
	persistMutex sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(config HubConfig) *Hub {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 10 * time.Second
	}
	if config.AIDefaults == (schema.AIConfig{}) {
		config.AIDefaults = schema.DefaultAIConfig()
	}
	return &Hub{
		clock:         config.Clock,
		logger:        config.Logger,
		store:         config.Store,
		flushInterval: config.FlushInterval,
		aiDefaults:    config.AIDefaults,
		rooms:         make(map[string]*Room),
	}
}

// Open returns the room with id, creating it on first use. A room with
// a stored snapshot resumes from it. created reports whether this call
// brought the room into memory.
func (h *Hub) Open(id string) (room *Room, created bool, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, ok := h.rooms[id]; ok {
		return room, false, nil
	}

	doc, version, err := h.load(id)
	if err != nil {
		return nil, false, err
	}
	room = newRoom(id, doc, version, h.logger)
	h.rooms[id] = room
	h.logger.Info("room opened", "room_id", id, "version", version)
	return room, true, nil
}

func (h *Hub) load(id string) (*document.Document, uint64, error) {
	if h.store == nil {
		return document.NewWithAIConfig(h.aiDefaults), 0, nil
	}
	stored, err := h.store.Load(id)
	if errors.Is(err, os.ErrNotExist) {
		return document.NewWithAIConfig(h.aiDefaults), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("relay: loading room %s: %w", id, err)
	}
	doc, err := document.Decode(stored.Document)
	if err != nil {
		return nil, 0, fmt.Errorf("relay: decoding room %s: %w", id, err)
	}
	return doc, stored.Version, nil
}

// Lookup returns the live room with id.
func (h *Hub) Lookup(id string) (*Room, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	room, ok := h.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return room, nil
}

// Rooms returns the ids of live rooms, sorted.
func (h *Hub) Rooms() []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeleteRoom closes the room and removes its snapshot. Sessions see the
// room's Done channel fire and their subscriptions close.
func (h *Hub) DeleteRoom(id string) error {
	h.mutex.Lock()
	room, ok := h.rooms[id]
	delete(h.rooms, id)
	h.mutex.Unlock()

	h.persistMutex.Lock()
	defer h.persistMutex.Unlock()

	if !ok {
		if h.store == nil {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
		}
		// A room that only exists on disk can still be deleted.
		if _, err := h.store.Load(id); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
		}
	} else {
		room.close()
	}

	if h.store != nil {
		if err := h.store.Remove(id); err != nil {
			return fmt.Errorf("relay: deleting room %s: %w", id, err)
		}
	}
	h.logger.Info("room deleted", "room_id", id)
	return nil
}

// Flush saves every room changed since its last save. Errors for
// individual rooms are joined; a failed room is retried next flush.
func (h *Hub) Flush() error {
	if h.store == nil {
		return nil
	}

	h.mutex.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mutex.Unlock()

	h.persistMutex.Lock()
	defer h.persistMutex.Unlock()

	var errs []error
	for _, room := range rooms {
		encoded, version, ok, err := room.takeDirty()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if err := h.store.Save(room.id, version, h.clock.Now(), encoded); err != nil {
			room.markDirty()
			errs = append(errs, fmt.Errorf("relay: saving room %s: %w", room.id, err))
			continue
		}
		h.logger.Debug("room snapshot saved", "room_id", room.id, "version", version)
	}
	return errors.Join(errs...)
}

// Run flushes changed rooms every FlushInterval until ctx is cancelled,
// then flushes once more. Without a store it only waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.store == nil {
		<-ctx.Done()
		return nil
	}

	ticker := h.clock.NewTicker(h.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return h.Flush()
		case <-ticker.C:
			if err := h.Flush(); err != nil {
				h.logger.Error("snapshot flush failed", "error", err)
			}
		}
	}
}
