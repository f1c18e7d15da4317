// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// Room is one relay room: the authoritative document, its version,
// presence, the change feed and the broadcast bus. Safe for concurrent
// use.
type Room struct {
	id     string
	logger *slog.Logger
	bus    *Bus

	// mutex guards everything below. Held only for in-memory work.
	mutex       sync.Mutex
	document    *document.Document
	version     uint64
	presence    map[string]*presenceEntry
	subscribers map[*Subscription]struct{}
	claims      map[string]string
	dirty       bool
	closed      bool
	done        chan struct{}
}

// presenceEntry is one identity's presence and the sessions holding it.
type presenceEntry struct {
	presence schema.Presence
	sessions map[string]struct{}
}

func newRoom(id string, doc *document.Document, version uint64, logger *slog.Logger) *Room {
	return &Room{
		id:          id,
		logger:      logger,
		bus:         newBus(),
		document:    doc,
		version:     version,
		presence:    make(map[string]*presenceEntry),
		subscribers: make(map[*Subscription]struct{}),
		claims:      make(map[string]string),
		done:        make(chan struct{}),
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Bus returns the room's broadcast bus.
func (r *Room) Bus() *Bus { return r.bus }

// Done is closed when the room is deleted.
func (r *Room) Done() <-chan struct{} { return r.done }

// Mutate runs fn as a transaction writing as actor. fn reads the
// committed document through the Tx and buffers writes; when it returns
// nil the writes commit atomically, bump the version and reach every
// feed subscriber. When fn returns an error nothing is applied and the
// error is returned unchanged.
//
// fn runs under the room lock: it must not block, do I/O, or call back
// into the room. A transaction with no writes commits nothing and
// returns the current version.
func (r *Room) Mutate(actor string, fn func(*document.Tx) error) (document.Change, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return document.Change{}, ErrRoomClosed
	}

	tx := r.document.Begin(actor)
	if err := fn(tx); err != nil {
		return document.Change{}, err
	}
	ops := tx.Ops()
	if len(ops) == 0 {
		return document.Change{Version: r.version, Actor: actor}, nil
	}
	if err := r.document.ApplyAll(ops); err != nil {
		return document.Change{}, fmt.Errorf("relay: committing to room %s: %w", r.id, err)
	}

	r.version++
	r.dirty = true
	change := document.Change{Version: r.version, Actor: actor, Ops: ops}
	r.notifyLocked(FeedEvent{Kind: FeedChange, Change: change})
	return change, nil
}

// ClaimRun reserves a tool run for holder. It fails when another
// holder has the run reserved or the run's outcome is already in the
// tool log, so at most one holder ever executes a run. The reservation
// lasts until ReleaseRun; release it only after the outcome commits.
func (r *Room) ClaimRun(runID, holder string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed || r.document.HasToolLog(runID) {
		return false
	}
	if _, taken := r.claims[runID]; taken {
		return false
	}
	r.claims[runID] = holder
	return true
}

// ReleaseRun drops holder's reservation of runID.
func (r *Room) ReleaseRun(runID, holder string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.claims[runID] == holder {
		delete(r.claims, runID)
	}
}

// State returns the committed values of the room document.
func (r *Room) State() schema.RoomState {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.document.State()
}

// Version returns the number of commits since the room was created.
func (r *Room) Version() uint64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.version
}

// View returns a consistent view of the room.
func (r *Room) View() (View, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.viewLocked()
}

func (r *Room) viewLocked() (View, error) {
	encoded, err := r.document.Encode()
	if err != nil {
		return View{}, fmt.Errorf("relay: encoding room %s: %w", r.id, err)
	}
	return View{
		RoomID:   r.id,
		Version:  r.version,
		State:    r.document.State(),
		Presence: r.presenceLocked(),
		Document: encoded,
	}, nil
}

// Subscribe opens a change feed subscription together with the view it
// starts from. Every commit after the view is delivered on the
// subscription; none before it.
func (r *Room) Subscribe() (*Subscription, View, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return nil, View{}, ErrRoomClosed
	}
	view, err := r.viewLocked()
	if err != nil {
		return nil, View{}, err
	}
	subscription := &Subscription{
		room:    r,
		channel: make(chan FeedEvent, feedBufferSize),
	}
	r.subscribers[subscription] = struct{}{}
	return subscription, view, nil
}

// Join records presence for a session. Sessions sharing an identity
// share one presence entry, refreshed by each join.
func (r *Room) Join(presence schema.Presence) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	entry, ok := r.presence[presence.Identity]
	if !ok {
		entry = &presenceEntry{sessions: make(map[string]struct{})}
		r.presence[presence.Identity] = entry
	}
	entry.presence = presence
	entry.sessions[presence.SessionID] = struct{}{}
	r.notifyLocked(FeedEvent{Kind: FeedPresence, Presence: r.presenceLocked()})
	return nil
}

// Leave drops one session's hold on its identity's presence. The entry
// disappears when the identity's last session leaves, which is what
// gone reports. Leave never touches the document.
func (r *Room) Leave(identity, sessionID string) (gone bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, ok := r.presence[identity]
	if !ok {
		return false
	}
	if _, held := entry.sessions[sessionID]; !held {
		return false
	}
	delete(entry.sessions, sessionID)
	if len(entry.sessions) == 0 {
		delete(r.presence, identity)
		gone = true
	}
	if !r.closed {
		r.notifyLocked(FeedEvent{Kind: FeedPresence, Presence: r.presenceLocked()})
	}
	return gone
}

// Presence returns the present identities ordered by connection time.
func (r *Room) Presence() []schema.Presence {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.presenceLocked()
}

func (r *Room) presenceLocked() []schema.Presence {
	list := make([]schema.Presence, 0, len(r.presence))
	for _, entry := range r.presence {
		list = append(list, entry.presence)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ConnectedAt != list[j].ConnectedAt {
			return list[i].ConnectedAt < list[j].ConnectedAt
		}
		return list[i].Identity < list[j].Identity
	})
	return list
}

// Stats is a point-in-time summary of a room.
type Stats struct {
	RoomID          string `json:"roomId"`
	Version         uint64 `json:"version"`
	Present         int    `json:"present"`
	FeedSubscribers int    `json:"feedSubscribers"`
	BusSubscribers  int    `json:"busSubscribers"`
	BusPublished    uint64 `json:"busPublished"`
	BusDropped      uint64 `json:"busDropped"`
}

// Stats returns counters for the room.
func (r *Room) Stats() Stats {
	r.mutex.Lock()
	stats := Stats{
		RoomID:          r.id,
		Version:         r.version,
		Present:         len(r.presence),
		FeedSubscribers: len(r.subscribers),
	}
	r.mutex.Unlock()
	stats.BusSubscribers = r.bus.Subscribers()
	stats.BusPublished = r.bus.Published()
	stats.BusDropped = r.bus.Dropped()
	return stats
}

// takeDirty returns the encoded document when it changed since the
// last call.
func (r *Room) takeDirty() (encoded []byte, version uint64, ok bool, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.dirty || r.closed {
		return nil, 0, false, nil
	}
	encoded, err = r.document.Encode()
	if err != nil {
		return nil, 0, false, fmt.Errorf("relay: encoding room %s: %w", r.id, err)
	}
	r.dirty = false
	return encoded, r.version, true, nil
}

// markDirty re-flags the room after a failed save.
func (r *Room) markDirty() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.dirty = true
}

// close ends the room: presence is dropped, feed subscriptions and the
// bus are closed, and Done fires.
func (r *Room) close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.presence = make(map[string]*presenceEntry)
	for subscription := range r.subscribers {
		subscription.closeChannel()
	}
	r.subscribers = make(map[*Subscription]struct{})
	close(r.done)
	r.bus.close()
}
