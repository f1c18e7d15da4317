// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"sync"
	"sync/atomic"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// feedBufferSize is the per-subscriber buffer of the change feed. It
// absorbs a full streaming burst; a subscriber that overflows it is
// marked for resync instead of blocking the committer.
const feedBufferSize = 256

// FeedKind identifies a change feed event.
type FeedKind string

const (
	// FeedChange carries a committed document change.
	FeedChange FeedKind = "change"

	// FeedPresence carries the full presence list after a join or leave.
	FeedPresence FeedKind = "presence"
)

// FeedEvent is one item of a room's change feed.
type FeedEvent struct {
	Kind     FeedKind
	Change   document.Change
	Presence []schema.Presence
}

// View is a consistent picture of a room taken under its lock.
type View struct {
	RoomID   string
	Version  uint64
	State    schema.RoomState
	Presence []schema.Presence

	// Document is the encoded document, suitable for
	// [document.NewReplica].
	Document []byte
}

// Subscription is a change feed subscriber.
type Subscription struct {
	room    *Room
	channel chan FeedEvent
	resync  atomic.Bool
	once    sync.Once
}

// C delivers feed events in commit order. It is closed when the
// subscription is closed or the room is deleted.
func (s *Subscription) C() <-chan FeedEvent { return s.channel }

// NeedsResync reports (and clears) whether events were dropped since
// the last call. A subscriber that sees true must discard what it has
// buffered and reload the room with [Room.View].
func (s *Subscription) NeedsResync() bool {
	return s.resync.CompareAndSwap(true, false)
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.room.mutex.Lock()
	defer s.room.mutex.Unlock()
	if _, ok := s.room.subscribers[s]; ok {
		delete(s.room.subscribers, s)
		s.closeChannel()
	}
}

func (s *Subscription) closeChannel() {
	s.once.Do(func() { close(s.channel) })
}

// notifyLocked delivers event to every subscriber without blocking.
// Must be called with room.mutex held.
func (r *Room) notifyLocked(event FeedEvent) {
	for subscription := range r.subscribers {
		select {
		case subscription.channel <- event:
		default:
			if !subscription.resync.Swap(true) {
				r.logger.Debug("change feed subscriber overflowed",
					"room_id", r.id,
					"version", r.version,
				)
			}
		}
	}
}
