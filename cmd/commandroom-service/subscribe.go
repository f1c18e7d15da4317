// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net"
	"time"

	"github.com/nexus-goc/commandroom/lib/codec"
	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// subscribeRequest is the decoded request body for the "subscribe"
// stream action.
type subscribeRequest struct {
	Room string `cbor:"room"`
}

// subscribeFrame is a single CBOR value written on the subscribe
// stream. The Type field discriminates frame semantics:
//
//   - "snapshot": the room as of some version (Snapshot populated).
//     Always the first frame, and sent again after every resync.
//   - "ops": one committed document change (Change populated)
//   - "presence": the full presence list after a join or leave
//     (Presence populated)
//   - "event": one broadcast bus event (Event populated). Bus events
//     are lossy; Dropped counts how many this stream has lost so far.
//   - "heartbeat": connection liveness probe (no payload)
//   - "resync": the change feed overflowed; the client should discard
//     its replica and rebuild it from the snapshot that follows
//   - "error": terminal error, connection will close (Message populated)
type subscribeFrame struct {
	Type     string            `cbor:"type"`
	Snapshot *snapshotResponse `cbor:"snapshot,omitempty"`
	Change   *document.Change  `cbor:"change,omitempty"`
	Presence []schema.Presence `cbor:"presence,omitempty"`
	Event    *schema.RoomEvent `cbor:"event,omitempty"`
	Dropped  uint64            `cbor:"dropped,omitempty"`
	Message  string            `cbor:"message,omitempty"`
}

// heartbeatInterval is the time between heartbeat frames on a
// subscribe stream. The client should consider the connection dead
// if no frame (of any type) arrives within 2x this interval.
const heartbeatInterval = 30 * time.Second

// handleSubscribe is the stream handler for the "subscribe" action. It
// writes a snapshot of the room and then forwards the room's change
// feed and broadcast bus until the client disconnects, the service
// shuts down or the room is deleted.
//
// The bus is subscribed before the feed so that no event published
// after the snapshot is missed. Feed changes after the snapshot are
// delivered in commit order; replicas tolerate the duplicates a resync
// can produce.
func (cr *CommandRoomService) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	var request subscribeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		encoder.Encode(subscribeFrame{Type: "error", Message: "invalid request: " + err.Error()})
		return
	}

	relayRoom, err := cr.rooms.Room(request.Room)
	if err != nil {
		encoder.Encode(subscribeFrame{Type: "error", Message: err.Error()})
		return
	}

	bus := relayRoom.Bus().Subscribe()
	defer bus.Close()

	feed, view, err := relayRoom.Subscribe()
	if err != nil {
		encoder.Encode(subscribeFrame{Type: "error", Message: err.Error()})
		return
	}
	defer feed.Close()

	cr.logger.Info("subscribe stream started",
		"room_id", request.Room,
		"version", view.Version,
	)
	defer cr.logger.Info("subscribe stream ended", "room_id", request.Room)

	snapshot := newSnapshotResponse(view)
	if err := encoder.Encode(subscribeFrame{Type: "snapshot", Snapshot: &snapshot}); err != nil {
		cr.logger.Debug("subscribe stream write error during snapshot",
			"room_id", request.Room, "error", err)
		return
	}

	cr.subscribeEventLoop(ctx, encoder, relayRoom, feed, bus)
}

// subscribeEventLoop forwards feed and bus events as frames. On feed
// overflow it drains the stale buffer, writes a resync frame and a
// fresh snapshot, then resumes.
func (cr *CommandRoomService) subscribeEventLoop(ctx context.Context, encoder *codec.Encoder, relayRoom *relay.Room, feed *relay.Subscription, bus *relay.BusSubscription) {
	roomID := relayRoom.ID()
	heartbeat := cr.clock.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	// A nil channel blocks forever, which parks the bus case once the
	// bus is closed and lets the feed report the deletion.
	busEvents := bus.C()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-feed.C():
			if !ok {
				encoder.Encode(subscribeFrame{Type: "error", Message: "room deleted"})
				return
			}

			if feed.NeedsResync() {
				for len(feed.C()) > 0 {
					<-feed.C()
				}
				if err := encoder.Encode(subscribeFrame{Type: "resync"}); err != nil {
					cr.logger.Debug("subscribe stream write error",
						"room_id", roomID, "error", err)
					return
				}
				view, err := relayRoom.View()
				if err != nil {
					encoder.Encode(subscribeFrame{Type: "error", Message: err.Error()})
					return
				}
				snapshot := newSnapshotResponse(view)
				if err := encoder.Encode(subscribeFrame{Type: "snapshot", Snapshot: &snapshot}); err != nil {
					cr.logger.Debug("subscribe stream write error during resync",
						"room_id", roomID, "error", err)
					return
				}
				continue
			}

			if err := encoder.Encode(feedFrame(event)); err != nil {
				cr.logger.Debug("subscribe stream write error",
					"room_id", roomID, "error", err)
				return
			}

		case event, ok := <-busEvents:
			if !ok {
				busEvents = nil
				continue
			}
			if err := encoder.Encode(subscribeFrame{
				Type:    "event",
				Event:   &event,
				Dropped: bus.Dropped(),
			}); err != nil {
				cr.logger.Debug("subscribe stream write error",
					"room_id", roomID, "error", err)
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(subscribeFrame{Type: "heartbeat"}); err != nil {
				cr.logger.Debug("subscribe stream heartbeat error",
					"room_id", roomID, "error", err)
				return
			}
		}
	}
}

func feedFrame(event relay.FeedEvent) subscribeFrame {
	if event.Kind == relay.FeedPresence {
		return subscribeFrame{Type: "presence", Presence: event.Presence}
	}
	change := event.Change
	return subscribeFrame{Type: "ops", Change: &change}
}
