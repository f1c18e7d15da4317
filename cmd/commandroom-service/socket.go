// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/nexus-goc/commandroom/lib/codec"
	"github.com/nexus-goc/commandroom/lib/identity"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/lib/service"
	"github.com/nexus-goc/commandroom/lib/version"
	"github.com/nexus-goc/commandroom/relay"
	"github.com/nexus-goc/commandroom/room"
)

// registerActions registers all socket API actions on the server.
// Session actions name the session returned by "join"; room actions
// name the room directly.
func (cr *CommandRoomService) registerActions(server *service.SocketServer) {
	server.Handle("status", cr.handleStatus)

	// Session lifecycle.
	server.Handle("join", cr.handleJoin)
	server.Handle("leave", cr.handleLeave)
	server.Handle("snapshot", cr.handleSnapshot)

	// Assistant configuration and conversation.
	server.Handle("set-ai-config", cr.handleSetAIConfig)
	server.Handle("release-control", cr.handleReleaseControl)
	server.Handle("set-ai-routing", cr.handleSetAIRouting)
	server.Handle("say", cr.handleSay)
	server.Handle("cancel", cr.handleCancel)

	// Document editing.
	server.Handle("todo-add", cr.handleTodoAdd)
	server.Handle("todo-toggle", cr.handleTodoToggle)
	server.Handle("todo-move", cr.handleTodoMove)
	server.Handle("todo-delete", cr.handleTodoDelete)
	server.Handle("note-shared", cr.handleNoteShared)
	server.Handle("note-mine", cr.handleNoteMine)
	server.Handle("set-url", cr.handleSetURL)
	server.Handle("share-intel", cr.handleShareIntel)
	server.Handle("notes-html", cr.handleNotesHTML)

	// Administration.
	server.Handle("delete-room", cr.handleDeleteRoom)

	server.HandleStream("subscribe", cr.handleSubscribe)
}

// decodeRequest unmarshals raw into request, reporting failures as
// invalid arguments.
func decodeRequest(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return &room.Error{Kind: room.KindInvalidArgument, Message: "invalid request", Err: err}
	}
	return nil
}

// session resolves a session id from a request.
func (cr *CommandRoomService) session(id string) (*room.Session, error) {
	if id == "" {
		return nil, &room.Error{Kind: room.KindInvalidArgument, Message: "missing required field: session"}
	}
	return cr.rooms.Session(id)
}

// sessionRequest is the body of actions that need nothing but the
// session.
type sessionRequest struct {
	Session string `cbor:"session"`
}

// roomRequest is the body of actions addressed to a room.
type roomRequest struct {
	Room string `cbor:"room"`
}

// --- Status ---

// statusResponse is the response to the "status" action.
type statusResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`

	Version  string        `cbor:"version"`
	Sessions int           `cbor:"sessions"`
	Rooms    []relay.Stats `cbor:"rooms"`
}

func (cr *CommandRoomService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	uptime := cr.clock.Now().Sub(cr.startedAt)

	var rooms []relay.Stats
	for _, roomID := range cr.hub.Rooms() {
		relayRoom, err := cr.hub.Lookup(roomID)
		if err != nil {
			// Deleted since Rooms was read.
			continue
		}
		rooms = append(rooms, relayRoom.Stats())
	}

	return statusResponse{
		UptimeSeconds: uptime.Seconds(),
		Version:       version.Info(),
		Sessions:      len(cr.rooms.Sessions()),
		Rooms:         rooms,
	}, nil
}

// --- Session lifecycle ---

type joinRequest struct {
	Room string `cbor:"room"`
	Name string `cbor:"name"`
}

// joinResponse carries everything a client needs to act as the new
// session and to render itself.
type joinResponse struct {
	SessionID   string          `cbor:"session_id"`
	RoomID      string          `cbor:"room_id"`
	Identity    string          `cbor:"identity"`
	DisplayName string          `cbor:"display_name"`
	Avatar      identity.Avatar `cbor:"avatar"`
	AccessScope string          `cbor:"access_scope"`
}

func (cr *CommandRoomService) handleJoin(ctx context.Context, raw []byte) (any, error) {
	var request joinRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.rooms.Join(ctx, request.Room, request.Name)
	if err != nil {
		return nil, err
	}
	return joinResponse{
		SessionID:   session.ID(),
		RoomID:      session.RoomID(),
		Identity:    session.Identity().ID,
		DisplayName: session.DisplayName(),
		Avatar:      session.Avatar(),
		AccessScope: session.AccessScope(),
	}, nil
}

func (cr *CommandRoomService) handleLeave(ctx context.Context, raw []byte) (any, error) {
	var request sessionRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	session.Leave()
	return nil, nil
}

// snapshotResponse is a consistent picture of a room. Document is the
// encoded document a client can build a replica from.
type snapshotResponse struct {
	RoomID   string            `cbor:"room_id"`
	Version  uint64            `cbor:"version"`
	State    schema.RoomState  `cbor:"state"`
	Presence []schema.Presence `cbor:"presence"`
	Document []byte            `cbor:"document"`
}

func (cr *CommandRoomService) handleSnapshot(ctx context.Context, raw []byte) (any, error) {
	var request roomRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	relayRoom, err := cr.rooms.Room(request.Room)
	if err != nil {
		return nil, err
	}
	view, err := relayRoom.View()
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", request.Room, err)
	}
	return newSnapshotResponse(view), nil
}

func newSnapshotResponse(view relay.View) snapshotResponse {
	return snapshotResponse{
		RoomID:   view.RoomID,
		Version:  view.Version,
		State:    view.State,
		Presence: view.Presence,
		Document: view.Document,
	}
}

// --- Assistant ---

// setAIConfigRequest carries an aiConfig patch. Absent fields are left
// unchanged.
type setAIConfigRequest struct {
	Session         string       `cbor:"session"`
	Provider        *string      `cbor:"provider,omitempty"`
	ModelID         *string      `cbor:"model_id,omitempty"`
	Mode            *schema.Mode `cbor:"mode,omitempty"`
	ThinkingEnabled *bool        `cbor:"thinking_enabled,omitempty"`
}

func (cr *CommandRoomService) handleSetAIConfig(ctx context.Context, raw []byte) (any, error) {
	var request setAIConfigRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return session.SetAIConfig(schema.AIConfigPatch{
		Provider:        request.Provider,
		ModelID:         request.ModelID,
		Mode:            request.Mode,
		ThinkingEnabled: request.ThinkingEnabled,
	})
}

func (cr *CommandRoomService) handleReleaseControl(ctx context.Context, raw []byte) (any, error) {
	var request sessionRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return nil, session.ReleaseControl()
}

type setAIRoutingRequest struct {
	Session string `cbor:"session"`
	Enabled bool   `cbor:"enabled"`
}

func (cr *CommandRoomService) handleSetAIRouting(ctx context.Context, raw []byte) (any, error) {
	var request setAIRoutingRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	session.SetAIRouting(request.Enabled)
	return nil, nil
}

type sayRequest struct {
	Session string `cbor:"session"`
	Text    string `cbor:"text"`
}

func (cr *CommandRoomService) handleSay(ctx context.Context, raw []byte) (any, error) {
	var request sayRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return session.SendMessage(ctx, request.Text)
}

type cancelResponse struct {
	// Cancelled is the generation id, empty when nothing was in
	// flight.
	Cancelled string `cbor:"cancelled"`
}

func (cr *CommandRoomService) handleCancel(ctx context.Context, raw []byte) (any, error) {
	var request sessionRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	cancelled, err := session.Cancel()
	if err != nil {
		return nil, err
	}
	return cancelResponse{Cancelled: cancelled}, nil
}

// --- Document editing ---

type todoAddRequest struct {
	Session  string `cbor:"session"`
	Text     string `cbor:"text"`
	Group    string `cbor:"group,omitempty"`
	ParentID string `cbor:"parent_id,omitempty"`
	Personal bool   `cbor:"personal,omitempty"`
}

func (cr *CommandRoomService) handleTodoAdd(ctx context.Context, raw []byte) (any, error) {
	var request todoAddRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return session.AddTodo(room.TodoDraft{
		Text:     request.Text,
		Group:    request.Group,
		ParentID: request.ParentID,
		Personal: request.Personal,
	})
}

type todoRequest struct {
	Session string `cbor:"session"`
	ID      string `cbor:"id"`
}

func (cr *CommandRoomService) handleTodoToggle(ctx context.Context, raw []byte) (any, error) {
	var request todoRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return session.ToggleTodo(request.ID)
}

type todoMoveRequest struct {
	Session string `cbor:"session"`
	ID      string `cbor:"id"`
	Index   int    `cbor:"index"`
}

func (cr *CommandRoomService) handleTodoMove(ctx context.Context, raw []byte) (any, error) {
	var request todoMoveRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return nil, session.MoveTodo(request.ID, request.Index)
}

type todoDeleteResponse struct {
	Removed []string `cbor:"removed"`
}

func (cr *CommandRoomService) handleTodoDelete(ctx context.Context, raw []byte) (any, error) {
	var request todoRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	removed, err := session.DeleteTodo(request.ID)
	if err != nil {
		return nil, err
	}
	return todoDeleteResponse{Removed: removed}, nil
}

type noteRequest struct {
	Session string `cbor:"session"`
	Content string `cbor:"content"`
}

func (cr *CommandRoomService) handleNoteShared(ctx context.Context, raw []byte) (any, error) {
	var request noteRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return nil, session.SetSharedNote(request.Content)
}

func (cr *CommandRoomService) handleNoteMine(ctx context.Context, raw []byte) (any, error) {
	var request noteRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return nil, session.SetMyNote(request.Content)
}

type setURLRequest struct {
	Session string `cbor:"session"`
	URL     string `cbor:"url"`
}

func (cr *CommandRoomService) handleSetURL(ctx context.Context, raw []byte) (any, error) {
	var request setURLRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return nil, session.SetURL(request.URL)
}

type shareIntelRequest struct {
	Session  string `cbor:"session"`
	ImageURL string `cbor:"image_url"`
}

func (cr *CommandRoomService) handleShareIntel(ctx context.Context, raw []byte) (any, error) {
	var request shareIntelRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	session, err := cr.session(request.Session)
	if err != nil {
		return nil, err
	}
	return session.ShareIntel(request.ImageURL)
}

func (cr *CommandRoomService) handleNotesHTML(ctx context.Context, raw []byte) (any, error) {
	var request roomRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	relayRoom, err := cr.rooms.Room(request.Room)
	if err != nil {
		return nil, err
	}
	return renderNotes(relayRoom.State())
}

// --- Administration ---

func (cr *CommandRoomService) handleDeleteRoom(ctx context.Context, raw []byte) (any, error) {
	var request roomRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if err := cr.rooms.DeleteRoom(ctx, request.Room); err != nil {
		return nil, err
	}
	cr.logger.Info("room deleted by request", "room_id", request.Room)
	return nil, nil
}
