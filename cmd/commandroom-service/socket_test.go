// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexus-goc/commandroom/lib/clock"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/lib/service"
	"github.com/nexus-goc/commandroom/lib/testutil"
	"github.com/nexus-goc/commandroom/relay"
	"github.com/nexus-goc/commandroom/room"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testWaitTimeout = 5 * time.Second

// testDaemon is a command room service on a fake clock, serving on a
// temporary socket, with a scripted provider bound to the default
// provider name.
type testDaemon struct {
	clock    *clock.FakeClock
	provider *llm.Scripted
	rooms    *room.Service
	client   *service.ServiceClient
}

func startDaemon(t *testing.T) *testDaemon {
	t.Helper()

	fake := clock.Fake(testEpoch)
	logger := slog.New(slog.DiscardHandler)
	hub := relay.NewHub(relay.HubConfig{Clock: fake, Logger: logger})
	provider := llm.NewScripted()
	registry := llm.NewRegistry()
	registry.Register(schema.DefaultProvider, provider)

	rooms, err := room.NewService(room.Config{
		Hub:       hub,
		Providers: registry,
		Clock:     fake,
		Logger:    logger,
		// Watchdogs never fire unless a test advances the clock a day.
		WatchdogInterval: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	commandRoom := &CommandRoomService{
		rooms:     rooms,
		hub:       hub,
		clock:     fake,
		startedAt: fake.Now(),
		logger:    logger,
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "commandroom.sock")
	server := service.NewSocketServer(socketPath, logger)
	commandRoom.registerActions(server)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx)
	}()
	testutil.RequireClosed(t, server.Ready(), testWaitTimeout, "socket server did not start")

	t.Cleanup(func() {
		cancel()
		if err := <-served; err != nil {
			t.Errorf("Serve: %v", err)
		}
		rooms.Close()
	})

	return &testDaemon{
		clock:    fake,
		provider: provider,
		rooms:    rooms,
		client:   service.NewServiceClient(socketPath),
	}
}

func (d *testDaemon) call(t *testing.T, action string, fields map[string]any, result any) {
	t.Helper()
	if err := d.client.Call(context.Background(), action, fields, result); err != nil {
		t.Fatalf("%s: %v", action, err)
	}
}

// callError performs a call that must fail and returns the wire code.
func (d *testDaemon) callError(t *testing.T, action string, fields map[string]any) string {
	t.Helper()
	err := d.client.Call(context.Background(), action, fields, nil)
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("%s: error = %v, want a service error", action, err)
	}
	return serviceErr.Code
}

func (d *testDaemon) join(t *testing.T, roomID, name string) joinResponse {
	t.Helper()
	var response joinResponse
	d.call(t, "join", map[string]any{"room": roomID, "name": name}, &response)
	return response
}

// waitForState blocks until done accepts the room's state, re-checking
// after every committed change.
func (d *testDaemon) waitForState(t *testing.T, roomID, description string, done func(schema.RoomState) bool) schema.RoomState {
	t.Helper()
	relayRoom, err := d.rooms.Room(roomID)
	if err != nil {
		t.Fatalf("Room(%s): %v", roomID, err)
	}
	subscription, view, err := relayRoom.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subscription.Close()
	if done(view.State) {
		return view.State
	}
	timeout := time.After(testWaitTimeout)
	for {
		select {
		case <-subscription.C():
			if state := relayRoom.State(); done(state) {
				return state
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", description)
		}
	}
}

func TestJoinSayAndSnapshot(t *testing.T) {
	daemon := startDaemon(t)
	daemon.provider.Push(llm.Script{Text: []string{"Hold", " the bridge."}})

	joined := daemon.join(t, "ops", "Ada Lovelace")
	if joined.SessionID == "" || joined.RoomID != "ops" {
		t.Fatalf("join = %+v", joined)
	}
	if joined.DisplayName != "Ada Lovelace" || joined.Avatar.Initials != "AL" {
		t.Errorf("join identity = %q %+v", joined.DisplayName, joined.Avatar)
	}
	if joined.AccessScope != room.AccessScope {
		t.Errorf("AccessScope = %q, want %q", joined.AccessScope, room.AccessScope)
	}

	var sent schema.Message
	daemon.call(t, "say", map[string]any{"session": joined.SessionID, "text": "@ai what now?"}, &sent)
	if sent.Role != schema.RoleUser || sent.Content != "what now?" {
		t.Errorf("say = %+v", sent)
	}

	daemon.waitForState(t, "ops", "the answer to be finalized", func(state schema.RoomState) bool {
		return state.StreamingSlot == nil && len(state.Messages) == 2
	})

	var snapshot snapshotResponse
	daemon.call(t, "snapshot", map[string]any{"room": "ops"}, &snapshot)
	if snapshot.RoomID != "ops" || len(snapshot.Document) == 0 {
		t.Fatalf("snapshot = room %q, %d document bytes", snapshot.RoomID, len(snapshot.Document))
	}
	messages := snapshot.State.Messages
	if len(messages) != 2 {
		t.Fatalf("snapshot has %d messages, want 2", len(messages))
	}
	if messages[1].Role != schema.RoleAssistant || messages[1].Content != "Hold the bridge." {
		t.Errorf("assistant message = %+v", messages[1])
	}
	if len(snapshot.Presence) != 1 || snapshot.Presence[0].Identity != joined.Identity {
		t.Errorf("presence = %+v", snapshot.Presence)
	}
}

func TestActionErrorCodes(t *testing.T) {
	daemon := startDaemon(t)
	joined := daemon.join(t, "ops", "Ada")

	tests := []struct {
		name   string
		action string
		fields map[string]any
		want   room.Kind
	}{
		{"bad room id", "join", map[string]any{"room": "no spaces", "name": "Ada"}, room.KindInvalidArgument},
		{"blank name", "join", map[string]any{"room": "ops", "name": "   "}, room.KindInvalidArgument},
		{"missing session", "say", map[string]any{"text": "hi"}, room.KindInvalidArgument},
		{"unknown session", "say", map[string]any{"session": "nope", "text": "hi"}, room.KindNotFound},
		{"empty message", "say", map[string]any{"session": joined.SessionID, "text": "  "}, room.KindInvalidArgument},
		{"unknown todo", "todo-toggle", map[string]any{"session": joined.SessionID, "id": "missing"}, room.KindNotFound},
		{"bad url", "set-url", map[string]any{"session": joined.SessionID, "url": "ftp://x"}, room.KindInvalidArgument},
		{"release without control", "release-control", map[string]any{"session": joined.SessionID}, room.KindPermissionDenied},
		{"unknown room", "snapshot", map[string]any{"room": "elsewhere"}, room.KindNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if code := daemon.callError(t, test.action, test.fields); code != string(test.want) {
				t.Errorf("code = %q, want %q", code, test.want)
			}
		})
	}
}

func TestControllerGateOverSocket(t *testing.T) {
	daemon := startDaemon(t)
	ada := daemon.join(t, "ops", "Ada")
	grace := daemon.join(t, "ops", "Grace")

	var config schema.AIConfig
	daemon.call(t, "set-ai-config", map[string]any{
		"session": ada.SessionID,
		"mode":    string(schema.ModePlanner),
	}, &config)
	if config.ControllerID != ada.Identity || config.Mode != schema.ModePlanner {
		t.Fatalf("config after claim = %+v", config)
	}
	if config.ModelID != schema.DefaultModelID {
		t.Errorf("untouched ModelID = %q, want %q", config.ModelID, schema.DefaultModelID)
	}

	code := daemon.callError(t, "set-ai-config", map[string]any{
		"session":          grace.SessionID,
		"thinking_enabled": false,
	})
	if code != string(room.KindPermissionDenied) {
		t.Errorf("non-controller patch code = %q, want permission_denied", code)
	}

	daemon.call(t, "release-control", map[string]any{"session": ada.SessionID}, nil)
	daemon.call(t, "set-ai-config", map[string]any{
		"session":          grace.SessionID,
		"thinking_enabled": false,
	}, &config)
	if config.ControllerID != grace.Identity || config.ThinkingEnabled {
		t.Errorf("config after second claim = %+v", config)
	}
}

func TestTodoActions(t *testing.T) {
	daemon := startDaemon(t)
	joined := daemon.join(t, "ops", "Ada")

	var first, second schema.Todo
	daemon.call(t, "todo-add", map[string]any{"session": joined.SessionID, "text": "scout north"}, &first)
	daemon.call(t, "todo-add", map[string]any{
		"session":  joined.SessionID,
		"text":     "check ammo",
		"group":    "supplies",
		"personal": true,
	}, &second)
	if first.Group != schema.DefaultTodoGroup || first.OwnerID != "" {
		t.Errorf("first todo = %+v", first)
	}
	if second.Group != "supplies" || second.OwnerID != joined.Identity {
		t.Errorf("second todo = %+v", second)
	}

	var toggled schema.Todo
	daemon.call(t, "todo-toggle", map[string]any{"session": joined.SessionID, "id": first.ID}, &toggled)
	if !toggled.Completed {
		t.Errorf("toggled todo = %+v, want completed", toggled)
	}

	daemon.call(t, "todo-move", map[string]any{"session": joined.SessionID, "id": second.ID, "index": 0}, nil)
	state := daemon.rooms.Sessions()[0].State()
	if len(state.Todos) != 2 || state.Todos[0].ID != second.ID {
		t.Fatalf("todos after move = %+v", state.Todos)
	}

	var deleted todoDeleteResponse
	daemon.call(t, "todo-delete", map[string]any{"session": joined.SessionID, "id": first.ID}, &deleted)
	if len(deleted.Removed) != 1 || deleted.Removed[0] != first.ID {
		t.Errorf("removed = %v, want [%s]", deleted.Removed, first.ID)
	}
}

func TestNotesAndLinks(t *testing.T) {
	daemon := startDaemon(t)
	joined := daemon.join(t, "ops", "Ada")

	daemon.call(t, "note-shared", map[string]any{"session": joined.SessionID, "content": "# Plan"}, nil)
	daemon.call(t, "note-mine", map[string]any{"session": joined.SessionID, "content": "my *own* note"}, nil)
	daemon.call(t, "set-url", map[string]any{"session": joined.SessionID, "url": "https://example.com/map"}, nil)

	var intel schema.Intel
	daemon.call(t, "share-intel", map[string]any{"session": joined.SessionID, "image_url": "https://example.com/a.png"}, &intel)
	if intel.UploaderIdentity != joined.Identity || intel.Timestamp != testEpoch.UnixMilli() {
		t.Errorf("intel = %+v", intel)
	}

	state := daemon.rooms.Sessions()[0].State()
	if state.SharedNote != "# Plan" {
		t.Errorf("SharedNote = %q", state.SharedNote)
	}
	if note := state.PlayerNotes[joined.Identity]; note.Content != "my *own* note" || note.DisplayName != "Ada" {
		t.Errorf("player note = %+v", note)
	}
	if state.CurrentURL == nil || *state.CurrentURL != "https://example.com/map" {
		t.Errorf("CurrentURL = %v", state.CurrentURL)
	}

	var notes notesResponse
	daemon.call(t, "notes-html", map[string]any{"room": "ops"}, &notes)
	if notes.Shared != "<h1>Plan</h1>\n" {
		t.Errorf("shared html = %q", notes.Shared)
	}
	if len(notes.Players) != 1 || notes.Players[0].HTML != "<p>my <em>own</em> note</p>\n" {
		t.Errorf("player html = %+v", notes.Players)
	}
}

func TestCancelAndRouting(t *testing.T) {
	daemon := startDaemon(t)
	pause := make(chan struct{})
	t.Cleanup(func() { close(pause) })
	daemon.provider.Push(llm.Script{Text: []string{"one", "two"}, Pause: pause, PauseAfter: 1})

	joined := daemon.join(t, "ops", "Ada")
	daemon.call(t, "set-ai-routing", map[string]any{"session": joined.SessionID, "enabled": false}, nil)
	daemon.call(t, "say", map[string]any{"session": joined.SessionID, "text": "just chatting"}, nil)

	var cancelled cancelResponse
	daemon.call(t, "cancel", map[string]any{"session": joined.SessionID}, &cancelled)
	if cancelled.Cancelled != "" {
		t.Errorf("cancel with nothing in flight = %q", cancelled.Cancelled)
	}

	daemon.call(t, "say", map[string]any{"session": joined.SessionID, "text": "@ai status?"}, nil)
	daemon.waitForState(t, "ops", "the first delta", func(state schema.RoomState) bool {
		return state.StreamingSlot != nil && state.StreamingSlot.Content == "one"
	})

	code := daemon.callError(t, "say", map[string]any{"session": joined.SessionID, "text": "@ai again"})
	if code != string(room.KindAlreadyGenerating) {
		t.Errorf("second routed say code = %q, want already_generating", code)
	}

	daemon.call(t, "cancel", map[string]any{"session": joined.SessionID}, &cancelled)
	if cancelled.Cancelled == "" {
		t.Fatal("cancel did not report the generation")
	}
	state := daemon.rooms.Sessions()[0].State()
	if state.StreamingSlot != nil {
		t.Errorf("slot after cancel = %+v", state.StreamingSlot)
	}
	for _, message := range state.Messages {
		if message.Role == schema.RoleAssistant {
			t.Errorf("assistant message after cancel: %+v", message)
		}
	}
}

func TestLeaveAndDeleteRoom(t *testing.T) {
	daemon := startDaemon(t)
	ada := daemon.join(t, "ops", "Ada")
	grace := daemon.join(t, "ops", "Grace")

	daemon.call(t, "leave", map[string]any{"session": ada.SessionID}, nil)
	if code := daemon.callError(t, "say", map[string]any{"session": ada.SessionID, "text": "hi"}); code != string(room.KindNotFound) {
		t.Errorf("say after leave code = %q, want not_found", code)
	}

	daemon.call(t, "delete-room", map[string]any{"room": "ops"}, nil)
	if code := daemon.callError(t, "say", map[string]any{"session": grace.SessionID, "text": "hi"}); code != string(room.KindNotFound) {
		t.Errorf("say after delete code = %q, want not_found", code)
	}
	if code := daemon.callError(t, "delete-room", map[string]any{"room": "ops"}); code != string(room.KindNotFound) {
		t.Errorf("second delete code = %q, want not_found", code)
	}
}

func TestStatus(t *testing.T) {
	daemon := startDaemon(t)
	daemon.join(t, "ops", "Ada")
	daemon.join(t, "intel", "Grace")
	daemon.clock.Advance(90 * time.Second)

	var status statusResponse
	daemon.call(t, "status", nil, &status)
	if status.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %v, want 90", status.UptimeSeconds)
	}
	if status.Sessions != 2 || len(status.Rooms) != 2 {
		t.Fatalf("status = %d sessions, rooms %+v", status.Sessions, status.Rooms)
	}
	if status.Rooms[0].RoomID != "intel" || status.Rooms[0].Present != 1 {
		t.Errorf("first room stats = %+v", status.Rooms[0])
	}
	if status.Version == "" {
		t.Error("Version is empty")
	}
}
