// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/identity"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// Session is one participant's connection to a room. It carries the
// participant's derived identity, answers tool requests addressed to
// that identity and watches the streaming slot for stalls.
type Session struct {
	service     *Service
	relay       *relay.Room
	id          string
	identity    identity.Identity
	connectedAt time.Time
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bus    *relay.BusSubscription

	mutex     sync.Mutex
	aiRouting bool
	executors map[string]ToolHandler
	processed map[string]struct{}
	closed    bool

	workers sync.WaitGroup
}

func newSession(service *Service, relayRoom *relay.Room, derived identity.Identity) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := newID()
	session := &Session{
		service:     service,
		relay:       relayRoom,
		id:          id,
		identity:    derived,
		connectedAt: service.clock.Now(),
		logger: service.logger.With(
			"room_id", relayRoom.ID(),
			"session_id", id,
			"identity", derived.ID,
		),
		ctx:       ctx,
		cancel:    cancel,
		aiRouting: true,
		executors: make(map[string]ToolHandler),
		processed: make(map[string]struct{}),
	}
	for name, handler := range builtinHandlers() {
		session.executors[name] = handler
	}
	return session
}

// start subscribes to the bus and launches the session's background
// loops. Called once, after presence is recorded.
func (s *Session) start() {
	s.bus = s.relay.Bus().Subscribe()
	s.workers.Add(2)
	go func() {
		defer s.workers.Done()
		s.busLoop()
	}()
	go func() {
		defer s.workers.Done()
		s.watchdog()
	}()
}

// ID returns the session id. Unique per join.
func (s *Session) ID() string { return s.id }

// Identity returns the identity derived from the display name.
func (s *Session) Identity() identity.Identity { return s.identity }

// DisplayName returns the participant's display name.
func (s *Session) DisplayName() string { return s.identity.DisplayName }

// Avatar returns the participant's avatar.
func (s *Session) Avatar() identity.Avatar { return s.identity.Avatar }

// AccessScope returns the document access granted to the session.
func (s *Session) AccessScope() string { return AccessScope }

// RoomID returns the id of the room the session joined.
func (s *Session) RoomID() string { return s.relay.ID() }

// Room returns the relay room the session joined.
func (s *Session) Room() *relay.Room { return s.relay }

// State returns the room's committed document values.
func (s *Session) State() schema.RoomState { return s.relay.State() }

// Presence returns everyone currently in the room.
func (s *Session) Presence() []schema.Presence { return s.relay.Presence() }

// Done is closed once the session has left.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) presence() schema.Presence {
	return schema.Presence{
		SessionID:   s.id,
		Identity:    s.identity.ID,
		DisplayName: s.identity.DisplayName,
		Avatar:      s.identity.Avatar,
		ConnectedAt: millis(s.connectedAt),
	}
}

// Leave ends the session. Only presence and the session's own bus
// subscription go away; notes and messages written under the identity
// stay. When the identity's last session leaves while it holds
// control, control is released so anyone may claim it. Safe to call
// more than once.
func (s *Session) Leave() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	s.mutex.Unlock()

	s.cancel()
	s.bus.Close()
	if s.relay.Leave(s.identity.ID, s.id) {
		s.releaseDepartedControl()
	}
	s.workers.Wait()
	s.service.forget(s)
	s.logger.Info("session left")
}

func (s *Session) releaseDepartedControl() {
	_, err := s.relay.Mutate(s.identity.ID, func(tx *document.Tx) error {
		if tx.Document().AIController.Get() != s.identity.ID {
			return nil
		}
		tx.SetController("")
		return nil
	})
	if err != nil && !errors.Is(err, relay.ErrRoomClosed) {
		s.logger.Warn("releasing control on leave failed", "error", err)
	}
}

// SetAIRouting sets whether plain messages go to the assistant.
// Messages prefixed with @ai always do.
func (s *Session) SetAIRouting(enabled bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.aiRouting = enabled
}

// AIRouting reports whether plain messages go to the assistant.
func (s *Session) AIRouting() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.aiRouting
}

func (s *Session) checkOpen() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return newError(KindSessionClosed, s.RoomID(), "session has left")
	}
	return nil
}

// mutate commits fn as this session's identity.
func (s *Session) mutate(fn func(*document.Tx) error) (document.Change, error) {
	if err := s.checkOpen(); err != nil {
		return document.Change{}, err
	}
	change, err := s.relay.Mutate(s.identity.ID, fn)
	if err != nil {
		return document.Change{}, s.service.classify(s.RoomID(), err)
	}
	return change, nil
}

// SetSharedNote replaces the shared note.
func (s *Session) SetSharedNote(content string) error {
	_, err := s.mutate(func(tx *document.Tx) error {
		tx.SetSharedNote(content)
		return nil
	})
	return err
}

// SetMyNote replaces this identity's personal note.
func (s *Session) SetMyNote(content string) error {
	_, err := s.mutate(func(tx *document.Tx) error {
		tx.PutPlayerNote(s.identity.ID, schema.PlayerNote{
			Content:     content,
			DisplayName: s.identity.DisplayName,
		})
		return nil
	})
	return err
}

// TodoDraft describes a todo to add.
type TodoDraft struct {
	Text  string
	Group string

	// ParentID nests the todo under an existing one.
	ParentID string

	// Personal marks the todo as owned by the session's identity.
	Personal bool
}

// AddTodo appends a todo to the board.
func (s *Session) AddTodo(draft TodoDraft) (schema.Todo, error) {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return schema.Todo{}, newError(KindInvalidArgument, s.RoomID(), "todo text is empty")
	}
	todo := schema.Todo{
		ID:       newID(),
		Text:     text,
		Group:    draft.Group,
		ParentID: draft.ParentID,
	}
	if todo.Group == "" {
		todo.Group = schema.DefaultTodoGroup
	}
	if draft.Personal {
		todo.OwnerID = s.identity.ID
		todo.OwnerName = s.identity.DisplayName
	}
	_, err := s.mutate(func(tx *document.Tx) error {
		return tx.InsertTodo(todo, -1)
	})
	if err != nil {
		return schema.Todo{}, err
	}
	return todo, nil
}

// ToggleTodo flips a todo's completed flag and returns the new value.
func (s *Session) ToggleTodo(id string) (schema.Todo, error) {
	var updated schema.Todo
	_, err := s.mutate(func(tx *document.Tx) error {
		for _, todo := range tx.Todos() {
			if todo.ID == id {
				todo.Completed = !todo.Completed
				updated = todo
				tx.UpdateTodo(todo)
				return nil
			}
		}
		return newError(KindNotFound, s.RoomID(), "no todo %q", id)
	})
	if err != nil {
		return schema.Todo{}, err
	}
	return updated, nil
}

// MoveTodo moves a todo to a visible index. Moving a todo that is gone
// does nothing.
func (s *Session) MoveTodo(id string, index int) error {
	if index < 0 {
		return newError(KindInvalidArgument, s.RoomID(), "negative todo index %d", index)
	}
	_, err := s.mutate(func(tx *document.Tx) error {
		return tx.MoveTodo(id, index)
	})
	return err
}

// DeleteTodo deletes a todo and its direct children. Deleting a todo
// that is already gone is not an error. Returns the ids removed.
func (s *Session) DeleteTodo(id string) ([]string, error) {
	var removed []string
	_, err := s.mutate(func(tx *document.Tx) error {
		removed = tx.DeleteTodo(id)
		return nil
	})
	return removed, err
}

// SetURL points the room at a web page. An empty link clears it.
func (s *Session) SetURL(link string) error {
	link = strings.TrimSpace(link)
	if link != "" {
		if err := validateLink(link); err != nil {
			return wrapError(KindInvalidArgument, s.RoomID(), err, "invalid url")
		}
	}
	_, err := s.mutate(func(tx *document.Tx) error {
		if link == "" {
			tx.SetCurrentURL(nil)
		} else {
			tx.SetCurrentURL(&link)
		}
		return nil
	})
	return err
}

// ShareIntel publishes an image as the room's latest intel.
func (s *Session) ShareIntel(imageURL string) (schema.Intel, error) {
	imageURL = strings.TrimSpace(imageURL)
	if err := validateLink(imageURL); err != nil {
		return schema.Intel{}, wrapError(KindInvalidArgument, s.RoomID(), err, "invalid image url")
	}
	intel := s.intel(imageURL)
	_, err := s.mutate(func(tx *document.Tx) error {
		tx.SetLatestIntel(&intel)
		return nil
	})
	if err != nil {
		return schema.Intel{}, err
	}
	return intel, nil
}

func (s *Session) intel(imageURL string) schema.Intel {
	return schema.Intel{
		ImageURL:         imageURL,
		UploaderIdentity: s.identity.ID,
		UploaderName:     s.identity.DisplayName,
		Timestamp:        millis(s.service.clock.Now()),
	}
}

// validateLink accepts absolute http and https URLs.
func validateLink(link string) error {
	parsed, err := url.Parse(link)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q has no host", link)
	}
	return nil
}
