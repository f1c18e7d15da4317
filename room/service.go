// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-goc/commandroom/lib/clock"
	"github.com/nexus-goc/commandroom/lib/identity"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// AccessScope is the document access every session receives. Field
// level restriction exists only in the controller gate.
const AccessScope = "full-read-write"

// maxClaimAttempts bounds the controller claim retry loop.
const maxClaimAttempts = 8

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Config configures a [Service].
type Config struct {
	Hub       *relay.Hub
	Providers *llm.Registry
	Clock     clock.Clock
	Logger    *slog.Logger

	// MaxTokens caps each provider step. Zero leaves it to the provider.
	MaxTokens int

	// MaxToolSteps bounds provider steps per generation.
	MaxToolSteps int

	// HistoryLimit is how many recent conversation messages are sent.
	HistoryLimit int

	// ReasoningEffort maps provider names to the effort requested when
	// the room has thinking enabled.
	ReasoningEffort map[string]string

	// StallTimeout is how long a streaming slot may sit unchanged
	// before a watchdog clears it.
	StallTimeout time.Duration

	// ToolTimeout bounds the wait for a tool outcome.
	ToolTimeout time.Duration

	// WatchdogInterval is how often each session samples the slot.
	WatchdogInterval time.Duration

	// AssistantName signs finalized assistant messages and names the
	// assistant in its system prompt.
	AssistantName string

	// Tools are advertised to the provider alongside the built-in
	// tools. Their handlers are registered per session with
	// [Session.RegisterExecutor].
	Tools []llm.ToolDefinition
}

// Service owns the sessions and generations of every room on a hub.
// Safe for concurrent use.
type Service struct {
	config    Config
	hub       *relay.Hub
	providers *llm.Registry
	clock     clock.Clock
	logger    *slog.Logger

	mutex       sync.Mutex
	sessions    map[string]*Session
	generations map[string]*generation

	// noteSent is the shared note last sent to the provider, per room.
	noteSent map[string]string

	closed bool
	active sync.WaitGroup
}

// NewService creates a service. Hub and Providers are required.
func NewService(config Config) (*Service, error) {
	if config.Hub == nil {
		return nil, errors.New("room: Hub is required")
	}
	if config.Providers == nil {
		return nil, errors.New("room: Providers is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.MaxToolSteps <= 0 {
		config.MaxToolSteps = 5
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 40
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = 30 * time.Second
	}
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = 20 * time.Second
	}
	if config.WatchdogInterval <= 0 {
		config.WatchdogInterval = 2 * time.Second
	}
	if config.AssistantName == "" {
		config.AssistantName = "NEXUS AI"
	}
	return &Service{
		config:      config,
		hub:         config.Hub,
		providers:   config.Providers,
		clock:       config.Clock,
		logger:      config.Logger,
		sessions:    make(map[string]*Session),
		generations: make(map[string]*generation),
		noteSent:    make(map[string]string),
	}, nil
}

// Join opens roomID (creating it on first use), derives the caller's
// identity from displayName and records presence. Joining again with
// the same name yields the same identity and refreshes the presence
// entry rather than adding a second one.
func (s *Service) Join(ctx context.Context, roomID, displayName string) (*Session, error) {
	if !roomIDPattern.MatchString(roomID) {
		return nil, newError(KindInvalidArgument, roomID, "room id must be 1-64 characters of [A-Za-z0-9._-]")
	}
	derived, err := identity.Derive(displayName)
	if err != nil {
		return nil, wrapError(KindInvalidArgument, roomID, err, "deriving identity")
	}

	s.mutex.Lock()
	closed := s.closed
	s.mutex.Unlock()
	if closed {
		return nil, newError(KindSessionClosed, roomID, "service is shut down")
	}

	relayRoom, created, err := s.hub.Open(roomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: opening: %w", roomID, err)
	}

	session := newSession(s, relayRoom, derived)
	if err := relayRoom.Join(session.presence()); err != nil {
		return nil, s.classify(roomID, err)
	}

	s.mutex.Lock()
	s.sessions[session.id] = session
	s.mutex.Unlock()

	session.start()
	s.logger.Info("session joined",
		"room_id", roomID,
		"session_id", session.id,
		"identity", derived.ID,
		"room_created", created,
	)
	return session, nil
}

// Session returns the live session with id.
func (s *Service) Session(id string) (*Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, newError(KindNotFound, "", "no session %q", id)
	}
	return session, nil
}

// Sessions returns every live session, ordered by room then id.
func (s *Service) Sessions() []*Session {
	s.mutex.Lock()
	list := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mutex.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].relay.ID() != list[j].relay.ID() {
			return list[i].relay.ID() < list[j].relay.ID()
		}
		return list[i].id < list[j].id
	})
	return list
}

// Room returns the live relay room with id.
func (s *Service) Room(roomID string) (*relay.Room, error) {
	relayRoom, err := s.hub.Lookup(roomID)
	if err != nil {
		return nil, s.classify(roomID, err)
	}
	return relayRoom, nil
}

// DeleteRoom removes a room for good: every session in it is closed,
// any generation is cancelled and its snapshot is removed.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	if !roomIDPattern.MatchString(roomID) {
		return newError(KindInvalidArgument, roomID, "room id must be 1-64 characters of [A-Za-z0-9._-]")
	}
	if err := s.hub.DeleteRoom(roomID); err != nil {
		return s.classify(roomID, err)
	}

	s.mutex.Lock()
	var doomed []*Session
	for _, session := range s.sessions {
		if session.relay.ID() == roomID {
			doomed = append(doomed, session)
		}
	}
	current := s.generations[roomID]
	delete(s.noteSent, roomID)
	s.mutex.Unlock()

	if current != nil {
		current.cancel()
	}
	for _, session := range doomed {
		session.Leave()
	}
	s.logger.Info("room deleted", "room_id", roomID, "sessions_closed", len(doomed))
	return nil
}

// Close leaves every session, cancels every generation and waits for
// their goroutines to finish.
func (s *Service) Close() {
	s.mutex.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	generations := make([]*generation, 0, len(s.generations))
	for _, current := range s.generations {
		generations = append(generations, current)
	}
	s.mutex.Unlock()

	for _, current := range generations {
		current.cancel()
	}
	for _, session := range sessions {
		session.Leave()
	}
	s.active.Wait()
}

func (s *Service) forget(session *Session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, session.id)
}

// classify maps relay errors onto room error kinds.
func (s *Service) classify(roomID string, err error) error {
	switch {
	case errors.Is(err, relay.ErrRoomNotFound):
		return wrapError(KindNotFound, roomID, err, "room does not exist")
	case errors.Is(err, relay.ErrRoomClosed):
		return wrapError(KindSessionClosed, roomID, err, "room is closed")
	case errors.Is(err, relay.ErrConflict):
		return wrapError(KindConflict, roomID, err, "concurrent update")
	}
	return err
}

// newID returns a fresh random id for messages, slots and tool runs.
func newID() string {
	return uuid.NewString()
}

// millis returns t as Unix milliseconds, the document's time unit.
func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// systemNotice builds a system-role message.
func (s *Service) systemNotice(text string) schema.Message {
	return schema.Message{
		ID:        newID(),
		Role:      schema.RoleSystem,
		Content:   text,
		CreatedAt: millis(s.clock.Now()),
	}
}
