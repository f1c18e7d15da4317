// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// mentionPrefix routes a message to the assistant regardless of the
// session's routing setting. Matched case-insensitively.
const mentionPrefix = "@ai"

// errStale means the streaming slot no longer carries the generation's
// id: it was cancelled, timed out or superseded.
var errStale = errors.New("room: streaming slot belongs to another generation")

// generation is one in-flight assistant response.
type generation struct {
	id     string
	slot   schema.StreamingSlot
	color  string
	actor  string
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// SendMessage appends a user message. When the message is routed to the
// assistant (an @ai prefix, or routing enabled on the session) the
// append and the creation of the streaming slot happen in one
// transaction, and a generation starts. A routed message that finds a
// generation already in flight fails with [KindAlreadyGenerating] and
// appends nothing.
func (s *Session) SendMessage(ctx context.Context, text string) (schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return schema.Message{}, err
	}
	routed := s.AIRouting()
	if rest, mentioned := stripMention(text); mentioned {
		routed = true
		text = rest
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return schema.Message{}, newError(KindInvalidArgument, s.RoomID(), "message is empty")
	}

	now := millis(s.service.clock.Now())
	message := schema.Message{
		ID:          newID(),
		Role:        schema.RoleUser,
		Content:     text,
		CreatedAt:   now,
		AuthorName:  s.identity.DisplayName,
		AuthorColor: s.identity.Avatar.Color,
	}
	if !routed {
		_, err := s.mutate(func(tx *document.Tx) error {
			return tx.AppendMessage(message)
		})
		if err != nil {
			return schema.Message{}, err
		}
		return message, nil
	}

	slot := schema.StreamingSlot{
		ID:         newID(),
		Role:       schema.RoleAssistant,
		AuthorName: s.identity.DisplayName,
		CreatedAt:  now,
	}
	_, err := s.mutate(func(tx *document.Tx) error {
		if current := tx.Document().StreamingSlot.Get(); current != nil {
			return newError(KindAlreadyGenerating, s.RoomID(), "generation %s is in flight", current.ID)
		}
		if err := tx.AppendMessage(message); err != nil {
			return err
		}
		tx.SetStreamingSlot(&slot)
		return nil
	})
	if err != nil {
		return schema.Message{}, err
	}
	s.service.startGeneration(s, slot)
	return message, nil
}

// stripMention removes a leading @ai mention.
func stripMention(text string) (string, bool) {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if len(trimmed) < len(mentionPrefix) || !strings.EqualFold(trimmed[:len(mentionPrefix)], mentionPrefix) {
		return text, false
	}
	rest := trimmed[len(mentionPrefix):]
	if rest != "" {
		first := []rune(rest)[0]
		if !unicode.IsSpace(first) && !unicode.IsPunct(first) {
			// "@aiden" is a name, not a mention.
			return text, false
		}
	}
	return strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ':'
	}), true
}

// Cancel stops the room's in-flight generation: the slot is cleared at
// once, every session is told through the bus, and the provider call
// is aborted if it runs in this process. Returns the cancelled
// generation id, or "" when nothing was in flight.
func (s *Session) Cancel() (string, error) {
	var cancelled string
	_, err := s.mutate(func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil {
			return nil
		}
		cancelled = slot.ID
		tx.SetStreamingSlot(nil)
		return nil
	})
	if err != nil || cancelled == "" {
		return "", err
	}
	s.relay.Bus().Publish(schema.NewAICancelEvent(cancelled))
	s.service.cancelGeneration(s.RoomID(), cancelled)
	s.logger.Info("generation cancelled", "generation_id", cancelled)
	return cancelled, nil
}

func (s *Service) startGeneration(session *Session, slot schema.StreamingSlot) {
	roomID := session.RoomID()
	ctx, cancel := context.WithCancel(context.Background())
	current := &generation{
		id:     slot.ID,
		slot:   slot,
		color:  session.identity.Avatar.Color,
		actor:  session.identity.ID,
		logger: session.logger.With("generation_id", slot.ID),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		cancel()
		s.abandon(session.relay, current)
		return
	}
	if previous := s.generations[roomID]; previous != nil {
		// Its slot is gone or the new one could not have been created.
		previous.cancel()
	}
	s.generations[roomID] = current
	s.active.Add(1)
	s.mutex.Unlock()

	go func() {
		defer s.active.Done()
		defer close(current.done)
		defer s.finishGeneration(roomID, current)
		defer cancel()

		go func() {
			select {
			case <-session.relay.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		s.generate(ctx, session, current)
	}()
}

func (s *Service) finishGeneration(roomID string, current *generation) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.generations[roomID] == current {
		delete(s.generations, roomID)
	}
}

// cancelGeneration aborts generation id if it runs in this process.
func (s *Service) cancelGeneration(roomID, id string) {
	s.mutex.Lock()
	current := s.generations[roomID]
	s.mutex.Unlock()
	if current != nil && current.id == id {
		current.cancel()
	}
}

// generate drives one generation to an outcome: finalized, failed,
// cancelled or superseded.
func (s *Service) generate(ctx context.Context, session *Session, current *generation) {
	relayRoom := session.relay
	state := relayRoom.State()
	config := state.AIConfig
	logger := current.logger.With("provider", config.Provider, "model", config.ModelID)

	provider, err := s.providers.Lookup(config.Provider)
	if err != nil {
		s.failGeneration(relayRoom, current, KindProviderError,
			fmt.Sprintf("The assistant is unavailable: %v", err))
		return
	}

	request := s.buildRequest(session, state, relayRoom.Presence())
	logger.Info("generation started", "mode", config.Mode, "history", len(request.Messages))

	var reasoning strings.Builder
	for step := 1; ; step++ {
		response, err := s.streamStep(ctx, provider, request, relayRoom, current)
		if err != nil {
			s.endFailed(ctx, relayRoom, current, KindProviderError,
				fmt.Sprintf("The assistant stopped with an error: %v", err), err)
			return
		}
		reasoning.WriteString(response.Reasoning)

		uses := response.ToolUses()
		if len(uses) == 0 {
			break
		}
		if step >= s.config.MaxToolSteps {
			logger.Warn("tool step limit reached", "steps", step, "pending_tools", len(uses))
			break
		}

		request.Messages = append(request.Messages, llm.Message{
			Role:    llm.RoleAssistant,
			Content: response.Content,
		})
		results := make([]llm.ToolResult, 0, len(uses))
		for _, use := range uses {
			result, err := s.runTool(ctx, session, current, use)
			if err != nil {
				kind := KindToolExecutionTimeout
				if !IsKind(err, KindToolExecutionTimeout) {
					kind = KindSessionClosed
				}
				s.endFailed(ctx, relayRoom, current, kind,
					fmt.Sprintf("Tool %s did not complete: %v", use.Name, err), err)
				return
			}
			results = append(results, result)
		}
		request.Messages = append(request.Messages, llm.ToolResultMessage(results...))
		request.ToolChoice = llm.ToolChoiceAuto
	}

	var kept string
	if config.ThinkingEnabled {
		kept = reasoning.String()
	}
	if err := s.finalize(relayRoom, current, kept); err != nil {
		if errors.Is(err, errStale) {
			logger.Info("generation superseded before finalizing")
			return
		}
		logger.Error("finalizing generation failed", "error", err)
		return
	}
	logger.Info("generation finished")
}

// endFailed settles a generation that stopped early. A cancelled
// context or a superseded slot means someone else already cleared the
// slot; anything else is a failure reported into the room.
func (s *Service) endFailed(ctx context.Context, relayRoom *relay.Room, current *generation, kind Kind, notice string, err error) {
	switch {
	case errors.Is(err, errStale):
		current.logger.Info("generation superseded")
	case errors.Is(err, relay.ErrRoomClosed):
		current.logger.Info("room closed during generation")
	case ctx.Err() != nil:
		s.abandon(relayRoom, current)
	default:
		s.failGeneration(relayRoom, current, kind, notice)
		current.logger.Warn("generation failed", "kind", kind, "error", err)
	}
}

// streamStep runs one provider call, mirroring every text delta into the
// slot and onto the bus. Reasoning deltas only mark the slot as alive.
func (s *Service) streamStep(ctx context.Context, provider llm.Provider, request llm.Request, relayRoom *relay.Room, current *generation) (llm.Response, error) {
	stream, err := provider.Stream(ctx, request)
	if err != nil {
		return llm.Response{}, err
	}
	defer stream.Close()

	for {
		event, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return llm.Response{}, err
		}
		switch event.Type {
		case llm.EventTextDelta:
			if event.Text == "" {
				continue
			}
			if err := s.appendDelta(relayRoom, current, event.Text); err != nil {
				return llm.Response{}, err
			}
		case llm.EventReasoningDelta:
			if event.Reasoning == "" {
				continue
			}
			if err := s.touchSlot(relayRoom, current); err != nil {
				return llm.Response{}, err
			}
		case llm.EventError:
			if event.Error == nil {
				return llm.Response{}, errors.New("provider reported an unspecified stream error")
			}
			return llm.Response{}, event.Error
		}
	}
	return stream.Response(), nil
}

// touchSlot records progress that adds no visible content, so the
// watchdog does not mistake a thinking model or a tool wait for a stall.
func (s *Service) touchSlot(relayRoom *relay.Room, current *generation) error {
	_, err := relayRoom.Mutate(current.actor, func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil || slot.ID != current.id {
			return errStale
		}
		updated := *slot
		updated.Progress++
		tx.SetStreamingSlot(&updated)
		return nil
	})
	return err
}

// appendDelta extends the slot's content, then announces the delta.
func (s *Service) appendDelta(relayRoom *relay.Room, current *generation, delta string) error {
	_, err := relayRoom.Mutate(current.actor, func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil || slot.ID != current.id {
			return errStale
		}
		updated := *slot
		updated.Content += delta
		updated.Progress++
		tx.SetStreamingSlot(&updated)
		return nil
	})
	if err != nil {
		return err
	}
	relayRoom.Bus().Publish(schema.NewAIChunkEvent(schema.AIChunk{
		ID:          current.id,
		Chunk:       delta,
		AuthorName:  current.slot.AuthorName,
		CreatedAt:   current.slot.CreatedAt,
		AuthorColor: current.color,
	}))
	return nil
}

// finalize appends the assistant message and clears the slot in one
// transaction, provided the slot still belongs to this generation.
func (s *Service) finalize(relayRoom *relay.Room, current *generation, reasoning string) error {
	_, err := relayRoom.Mutate(current.actor, func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil || slot.ID != current.id {
			return errStale
		}
		if err := tx.AppendMessage(schema.Message{
			ID:         current.id,
			Role:       schema.RoleAssistant,
			Content:    slot.Content,
			Reasoning:  reasoning,
			CreatedAt:  millis(s.clock.Now()),
			AuthorName: s.config.AssistantName,
		}); err != nil {
			return err
		}
		tx.SetStreamingSlot(nil)
		return nil
	})
	return err
}

// failGeneration clears the slot and appends a system notice, provided
// the slot still belongs to this generation. Nothing streamed so far is
// kept.
func (s *Service) failGeneration(relayRoom *relay.Room, current *generation, kind Kind, notice string) {
	message := s.systemNotice(notice)
	_, err := relayRoom.Mutate(current.actor, func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil || slot.ID != current.id {
			return nil
		}
		if err := tx.AppendMessage(message); err != nil {
			return err
		}
		tx.SetStreamingSlot(nil)
		return nil
	})
	if err != nil && !errors.Is(err, relay.ErrRoomClosed) {
		current.logger.Error("clearing failed generation", "kind", kind, "error", err)
	}
}

// abandon clears the slot of a generation stopped from this side, for
// example by shutdown, without a notice.
func (s *Service) abandon(relayRoom *relay.Room, current *generation) {
	cleared := false
	_, err := relayRoom.Mutate(current.actor, func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil || slot.ID != current.id {
			return nil
		}
		tx.SetStreamingSlot(nil)
		cleared = true
		return nil
	})
	if err != nil && !errors.Is(err, relay.ErrRoomClosed) {
		current.logger.Error("clearing abandoned generation", "error", err)
		return
	}
	if cleared {
		relayRoom.Bus().Publish(schema.NewAICancelEvent(current.id))
		current.logger.Info("generation abandoned")
	}
}
