// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"fmt"
	"strings"

	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// buildRequest assembles the first provider step of a generation.
func (s *Service) buildRequest(session *Session, state schema.RoomState, presence []schema.Presence) llm.Request {
	config := state.AIConfig
	behavior := config.Mode.Behavior()

	request := llm.Request{
		Model:      config.ModelID,
		System:     s.systemPrompt(session, state, presence),
		Messages:   history(state.Messages, s.config.HistoryLimit),
		Tools:      s.toolDefinitions(),
		ToolChoice: llm.ToolChoiceAuto,
		MaxTokens:  s.config.MaxTokens,
	}
	if behavior.RequireToolFirst {
		request.ToolChoice = llm.ToolChoiceRequired
	}
	if config.ThinkingEnabled {
		request.ReasoningEffort = s.config.ReasoningEffort[config.Provider]
	}
	return request
}

// history converts the most recent user and assistant messages. System
// notices are room bookkeeping and never reach the provider.
func history(messages []schema.Message, limit int) []llm.Message {
	var conversation []schema.Message
	for _, message := range messages {
		if message.Role == schema.RoleUser || message.Role == schema.RoleAssistant {
			conversation = append(conversation, message)
		}
	}
	if len(conversation) > limit {
		conversation = conversation[len(conversation)-limit:]
	}

	converted := make([]llm.Message, 0, len(conversation))
	for _, message := range conversation {
		if message.Role == schema.RoleAssistant {
			converted = append(converted, llm.AssistantMessage(message.Content))
			continue
		}
		text := message.Content
		if message.AuthorName != "" {
			text = message.AuthorName + ": " + text
		}
		converted = append(converted, llm.UserMessage(text))
	}
	return converted
}

func (s *Service) toolDefinitions() []llm.ToolDefinition {
	definitions := builtinDefinitions()
	return append(definitions, s.config.Tools...)
}

// systemPrompt describes the room to the assistant. The shared note is
// included only when it changed since the room's previous request; the
// getNotes tool covers the rest.
func (s *Service) systemPrompt(session *Session, state schema.RoomState, presence []schema.Presence) string {
	behavior := state.AIConfig.Mode.Behavior()

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "You are %s, the operations assistant of a shared command room. ", s.config.AssistantName)
	prompt.WriteString("You help the participants with games and complex discussions. ")
	prompt.WriteString("You can read and update the room's shared field notes and todo board through tools.\n\n")

	fmt.Fprintf(&prompt, "Current speaker: %s\n", session.DisplayName())
	prompt.WriteString("When the speaker asks for \"my\" notes or todos, use this name.\n\n")

	prompt.WriteString("Online players:\n")
	if len(presence) == 0 {
		prompt.WriteString("- (none)\n")
	}
	for _, player := range presence {
		fmt.Fprintf(&prompt, "- %s (ID: %s)\n", player.DisplayName, player.Identity)
	}

	fmt.Fprintf(&prompt, "\nCurrent mode: %s. %s\n\n", behavior.Title, behavior.Instruction)

	prompt.WriteString("General directives:\n")
	prompt.WriteString("1. Be a calm, professional co-pilot.\n")
	prompt.WriteString("2. Answer simple questions and greetings directly, without tools.\n")
	prompt.WriteString("3. Use getNotes when you need the current shared or personal notes.\n")
	prompt.WriteString("4. Use updateNote or addTodo only when asked to, or when creating action items.\n")
	prompt.WriteString("5. For personal notes and todos, use the current speaker's name.\n")

	if s.noteChanged(session.RoomID(), state.SharedNote) {
		prompt.WriteString("\nShared field notes (updated since your last answer):\n\"\"\"\n")
		prompt.WriteString(state.SharedNote)
		prompt.WriteString("\n\"\"\"\n")
	}
	return prompt.String()
}

// noteChanged records note as sent and reports whether it differs from
// what the room's previous request carried.
func (s *Service) noteChanged(roomID, note string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	previous, sent := s.noteSent[roomID]
	s.noteSent[roomID] = note
	return !sent || previous != note
}
