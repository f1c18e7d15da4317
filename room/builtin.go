// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/identity"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// Built-in tool names.
const (
	ToolGetNotes   = "getNotes"
	ToolUpdateNote = "updateNote"
	ToolAddTodo    = "addTodo"
	ToolSetURL     = "setUrl"
	ToolShareIntel = "shareIntel"
)

// sharedNoteTarget is the updateNote target naming the shared note.
const sharedNoteTarget = "shared"

func builtinDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ToolGetNotes,
			Description: "Read the current shared field notes and every player's personal note.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolUpdateNote,
			Description: "Replace a note: the shared note, or one player's personal note.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"target": {"type": "string", "description": "\"shared\" for the shared note, or a player NAME (not id) for a personal note."},
					"content": {"type": "string", "description": "The full new content of the note."}
				},
				"required": ["target", "content"]
			}`),
		},
		{
			Name:        ToolAddTodo,
			Description: "Add a task to the todo board. Tasks may be grouped and may be personal.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task": {"type": "string", "description": "A concise description of the task."},
					"group": {"type": "string", "description": "Optional group name, e.g. \"Day 1\" or \"Resources\"."},
					"isPersonal": {"type": "boolean", "description": "True for a task owned by one player."},
					"playerName": {"type": "string", "description": "Owner of a personal task. Defaults to the current speaker."}
				},
				"required": ["task"]
			}`),
		},
		{
			Name:        ToolSetURL,
			Description: "Point every participant at a web page.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"url": {"type": "string", "description": "Absolute http or https URL."}},
				"required": ["url"]
			}`),
		},
		{
			Name:        ToolShareIntel,
			Description: "Share an image with the room as the latest intel.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"imageUrl": {"type": "string", "description": "Absolute http or https URL of the image."}},
				"required": ["imageUrl"]
			}`),
		},
	}
}

func builtinHandlers() map[string]ToolHandler {
	return map[string]ToolHandler{
		ToolGetNotes:   getNotes,
		ToolUpdateNote: updateNote,
		ToolAddTodo:    addTodo,
		ToolSetURL:     setURL,
		ToolShareIntel: shareIntel,
	}
}

func getNotes(ctx context.Context, invocation *ToolInvocation) (string, error) {
	state := invocation.State
	shared := state.SharedNote
	if shared == "" {
		shared = "(No shared notes)"
	}

	keys := make([]string, 0, len(state.PlayerNotes))
	for key := range state.PlayerNotes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var personal []string
	for _, key := range keys {
		note := state.PlayerNotes[key]
		name := note.DisplayName
		if name == "" {
			name = "Player " + key
		}
		personal = append(personal, fmt.Sprintf("[%s's Personal Note]:\n%s", name, note.Content))
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Current Shared Field Notes:\n\"\"\"\n%s\n\"\"\"\n\n", shared)
	if len(personal) == 0 {
		result.WriteString("No individual player notes available.")
	} else {
		result.WriteString(strings.Join(personal, "\n\n"))
	}
	return result.String(), nil
}

type updateNoteArgs struct {
	Target  string `json:"target"`
	Content string `json:"content"`
}

func updateNote(ctx context.Context, invocation *ToolInvocation) (string, error) {
	var args updateNoteArgs
	if err := invocation.Decode(&args); err != nil {
		return "", err
	}
	target := strings.TrimSpace(args.Target)
	if target == "" {
		return "", errors.New("target is required")
	}

	if strings.EqualFold(target, sharedNoteTarget) {
		invocation.Write(func(tx *document.Tx) error {
			tx.SetSharedNote(args.Content)
			return nil
		})
		return fmt.Sprintf("Notes updated successfully for %s.", target), nil
	}

	player, err := resolvePlayer(invocation, target)
	if err != nil {
		return "", err
	}
	invocation.Write(func(tx *document.Tx) error {
		tx.PutPlayerNote(player.ID, schema.PlayerNote{
			Content:     args.Content,
			DisplayName: player.DisplayName,
		})
		return nil
	})
	return fmt.Sprintf("Notes updated successfully for %s.", target), nil
}

type addTodoArgs struct {
	Task       string `json:"task"`
	Group      string `json:"group"`
	IsPersonal bool   `json:"isPersonal"`
	PlayerName string `json:"playerName"`
}

func addTodo(ctx context.Context, invocation *ToolInvocation) (string, error) {
	var args addTodoArgs
	if err := invocation.Decode(&args); err != nil {
		return "", err
	}
	task := strings.TrimSpace(args.Task)
	if task == "" {
		return "", errors.New("task is required")
	}

	todo := schema.Todo{
		ID:    newID(),
		Text:  task,
		Group: strings.TrimSpace(args.Group),
	}
	if todo.Group == "" {
		todo.Group = schema.DefaultTodoGroup
	}

	var owner identity.Identity
	if args.IsPersonal {
		name := strings.TrimSpace(args.PlayerName)
		if name == "" {
			owner = invocation.Session.Identity()
		} else {
			resolved, err := resolvePlayer(invocation, name)
			if err != nil {
				return "", err
			}
			owner = resolved
		}
		todo.OwnerID = owner.ID
		todo.OwnerName = owner.DisplayName
	}

	invocation.Write(func(tx *document.Tx) error {
		return tx.InsertTodo(todo, -1)
	})

	switch {
	case args.IsPersonal:
		return fmt.Sprintf("Personal todo added for %s: %s", owner.DisplayName, task), nil
	case strings.TrimSpace(args.Group) != "":
		return fmt.Sprintf("Todo added to group %q: %s", todo.Group, task), nil
	default:
		return fmt.Sprintf("Todo added: %s", task), nil
	}
}

type setURLArgs struct {
	URL string `json:"url"`
}

func setURL(ctx context.Context, invocation *ToolInvocation) (string, error) {
	var args setURLArgs
	if err := invocation.Decode(&args); err != nil {
		return "", err
	}
	link := strings.TrimSpace(args.URL)
	if err := validateLink(link); err != nil {
		return "", err
	}
	invocation.Write(func(tx *document.Tx) error {
		tx.SetCurrentURL(&link)
		return nil
	})
	return fmt.Sprintf("Shared page set to %s", link), nil
}

type shareIntelArgs struct {
	ImageURL string `json:"imageUrl"`
}

func shareIntel(ctx context.Context, invocation *ToolInvocation) (string, error) {
	var args shareIntelArgs
	if err := invocation.Decode(&args); err != nil {
		return "", err
	}
	link := strings.TrimSpace(args.ImageURL)
	if err := validateLink(link); err != nil {
		return "", err
	}
	intel := invocation.Session.intel(link)
	invocation.Write(func(tx *document.Tx) error {
		tx.SetLatestIntel(&intel)
		return nil
	})
	return fmt.Sprintf("Intel shared: %s", link), nil
}

// resolvePlayer maps a name or identity to a participant. Present
// players match by display name (any case) or identity, then authors of
// existing notes by display name. A name nobody has used yet resolves
// to the identity that name would derive, so the note is waiting when
// that player joins.
func resolvePlayer(invocation *ToolInvocation, target string) (identity.Identity, error) {
	for _, player := range invocation.Presence {
		if player.Identity == target || strings.EqualFold(player.DisplayName, target) {
			return identity.Identity{ID: player.Identity, DisplayName: player.DisplayName, Avatar: player.Avatar}, nil
		}
	}
	for key, note := range invocation.State.PlayerNotes {
		if key == target || strings.EqualFold(note.DisplayName, target) {
			return identity.Identity{ID: key, DisplayName: note.DisplayName}, nil
		}
	}
	derived, err := identity.Derive(target)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("resolving player %q: %w", target, err)
	}
	return derived, nil
}
