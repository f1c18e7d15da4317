// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nexus-goc/commandroom/lib/schema"
)

// The renderer is configured once and shared; goldmark keeps per-call
// state in the parser context. Raw HTML in notes is escaped because
// the unsafe renderer option is never set.
var (
	notesMarkdownInstance goldmark.Markdown
	notesMarkdownOnce     sync.Once
)

func notesMarkdown() goldmark.Markdown {
	notesMarkdownOnce.Do(func() {
		notesMarkdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
		)
	})
	return notesMarkdownInstance
}

// notesResponse is the response to the "notes-html" action.
type notesResponse struct {
	Shared  string           `cbor:"shared"`
	Players []playerNoteHTML `cbor:"players"`
}

type playerNoteHTML struct {
	Identity    string `cbor:"identity"`
	DisplayName string `cbor:"display_name"`
	HTML        string `cbor:"html"`
}

// renderNotes converts the shared note and every player note from
// markdown to HTML. Player notes are ordered by display name.
func renderNotes(state schema.RoomState) (notesResponse, error) {
	shared, err := renderMarkdown(state.SharedNote)
	if err != nil {
		return notesResponse{}, fmt.Errorf("rendering shared note: %w", err)
	}
	response := notesResponse{Shared: shared}

	for identityID, note := range state.PlayerNotes {
		html, err := renderMarkdown(note.Content)
		if err != nil {
			return notesResponse{}, fmt.Errorf("rendering note of %s: %w", identityID, err)
		}
		response.Players = append(response.Players, playerNoteHTML{
			Identity:    identityID,
			DisplayName: note.DisplayName,
			HTML:        html,
		})
	}
	sort.Slice(response.Players, func(i, j int) bool {
		if response.Players[i].DisplayName != response.Players[j].DisplayName {
			return response.Players[i].DisplayName < response.Players[j].DisplayName
		}
		return response.Players[i].Identity < response.Players[j].Identity
	})
	return response, nil
}

func renderMarkdown(source string) (string, error) {
	if source == "" {
		return "", nil
	}
	var buffer bytes.Buffer
	if err := notesMarkdown().Convert([]byte(source), &buffer); err != nil {
		return "", err
	}
	return buffer.String(), nil
}
