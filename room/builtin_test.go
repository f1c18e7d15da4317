// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/identity"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// invoke runs a built-in handler on session and commits its writes.
func invoke(t *testing.T, session *Session, handler ToolHandler, args string) (string, error) {
	t.Helper()
	invocation := &ToolInvocation{
		RunID:    newID(),
		ToolName: "test",
		Args:     json.RawMessage(args),
		State:    session.State(),
		Presence: session.Presence(),
		Session:  session,
	}
	result, err := handler(context.Background(), invocation)
	if err != nil {
		return "", err
	}
	_, commitErr := session.Room().Mutate(session.Identity().ID, func(tx *document.Tx) error {
		for _, write := range invocation.writes {
			if err := write(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if commitErr != nil {
		t.Fatalf("committing writes: %v", commitErr)
	}
	return result, nil
}

func TestGetNotes(t *testing.T) {
	h := newHarness(t)
	ada := h.join("ops", "Ada")

	result, err := invoke(t, ada, getNotes, "{}")
	if err != nil {
		t.Fatalf("getNotes: %v", err)
	}
	want := "Current Shared Field Notes:\n\"\"\"\n" + schema.DefaultSharedNote + "\n\"\"\"\n\nNo individual player notes available."
	if result != want {
		t.Errorf("getNotes =\n%s\nwant\n%s", result, want)
	}

	ada.SetMyNote("north gate weak")
	result, _ = invoke(t, ada, getNotes, "{}")
	if !strings.Contains(result, "[Ada's Personal Note]:\nnorth gate weak") {
		t.Errorf("getNotes missing personal note:\n%s", result)
	}
}

func TestUpdateNote(t *testing.T) {
	h := newHarness(t)
	ada := h.join("ops", "Ada")
	grace := h.join("ops", "Grace Hopper")

	result, err := invoke(t, ada, updateNote, `{"target": "shared", "content": "Day 2"}`)
	if err != nil || result != "Notes updated successfully for shared." {
		t.Fatalf("updateNote(shared) = %q, %v", result, err)
	}
	if got := ada.State().SharedNote; got != "Day 2" {
		t.Errorf("shared note = %q", got)
	}

	if _, err := invoke(t, ada, updateNote, `{"target": "grace hopper", "content": "bring rope"}`); err != nil {
		t.Fatalf("updateNote(present player): %v", err)
	}
	note := ada.State().PlayerNotes[grace.Identity().ID]
	if note.Content != "bring rope" || note.DisplayName != "Grace Hopper" {
		t.Errorf("grace's note = %+v", note)
	}

	// Nobody called Linus has joined; the note waits under the identity
	// that name derives.
	if _, err := invoke(t, ada, updateNote, `{"target": "Linus", "content": "welcome"}`); err != nil {
		t.Fatalf("updateNote(absent player): %v", err)
	}
	linus, _ := identity.Derive("Linus")
	if got := ada.State().PlayerNotes[linus.ID].Content; got != "welcome" {
		t.Errorf("absent player's note = %q", got)
	}

	if _, err := invoke(t, ada, updateNote, `{"target": " ", "content": "x"}`); err == nil {
		t.Error("blank target accepted")
	}
}

func TestAddTodoTool(t *testing.T) {
	h := newHarness(t)
	ada := h.join("ops", "Ada")
	grace := h.join("ops", "Grace")

	tests := []struct {
		name      string
		args      string
		result    string
		ownerID   string
		ownerName string
		group     string
	}{
		{
			name:   "shared",
			args:   `{"task": "Fix radio"}`,
			result: "Todo added: Fix radio",
			group:  schema.DefaultTodoGroup,
		},
		{
			name:   "grouped",
			args:   `{"task": "Count ammo", "group": "Resources"}`,
			result: `Todo added to group "Resources": Count ammo`,
			group:  "Resources",
		},
		{
			name:      "personal for speaker",
			args:      `{"task": "Rest", "isPersonal": true}`,
			result:    "Personal todo added for Ada: Rest",
			ownerID:   ada.Identity().ID,
			ownerName: "Ada",
			group:     schema.DefaultTodoGroup,
		},
		{
			name:      "personal for named player",
			args:      `{"task": "Scout", "isPersonal": true, "playerName": "GRACE"}`,
			result:    "Personal todo added for Grace: Scout",
			ownerID:   grace.Identity().ID,
			ownerName: "Grace",
			group:     schema.DefaultTodoGroup,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := invoke(t, ada, addTodo, test.args)
			if err != nil {
				t.Fatalf("addTodo: %v", err)
			}
			if result != test.result {
				t.Errorf("result = %q, want %q", result, test.result)
			}
			todos := ada.State().Todos
			added := todos[len(todos)-1]
			if added.OwnerID != test.ownerID || added.OwnerName != test.ownerName || added.Group != test.group {
				t.Errorf("todo = %+v", added)
			}
		})
	}
}

func TestLinkTools(t *testing.T) {
	h := newHarness(t)
	ada := h.join("ops", "Ada")

	if _, err := invoke(t, ada, setURL, `{"url": "https://maps.example.com/sector-7"}`); err != nil {
		t.Fatalf("setUrl: %v", err)
	}
	if got := ada.State().CurrentURL; got == nil || *got != "https://maps.example.com/sector-7" {
		t.Errorf("currentUrl = %v", got)
	}
	if _, err := invoke(t, ada, setURL, `{"url": "file:///etc/passwd"}`); err == nil {
		t.Error("setUrl accepted a file url")
	}

	if _, err := invoke(t, ada, shareIntel, `{"imageUrl": "https://img.example.com/drone.jpg"}`); err != nil {
		t.Fatalf("shareIntel: %v", err)
	}
	intel := ada.State().LatestIntel
	if intel == nil || intel.ImageURL != "https://img.example.com/drone.jpg" || intel.UploaderIdentity != ada.Identity().ID {
		t.Errorf("latestIntel = %+v", intel)
	}
}
