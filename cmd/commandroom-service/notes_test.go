// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"

	"github.com/nexus-goc/commandroom/lib/schema"
)

func TestRenderNotes(t *testing.T) {
	state := schema.RoomState{
		SharedNote: "## Briefing\n\n- [x] scout\n- [ ] hold\n\n<script>alert(1)</script>",
		PlayerNotes: map[string]schema.PlayerNote{
			"zed-1": {Content: "**loot** here", DisplayName: "Zed"},
			"ada-1": {Content: "", DisplayName: "Ada"},
		},
	}

	notes, err := renderNotes(state)
	if err != nil {
		t.Fatalf("renderNotes: %v", err)
	}
	if !strings.Contains(notes.Shared, "<h2>Briefing</h2>") {
		t.Errorf("shared html missing heading: %q", notes.Shared)
	}
	if !strings.Contains(notes.Shared, `type="checkbox"`) {
		t.Errorf("shared html missing task list: %q", notes.Shared)
	}
	if strings.Contains(notes.Shared, "<script>") {
		t.Errorf("shared html kept raw HTML: %q", notes.Shared)
	}

	if len(notes.Players) != 2 {
		t.Fatalf("got %d player notes, want 2", len(notes.Players))
	}
	if notes.Players[0].DisplayName != "Ada" || notes.Players[0].HTML != "" {
		t.Errorf("first player note = %+v", notes.Players[0])
	}
	if notes.Players[1].Identity != "zed-1" || notes.Players[1].HTML != "<p><strong>loot</strong> here</p>\n" {
		t.Errorf("second player note = %+v", notes.Players[1])
	}
}
