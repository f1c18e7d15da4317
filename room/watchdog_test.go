// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/lib/testutil"
)

// quietWatchdogs keeps the background watchdogs from ticking so tests
// can drive checkStall directly.
func quietWatchdogs(config *Config) {
	config.WatchdogInterval = 24 * time.Hour
}

// orphanSlot writes a streaming slot that no generation owns, as a
// crashed process would leave behind.
func orphanSlot(t *testing.T, session *Session, id string) {
	t.Helper()
	slot := schema.StreamingSlot{ID: id, Role: schema.RoleAssistant, AuthorName: "Ghost"}
	_, err := session.Room().Mutate("crashed-process", func(tx *document.Tx) error {
		tx.SetStreamingSlot(&slot)
		return nil
	})
	if err != nil {
		t.Fatalf("writing orphan slot: %v", err)
	}
}

func systemNotices(state schema.RoomState) int {
	return len(messagesWithRole(state, schema.RoleSystem))
}

func TestCheckStallFollowsProgress(t *testing.T) {
	h := newHarness(t, quietWatchdogs)
	ada := h.join("ops", "Ada")
	orphanSlot(t, ada, "gen-1")

	var observed stallObservation
	ada.checkStall(&observed)
	if observed.id != "gen-1" {
		t.Fatalf("first sample did not record the slot: %+v", observed)
	}

	// Progress restarts the clock.
	h.clock.Advance(6 * time.Second)
	ada.Room().Mutate("crashed-process", func(tx *document.Tx) error {
		slot := *tx.Document().StreamingSlot.Get()
		slot.Content = "still alive"
		slot.Progress++
		tx.SetStreamingSlot(&slot)
		return nil
	})
	ada.checkStall(&observed)
	h.clock.Advance(6 * time.Second)
	ada.checkStall(&observed)
	if ada.State().StreamingSlot == nil {
		t.Fatal("slot cleared although it changed within the stall timeout")
	}

	h.clock.Advance(5 * time.Second)
	ada.checkStall(&observed)
	state := ada.State()
	if state.StreamingSlot != nil {
		t.Fatal("stalled slot not cleared")
	}
	if systemNotices(state) != 1 {
		t.Errorf("messages = %+v, want one notice", state.Messages)
	}
}

// A reasoning model can think for longer than the stall timeout before
// it writes any text. Reasoning deltas count as progress.
func TestReasoningKeepsGenerationAlive(t *testing.T) {
	h := newHarness(t, quietWatchdogs)
	ada := h.join("ops", "Ada")

	hang := make(chan struct{})
	defer close(hang)
	h.provider.Push(llm.Script{
		Reasoning: []string{"Weighing ", "the ", "routes"},
		Pause:     hang,
		Text:      []string{"North."},
	})
	if _, err := ada.SendMessage(context.Background(), "@ai which way?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	current := currentGeneration(t, h.service, "ops")
	waitForState(t, ada.Room(), "reasoning progress", func(state schema.RoomState) bool {
		return state.StreamingSlot != nil && state.StreamingSlot.Progress == 3
	})

	var observed stallObservation
	ada.checkStall(&observed)
	for range 3 {
		h.clock.Advance(testStallTimeout/2 + time.Second)
		if err := h.service.touchSlot(ada.Room(), current); err != nil {
			t.Fatalf("touchSlot: %v", err)
		}
		ada.checkStall(&observed)
	}
	state := ada.State()
	if state.StreamingSlot == nil {
		t.Fatal("slot cleared while the model was still reasoning")
	}
	if state.StreamingSlot.Content != "" || systemNotices(state) != 0 {
		t.Errorf("reasoning leaked into the room: slot %+v, messages %+v", state.StreamingSlot, state.Messages)
	}

	h.clock.Advance(testStallTimeout + time.Second)
	ada.checkStall(&observed)
	if ada.State().StreamingSlot != nil {
		t.Fatal("slot without progress not cleared")
	}
	testutil.RequireClosed(t, current.done, testWaitTimeout, "stalled generation was not aborted")
}

func TestConcurrentStallDetectorsLeaveOneNotice(t *testing.T) {
	h := newHarness(t, quietWatchdogs)
	sessions := []*Session{h.join("ops", "Ada"), h.join("ops", "Grace"), h.join("ops", "Linus")}
	orphanSlot(t, sessions[0], "gen-1")

	observed := stallObservation{id: "gen-1", since: h.clock.Now()}
	h.clock.Advance(testStallTimeout + time.Second)

	var wait sync.WaitGroup
	for _, session := range sessions {
		wait.Add(1)
		go func() {
			defer wait.Done()
			session.clearStalled(observed)
		}()
	}
	wait.Wait()

	state := sessions[0].State()
	if state.StreamingSlot != nil {
		t.Fatal("slot not cleared")
	}
	if n := systemNotices(state); n != 1 {
		t.Errorf("%d timeout notices, want exactly 1", n)
	}
}

// A generation whose provider hangs is cleared by the sessions'
// watchdogs running on their own tickers.
func TestWatchdogClearsHungGeneration(t *testing.T) {
	h := newHarness(t)
	ada := h.join("ops", "Ada")
	grace := h.join("ops", "Grace")
	bus := grace.Room().Bus().Subscribe()
	defer bus.Close()

	hang := make(chan struct{})
	defer close(hang)
	h.provider.Push(llm.Script{Pause: hang, Text: []string{"never"}})
	if _, err := ada.SendMessage(context.Background(), "@ai are you stuck?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	current := currentGeneration(t, h.service, "ops")
	h.clock.WaitForTimers(2)

	deadline := time.Now().Add(testWaitTimeout)
	for ada.State().StreamingSlot != nil {
		if time.Now().After(deadline) {
			t.Fatal("watchdog never cleared the hung generation")
		}
		h.clock.Advance(testWatchdogInterval)
		runtime.Gosched()
	}

	testutil.RequireClosed(t, current.done, testWaitTimeout, "hung generation was not aborted")
	state := grace.State()
	if n := systemNotices(state); n != 1 {
		t.Errorf("%d timeout notices, want exactly 1", n)
	}
	if len(messagesWithRole(state, schema.RoleAssistant)) != 0 {
		t.Error("hung generation was finalized")
	}
	for {
		event := testutil.RequireReceive(t, bus.C(), testWaitTimeout, "waiting for AI_CANCEL")
		if event.Type == schema.EventAICancel && event.AICancel.ID == current.id {
			break
		}
	}
}
