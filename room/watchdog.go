// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"errors"
	"time"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// stallObservation is what a watchdog last saw in the streaming slot.
type stallObservation struct {
	id       string
	progress uint64
	since    time.Time
}

// watchdog samples the streaming slot and clears it once its progress
// counter has sat still for longer than the stall timeout. Every session runs one,
// so a generation whose owner crashed cannot wedge the room; the clear
// is keyed on what this session observed, so when several sessions
// notice the same stall only one of them acts.
func (s *Session) watchdog() {
	ticker := s.service.clock.NewTicker(s.service.config.WatchdogInterval)
	defer ticker.Stop()

	var observed stallObservation
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.relay.Done():
			return
		case <-ticker.C:
			s.checkStall(&observed)
		}
	}
}

func (s *Session) checkStall(observed *stallObservation) {
	now := s.service.clock.Now()
	slot := s.relay.State().StreamingSlot
	if slot == nil || slot.IsComplete {
		*observed = stallObservation{}
		return
	}
	if slot.ID != observed.id || slot.Progress != observed.progress {
		*observed = stallObservation{id: slot.ID, progress: slot.Progress, since: now}
		return
	}
	if now.Sub(observed.since) <= s.service.config.StallTimeout {
		return
	}
	s.clearStalled(*observed)
	*observed = stallObservation{}
}

func (s *Session) clearStalled(observed stallObservation) {
	stall := newError(KindGenerationTimeout, s.RoomID(),
		"no output for more than %s", s.service.config.StallTimeout)
	notice := s.service.systemNotice("The assistant stopped responding and its reply was discarded (" + stall.Message + ").")

	cleared := false
	_, err := s.relay.Mutate(s.identity.ID, func(tx *document.Tx) error {
		slot := tx.Document().StreamingSlot.Get()
		if slot == nil || slot.ID != observed.id || slot.Progress != observed.progress {
			return nil
		}
		if err := tx.AppendMessage(notice); err != nil {
			return err
		}
		tx.SetStreamingSlot(nil)
		cleared = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, relay.ErrRoomClosed) {
			s.logger.Error("clearing stalled generation", "generation_id", observed.id, "error", err)
		}
		return
	}
	if !cleared {
		return
	}
	s.relay.Bus().Publish(schema.NewAICancelEvent(observed.id))
	s.service.cancelGeneration(s.RoomID(), observed.id)
	s.logger.Warn("stalled generation cleared",
		"generation_id", observed.id,
		"kind", stall.Kind,
		"stalled_for", s.service.clock.Now().Sub(observed.since),
	)
}
