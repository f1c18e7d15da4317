// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"errors"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// SetAIConfig applies patch to the room's assistant configuration.
//
// When nobody holds control the patch is written together with a claim
// of control for this identity, as a compare-and-set against the
// controller value read beforehand. A session that loses the race to
// another claimant retries from the read; its patch is then judged
// against the winner and discarded. The controller's own patches are
// written directly. Anyone else gets [KindPermissionDenied] and nothing
// is written.
func (s *Session) SetAIConfig(patch schema.AIConfigPatch) (schema.AIConfig, error) {
	if err := s.checkOpen(); err != nil {
		return schema.AIConfig{}, err
	}
	if err := patch.Validate(); err != nil {
		return schema.AIConfig{}, wrapError(KindInvalidArgument, s.RoomID(), err, "invalid assistant config")
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		observed := s.relay.State().AIConfig.ControllerID
		switch observed {
		case "":
			config, err := s.claimAndPatch(patch)
			if errors.Is(err, relay.ErrConflict) {
				s.logger.Debug("controller claim lost race, retrying", "attempt", attempt+1)
				continue
			}
			if err != nil {
				return schema.AIConfig{}, err
			}
			s.logger.Info("claimed assistant control")
			return config, nil

		case s.identity.ID:
			config, err := s.patchAsController(patch)
			if errors.Is(err, relay.ErrConflict) {
				// Control was released between the read and the write.
				continue
			}
			return config, err

		default:
			return schema.AIConfig{}, newError(KindPermissionDenied, s.RoomID(),
				"assistant config is controlled by %s", observed)
		}
	}
	return schema.AIConfig{}, newError(KindConflict, s.RoomID(),
		"controller claim did not settle after %d attempts", maxClaimAttempts)
}

func (s *Session) claimAndPatch(patch schema.AIConfigPatch) (schema.AIConfig, error) {
	var config schema.AIConfig
	_, err := s.relay.Mutate(s.identity.ID, func(tx *document.Tx) error {
		current := tx.Document().AIConfig()
		if current.ControllerID != "" {
			return relay.ErrConflict
		}
		if err := tx.PatchAIConfig(patch); err != nil {
			return err
		}
		tx.SetController(s.identity.ID)
		config = patch.ApplyTo(current)
		config.ControllerID = s.identity.ID
		return nil
	})
	if errors.Is(err, relay.ErrConflict) {
		return schema.AIConfig{}, err
	}
	if err != nil {
		return schema.AIConfig{}, s.service.classify(s.RoomID(), err)
	}
	return config, nil
}

func (s *Session) patchAsController(patch schema.AIConfigPatch) (schema.AIConfig, error) {
	var config schema.AIConfig
	_, err := s.relay.Mutate(s.identity.ID, func(tx *document.Tx) error {
		current := tx.Document().AIConfig()
		if current.ControllerID != s.identity.ID {
			return relay.ErrConflict
		}
		if err := tx.PatchAIConfig(patch); err != nil {
			return err
		}
		config = patch.ApplyTo(current)
		return nil
	})
	if errors.Is(err, relay.ErrConflict) {
		return schema.AIConfig{}, err
	}
	if err != nil {
		return schema.AIConfig{}, s.service.classify(s.RoomID(), err)
	}
	return config, nil
}

// ReleaseControl gives up control of the assistant configuration. Only
// the current controller may release it.
func (s *Session) ReleaseControl() error {
	_, err := s.mutate(func(tx *document.Tx) error {
		controller := tx.Document().AIController.Get()
		if controller != s.identity.ID {
			if controller == "" {
				return newError(KindPermissionDenied, s.RoomID(), "nobody holds assistant control")
			}
			return newError(KindPermissionDenied, s.RoomID(),
				"assistant config is controlled by %s", controller)
		}
		tx.SetController("")
		return nil
	})
	if err == nil {
		s.logger.Info("released assistant control")
	}
	return err
}
