// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"github.com/nexus-goc/commandroom/lib/codec"
	"github.com/nexus-goc/commandroom/lib/crdt"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// Document is the convergent state of one room. The aiConfig record is
// split into one register per field so concurrent writes to different
// fields both survive.
type Document struct {
	Clock crdt.LamportClock `json:"clock"`

	AIProvider   crdt.Register[string]      `json:"aiProvider"`
	AIModelID    crdt.Register[string]      `json:"aiModelId"`
	AIMode       crdt.Register[schema.Mode] `json:"aiMode"`
	AIThinking   crdt.Register[bool]        `json:"aiThinking"`
	AIController crdt.Register[string]      `json:"aiController"`

	Todos         crdt.List[schema.Todo]               `json:"todos"`
	SharedNote    crdt.Register[string]                `json:"sharedNote"`
	PlayerNotes   crdt.Map[schema.PlayerNote]          `json:"playerNotes"`
	Messages      crdt.List[schema.Message]            `json:"messages"`
	StreamingSlot crdt.Register[*schema.StreamingSlot] `json:"streamingSlot"`
	CurrentURL    crdt.Register[*string]               `json:"currentUrl"`
	LatestIntel   crdt.Register[*schema.Intel]         `json:"latestIntel"`
	ToolLogs      crdt.List[schema.ToolLog]            `json:"toolLogs"`
}

// New returns the document of a freshly created room. Defaults carry
// zero stamps so the first real write to any field wins.
func New() *Document {
	return NewWithAIConfig(schema.DefaultAIConfig())
}

// NewWithAIConfig is [New] with config as the initial assistant
// configuration. The controller is always unset.
func NewWithAIConfig(config schema.AIConfig) *Document {
	return &Document{
		AIProvider:   crdt.NewRegister(config.Provider),
		AIModelID:    crdt.NewRegister(config.ModelID),
		AIMode:       crdt.NewRegister(config.Mode),
		AIThinking:   crdt.NewRegister(config.ThinkingEnabled),
		AIController: crdt.NewRegister(""),

		Todos:       crdt.NewList[schema.Todo](),
		SharedNote:  crdt.NewRegister(schema.DefaultSharedNote),
		PlayerNotes: crdt.NewMap[schema.PlayerNote](),
		Messages:    crdt.NewList[schema.Message](),
		ToolLogs:    crdt.NewList[schema.ToolLog](),
	}
}

// AIConfig returns the current assistant configuration.
func (d *Document) AIConfig() schema.AIConfig {
	return schema.AIConfig{
		Provider:        d.AIProvider.Get(),
		ModelID:         d.AIModelID.Get(),
		Mode:            d.AIMode.Get(),
		ThinkingEnabled: d.AIThinking.Get(),
		ControllerID:    d.AIController.Get(),
	}
}

// State returns a plain, independent copy of the document's values.
func (d *Document) State() schema.RoomState {
	state := schema.RoomState{
		AIConfig:    d.AIConfig(),
		Todos:       d.Todos.Values(),
		SharedNote:  d.SharedNote.Get(),
		PlayerNotes: make(map[string]schema.PlayerNote, d.PlayerNotes.Len()),
		Messages:    d.Messages.Values(),
		ToolLogs:    d.ToolLogs.Values(),
	}
	for _, key := range d.PlayerNotes.Keys() {
		note, _ := d.PlayerNotes.Get(key)
		state.PlayerNotes[key] = note
	}
	if slot := d.StreamingSlot.Get(); slot != nil {
		copied := *slot
		state.StreamingSlot = &copied
	}
	if url := d.CurrentURL.Get(); url != nil {
		copied := *url
		state.CurrentURL = &copied
	}
	if intel := d.LatestIntel.Get(); intel != nil {
		copied := *intel
		state.LatestIntel = &copied
	}
	return state
}

// Encode serializes the full convergent state, including stamps and
// tombstones, for snapshots and replica bootstrap.
func (d *Document) Encode() ([]byte, error) {
	return codec.Marshal(d)
}

// Decode restores a document produced by [Document.Encode].
func Decode(data []byte) (*Document, error) {
	document := New()
	if err := codec.Unmarshal(data, document); err != nil {
		return nil, err
	}
	return document, nil
}

// StreamingSlotID returns the id of the in-flight generation, or "".
func (d *Document) StreamingSlotID() string {
	if slot := d.StreamingSlot.Get(); slot != nil {
		return slot.ID
	}
	return ""
}

// HasToolLog reports whether a tool run has a durable outcome.
func (d *Document) HasToolLog(runID string) bool {
	for _, entry := range d.ToolLogs.Ordered() {
		if entry.Value.Value.RunID == runID {
			return true
		}
	}
	return false
}
