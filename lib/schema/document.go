// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/nexus-goc/commandroom/lib/identity"
)

// Defaults for a freshly created room.
const (
	DefaultProvider   = "deepseek"
	DefaultModelID    = "deepseek-chat"
	DefaultSharedNote = "## Mission Briefing\n\n- Objective: Survive\n- Day: 1"
	DefaultTodoGroup  = "default"
)

// AIConfig is the room's assistant configuration. Only the controller
// may change it once ControllerID is set.
type AIConfig struct {
	Provider        string `json:"provider"`
	ModelID         string `json:"modelId"`
	Mode            Mode   `json:"mode"`
	ThinkingEnabled bool   `json:"thinkingEnabled"`

	// ControllerID is the identity holding control, or empty when
	// nobody does.
	ControllerID string `json:"controllerId,omitempty"`
}

// DefaultAIConfig returns the configuration of a new room.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Provider:        DefaultProvider,
		ModelID:         DefaultModelID,
		Mode:            ModeEncyclopedia,
		ThinkingEnabled: true,
	}
}

// AIConfigPatch is a partial update of [AIConfig]. Nil fields are left
// unchanged. The controller is not patchable; it changes only through
// claim and release.
type AIConfigPatch struct {
	Provider        *string `json:"provider,omitempty"`
	ModelID         *string `json:"modelId,omitempty"`
	Mode            *Mode   `json:"mode,omitempty"`
	ThinkingEnabled *bool   `json:"thinkingEnabled,omitempty"`
}

// Validate rejects unknown modes and blank provider or model names.
func (p AIConfigPatch) Validate() error {
	if p.Mode != nil && !p.Mode.Valid() {
		return fmt.Errorf("unknown assistant mode %q", *p.Mode)
	}
	if p.Provider != nil && *p.Provider == "" {
		return fmt.Errorf("provider must not be empty")
	}
	if p.ModelID != nil && *p.ModelID == "" {
		return fmt.Errorf("model id must not be empty")
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p AIConfigPatch) IsEmpty() bool {
	return p.Provider == nil && p.ModelID == nil && p.Mode == nil && p.ThinkingEnabled == nil
}

// ApplyTo returns config with the patch applied.
func (p AIConfigPatch) ApplyTo(config AIConfig) AIConfig {
	if p.Provider != nil {
		config.Provider = *p.Provider
	}
	if p.ModelID != nil {
		config.ModelID = *p.ModelID
	}
	if p.Mode != nil {
		config.Mode = *p.Mode
	}
	if p.ThinkingEnabled != nil {
		config.ThinkingEnabled = *p.ThinkingEnabled
	}
	return config
}

// Todo is one entry of the todo board.
type Todo struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Group     string `json:"group,omitempty"`

	// ParentID nests this todo under another. Deleting a parent deletes
	// its direct children.
	ParentID string `json:"parentId,omitempty"`

	// OwnerID and OwnerName mark a personal todo.
	OwnerID   string `json:"ownerId,omitempty"`
	OwnerName string `json:"ownerName,omitempty"`
}

// PlayerNote is a per-identity scratch note.
type PlayerNote struct {
	Content     string `json:"content"`
	DisplayName string `json:"displayName"`
}

// Role is the author class of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation log. Messages are never
// edited or removed once appended.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`

	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`

	AuthorName  string `json:"authorName,omitempty"`
	AuthorColor string `json:"authorColor,omitempty"`
}

// StreamingSlot is the placeholder for the in-flight assistant
// response. At most one exists per room.
type StreamingSlot struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
	CreatedAt  int64  `json:"createdAt"`
	IsComplete bool   `json:"isComplete"`

	// Progress counts everything the generation has done: text and
	// reasoning deltas and tool dispatches. Watchdogs treat a slot whose
	// Progress stopped moving as stalled.
	Progress uint64 `json:"progress,omitempty"`
}

// Intel is the latest shared image artifact.
type Intel struct {
	ImageURL         string `json:"imageUrl"`
	UploaderIdentity string `json:"uploaderIdentity"`
	UploaderName     string `json:"uploaderName"`
	Timestamp        int64  `json:"timestamp"`
}

// ToolLog is the durable outcome of one tool run. Its presence in the
// document is how the requester learns the run finished.
type ToolLog struct {
	RunID    string `json:"runId"`
	ToolName string `json:"toolName"`

	// Args is the tool's argument object as JSON text.
	Args string `json:"args"`

	Result     string `json:"result"`
	Error      string `json:"error,omitempty"`
	ExecutorID string `json:"executorId"`
	Timestamp  int64  `json:"timestamp"`
}

// Presence is one connected session. Presence is not part of the
// document.
type Presence struct {
	SessionID   string          `json:"sessionId"`
	Identity    string          `json:"identity"`
	DisplayName string          `json:"displayName"`
	Avatar      identity.Avatar `json:"avatar"`

	// ConnectedAt is Unix milliseconds.
	ConnectedAt int64 `json:"connectedAt"`
}

// RoomState is the plain read view of a room document.
type RoomState struct {
	AIConfig      AIConfig              `json:"aiConfig"`
	Todos         []Todo                `json:"todos"`
	SharedNote    string                `json:"sharedNote"`
	PlayerNotes   map[string]PlayerNote `json:"playerNotes"`
	Messages      []Message             `json:"messages"`
	StreamingSlot *StreamingSlot        `json:"streamingSlot"`
	CurrentURL    *string               `json:"currentUrl"`
	LatestIntel   *Intel                `json:"latestIntel"`
	ToolLogs      []ToolLog             `json:"toolLogs"`
}

// ToolLogged reports whether a run with runID has a log entry.
func (s *RoomState) ToolLogged(runID string) (ToolLog, bool) {
	for _, entry := range s.ToolLogs {
		if entry.RunID == runID {
			return entry, true
		}
	}
	return ToolLog{}, false
}
