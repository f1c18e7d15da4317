// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// EventType names a room event.
type EventType string

const (
	// EventAIChunk carries one streamed delta of the in-flight response.
	EventAIChunk EventType = "AI_CHUNK"

	// EventAICancel tells sessions the in-flight response was cancelled.
	EventAICancel EventType = "AI_CANCEL"

	// EventToolRequest asks exactly one session to run a tool.
	EventToolRequest EventType = "TOOL_REQUEST"
)

// AIChunk is the payload of [EventAIChunk]. Chunk is only the delta,
// never the accumulated text.
type AIChunk struct {
	ID          string `json:"id"`
	Chunk       string `json:"chunk"`
	AuthorName  string `json:"authorName"`
	CreatedAt   int64  `json:"createdAt"`
	AuthorColor string `json:"authorColor,omitempty"`
}

// AICancel is the payload of [EventAICancel].
type AICancel struct {
	ID string `json:"id"`
}

// ToolRequest is the payload of [EventToolRequest].
type ToolRequest struct {
	ToolName string `json:"toolName"`

	// Args is the tool's argument object as JSON text.
	Args string `json:"args"`

	ExecutorID string `json:"executorId"`
	RunID      string `json:"runId"`
}

// RoomEvent is an ephemeral broadcast. Exactly one payload field is set,
// matching Type.
type RoomEvent struct {
	Type        EventType    `json:"type"`
	AIChunk     *AIChunk     `json:"aiChunk,omitempty"`
	AICancel    *AICancel    `json:"aiCancel,omitempty"`
	ToolRequest *ToolRequest `json:"toolRequest,omitempty"`
}

// NewAIChunkEvent wraps chunk.
func NewAIChunkEvent(chunk AIChunk) RoomEvent {
	return RoomEvent{Type: EventAIChunk, AIChunk: &chunk}
}

// NewAICancelEvent announces cancellation of generation id.
func NewAICancelEvent(id string) RoomEvent {
	return RoomEvent{Type: EventAICancel, AICancel: &AICancel{ID: id}}
}

// NewToolRequestEvent wraps request.
func NewToolRequestEvent(request ToolRequest) RoomEvent {
	return RoomEvent{Type: EventToolRequest, ToolRequest: &request}
}
