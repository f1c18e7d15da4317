// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"strings"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType discriminates [ContentBlock].
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ToolChoice constrains whether the model must call a tool.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide. The zero value behaves the
	// same.
	ToolChoiceAuto ToolChoice = "auto"

	// ToolChoiceRequired forces at least one tool call.
	ToolChoiceRequired ToolChoice = "required"
)

// Request is a provider-independent completion request.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolDefinition

	// ToolChoice applies only when Tools is non-empty.
	ToolChoice ToolChoice

	// MaxTokens bounds the response. Zero leaves it to the provider.
	MaxTokens int

	Temperature   *float64
	StopSequences []string

	// ReasoningEffort asks reasoning-capable models to think ("low",
	// "medium", "high"). Empty sends nothing.
	ReasoningEffort string

	// ExtraHeaders are added to the HTTP request.
	ExtraHeaders map[string]string
}

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// ContentBlock is one piece of a message. Exactly one of Text,
// ToolUse, ToolResult is meaningful, selected by Type.
type ContentBlock struct {
	Type       ContentType
	Text       string
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// ToolUse is a tool call requested by the model. Input is the raw JSON
// argument object.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult answers a [ToolUse].
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolUseBlock returns a tool-call content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

// UserMessage returns a text-only user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage returns a text-only assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolResultMessage returns a user message carrying tool results.
func ToolResultMessage(results ...ToolResult) Message {
	message := Message{Role: RoleUser}
	for i := range results {
		result := results[i]
		message.Content = append(message.Content, ContentBlock{Type: ContentToolResult, ToolResult: &result})
	}
	return message
}

// StopReason is why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage reports token consumption.
type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	CacheReadTokens int64
}

// Response is a complete model response, accumulated from a stream.
type Response struct {
	Model      string
	Content    []ContentBlock
	Reasoning  string
	StopReason StopReason
	Usage      Usage
}

// TextContent concatenates the text blocks.
func (response *Response) TextContent() string {
	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == ContentText {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

// ToolUses returns the tool calls in order.
func (response *Response) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range response.Content {
		if block.Type == ContentToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// StreamEventType discriminates [StreamEvent].
type StreamEventType string

const (
	// EventTextDelta carries an increment of response text.
	EventTextDelta StreamEventType = "text_delta"

	// EventReasoningDelta carries an increment of model reasoning.
	EventReasoningDelta StreamEventType = "reasoning_delta"

	// EventContentBlockDone carries a finished content block (the
	// full text, or one complete tool call).
	EventContentBlockDone StreamEventType = "content_block_done"

	// EventDone marks the successful end of the stream.
	EventDone StreamEventType = "done"

	// EventError reports an error the provider sent inside the
	// stream. The stream is unusable afterwards.
	EventError StreamEventType = "error"
)

// StreamEvent is one item of a streaming response.
type StreamEvent struct {
	Type         StreamEventType
	Text         string
	Reasoning    string
	ContentBlock ContentBlock
	Error        error
}
