// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAI implements [Provider] for the OpenAI Chat Completions wire
// format. DeepSeek, Gemini's OpenAI-compatible endpoint, OpenRouter,
// vLLM and Ollama all speak it; only the base URL and key differ.
//
// DeepSeek reasoning models stream their chain of thought in a
// non-standard reasoning_content delta field. It is surfaced as
// [EventReasoningDelta] and accumulated into [Response.Reasoning].
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewOpenAI creates an OpenAI-compatible provider. baseURL is the API
// root including any version segment (e.g. "https://api.deepseek.com/v1");
// "/chat/completions" is appended. An empty apiKey sends no
// Authorization header.
func NewOpenAI(httpClient *http.Client, baseURL, apiKey string) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *OpenAI) Stream(ctx context.Context, request Request) (*EventStream, error) {
	wireRequest := provider.buildRequest(request)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.baseURL+"/chat/completions", provider.apiKey,
		request.ExtraHeaders, wireRequest, "llm/openai")
	if err != nil {
		return nil, err
	}

	return provider.newEventStream(httpResponse.Body), nil
}

// buildRequest converts our types to the OpenAI wire format.
func (provider *OpenAI) buildRequest(request Request) openaiRequest {
	wireRequest := openaiRequest{
		Model:           request.Model,
		MaxTokens:       request.MaxTokens,
		Temperature:     request.Temperature,
		ReasoningEffort: request.ReasoningEffort,
		Stream:          true,
		StreamOptions:   &openaiStreamOptions{IncludeUsage: true},
	}
	if len(request.StopSequences) > 0 {
		wireRequest.Stop = request.StopSequences
	}

	if request.System != "" {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    "system",
			Content: openaiTextContent(request.System),
		})
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toOpenAIMessages(message)...)
	}

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, openaiTool{
			Type: "function",
			Function: openaiToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if len(wireRequest.Tools) > 0 && request.ToolChoice != "" {
		wireRequest.ToolChoice = string(request.ToolChoice)
	}

	return wireRequest
}

// newEventStream creates an EventStream that parses OpenAI SSE chunks.
//
// OpenAI finalizes every content block at once when finish_reason
// arrives, and one chunk may carry both reasoning and text. A pending
// queue holds the extra events so Next can yield them one at a time.
func (provider *OpenAI) newEventStream(body io.ReadCloser) *EventStream {
	sseScanner := NewSSEScanner(body)

	var textContent strings.Builder
	var partialToolCalls []openaiPartialToolCall
	var pending []StreamEvent
	var modelSet bool

	stream := NewEventStream(nil, body)

	pop := func() StreamEvent {
		event := pending[0]
		pending = pending[1:]
		return event
	}

	stream.next = func() (StreamEvent, error) {
		if len(pending) > 0 {
			return pop(), nil
		}

		for {
			if !sseScanner.Next() {
				if err := sseScanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/openai: reading SSE: %w", err)
				}
				return StreamEvent{}, io.EOF
			}

			sseEvent := sseScanner.Event()
			if sseEvent.Data == "[DONE]" {
				return StreamEvent{Type: EventDone}, nil
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(sseEvent.Data), &chunk); err != nil {
				return StreamEvent{}, fmt.Errorf("llm/openai: parsing stream chunk: %w", err)
			}

			// Errors arrive as ordinary data lines with an "error" object.
			if chunk.Error != nil && chunk.Error.Message != "" {
				return StreamEvent{
					Type: EventError,
					Error: &ProviderError{
						Type:    chunk.Error.Type,
						Message: chunk.Error.Message,
					},
				}, nil
			}

			if !modelSet && chunk.Model != "" {
				stream.SetModel(chunk.Model)
				modelSet = true
			}

			// With include_usage the last chunk carries usage and no choices.
			if chunk.Usage != nil {
				usage := Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
				if chunk.Usage.PromptTokensDetails != nil {
					usage.CacheReadTokens = chunk.Usage.PromptTokensDetails.CachedTokens
				}
				stream.SetUsage(usage)
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			delta := choice.Delta

			if delta.ReasoningContent != "" {
				pending = append(pending, StreamEvent{
					Type:      EventReasoningDelta,
					Reasoning: delta.ReasoningContent,
				})
			}
			if delta.Content != "" {
				textContent.WriteString(delta.Content)
				pending = append(pending, StreamEvent{
					Type: EventTextDelta,
					Text: delta.Content,
				})
			}

			for _, toolCallDelta := range delta.ToolCalls {
				index := toolCallDelta.Index
				for len(partialToolCalls) <= index {
					partialToolCalls = append(partialToolCalls, openaiPartialToolCall{})
				}

				partial := &partialToolCalls[index]
				if toolCallDelta.ID != "" {
					partial.id = toolCallDelta.ID
				}
				if toolCallDelta.Function != nil {
					if toolCallDelta.Function.Name != "" {
						partial.name = toolCallDelta.Function.Name
					}
					partial.arguments.WriteString(toolCallDelta.Function.Arguments)
				}
			}

			if choice.FinishReason != nil {
				stream.SetStopReason(mapOpenAIFinishReason(*choice.FinishReason))

				if textContent.Len() > 0 {
					pending = append(pending, StreamEvent{
						Type:         EventContentBlockDone,
						ContentBlock: TextBlock(textContent.String()),
					})
				}
				for i := range partialToolCalls {
					pending = append(pending, StreamEvent{
						Type:         EventContentBlockDone,
						ContentBlock: partialToolCalls[i].toContentBlock(),
					})
				}
				partialToolCalls = nil
				textContent.Reset()
			}

			if len(pending) > 0 {
				return pop(), nil
			}
		}
	}

	return stream
}

// OpenAI wire types. The Content field on openaiMessage is raw JSON
// because the API accepts either a string or an array of parts.

type openaiRequest struct {
	Model           string               `json:"model"`
	Messages        []openaiMessage      `json:"messages"`
	Tools           []openaiTool         `json:"tools,omitempty"`
	ToolChoice      string               `json:"tool_choice,omitempty"`
	MaxTokens       int                  `json:"max_tokens,omitempty"`
	Temperature     *float64             `json:"temperature,omitempty"`
	Stop            []string             `json:"stop,omitempty"`
	ReasoningEffort string               `json:"reasoning_effort,omitempty"`
	Stream          bool                 `json:"stream"`
	StreamOptions   *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string               `json:"type"`
	Function openaiToolDefinition `json:"function"`
}

type openaiToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiUsage struct {
	PromptTokens        int64                      `json:"prompt_tokens"`
	CompletionTokens    int64                      `json:"completion_tokens"`
	PromptTokensDetails *openaiPromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

type openaiPromptTokensDetails struct {
	CachedTokens int64 `json:"cached_tokens"`
}

type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
	Error   *openaiStreamError   `json:"error,omitempty"`
}

type openaiStreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type openaiStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openaiStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type openaiStreamDelta struct {
	Role             string                 `json:"role,omitempty"`
	Content          string                 `json:"content,omitempty"`
	ReasoningContent string                 `json:"reasoning_content,omitempty"`
	ToolCalls        []openaiStreamToolCall `json:"tool_calls,omitempty"`
}

type openaiStreamToolCall struct {
	Index    int                       `json:"index"`
	ID       string                    `json:"id,omitempty"`
	Type     string                    `json:"type,omitempty"`
	Function *openaiStreamToolFunction `json:"function,omitempty"`
}

type openaiStreamToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// openaiPartialToolCall is a tool call being assembled from deltas:
// the first delta carries the ID and name, later ones extend arguments.
type openaiPartialToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

func (partial *openaiPartialToolCall) toContentBlock() ContentBlock {
	arguments := partial.arguments.String()
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	return ToolUseBlock(partial.id, partial.name, json.RawMessage(arguments))
}

func openaiTextContent(text string) json.RawMessage {
	data, _ := json.Marshal(text)
	return data
}

// toOpenAIMessages converts one Message into wire messages. Tool
// results become individual role:"tool" messages, so one user message
// may expand to several.
func toOpenAIMessages(message Message) []openaiMessage {
	if message.Role == RoleAssistant {
		return []openaiMessage{toOpenAIAssistantMessage(message)}
	}
	return toOpenAIUserMessages(message)
}

func toOpenAIAssistantMessage(message Message) openaiMessage {
	wire := openaiMessage{Role: "assistant"}

	var text strings.Builder
	for _, block := range message.Content {
		switch block.Type {
		case ContentText:
			text.WriteString(block.Text)
		case ContentToolUse:
			if block.ToolUse != nil {
				wire.ToolCalls = append(wire.ToolCalls, openaiToolCall{
					ID:   block.ToolUse.ID,
					Type: "function",
					Function: openaiToolFunction{
						Name:      block.ToolUse.Name,
						Arguments: string(block.ToolUse.Input),
					},
				})
			}
		}
	}

	// Assistant messages with tool calls may omit content; plain
	// replies always carry it, even when empty.
	if text.Len() > 0 || len(wire.ToolCalls) == 0 {
		wire.Content = openaiTextContent(text.String())
	}
	return wire
}

func toOpenAIUserMessages(message Message) []openaiMessage {
	var messages []openaiMessage
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			messages = append(messages, openaiMessage{
				Role:    "user",
				Content: openaiTextContent(text.String()),
			})
			text.Reset()
		}
	}

	for _, block := range message.Content {
		switch block.Type {
		case ContentText:
			text.WriteString(block.Text)
		case ContentToolResult:
			if block.ToolResult == nil {
				continue
			}
			flush()
			content := block.ToolResult.Content
			if block.ToolResult.IsError {
				content = "error: " + content
			}
			messages = append(messages, openaiMessage{
				Role:       "tool",
				Content:    openaiTextContent(content),
				ToolCallID: block.ToolResult.ToolUseID,
			})
		}
	}
	flush()

	if len(messages) == 0 {
		messages = append(messages, openaiMessage{
			Role:    "user",
			Content: openaiTextContent(""),
		})
	}
	return messages
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopReasonEndTurn
	case "tool_calls", "function_call":
		return StopReasonToolUse
	case "length":
		return StopReasonMaxTokens
	default:
		return StopReason(reason)
	}
}
