// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// sseHandler writes each chunk as a data line followed by [DONE].
func sseHandler(t *testing.T, inspect func(*http.Request, []byte), chunks ...string) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		body, _ := io.ReadAll(request.Body)
		if inspect != nil {
			inspect(request, body)
		}

		writer.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := writer.(http.Flusher)
		if !ok {
			t.Error("ResponseWriter does not support Flush")
			return
		}
		for _, chunk := range chunks {
			fmt.Fprintf(writer, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(writer, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// openaiTestServer starts handler under /v1/chat/completions and
// returns a provider pointed at it.
func openaiTestServer(t *testing.T, handler http.Handler) *OpenAI {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewOpenAI(server.Client(), server.URL+"/v1/", "sk-test")
}

type drained struct {
	text      []string
	reasoning []string
	blocks    []ContentBlock
	done      int
	errors    []error
}

func drain(t *testing.T, stream *EventStream) drained {
	t.Helper()
	var result drained
	for {
		event, err := stream.Next()
		if err == io.EOF {
			return result
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		switch event.Type {
		case EventTextDelta:
			result.text = append(result.text, event.Text)
		case EventReasoningDelta:
			result.reasoning = append(result.reasoning, event.Reasoning)
		case EventContentBlockDone:
			result.blocks = append(result.blocks, event.ContentBlock)
		case EventDone:
			result.done++
		case EventError:
			result.errors = append(result.errors, event.Error)
		}
	}
}

func TestOpenAIStreamText(t *testing.T) {
	t.Parallel()

	var wireRequest struct {
		Model         string `json:"model"`
		Stream        bool   `json:"stream"`
		StreamOptions *struct {
			IncludeUsage bool `json:"include_usage"`
		} `json:"stream_options"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var authorization, roomHeader string

	provider := openaiTestServer(t, sseHandler(t,
		func(request *http.Request, body []byte) {
			authorization = request.Header.Get("Authorization")
			roomHeader = request.Header.Get("X-Room")
			if err := json.Unmarshal(body, &wireRequest); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		},
		`{"id":"c1","model":"deepseek-chat","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"},"finish_reason":null}]}`,
		`{"id":"c1","model":"deepseek-chat","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}`,
		`{"id":"c1","model":"deepseek-chat","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"c1","model":"deepseek-chat","choices":[],"usage":{"prompt_tokens":50,"completion_tokens":5,"prompt_tokens_details":{"cached_tokens":10}}}`,
	))

	stream, err := provider.Stream(context.Background(), Request{
		Model:        "deepseek-chat",
		System:       "You are the ship's computer.",
		Messages:     []Message{UserMessage("Hello")},
		ExtraHeaders: map[string]string{"X-Room": "alpha"},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	result := drain(t, stream)

	if authorization != "Bearer sk-test" {
		t.Errorf("Authorization = %q", authorization)
	}
	if roomHeader != "alpha" {
		t.Errorf("X-Room = %q, want alpha", roomHeader)
	}
	if !wireRequest.Stream || wireRequest.StreamOptions == nil || !wireRequest.StreamOptions.IncludeUsage {
		t.Errorf("stream flags not set: %+v", wireRequest)
	}
	if len(wireRequest.Messages) != 2 || wireRequest.Messages[0].Role != "system" || wireRequest.Messages[1].Content != "Hello" {
		t.Errorf("messages = %+v", wireRequest.Messages)
	}

	if len(result.text) != 2 || result.text[0] != "Hello" || result.text[1] != " world" {
		t.Errorf("text deltas = %q", result.text)
	}
	if len(result.blocks) != 1 || result.blocks[0].Text != "Hello world" {
		t.Errorf("blocks = %+v", result.blocks)
	}
	if result.done != 1 {
		t.Errorf("done events = %d, want 1", result.done)
	}

	response := stream.Response()
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", response.StopReason)
	}
	if response.Model != "deepseek-chat" {
		t.Errorf("Model = %q", response.Model)
	}
	if response.Usage.InputTokens != 50 || response.Usage.OutputTokens != 5 || response.Usage.CacheReadTokens != 10 {
		t.Errorf("Usage = %+v", response.Usage)
	}
	if text := response.TextContent(); text != "Hello world" {
		t.Errorf("TextContent = %q", text)
	}
}

func TestOpenAIStreamReasoning(t *testing.T) {
	t.Parallel()

	var wireRequest struct {
		ReasoningEffort string `json:"reasoning_effort"`
	}
	provider := openaiTestServer(t, sseHandler(t,
		func(_ *http.Request, body []byte) { json.Unmarshal(body, &wireRequest) },
		`{"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"reasoning_content":"Count the "},"finish_reason":null}]}`,
		`{"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"reasoning_content":"crates.","content":"Four"},"finish_reason":null}]}`,
		`{"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"content":" crates."},"finish_reason":"stop"}]}`,
	))

	stream, err := provider.Stream(context.Background(), Request{
		Model:           "deepseek-reasoner",
		Messages:        []Message{UserMessage("How many crates?")},
		ReasoningEffort: "medium",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	result := drain(t, stream)
	if wireRequest.ReasoningEffort != "medium" {
		t.Errorf("reasoning_effort = %q, want medium", wireRequest.ReasoningEffort)
	}
	if len(result.reasoning) != 2 {
		t.Fatalf("reasoning deltas = %q, want 2", result.reasoning)
	}
	if len(result.text) != 2 {
		t.Fatalf("text deltas = %q, want 2", result.text)
	}

	response := stream.Response()
	if response.Reasoning != "Count the crates." {
		t.Errorf("Reasoning = %q", response.Reasoning)
	}
	if response.TextContent() != "Four crates." {
		t.Errorf("TextContent = %q", response.TextContent())
	}
}

func TestOpenAIStreamToolCalls(t *testing.T) {
	t.Parallel()

	var wireRequest struct {
		ToolChoice string `json:"tool_choice"`
		Tools      []struct {
			Type     string `json:"type"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tools"`
	}
	provider := openaiTestServer(t, sseHandler(t,
		func(_ *http.Request, body []byte) { json.Unmarshal(body, &wireRequest) },
		`{"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"addTodo","arguments":""}}]},"finish_reason":null}]}`,
		`{"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"text\":"}}]},"finish_reason":null}]}`,
		`{"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"scout\"}"}},{"index":1,"id":"call_b","type":"function","function":{"name":"getNotes"}}]},"finish_reason":null}]}`,
		`{"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	))

	stream, err := provider.Stream(context.Background(), Request{
		Model:      "m",
		Messages:   []Message{UserMessage("plan")},
		ToolChoice: ToolChoiceRequired,
		Tools: []ToolDefinition{
			{Name: "addTodo", InputSchema: json.RawMessage(`{"type":"object"}`)},
			{Name: "getNotes", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()
	drain(t, stream)

	if wireRequest.ToolChoice != "required" {
		t.Errorf("tool_choice = %q, want required", wireRequest.ToolChoice)
	}
	if len(wireRequest.Tools) != 2 || wireRequest.Tools[0].Type != "function" || wireRequest.Tools[1].Function.Name != "getNotes" {
		t.Errorf("tools = %+v", wireRequest.Tools)
	}

	response := stream.Response()
	if response.StopReason != StopReasonToolUse {
		t.Errorf("StopReason = %q, want tool_use", response.StopReason)
	}
	uses := response.ToolUses()
	if len(uses) != 2 {
		t.Fatalf("tool uses = %d, want 2", len(uses))
	}
	if uses[0].ID != "call_a" || uses[0].Name != "addTodo" || string(uses[0].Input) != `{"text":"scout"}` {
		t.Errorf("uses[0] = %+v (input %s)", uses[0], uses[0].Input)
	}
	if uses[1].Name != "getNotes" || string(uses[1].Input) != "{}" {
		t.Errorf("uses[1] = %+v (input %s)", uses[1], uses[1].Input)
	}
}

func TestOpenAIToolChoiceOmittedWithoutTools(t *testing.T) {
	t.Parallel()

	provider := NewOpenAI(nil, "https://example.invalid/v1", "")
	wire := provider.buildRequest(Request{Model: "m", ToolChoice: ToolChoiceRequired})
	if wire.ToolChoice != "" {
		t.Errorf("ToolChoice = %q, want empty without tools", wire.ToolChoice)
	}
}

func TestOpenAIToolResultMessages(t *testing.T) {
	t.Parallel()

	provider := NewOpenAI(nil, "https://example.invalid/v1", "")
	wire := provider.buildRequest(Request{
		Model: "m",
		Messages: []Message{
			UserMessage("plan the day"),
			{
				Role: RoleAssistant,
				Content: []ContentBlock{
					ToolUseBlock("call_a", "getNotes", json.RawMessage(`{}`)),
					ToolUseBlock("call_b", "setUrl", json.RawMessage(`{"url":"x"}`)),
				},
			},
			ToolResultMessage(
				ToolResult{ToolUseID: "call_a", Content: "notes"},
				ToolResult{ToolUseID: "call_b", Content: "bad url", IsError: true},
			),
		},
	})

	if len(wire.Messages) != 4 {
		t.Fatalf("wire messages = %d, want 4: %+v", len(wire.Messages), wire.Messages)
	}
	assistant := wire.Messages[1]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 2 || assistant.Content != nil {
		t.Errorf("assistant = %+v", assistant)
	}
	if assistant.ToolCalls[1].Function.Arguments != `{"url":"x"}` {
		t.Errorf("arguments = %q", assistant.ToolCalls[1].Function.Arguments)
	}

	first, second := wire.Messages[2], wire.Messages[3]
	if first.Role != "tool" || first.ToolCallID != "call_a" || string(first.Content) != `"notes"` {
		t.Errorf("first tool message = %+v", first)
	}
	if second.ToolCallID != "call_b" || string(second.Content) != `"error: bad url"` {
		t.Errorf("second tool message = %+v (content %s)", second, second.Content)
	}
}

func TestOpenAIHTTPError(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(writer, `{"error":{"type":"authentication_error","message":"invalid api key"}}`)
	}))

	_, err := provider.Stream(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("hi")}})
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("error = %v (%T), want *ProviderError", err, err)
	}
	if providerErr.StatusCode != http.StatusUnauthorized || !providerErr.IsUnauthorized() {
		t.Errorf("StatusCode = %d", providerErr.StatusCode)
	}
	if providerErr.Message != "invalid api key" || providerErr.Type != "authentication_error" {
		t.Errorf("error = %+v", providerErr)
	}
}

func TestOpenAIHTTPErrorPlainBody(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(writer, "slow down\n")
	}))

	_, err := provider.Stream(context.Background(), Request{Model: "m"})
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if !providerErr.IsRateLimited() || providerErr.Message != "slow down" {
		t.Errorf("error = %+v", providerErr)
	}
}

func TestOpenAIInStreamError(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, sseHandler(t, nil,
		`{"model":"m","choices":[{"index":0,"delta":{"content":"par"},"finish_reason":null}]}`,
		`{"error":{"type":"server_error","message":"upstream overloaded"}}`,
	))

	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	result := drain(t, stream)
	if len(result.errors) != 1 {
		t.Fatalf("error events = %d, want 1", len(result.errors))
	}
	var providerErr *ProviderError
	if !errors.As(result.errors[0], &providerErr) || providerErr.Message != "upstream overloaded" {
		t.Errorf("error = %v", result.errors[0])
	}
	if providerErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for in-stream errors", providerErr.StatusCode)
	}
}

func TestOpenAIStreamCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	provider := openaiTestServer(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(writer, `data: {"model":"m","choices":[{"index":0,"delta":{"content":"a"},"finish_reason":null}]}`+"\n\n")
		writer.(http.Flusher).Flush()
		select {
		case <-request.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := provider.Stream(ctx, Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	event, err := stream.Next()
	if err != nil || event.Text != "a" {
		t.Fatalf("first event = %+v, %v", event, err)
	}

	cancel()
	if _, err := stream.Next(); err == nil || err == io.EOF {
		t.Errorf("Next after cancel = %v, want a read error", err)
	}
}
