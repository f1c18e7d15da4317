// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Provider is the interface for LLM API backends. Implementations
// translate between the common types in this package and each
// vendor's wire format.
type Provider interface {
	// Stream sends a request and returns an [EventStream] that yields
	// events as they arrive. The caller must call [EventStream.Close]
	// when done, even if iteration ended early. Cancelling ctx aborts
	// the upstream request.
	Stream(ctx context.Context, request Request) (*EventStream, error)
}

// nextFunc is the iteration function for an EventStream. Returns
// io.EOF when the stream is complete.
type nextFunc func() (StreamEvent, error)

// EventStream reads streaming events from an LLM response. It yields
// [StreamEvent] values via [EventStream.Next] while accumulating the
// complete [Response] internally.
//
// Next is not safe for concurrent use; Response may be called from any
// goroutine.
type EventStream struct {
	next     nextFunc
	closer   io.Closer
	response Response
	mutex    sync.Mutex
	done     bool
}

// NewEventStream creates an EventStream from a provider-specific
// iteration function and an io.Closer for the underlying resource
// (typically the HTTP response body; nil is allowed).
//
// The next function must return (event, nil) for each event and
// (zero, io.EOF) when the stream is complete.
func NewEventStream(next nextFunc, closer io.Closer) *EventStream {
	return &EventStream{
		next:   next,
		closer: closer,
	}
}

// Next returns the next event from the stream. Returns io.EOF when
// the stream is complete.
//
//	for {
//	    event, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // process event
//	}
//	response := stream.Response()
func (stream *EventStream) Next() (StreamEvent, error) {
	if stream.done {
		return StreamEvent{}, io.EOF
	}

	event, err := stream.next()
	if err != nil {
		if err == io.EOF {
			stream.done = true
		}
		return event, err
	}

	stream.accumulate(event)
	return event, nil
}

// Response returns the accumulated response so far.
func (stream *EventStream) Response() Response {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	return stream.response
}

// Close releases the underlying resources.
func (stream *EventStream) Close() error {
	if stream.closer != nil {
		return stream.closer.Close()
	}
	return nil
}

func (stream *EventStream) accumulate(event StreamEvent) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	switch event.Type {
	case EventReasoningDelta:
		stream.response.Reasoning += event.Reasoning
	case EventContentBlockDone:
		stream.response.Content = append(stream.response.Content, event.ContentBlock)
	}
}

// SetStopReason sets the stop reason on the accumulated response.
func (stream *EventStream) SetStopReason(reason StopReason) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.StopReason = reason
}

// SetUsage sets the usage statistics on the accumulated response.
func (stream *EventStream) SetUsage(usage Usage) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Usage = usage
}

// SetModel sets the model name on the accumulated response.
func (stream *EventStream) SetModel(model string) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Model = model
}

// ProviderError is returned when the LLM API responds with an error,
// either as an HTTP status or as an error frame inside the stream
// (StatusCode zero).
type ProviderError struct {
	// StatusCode is the HTTP status code, or 0 for in-stream errors.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	status := "stream"
	if err.StatusCode != 0 {
		status = fmt.Sprintf("HTTP %d", err.StatusCode)
	}
	if err.Type != "" {
		return fmt.Sprintf("llm: %s: %s: %s", status, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: %s: %s", status, err.Message)
}

// IsRateLimited returns true if the error is a rate limit response (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized returns true for rejected API keys.
func (err *ProviderError) IsUnauthorized() bool {
	return err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden
}

// doProviderRequest marshals wireRequest as JSON, POSTs it to endpoint
// via httpClient with bearer authentication when apiKey is set, and
// returns the HTTP response. Returns a ProviderError for non-200 status
// codes.
//
// On success the caller is responsible for closing the response body.
// On error the body is already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint, apiKey string, headers map[string]string, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error response body in the common
// {"error":{"type":"...","message":"..."}} format. Bodies in any other
// shape become the message verbatim.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
