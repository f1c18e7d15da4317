// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrScriptExhausted is returned by [Scripted.Stream] when every
// queued script has been consumed.
var ErrScriptExhausted = errors.New("llm: scripted provider has no more responses")

// Script is one canned response for [Scripted].
type Script struct {
	// Err fails the Stream call itself, before any event.
	Err error

	Reasoning []string
	Text      []string
	ToolCalls []ToolUse

	// StreamErr is delivered as an [EventError] after the text.
	StreamErr error

	// Pause, when non-nil, blocks the stream after PauseAfter text
	// deltas until the channel is closed or the request context ends.
	Pause      <-chan struct{}
	PauseAfter int
}

// Scripted is a [Provider] that replays queued scripts in order and
// records every request it receives. Used by tests.
type Scripted struct {
	mutex    sync.Mutex
	scripts  []Script
	requests []Request
	fallback *Script
}

// NewScripted returns a provider that answers with scripts in order.
func NewScripted(scripts ...Script) *Scripted {
	return &Scripted{scripts: scripts}
}

// Push appends scripts to the queue.
func (provider *Scripted) Push(scripts ...Script) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.scripts = append(provider.scripts, scripts...)
}

// Repeat makes script the answer once the queue is empty.
func (provider *Scripted) Repeat(script Script) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.fallback = &script
}

// Requests returns copies of every request received so far.
func (provider *Scripted) Requests() []Request {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return append([]Request(nil), provider.requests...)
}

// Stream implements [Provider].
func (provider *Scripted) Stream(ctx context.Context, request Request) (*EventStream, error) {
	provider.mutex.Lock()
	provider.requests = append(provider.requests, request)
	var script Script
	switch {
	case len(provider.scripts) > 0:
		script = provider.scripts[0]
		provider.scripts = provider.scripts[1:]
	case provider.fallback != nil:
		script = *provider.fallback
	default:
		provider.mutex.Unlock()
		return nil, ErrScriptExhausted
	}
	provider.mutex.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}
	return scriptStream(ctx, script), nil
}

func scriptStream(ctx context.Context, script Script) *EventStream {
	var events []StreamEvent
	for _, reasoning := range script.Reasoning {
		events = append(events, StreamEvent{Type: EventReasoningDelta, Reasoning: reasoning})
	}
	pauseAt := -1
	for i, text := range script.Text {
		if script.Pause != nil && i == script.PauseAfter {
			pauseAt = len(events)
		}
		events = append(events, StreamEvent{Type: EventTextDelta, Text: text})
	}
	if script.Pause != nil && pauseAt < 0 {
		pauseAt = len(events)
	}
	if script.StreamErr != nil {
		events = append(events, StreamEvent{Type: EventError, Error: script.StreamErr})
	} else {
		if len(script.Text) > 0 {
			events = append(events, StreamEvent{
				Type:         EventContentBlockDone,
				ContentBlock: TextBlock(strings.Join(script.Text, "")),
			})
		}
		for _, call := range script.ToolCalls {
			events = append(events, StreamEvent{
				Type:         EventContentBlockDone,
				ContentBlock: ToolUseBlock(call.ID, call.Name, call.Input),
			})
		}
		events = append(events, StreamEvent{Type: EventDone})
	}

	position := 0
	stream := NewEventStream(nil, nil)
	if len(script.ToolCalls) > 0 {
		stream.SetStopReason(StopReasonToolUse)
	} else {
		stream.SetStopReason(StopReasonEndTurn)
	}
	stream.SetModel("scripted")
	stream.next = func() (StreamEvent, error) {
		if position == pauseAt {
			pauseAt = -1
			select {
			case <-script.Pause:
			case <-ctx.Done():
				return StreamEvent{}, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return StreamEvent{}, err
		}
		if position >= len(events) {
			return StreamEvent{}, io.EOF
		}
		event := events[position]
		position++
		return event, nil
	}
	return stream
}

// Echo is a [Provider] that streams the last user text back word by
// word. It needs no network and is used when the service runs offline.
type Echo struct {
	// Prefix is prepended to the echoed text.
	Prefix string
}

// Stream implements [Provider].
func (echo Echo) Stream(ctx context.Context, request Request) (*EventStream, error) {
	var last string
	for _, message := range request.Messages {
		if message.Role != RoleUser {
			continue
		}
		for _, block := range message.Content {
			if block.Type == ContentText {
				last = block.Text
			}
		}
	}

	reply := echo.Prefix + last
	var chunks []string
	for i, word := range strings.Fields(reply) {
		if i > 0 {
			word = " " + word
		}
		chunks = append(chunks, word)
	}
	return scriptStream(ctx, Script{Text: chunks}), nil
}
