// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/relay"
)

// ToolHandler carries out one tool call on the executing session. The
// returned text becomes the tool result the assistant sees; an error
// is recorded instead of a result and nothing the handler wrote is
// kept.
type ToolHandler func(ctx context.Context, invocation *ToolInvocation) (string, error)

// ToolInvocation is one tool call as seen by its executor.
type ToolInvocation struct {
	RunID    string
	ToolName string

	// Args is the argument object as strict JSON.
	Args json.RawMessage

	// State and Presence are the room as it was when the call arrived.
	State    schema.RoomState
	Presence []schema.Presence

	// Session is the executing session.
	Session *Session

	writes []func(*document.Tx) error
}

// Decode unmarshals the arguments into target.
func (invocation *ToolInvocation) Decode(target any) error {
	if err := json.Unmarshal(invocation.Args, target); err != nil {
		return fmt.Errorf("decoding %s arguments: %w", invocation.ToolName, err)
	}
	return nil
}

// Write queues a document write. Queued writes commit together with the
// run's tool log entry, and only if no entry for the run exists yet.
func (invocation *ToolInvocation) Write(fn func(*document.Tx) error) {
	invocation.writes = append(invocation.writes, fn)
}

// RegisterExecutor installs the handler this session runs for toolName,
// replacing any earlier one (built-ins included). A nil handler removes
// it.
func (s *Session) RegisterExecutor(toolName string, handler ToolHandler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if handler == nil {
		delete(s.executors, toolName)
		return
	}
	s.executors[toolName] = handler
}

// runTool asks the session's identity to execute use and waits for the
// outcome to appear in the room's tool log. The request travels on the
// lossy bus, so an executor that is gone never answers; the wait is
// bounded and there is no second executor.
func (s *Service) runTool(ctx context.Context, session *Session, current *generation, use llm.ToolUse) (llm.ToolResult, error) {
	relayRoom := session.relay
	runID := newID()
	args := string(use.Input)
	if args == "" {
		args = "{}"
	}
	logger := current.logger.With("run_id", runID, "tool", use.Name)

	// Subscribe before publishing so the outcome cannot slip past.
	subscription, _, err := relayRoom.Subscribe()
	if err != nil {
		return llm.ToolResult{}, s.classify(relayRoom.ID(), err)
	}
	defer subscription.Close()

	if err := s.touchSlot(relayRoom, current); err != nil {
		return llm.ToolResult{}, err
	}
	relayRoom.Bus().Publish(schema.NewToolRequestEvent(schema.ToolRequest{
		ToolName:   use.Name,
		Args:       args,
		ExecutorID: session.identity.ID,
		RunID:      runID,
	}))
	logger.Info("tool requested", "executor", session.identity.ID)

	deadline := s.clock.After(s.config.ToolTimeout)
	for {
		select {
		case event, ok := <-subscription.C():
			if !ok {
				return llm.ToolResult{}, newError(KindSessionClosed, relayRoom.ID(),
					"room closed while waiting for tool %s", use.Name)
			}
			if !subscription.NeedsResync() && !logsRun(event, runID) {
				continue
			}
			state := relayRoom.State()
			if entry, found := state.ToolLogged(runID); found {
				logger.Info("tool completed", "executor", entry.ExecutorID, "failed", entry.Error != "")
				return toolResult(use.ID, entry), nil
			}
		case <-deadline:
			logger.Warn("tool timed out", "timeout", s.config.ToolTimeout)
			return llm.ToolResult{}, newError(KindToolExecutionTimeout, relayRoom.ID(),
				"no outcome for %s (run %s) within %s", use.Name, runID, s.config.ToolTimeout)
		case <-ctx.Done():
			return llm.ToolResult{}, ctx.Err()
		}
	}
}

func logsRun(event relay.FeedEvent, runID string) bool {
	if event.Kind != relay.FeedChange {
		return false
	}
	for _, op := range event.Change.Ops {
		if op.Field == document.FieldToolLogs && op.Key == runID {
			return true
		}
	}
	return false
}

func toolResult(toolUseID string, entry schema.ToolLog) llm.ToolResult {
	if entry.Error != "" {
		return llm.ToolResult{ToolUseID: toolUseID, Content: entry.Error, IsError: true}
	}
	return llm.ToolResult{ToolUseID: toolUseID, Content: entry.Result}
}

// busLoop answers tool requests addressed to this session's identity.
// Other events are for rendering and need no handling here.
func (s *Session) busLoop() {
	for event := range s.bus.C() {
		if event.Type != schema.EventToolRequest || event.ToolRequest == nil {
			continue
		}
		s.acceptToolRequest(*event.ToolRequest)
	}
}

func (s *Session) acceptToolRequest(request schema.ToolRequest) {
	if request.ExecutorID != s.identity.ID {
		return
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	if _, seen := s.processed[request.RunID]; seen {
		s.mutex.Unlock()
		s.logger.Debug("ignoring redelivered tool request", "run_id", request.RunID)
		return
	}
	s.processed[request.RunID] = struct{}{}
	handler := s.executors[request.ToolName]
	s.workers.Add(1)
	s.mutex.Unlock()

	go func() {
		defer s.workers.Done()
		s.executeTool(request, handler)
	}()
}

// executeTool runs a tool and records its outcome. Sessions sharing the
// executor identity race to claim the run and only the winner calls the
// handler. The tool's writes and the log entry then commit in one
// transaction that refuses to run twice for the same run id.
func (s *Session) executeTool(request schema.ToolRequest, handler ToolHandler) {
	logger := s.logger.With("run_id", request.RunID, "tool", request.ToolName)

	if !s.relay.ClaimRun(request.RunID, s.id) {
		logger.Debug("tool run recorded or claimed by another session")
		return
	}
	defer s.relay.ReleaseRun(request.RunID, s.id)

	state := s.relay.State()

	invocation := &ToolInvocation{
		RunID:    request.RunID,
		ToolName: request.ToolName,
		State:    state,
		Presence: s.relay.Presence(),
		Session:  s,
	}

	var result string
	var toolErr error
	switch {
	case handler == nil:
		toolErr = fmt.Errorf("unknown tool %q", request.ToolName)
	default:
		invocation.Args, toolErr = cleanArgs(request.Args)
		if toolErr == nil {
			result, toolErr = handler(s.ctx, invocation)
		}
	}

	entry := schema.ToolLog{
		RunID:      request.RunID,
		ToolName:   request.ToolName,
		Args:       request.Args,
		Result:     result,
		ExecutorID: s.identity.ID,
		Timestamp:  millis(s.service.clock.Now()),
	}
	if toolErr != nil {
		entry.Result = ""
		entry.Error = toolErr.Error()
	}

	writeErr, err := s.commitTool(invocation, entry, toolErr == nil)
	if writeErr != nil {
		entry.Result = ""
		entry.Error = writeErr.Error()
		_, err = s.commitTool(invocation, entry, false)
	}
	switch {
	case errors.Is(err, relay.ErrConflict):
		logger.Debug("tool run recorded by another session")
	case err != nil:
		logger.Error("recording tool outcome failed", "error", err)
	case entry.Error != "":
		logger.Warn("tool failed", "error", entry.Error)
	default:
		logger.Info("tool executed")
	}
}

// commitTool writes the log entry and, when withWrites, the tool's
// queued writes. A failing queued write aborts the transaction and is
// returned as writeErr.
func (s *Session) commitTool(invocation *ToolInvocation, entry schema.ToolLog, withWrites bool) (writeErr, err error) {
	_, err = s.relay.Mutate(s.identity.ID, func(tx *document.Tx) error {
		if tx.Document().HasToolLog(entry.RunID) {
			return relay.ErrConflict
		}
		if withWrites {
			for _, write := range invocation.writes {
				if err := write(tx); err != nil {
					writeErr = err
					return err
				}
			}
		}
		return tx.AppendToolLog(entry)
	})
	if writeErr != nil {
		return writeErr, nil
	}
	return nil, err
}

// cleanArgs accepts JSON with comments and trailing commas, which models
// occasionally produce, and returns strict JSON.
func cleanArgs(args string) (json.RawMessage, error) {
	if args == "" {
		return json.RawMessage("{}"), nil
	}
	cleaned := jsonc.ToJSON([]byte(args))
	if !json.Valid(cleaned) {
		return nil, fmt.Errorf("malformed tool arguments: %q", args)
	}
	return json.RawMessage(cleaned), nil
}
