// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/document"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// snapshotResult mirrors the service's snapshot response.
type snapshotResult struct {
	RoomID   string            `cbor:"room_id"  json:"room_id"`
	Version  uint64            `cbor:"version"  json:"version"`
	State    schema.RoomState  `cbor:"state"    json:"state"`
	Presence []schema.Presence `cbor:"presence" json:"presence"`
	Document []byte            `cbor:"document" json:"-"`
}

// watchFrame mirrors the service's subscribe frame. See the service
// for the meaning of each type.
type watchFrame struct {
	Type     string            `cbor:"type"`
	Snapshot *snapshotResult   `cbor:"snapshot,omitempty"`
	Change   *document.Change  `cbor:"change,omitempty"`
	Presence []schema.Presence `cbor:"presence,omitempty"`
	Event    *schema.RoomEvent `cbor:"event,omitempty"`
	Dropped  uint64            `cbor:"dropped,omitempty"`
	Message  string            `cbor:"message,omitempty"`
}

// errRoomClosed ends a watch when the service reports a terminal
// error.
var errRoomClosed = errors.New("stream closed by service")

type watchParams struct {
	connection
	history int
	verbose bool
}

func watchCommand() *cli.Command {
	var params watchParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow a room live",
		Description: `Follow a room live: conversation, streamed assistant output, presence,
tool requests and changes to the shared configuration.

The watch ends on interrupt, or with exit code 1 when the service ends
the stream (for example because the room was deleted).`,
		Usage: "commandroom watch <room> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.IntVar(&params.history, "history", 20, "messages to print from before the watch started")
			flagSet.BoolVarP(&params.verbose, "verbose", "v", false, "log stream diagnostics to stderr")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom watch <room>"); err != nil {
				return err
			}
			logger := cli.NewCommandLogger(params.verbose)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := params.client()
			if err != nil {
				return err
			}
			stream, err := client.OpenStream(ctx, "subscribe", map[string]any{"room": args[0]})
			if err != nil {
				return err
			}
			defer stream.Close()
			logger.Debug("subscribe stream connected", "room_id", args[0])

			w := newWatcher(os.Stdout, params.history)
			for {
				var frame watchFrame
				if err := stream.Next(&frame); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("reading frame: %w", err)
				}
				logger.Debug("subscribe frame", "type", frame.Type)
				if err := w.handle(frame); err != nil {
					if errors.Is(err, errRoomClosed) {
						// The watcher already printed the reason.
						return &cli.ExitError{Code: 1}
					}
					return err
				}
			}
		},
	}
}

// watcher renders subscribe frames as a plain-text transcript. It keeps
// a replica of the room document so that ops frames can be shown as
// the messages and settings they change.
type watcher struct {
	out     io.Writer
	history int

	replica *document.Replica
	state   schema.RoomState
	seen    map[string]bool

	// streaming is the generation id whose chunks are being written
	// inline, empty when no line is open.
	streaming string

	dropped uint64
}

func newWatcher(out io.Writer, history int) *watcher {
	return &watcher{out: out, history: history, seen: make(map[string]bool)}
}

func (w *watcher) handle(frame watchFrame) error {
	switch frame.Type {
	case "snapshot":
		if frame.Snapshot == nil {
			return fmt.Errorf("snapshot frame without a snapshot")
		}
		return w.snapshot(*frame.Snapshot)
	case "ops":
		if frame.Change == nil {
			return fmt.Errorf("ops frame without a change")
		}
		return w.apply(*frame.Change)
	case "presence":
		w.presence(frame.Presence)
	case "event":
		if frame.Event != nil {
			w.event(*frame.Event)
		}
		if frame.Dropped > w.dropped {
			w.line("* %d live event(s) missed", frame.Dropped-w.dropped)
			w.dropped = frame.Dropped
		}
	case "heartbeat":
	case "resync":
		w.line("* resynchronizing")
	case "error":
		w.line("* %s", frame.Message)
		return fmt.Errorf("%w: %s", errRoomClosed, frame.Message)
	}
	return nil
}

// snapshot replaces the replica. The first snapshot prints up to
// history recent messages; later ones (after a resync) print only
// messages not shown yet.
func (w *watcher) snapshot(snapshot snapshotResult) error {
	replica, err := document.NewReplica(snapshot.Document, snapshot.Version)
	if err != nil {
		return err
	}
	first := w.replica == nil
	w.replica = replica
	state := replica.State()

	if first {
		w.line("== %s (version %d) ==", snapshot.RoomID, snapshot.Version)
		w.line("assistant: %s", describeAIConfig(state.AIConfig))
		w.presence(snapshot.Presence)
		messages := state.Messages
		for _, message := range messages[:max(0, len(messages)-w.history)] {
			w.seen[message.ID] = true
		}
		w.state = state
		w.messages(state.Messages)
		return nil
	}

	w.changes(state)
	return nil
}

func (w *watcher) apply(change document.Change) error {
	if w.replica == nil {
		return fmt.Errorf("ops frame before snapshot")
	}
	if err := w.replica.Apply(change); err != nil {
		return err
	}
	w.changes(w.replica.State())
	return nil
}

// changes prints what differs between the last rendered state and
// state, then remembers state.
func (w *watcher) changes(state schema.RoomState) {
	previous := w.state
	if state.AIConfig != previous.AIConfig {
		w.line("* assistant: %s", describeAIConfig(state.AIConfig))
	}
	if state.SharedNote != previous.SharedNote {
		w.line("* shared note updated")
	}
	if url, previousURL := derefString(state.CurrentURL), derefString(previous.CurrentURL); url != previousURL {
		if url == "" {
			w.line("* link cleared")
		} else {
			w.line("* link: %s", url)
		}
	}
	if state.LatestIntel != nil && (previous.LatestIntel == nil || *state.LatestIntel != *previous.LatestIntel) {
		w.line("* intel from %s: %s", state.LatestIntel.UploaderName, state.LatestIntel.ImageURL)
	}
	for _, entry := range state.ToolLogs {
		if _, logged := previous.ToolLogged(entry.RunID); logged {
			continue
		}
		if entry.Error != "" {
			w.line("* tool %s failed: %s", entry.ToolName, entry.Error)
		} else {
			w.line("* tool %s: %s", entry.ToolName, entry.Result)
		}
	}
	w.state = state
	w.messages(state.Messages)
}

// messages prints every message not printed before.
func (w *watcher) messages(messages []schema.Message) {
	for _, message := range messages {
		if w.seen[message.ID] {
			continue
		}
		w.seen[message.ID] = true
		if message.ID == w.streaming {
			// Already shown chunk by chunk.
			w.endStream("")
			continue
		}
		w.line("%s", formatMessage(message))
	}
}

func (w *watcher) event(event schema.RoomEvent) {
	switch event.Type {
	case schema.EventAIChunk:
		chunk := event.AIChunk
		if chunk == nil || w.seen[chunk.ID] {
			return
		}
		if w.streaming != chunk.ID {
			w.endStream("")
			fmt.Fprintf(w.out, "[%s] %s (for %s): ", clockTime(chunk.CreatedAt), assistantLabel, chunk.AuthorName)
			w.streaming = chunk.ID
		}
		fmt.Fprint(w.out, chunk.Chunk)
	case schema.EventAICancel:
		if event.AICancel != nil && event.AICancel.ID == w.streaming {
			w.endStream(" [cancelled]")
		} else {
			w.line("* response cancelled")
		}
	case schema.EventToolRequest:
		if request := event.ToolRequest; request != nil {
			w.line("* tool %s requested (run %s)", request.ToolName, request.RunID)
		}
	}
}

func (w *watcher) presence(list []schema.Presence) {
	names := make([]string, 0, len(list))
	for _, entry := range list {
		names = append(names, entry.DisplayName)
	}
	if len(names) == 0 {
		w.line("* nobody present")
		return
	}
	w.line("* present: %s", strings.Join(names, ", "))
}

// line writes one line, first closing any open streamed response.
func (w *watcher) line(format string, args ...any) {
	w.endStream("")
	fmt.Fprintf(w.out, format+"\n", args...)
}

func (w *watcher) endStream(suffix string) {
	if w.streaming == "" {
		return
	}
	fmt.Fprintf(w.out, "%s\n", suffix)
	w.streaming = ""
}

// assistantLabel names assistant output in the transcript.
const assistantLabel = "assistant"

func formatMessage(message schema.Message) string {
	author := message.AuthorName
	switch {
	case message.Role == schema.RoleSystem:
		author = "system"
	case author == "":
		author = string(message.Role)
	}
	return fmt.Sprintf("[%s] %s: %s", clockTime(message.CreatedAt), author, message.Content)
}

func describeAIConfig(config schema.AIConfig) string {
	thinking := "off"
	if config.ThinkingEnabled {
		thinking = "on"
	}
	controller := config.ControllerID
	if controller == "" {
		controller = "nobody"
	}
	return fmt.Sprintf("%s/%s, %s mode, thinking %s, controlled by %s",
		config.Provider, config.ModelID, config.Mode, thinking, controller)
}

// clockTime formats Unix milliseconds as a UTC wall-clock time.
func clockTime(milliseconds int64) string {
	return time.UnixMilli(milliseconds).UTC().Format("15:04:05")
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

