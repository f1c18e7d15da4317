// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	// Type is the "event:" field, empty for the default event type.
	Type string

	// ID is the most recent "id:" field seen on the stream. Per the
	// SSE rules it persists across events until changed.
	ID string

	// Data joins the event's "data:" lines with newlines.
	Data string
}

// maxSSELine bounds a single SSE line. Chat completion chunks are small;
// a longer line indicates a broken upstream.
const maxSSELine = 1 << 20

// SSEScanner reads Server-Sent Events from an [io.Reader].
//
// Blank lines end an event. Comment lines (leading ":") and unknown
// fields are skipped; "retry:" is ignored. A final event without a
// trailing blank line is still delivered at EOF.
//
//	scanner := NewSSEScanner(reader)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type SSEScanner struct {
	lines   *bufio.Scanner
	current SSEEvent
	lastID  string
	err     error
	ended   bool
}

// NewSSEScanner creates a scanner that reads SSE events from reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	lines := bufio.NewScanner(reader)
	lines.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEScanner{lines: lines}
}

// Next advances to the next event. It returns false at end of stream
// or on error; [SSEScanner.Err] tells them apart.
func (scanner *SSEScanner) Next() bool {
	if scanner.ended {
		return false
	}

	var (
		data      strings.Builder
		eventType string
		hasData   bool
	)
	emit := func() bool {
		scanner.current = SSEEvent{Type: eventType, ID: scanner.lastID, Data: data.String()}
		return true
	}

	for scanner.lines.Scan() {
		line := strings.TrimSuffix(scanner.lines.Text(), "\r")
		if line == "" {
			if hasData {
				return emit()
			}
			eventType = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			scanner.lastID = value
		}
	}

	scanner.ended = true
	scanner.err = scanner.lines.Err()
	if scanner.err == nil && hasData {
		return emit()
	}
	return false
}

// Event returns the most recently parsed event.
func (scanner *SSEScanner) Event() SSEEvent {
	return scanner.current
}

// Err returns the read error that ended scanning, or nil at clean EOF.
func (scanner *SSEScanner) Err() error {
	return scanner.err
}
