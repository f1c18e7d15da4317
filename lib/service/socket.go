// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nexus-goc/commandroom/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc handles a long-lived stream action. The handler owns the
// connection until it returns and writes CBOR frames of its own shape;
// no Response envelope is sent. ctx is cancelled when the server shuts
// down or the client closes its side of the connection.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Coder is implemented by errors that carry a machine-readable code.
// The code is copied into [Response.Code] so clients can branch on it
// without parsing the message.
type Coder interface {
	ErrorCode() string
}

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error;
// the server wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer serves a CBOR protocol on a Unix socket. Request
// actions handle exactly one request-response cycle per connection:
// the client writes a CBOR value, the server processes it and writes
// a CBOR response, then the connection closes. Stream actions keep the
// connection open and push frames until either side hangs up.
//
// Actions are registered with Handle and HandleStream before calling
// Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	logger     *slog.Logger

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSocketServer creates a server that will listen on socketPath.
// Register actions with Handle before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered as a request or stream action.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkDuplicate(action)
	s.handlers[action] = handler
}

// HandleStream registers a stream handler for the given action name.
// Panics if the action is already registered.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkDuplicate(action)
	s.streams[action] = handler
}

func (s *SocketServer) checkDuplicate(action string) {
	_, isRequest := s.handlers[action]
	_, isStream := s.streams[action]
	if isRequest || isStream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Ready is closed once the listener is bound.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered handlers. Blocks until ctx is cancelled, then
// stops accepting new connections and waits for active handlers to
// complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. Intel
// uploads carry image URLs, not image bytes, so requests stay small.
const maxRequestSize = 1024 * 1024

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// CBOR is self-delimiting so no framing protocol is needed.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Errorf("invalid request: %w", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Errorf("invalid request: %w", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, errors.New("missing required field: action"))
		return
	}

	if stream, exists := s.streams[header.Action]; exists {
		s.serveStream(ctx, conn, header.Action, []byte(raw), stream)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Errorf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err)
		return
	}

	s.writeSuccess(conn, result)
}

// serveStream runs a stream handler with a context that ends when the
// server shuts down or the peer closes the connection. Stream clients
// must not half-close after sending the request.
func (s *SocketServer) serveStream(ctx context.Context, conn net.Conn, action string, raw []byte, handler StreamFunc) {
	conn.SetReadDeadline(time.Time{})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	s.logger.Debug("stream started", "action", action)
	handler(streamCtx, raw, conn)
	s.logger.Debug("stream ended", "action", action)
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level; the connection is closing
// regardless.
func (s *SocketServer) writeError(conn net.Conn, err error) {
	response := Response{OK: false, Error: err.Error()}
	var coder Coder
	if errors.As(err, &coder) {
		response.Code = coder.ErrorCode()
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Errorf("internal: marshaling response: %w", err))
			return
		}
		response.Data = data
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
