// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nexus-goc/commandroom/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// service socket. It covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the server to
// send a response after writing the request. Matched to the server's
// readTimeout + writeTimeout to account for handler execution time.
const responseReadTimeout = 45 * time.Second

// maxResponseSize is the maximum size of a single CBOR response.
const maxResponseSize = 4 * 1024 * 1024

// ServiceError is returned by Call when the server responds with
// ok=false. It carries the server's error message, its code (if the
// handler's error had one) and the action that failed.
type ServiceError struct {
	Action  string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// ServiceClient sends CBOR requests to a commandroom service socket.
// Each Call opens a new connection (matching the server's one-request-
// per-connection model), sends the request, reads the response, and
// closes the connection.
type ServiceClient struct {
	socketPath string
}

// NewServiceClient creates a client for the socket at socketPath.
func NewServiceClient(socketPath string) *ServiceClient {
	return &ServiceClient{socketPath: socketPath}
}

// SocketPath returns the path the client dials.
func (c *ServiceClient) SocketPath() string {
	return c.socketPath
}

// Call sends a CBOR request to the service and decodes the response.
//
// The fields parameter may contain any handler-specific request
// fields; the client adds "action" automatically. Pass nil for actions
// that take no additional parameters.
//
// On success (response ok=true), if result is non-nil and the
// response contains data, the data is CBOR-decoded into result.
//
// On failure (response ok=false), returns a *ServiceError containing
// the server's error message. Connection and encoding errors are
// returned as plain errors (not *ServiceError).
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	conn, err := c.dial(ctx, action, fields)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	defer conn.Close()

	// Half-close the write side so the server sees EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("calling %q on %s: reading response: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &ServiceError{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// Stream is the client side of a stream action. Frames are decoded in
// order with Next; Close ends the stream, which the server observes as
// a cancelled handler context.
type Stream struct {
	conn    net.Conn
	decoder *codec.Decoder
	stop    func() bool
}

// OpenStream sends a stream action request and returns the open
// stream. Cancelling ctx closes the connection.
func (c *ServiceClient) OpenStream(ctx context.Context, action string, fields map[string]any) (*Stream, error) {
	conn, err := c.dial(ctx, action, fields)
	if err != nil {
		return nil, fmt.Errorf("opening stream %q on %s: %w", action, c.socketPath, err)
	}

	return &Stream{
		conn:    conn,
		decoder: codec.NewDecoder(conn),
		stop:    context.AfterFunc(ctx, func() { conn.Close() }),
	}, nil
}

// Next decodes the next frame into frame. Returns io.EOF when the
// server ends the stream.
func (s *Stream) Next(frame any) error {
	return s.decoder.Decode(frame)
}

// Close ends the stream.
func (s *Stream) Close() error {
	s.stop()
	return s.conn.Close()
}

func (c *ServiceClient) dial(ctx context.Context, action string, fields map[string]any) (net.Conn, error) {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing request: %w", err)
	}
	return conn, nil
}
