// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix socket transport shared by the
// commandroom daemon and its CLI.
//
// The protocol is CBOR. Request actions are one request per connection:
// the client writes a map with an "action" field plus action-specific
// fields and reads back a [Response] envelope. Stream actions keep the
// connection open after the request and the handler writes frames until
// the stream ends. [SocketServer] dispatches both kinds;
// [ServiceClient] is the client side.
//
// Access control is the socket file's permissions. Anyone who can
// connect can act as any participant.
package service
