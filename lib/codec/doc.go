// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the single CBOR configuration used across
// commandroom.
//
// CBOR carries everything internal: document operations shipped from the
// relay to replicas, room snapshots on disk, and the request/response
// and stream frames of the service socket. JSON is reserved for the
// edges: the LLM HTTP APIs and tool arguments handed to the model.
//
// Struct tags follow one rule. A `cbor` tag marks a type that only ever
// travels as CBOR (socket frames, snapshot envelopes). A `json` tag marks
// a type that may be encoded in both formats; fxamacker/cbor falls back
// to `json` tags when no `cbor` tag is present. A field never carries
// both.
package codec
