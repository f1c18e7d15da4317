// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so individual tests never touch the wall clock directly.
// The timeout only guards against hangs; all protocol timing in tests
// goes through clock.Fake.
//
// [SocketDir] returns a short directory for Unix sockets, whose paths
// are limited to 108 bytes.
package testutil
