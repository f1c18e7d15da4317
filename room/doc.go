// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package room coordinates the participants of a command room on top of
// the relay: it joins sessions, gates assistant configuration behind a
// single controller, drives the streaming assistant, and elects exactly
// one session to carry out each tool call.
//
// Everything durable goes through the room document. Bus events only
// speed up rendering; a session that misses every event still reaches
// the right state by reading the document. The two places where
// sessions race for the same outcome (claiming control and closing out
// a generation) are compare-and-set transactions on the relay, keyed on
// the value the caller read.
//
// The generation state machine has two states. A routed message that
// finds the streaming slot empty creates it and starts a generation;
// one that finds it occupied fails with [KindAlreadyGenerating]. The
// generation ends by finalizing (one transaction appending the
// assistant message and clearing the slot), by a provider error, by an
// explicit cancel, or by any session's watchdog noticing the slot has
// stalled. Every path that clears the slot is keyed on the slot id, so
// exactly one of them wins.
package room
