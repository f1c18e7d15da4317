// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity derives participant identities from display names.
//
// There is no account system: an identity is a BLAKE3 keyed hash of the
// normalized display name, prefixed with a readable slug. Rejoining under
// the same name lands on the same identity, which is how a participant
// gets their personal notes back after a refresh.
package identity
