// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists encoded room documents so a relay keeps its
// rooms across restarts for as long as the rooms live.
//
// A snapshot file is a CBOR envelope holding the room id, the room's
// change version, and the encoded document. The document bytes are
// compressed (zstd, lz4, or none) and optionally age-encrypted to one or
// more X25519 recipients. Files are written atomically: write to a
// temporary file, fsync, rename, fsync the directory. Readers never see
// a partial snapshot.
//
// Deleting a room removes its snapshot; there is no history.
package snapshot
