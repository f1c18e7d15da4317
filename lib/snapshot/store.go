// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/nexus-goc/commandroom/lib/codec"
)

// formatVersion is the envelope layout version.
const formatVersion = 1

const fileSuffix = ".snap"

// envelope is the on-disk layout.
type envelope struct {
	Format           int         `json:"format"`
	RoomID           string      `json:"room_id"`
	Version          uint64      `json:"version"`
	SavedAt          time.Time   `json:"saved_at"`
	Compression      Compression `json:"compression"`
	Encrypted        bool        `json:"encrypted,omitempty"`
	UncompressedSize int         `json:"uncompressed_size"`
	Payload          []byte      `json:"payload"`
}

// Snapshot is one loaded room snapshot.
type Snapshot struct {
	RoomID   string
	Version  uint64
	SavedAt  time.Time
	Document []byte
}

// Options configures a [Store].
type Options struct {
	// Compression applied to document bytes. Incompressible documents
	// are stored uncompressed regardless.
	Compression Compression

	// Recipients, when non-empty, encrypts every snapshot to these
	// age public keys.
	Recipients []age.Recipient

	// Identities decrypt encrypted snapshots on load.
	Identities []age.Identity
}

// Store reads and writes snapshots in one directory, one file per room.
type Store struct {
	directory string
	options   Options
}

// NewStore creates the directory if needed.
func NewStore(directory string, options Options) (*Store, error) {
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("snapshot: creating directory %s: %w", directory, err)
	}
	return &Store{directory: directory, options: options}, nil
}

// Directory returns the store's directory.
func (s *Store) Directory() string { return s.directory }

func (s *Store) path(roomID string) (string, error) {
	if roomID == "" || roomID == "." || roomID == ".." || strings.ContainsAny(roomID, `/\`) {
		return "", fmt.Errorf("snapshot: invalid room id %q", roomID)
	}
	return filepath.Join(s.directory, roomID+fileSuffix), nil
}

// Save atomically replaces the snapshot of roomID.
func (s *Store) Save(roomID string, version uint64, savedAt time.Time, document []byte) error {
	path, err := s.path(roomID)
	if err != nil {
		return err
	}

	payload, algorithm, err := compress(document, s.options.Compression)
	if err != nil {
		return fmt.Errorf("snapshot: compressing room %s: %w", roomID, err)
	}
	encrypted := len(s.options.Recipients) > 0
	if encrypted {
		payload, err = seal(payload, s.options.Recipients)
		if err != nil {
			return fmt.Errorf("snapshot: encrypting room %s: %w", roomID, err)
		}
	}

	data, err := codec.Marshal(envelope{
		Format:           formatVersion,
		RoomID:           roomID,
		Version:          version,
		SavedAt:          savedAt.UTC(),
		Compression:      algorithm,
		Encrypted:        encrypted,
		UncompressedSize: len(document),
		Payload:          payload,
	})
	if err != nil {
		return fmt.Errorf("snapshot: encoding envelope: %w", err)
	}
	return writeAtomic(path, data)
}

// Load reads the snapshot of roomID. A missing snapshot returns an error
// wrapping os.ErrNotExist.
func (s *Store) Load(roomID string) (Snapshot, error) {
	path, err := s.path(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}

	var file envelope
	if err := codec.Unmarshal(data, &file); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: parsing %s: %w", path, err)
	}
	if file.Format != formatVersion {
		return Snapshot{}, fmt.Errorf("snapshot: %s has format %d, want %d", path, file.Format, formatVersion)
	}
	if file.RoomID != roomID {
		return Snapshot{}, fmt.Errorf("snapshot: %s holds room %q", path, file.RoomID)
	}

	payload := file.Payload
	if file.Encrypted {
		payload, err = unseal(payload, s.options.Identities)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: room %s: %w", roomID, err)
		}
	}
	document, err := decompress(payload, file.Compression, file.UncompressedSize)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: room %s: %w", roomID, err)
	}
	return Snapshot{
		RoomID:   file.RoomID,
		Version:  file.Version,
		SavedAt:  file.SavedAt,
		Document: document,
	}, nil
}

// Remove deletes the snapshot of roomID. Removing a missing snapshot is
// not an error.
func (s *Store) Remove(roomID string) error {
	path, err := s.path(roomID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("snapshot: removing %s: %w", path, err)
	}
	return nil
}

// List returns the room ids with a snapshot, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing %s: %w", s.directory, err)
	}
	var rooms []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		rooms = append(rooms, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(rooms)
	return rooms, nil
}

// writeAtomic writes data to path through a synced temporary file and a
// rename, then syncs the parent directory so the rename survives power
// loss.
func writeAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("snapshot: creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: renaming into place: %w", err)
	}
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
