// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// ParseRecipients parses age X25519 public keys (age1...).
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// ReadIdentityFile parses an age identity file (one AGE-SECRET-KEY-1...
// per line, comments allowed).
func ReadIdentityFile(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()
	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

func seal(plaintext []byte, recipients []age.Recipient) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func unseal(ciphertext []byte, identities []age.Identity) ([]byte, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("snapshot is encrypted and no identity is configured")
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted snapshot: %w", err)
	}
	return plaintext, nil
}
