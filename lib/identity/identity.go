// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// ErrEmptyName is returned by Derive when the display name is blank
// after normalization.
var ErrEmptyName = errors.New("identity: display name is empty")

// maxSlugLength bounds the readable prefix of an identity.
const maxSlugLength = 24

// domainKey is a 32-byte BLAKE3 key. Separate keys for the identity and
// avatar hashes keep the avatar color from leaking identity bits.
type domainKey [32]byte

var (
	identityDomainKey = domainKey{
		'c', 'o', 'm', 'm', 'a', 'n', 'd', 'r', 'o', 'o', 'm', '.',
		'i', 'd', 'e', 'n', 't', 'i', 't', 'y',
	}
	avatarDomainKey = domainKey{
		'c', 'o', 'm', 'm', 'a', 'n', 'd', 'r', 'o', 'o', 'm', '.',
		'a', 'v', 'a', 't', 'a', 'r',
	}
)

// palette is the fixed avatar color set. Changing it recolors every
// existing participant.
var palette = [...]string{
	"#D583F0", "#22D3EE", "#F97316", "#84CC16",
	"#F43F5E", "#6366F1", "#EAB308", "#14B8A6",
	"#EC4899", "#0EA5E9", "#A3E635", "#FB7185",
}

// Avatar is the deterministic visual token shown next to a participant.
type Avatar struct {
	Initials string `json:"initials"`
	Color    string `json:"color"`
}

// Identity is a pseudo-user derived purely from a display name.
type Identity struct {
	// ID is stable for a given normalized display name, e.g.
	// "alice-5c1f0e9a2b7d4c33".
	ID string `json:"id"`

	// DisplayName is the name as typed, with whitespace collapsed.
	DisplayName string `json:"display_name"`

	Avatar Avatar `json:"avatar"`
}

// Derive maps a display name to its identity and avatar. The mapping is
// pure: the same name (ignoring case and surrounding or repeated
// whitespace) always yields the same result, so a participant resumes
// their notes and presence after a reconnect without any account. Two
// different names can in principle collide; nothing detects that.
func Derive(displayName string) (Identity, error) {
	collapsed := strings.Join(strings.Fields(displayName), " ")
	if collapsed == "" {
		return Identity{}, ErrEmptyName
	}
	normalized := strings.ToLower(collapsed)

	digest := keyedHash(identityDomainKey, normalized)
	avatarDigest := keyedHash(avatarDomainKey, normalized)

	return Identity{
		ID:          slug(normalized) + "-" + hex.EncodeToString(digest[:8]),
		DisplayName: collapsed,
		Avatar: Avatar{
			Initials: initials(collapsed),
			Color:    palette[int(avatarDigest[0])%len(palette)],
		},
	}, nil
}

// Normalize returns the form of displayName that Derive hashes.
func Normalize(displayName string) string {
	return strings.ToLower(strings.Join(strings.Fields(displayName), " "))
}

func keyedHash(key domainKey, input string) [32]byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// Only a wrong key length fails, and domainKey is fixed-size.
		panic("identity: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(input))
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// slug keeps the ASCII letters and digits of the name, joining runs
// with single dashes.
func slug(normalized string) string {
	var builder strings.Builder
	pendingDash := false
	for _, r := range normalized {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingDash = false
			builder.WriteRune(r)
			if builder.Len() >= maxSlugLength {
				break
			}
			continue
		}
		pendingDash = true
	}
	result := strings.TrimRight(builder.String(), "-")
	if result == "" {
		return "player"
	}
	return result
}

// initials takes the first rune of the first two words.
func initials(collapsed string) string {
	var result []rune
	for _, word := range strings.Fields(collapsed) {
		for _, r := range word {
			result = append(result, unicode.ToUpper(r))
			break
		}
		if len(result) == 2 {
			break
		}
	}
	return string(result)
}
