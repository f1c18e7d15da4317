// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: sorted map keys and shortest
	// integer forms, so equal documents encode to equal bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Tool arguments and event payloads decode into any-typed
		// values; they must come out as map[string]any so they can be
		// re-encoded as JSON for the model.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an encoded CBOR value whose decoding is deferred.
type RawMessage = cbor.RawMessage

// Encoder writes a stream of CBOR values.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR values.
type Decoder = cbor.Decoder

// NewEncoder returns a deterministic stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
