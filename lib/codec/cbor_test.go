// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]any{"c": 3, "a": 2, "b": 1})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding changed with map iteration order")
		}
	}
}

func TestJSONTagsControlFieldNames(t *testing.T) {
	data, err := Marshal(sample{Name: "alice"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["name"] != "alice" {
		t.Errorf("name = %v, want alice", decoded["name"])
	}
	if _, present := decoded["count"]; present {
		t.Errorf("omitempty field was encoded: %v", decoded)
	}
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"args": map[string]any{"task": "scout"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["args"].(map[string]any); !ok {
		t.Fatalf("nested type = %T, want map[string]any", outer["args"])
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, name := range []string{"one", "two"} {
		if err := encoder.Encode(sample{Name: name}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"one", "two"} {
		var got sample
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Name != want {
			t.Errorf("Name = %q, want %q", got.Name, want)
		}
	}
}
