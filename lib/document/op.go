// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"

	"github.com/nexus-goc/commandroom/lib/codec"
	"github.com/nexus-goc/commandroom/lib/crdt"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// Field names one container of the document.
type Field string

const (
	FieldAIProvider    Field = "aiConfig.provider"
	FieldAIModelID     Field = "aiConfig.modelId"
	FieldAIMode        Field = "aiConfig.mode"
	FieldAIThinking    Field = "aiConfig.thinkingEnabled"
	FieldAIController  Field = "aiConfig.controllerId"
	FieldTodos         Field = "todos"
	FieldSharedNote    Field = "sharedNote"
	FieldPlayerNotes   Field = "playerNotes"
	FieldMessages      Field = "messages"
	FieldStreamingSlot Field = "streamingSlot"
	FieldCurrentURL    Field = "currentUrl"
	FieldLatestIntel   Field = "latestIntel"
	FieldToolLogs      Field = "toolLogs"
)

// OpKind is the mutation an [Op] performs.
type OpKind string

const (
	// OpSet writes a register.
	OpSet OpKind = "set"

	// OpPut and OpRemove write one key of a map.
	OpPut    OpKind = "put"
	OpRemove OpKind = "remove"

	// OpInsert, OpMove, OpUpdate and OpDelete edit the todo list.
	OpInsert OpKind = "insert"
	OpMove   OpKind = "move"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"

	// OpAppend adds to an append-only list (messages, toolLogs).
	OpAppend OpKind = "append"
)

// Op is one stamped mutation. Key is the map key or list element id;
// Position is the list position for inserts, appends and moves; Value
// is the CBOR-encoded new value.
type Op struct {
	Kind     OpKind           `json:"kind"`
	Field    Field            `json:"field"`
	Key      string           `json:"key,omitempty"`
	Position string           `json:"position,omitempty"`
	Value    codec.RawMessage `json:"value,omitempty"`
	Stamp    crdt.Stamp       `json:"stamp"`
}

func (op Op) String() string {
	if op.Key != "" {
		return fmt.Sprintf("%s %s[%s] @%s", op.Kind, op.Field, op.Key, op.Stamp)
	}
	return fmt.Sprintf("%s %s @%s", op.Kind, op.Field, op.Stamp)
}

// Apply applies a single op. See [Document.ApplyAll].
func (d *Document) Apply(op Op) error {
	return d.ApplyAll([]Op{op})
}

// ApplyAll validates and decodes every op before mutating anything: on
// error the document is unchanged. Re-applying an op that was already
// applied has no effect.
func (d *Document) ApplyAll(ops []Op) error {
	mutations := make([]func(), 0, len(ops))
	for i, op := range ops {
		mutation, err := d.prepare(op)
		if err != nil {
			return fmt.Errorf("document: op %d (%s): %w", i, op, err)
		}
		mutations = append(mutations, mutation)
	}
	for i, mutation := range mutations {
		d.Clock.Observe(ops[i].Stamp)
		mutation()
	}
	return nil
}

// prepare decodes op into a closure that performs it.
func (d *Document) prepare(op Op) (func(), error) {
	if op.Stamp.IsZero() {
		return nil, fmt.Errorf("op has no stamp")
	}
	switch op.Field {
	case FieldAIProvider:
		return prepareSet(op, &d.AIProvider, nonEmpty)
	case FieldAIModelID:
		return prepareSet(op, &d.AIModelID, nonEmpty)
	case FieldAIMode:
		return prepareSet(op, &d.AIMode, func(mode schema.Mode) error {
			if !mode.Valid() {
				return fmt.Errorf("unknown assistant mode %q", mode)
			}
			return nil
		})
	case FieldAIThinking:
		return prepareSet[bool](op, &d.AIThinking, nil)
	case FieldAIController:
		return prepareSet[string](op, &d.AIController, nil)
	case FieldSharedNote:
		return prepareSet[string](op, &d.SharedNote, nil)
	case FieldStreamingSlot:
		return prepareSet[*schema.StreamingSlot](op, &d.StreamingSlot, nil)
	case FieldCurrentURL:
		return prepareSet[*string](op, &d.CurrentURL, nil)
	case FieldLatestIntel:
		return prepareSet[*schema.Intel](op, &d.LatestIntel, nil)
	case FieldPlayerNotes:
		return d.preparePlayerNote(op)
	case FieldTodos:
		return d.prepareTodo(op)
	case FieldMessages:
		return prepareAppend(op, &d.Messages)
	case FieldToolLogs:
		return prepareAppend(op, &d.ToolLogs)
	}
	return nil, fmt.Errorf("unknown field %q", op.Field)
}

func nonEmpty(value string) error {
	if value == "" {
		return fmt.Errorf("value must not be empty")
	}
	return nil
}

func prepareSet[T any](op Op, register *crdt.Register[T], validate func(T) error) (func(), error) {
	if op.Kind != OpSet {
		return nil, fmt.Errorf("%s does not accept %s", op.Field, op.Kind)
	}
	var value T
	if err := codec.Unmarshal(op.Value, &value); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	if validate != nil {
		if err := validate(value); err != nil {
			return nil, err
		}
	}
	return func() { register.Set(value, op.Stamp) }, nil
}

func (d *Document) preparePlayerNote(op Op) (func(), error) {
	if op.Key == "" {
		return nil, fmt.Errorf("player note op without identity key")
	}
	switch op.Kind {
	case OpPut:
		var note schema.PlayerNote
		if err := codec.Unmarshal(op.Value, &note); err != nil {
			return nil, fmt.Errorf("decoding player note: %w", err)
		}
		return func() { d.PlayerNotes.Put(op.Key, note, op.Stamp) }, nil
	case OpRemove:
		return func() { d.PlayerNotes.Remove(op.Key, op.Stamp) }, nil
	}
	return nil, fmt.Errorf("%s does not accept %s", op.Field, op.Kind)
}

func (d *Document) prepareTodo(op Op) (func(), error) {
	if op.Key == "" {
		return nil, fmt.Errorf("todo op without element id")
	}
	switch op.Kind {
	case OpInsert, OpUpdate:
		var todo schema.Todo
		if err := codec.Unmarshal(op.Value, &todo); err != nil {
			return nil, fmt.Errorf("decoding todo: %w", err)
		}
		if todo.ID != op.Key {
			return nil, fmt.Errorf("todo id %q does not match op key", todo.ID)
		}
		if op.Kind == OpUpdate {
			return func() { d.Todos.Update(op.Key, todo, op.Stamp) }, nil
		}
		if op.Position == "" {
			return nil, fmt.Errorf("todo insert without position")
		}
		return func() { _ = d.Todos.Insert(op.Key, op.Position, todo, op.Stamp) }, nil
	case OpMove:
		if op.Position == "" {
			return nil, fmt.Errorf("todo move without position")
		}
		return func() { _ = d.Todos.Move(op.Key, op.Position, op.Stamp) }, nil
	case OpDelete:
		return func() { d.Todos.Delete(op.Key) }, nil
	}
	return nil, fmt.Errorf("%s does not accept %s", op.Field, op.Kind)
}

// prepareAppend handles the append-only lists. Elements are appended
// once and never moved, updated or deleted; a repeated append of an id
// leaves the first one in place.
func prepareAppend[T any](op Op, list *crdt.List[T]) (func(), error) {
	if op.Kind != OpAppend {
		return nil, fmt.Errorf("%s is append-only and does not accept %s", op.Field, op.Kind)
	}
	if op.Key == "" {
		return nil, fmt.Errorf("append without element id")
	}
	if err := crdt.ValidateAppendPosition(op.Position); err != nil {
		return nil, err
	}
	var value T
	if err := codec.Unmarshal(op.Value, &value); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return func() { _, _ = list.Append(op.Key, op.Position, value, op.Stamp) }, nil
}

func encodeValue(value any) codec.RawMessage {
	data, err := codec.Marshal(value)
	if err != nil {
		// Document values are plain structs, strings and pointers to
		// them; encoding cannot fail.
		panic(fmt.Sprintf("document: encoding %T: %v", value, err))
	}
	return data
}
