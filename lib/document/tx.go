// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"errors"
	"fmt"

	"github.com/nexus-goc/commandroom/lib/crdt"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// ErrAlreadyAppended reports an append whose id an append-only list
// already holds. Appended entries never change.
var ErrAlreadyAppended = errors.New("document: entry already appended")

// Tx buffers writes against a document. Reads go to the committed
// document, never to the transaction's own pending writes, except that
// list positions account for earlier inserts in the same transaction so
// several appends keep their call order.
//
// A Tx is only valid while its owner holds the lock protecting the
// document, and only until [Tx.Ops] is committed or discarded.
type Tx struct {
	document *Document
	actor    string
	ops      []Op

	// tails tracks the last position handed out per append-only list.
	tails map[Field]string

	// appended holds the keys this transaction appended per list.
	appended map[Field]map[string]struct{}

	// todos is a lazily made working copy of the todo list that sees
	// this transaction's own todo writes.
	todos *crdt.List[schema.Todo]
}

// Begin starts a transaction writing as actor.
func (d *Document) Begin(actor string) *Tx {
	return &Tx{
		document: d,
		actor:    actor,
		tails:    make(map[Field]string),
		appended: make(map[Field]map[string]struct{}),
	}
}

// Actor returns the identity the transaction writes as.
func (tx *Tx) Actor() string { return tx.actor }

// Ops returns the buffered operations in call order.
func (tx *Tx) Ops() []Op { return tx.ops }

// Document returns the committed document for reads.
func (tx *Tx) Document() *Document { return tx.document }

func (tx *Tx) record(op Op) {
	op.Stamp = tx.document.Clock.Tick(tx.actor)
	tx.ops = append(tx.ops, op)
}

func (tx *Tx) set(field Field, value any) {
	tx.record(Op{Kind: OpSet, Field: field, Value: encodeValue(value)})
}

// PatchAIConfig writes the non-nil fields of patch, one register each.
func (tx *Tx) PatchAIConfig(patch schema.AIConfigPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Provider != nil {
		tx.set(FieldAIProvider, *patch.Provider)
	}
	if patch.ModelID != nil {
		tx.set(FieldAIModelID, *patch.ModelID)
	}
	if patch.Mode != nil {
		tx.set(FieldAIMode, *patch.Mode)
	}
	if patch.ThinkingEnabled != nil {
		tx.set(FieldAIThinking, *patch.ThinkingEnabled)
	}
	return nil
}

// SetController writes aiConfig.controllerId. Empty releases control.
func (tx *Tx) SetController(identity string) {
	tx.set(FieldAIController, identity)
}

// SetSharedNote replaces the shared note.
func (tx *Tx) SetSharedNote(content string) {
	tx.set(FieldSharedNote, content)
}

// PutPlayerNote replaces the note keyed by identity.
func (tx *Tx) PutPlayerNote(identity string, note schema.PlayerNote) {
	tx.record(Op{Kind: OpPut, Field: FieldPlayerNotes, Key: identity, Value: encodeValue(note)})
}

// RemovePlayerNote deletes the note keyed by identity.
func (tx *Tx) RemovePlayerNote(identity string) {
	tx.record(Op{Kind: OpRemove, Field: FieldPlayerNotes, Key: identity})
}

// SetStreamingSlot writes the streaming slot. Nil clears it.
func (tx *Tx) SetStreamingSlot(slot *schema.StreamingSlot) {
	tx.set(FieldStreamingSlot, slot)
}

// SetCurrentURL writes the shared URL pointer. Nil clears it.
func (tx *Tx) SetCurrentURL(url *string) {
	tx.set(FieldCurrentURL, url)
}

// SetLatestIntel writes the latest shared image record. Nil clears it.
func (tx *Tx) SetLatestIntel(intel *schema.Intel) {
	tx.set(FieldLatestIntel, intel)
}

// AppendMessage appends to the conversation log. Appending an id the
// log already holds fails with [ErrAlreadyAppended].
func (tx *Tx) AppendMessage(message schema.Message) error {
	if message.ID == "" {
		return fmt.Errorf("message without id")
	}
	messages := &tx.document.Messages
	return tx.appendTo(FieldMessages, messages.Tail(), messages.Contains(message.ID), message.ID, message)
}

// AppendToolLog appends a tool outcome. Like messages, an entry is
// written once per run id.
func (tx *Tx) AppendToolLog(entry schema.ToolLog) error {
	if entry.RunID == "" {
		return fmt.Errorf("tool log without run id")
	}
	logs := &tx.document.ToolLogs
	return tx.appendTo(FieldToolLogs, logs.Tail(), logs.Contains(entry.RunID), entry.RunID, entry)
}

func (tx *Tx) appendTo(field Field, committedTail string, committed bool, key string, value any) error {
	if _, pending := tx.appended[field][key]; committed || pending {
		return fmt.Errorf("%w: %s %q", ErrAlreadyAppended, field, key)
	}
	tail, ok := tx.tails[field]
	if !ok {
		tail = committedTail
	}
	position, err := crdt.After(tail)
	if err != nil {
		return err
	}
	tx.tails[field] = position
	if tx.appended[field] == nil {
		tx.appended[field] = make(map[string]struct{})
	}
	tx.appended[field][key] = struct{}{}
	tx.record(Op{Kind: OpAppend, Field: field, Key: key, Position: position, Value: encodeValue(value)})
	return nil
}

// workingTodos returns the transaction's view of the todo list.
func (tx *Tx) workingTodos() *crdt.List[schema.Todo] {
	if tx.todos == nil {
		copied := crdt.NewList[schema.Todo]()
		for id, element := range tx.document.Todos.Elements {
			clone := *element
			copied.Elements[id] = &clone
		}
		tx.todos = &copied
	}
	return tx.todos
}

// Todos returns the todo list as this transaction sees it.
func (tx *Tx) Todos() []schema.Todo {
	return tx.workingTodos().Values()
}

// InsertTodo inserts todo at visible index; a negative index appends.
func (tx *Tx) InsertTodo(todo schema.Todo, index int) error {
	if todo.ID == "" {
		return fmt.Errorf("todo without id")
	}
	todos := tx.workingTodos()
	if index < 0 {
		index = todos.Len()
	}
	position, err := todos.PositionAt(index, "")
	if err != nil {
		return err
	}
	op := Op{Kind: OpInsert, Field: FieldTodos, Key: todo.ID, Position: position, Value: encodeValue(todo)}
	tx.record(op)
	return todos.Insert(todo.ID, position, todo, tx.ops[len(tx.ops)-1].Stamp)
}

// MoveTodo moves todo id to visible index. Moving an absent todo is a
// no-op.
func (tx *Tx) MoveTodo(id string, index int) error {
	todos := tx.workingTodos()
	if !todos.Contains(id) {
		return nil
	}
	position, err := todos.PositionAt(index, id)
	if err != nil {
		return err
	}
	tx.record(Op{Kind: OpMove, Field: FieldTodos, Key: id, Position: position})
	return todos.Move(id, position, tx.ops[len(tx.ops)-1].Stamp)
}

// UpdateTodo replaces the value of an existing todo. Updating an absent
// todo is a no-op and reports false.
func (tx *Tx) UpdateTodo(todo schema.Todo) bool {
	todos := tx.workingTodos()
	if !todos.Contains(todo.ID) {
		return false
	}
	tx.record(Op{Kind: OpUpdate, Field: FieldTodos, Key: todo.ID, Value: encodeValue(todo)})
	todos.Update(todo.ID, todo, tx.ops[len(tx.ops)-1].Stamp)
	return true
}

// DeleteTodo deletes todo id and its direct children. Deleting an
// absent todo is a no-op. Returns the ids removed.
func (tx *Tx) DeleteTodo(id string) []string {
	todos := tx.workingTodos()
	var removed []string
	targets := []string{id}
	for _, todo := range todos.Values() {
		if todo.ParentID == id {
			targets = append(targets, todo.ID)
		}
	}
	for _, target := range targets {
		if !todos.Contains(target) {
			continue
		}
		tx.record(Op{Kind: OpDelete, Field: FieldTodos, Key: target})
		todos.Delete(target)
		removed = append(removed, target)
	}
	return removed
}
