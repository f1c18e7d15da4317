// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Mode selects how the assistant behaves. It is a closed set: values
// outside the constants below are rejected by [ParseMode] and by
// document writes.
type Mode string

const (
	// ModeEncyclopedia gives deep, structured explanations. The default
	// for a fresh room.
	ModeEncyclopedia Mode = "encyclopedia"

	// ModeAdvisor gives real-time decision support.
	ModeAdvisor Mode = "advisor"

	// ModeInterrogator gathers intelligence by asking questions.
	ModeInterrogator Mode = "interrogator"

	// ModePlanner produces structured plans and must use tools on its
	// first step.
	ModePlanner Mode = "planner"
)

// ModeBehavior is the per-mode configuration consumed by the streaming
// coordinator.
type ModeBehavior struct {
	// Title is the human-readable mode name used in the system prompt.
	Title string

	// Instruction is appended to the system prompt.
	Instruction string

	// RequireToolFirst forces a tool call on the first provider step.
	RequireToolFirst bool
}

var modeBehaviors = map[Mode]ModeBehavior{
	ModeEncyclopedia: {
		Title: "Encyclopedia",
		Instruction: "Provide deep insight into complex topics such as history and the social sciences. " +
			"Encourage structured discussion and critical thinking.",
	},
	ModeAdvisor: {
		Title:       "Tactical Advisor",
		Instruction: "Provide real-time decision support. Keep answers short and actionable.",
	},
	ModeInterrogator: {
		Title:       "Interrogator",
		Instruction: "Actively gather intelligence. Ask sharp, specific questions before answering.",
	},
	ModePlanner: {
		Title:            "Planner",
		Instruction:      "Create structured plans. Use the tools to update notes and add todos.",
		RequireToolFirst: true,
	},
}

// Modes returns every mode in display order.
func Modes() []Mode {
	return []Mode{ModeEncyclopedia, ModeAdvisor, ModeInterrogator, ModePlanner}
}

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	mode := Mode(name)
	if !mode.Valid() {
		return "", fmt.Errorf("unknown assistant mode %q", name)
	}
	return mode, nil
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, ok := modeBehaviors[m]
	return ok
}

// Behavior returns the behavior table entry for m. An invalid mode
// (only reachable through a corrupted document) behaves as
// [ModeAdvisor], the mode with no special handling.
func (m Mode) Behavior() ModeBehavior {
	if behavior, ok := modeBehaviors[m]; ok {
		return behavior
	}
	return modeBehaviors[ModeAdvisor]
}
