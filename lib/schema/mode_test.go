// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "testing"

func TestParseMode(t *testing.T) {
	for _, mode := range Modes() {
		parsed, err := ParseMode(string(mode))
		if err != nil {
			t.Errorf("ParseMode(%q): %v", mode, err)
		}
		if parsed != mode {
			t.Errorf("ParseMode(%q) = %q", mode, parsed)
		}
	}
	for _, name := range []string{"", "Planner", "pirate"} {
		if _, err := ParseMode(name); err == nil {
			t.Errorf("ParseMode(%q) succeeded, want error", name)
		}
	}
}

func TestModeBehaviorTable(t *testing.T) {
	for _, mode := range Modes() {
		behavior := mode.Behavior()
		if behavior.Instruction == "" || behavior.Title == "" {
			t.Errorf("mode %q has an incomplete behavior entry", mode)
		}
		if behavior.RequireToolFirst != (mode == ModePlanner) {
			t.Errorf("mode %q RequireToolFirst = %v", mode, behavior.RequireToolFirst)
		}
	}
	if Mode("bogus").Behavior() != ModeAdvisor.Behavior() {
		t.Error("invalid mode does not fall back to advisor behavior")
	}
}

func TestAIConfigPatch(t *testing.T) {
	planner := ModePlanner
	thinking := false
	patch := AIConfigPatch{Mode: &planner, ThinkingEnabled: &thinking}
	if err := patch.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := patch.ApplyTo(DefaultAIConfig())
	if got.Mode != ModePlanner || got.ThinkingEnabled {
		t.Fatalf("ApplyTo = %+v", got)
	}
	if got.Provider != DefaultProvider || got.ModelID != DefaultModelID {
		t.Fatalf("ApplyTo changed untouched fields: %+v", got)
	}

	bogus := Mode("pirate")
	if err := (AIConfigPatch{Mode: &bogus}).Validate(); err == nil {
		t.Fatal("Validate accepted an unknown mode")
	}
	if !(AIConfigPatch{}).IsEmpty() {
		t.Fatal("zero patch is not empty")
	}
}
