// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "commandroom",
		Subcommands: []*Command{
			{
				Name: "todo",
				Subcommands: []*Command{
					{
						Name: "add",
						Run: func(args []string) error {
							called = "todo add"
							receivedArgs = args
							return nil
						},
					},
				},
			},
			{
				Name: "say",
				Run: func(args []string) error {
					called = "say"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"todo", "add", "hold", "the", "gate"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "todo add" {
		t.Errorf("dispatched to %q, want %q", called, "todo add")
	}
	if strings.Join(receivedArgs, " ") != "hold the gate" {
		t.Errorf("args = %v", receivedArgs)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var session string
	var personal bool
	var receivedArgs []string

	command := &Command{
		Name: "add",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add", pflag.ContinueOnError)
			flagSet.StringVar(&session, "session", "", "session id")
			flagSet.BoolVar(&personal, "personal", false, "personal todo")
			return flagSet
		},
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	if err := command.Execute([]string{"--session", "s-1", "scout", "--personal"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if session != "s-1" || !personal {
		t.Errorf("session = %q, personal = %v", session, personal)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "scout" {
		t.Errorf("args = %v, want [scout]", receivedArgs)
	}
}

func TestExecuteSuggestions(t *testing.T) {
	root := &Command{
		Name: "commandroom",
		Subcommands: []*Command{
			{Name: "watch", Run: func([]string) error { return nil }},
			{
				Name: "say",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("say", pflag.ContinueOnError)
					flagSet.String("session", "", "session id")
					return flagSet
				},
				Run: func([]string) error { return nil },
			},
		},
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"command typo", []string{"wacth"}, `did you mean "watch"?`},
		{"flag typo", []string{"say", "--sesion", "x"}, "did you mean --session?"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := root.Execute(test.args)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Execute(%v) = %v, want error containing %q", test.args, err, test.want)
			}
		})
	}

	if err := root.Execute([]string{"deploy"}); err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("unrelated command error = %v, want no suggestion", err)
	}
}

func TestPrintHelp(t *testing.T) {
	command := &Command{
		Name:    "commandroom",
		Summary: "Operate command rooms",
		Subcommands: []*Command{
			{Name: "join", Summary: "Join a room"},
		},
		Examples: []Example{{Description: "Join ops", Command: "commandroom join ops --name Ada"}},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()
	for _, want := range []string{"Operate command rooms", "Usage:\n  commandroom <command> [flags]", "join", "Join a room", "# Join ops"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q:\n%s", want, output)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"watch", "watch", 0},
		{"wacth", "watch", 2},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
