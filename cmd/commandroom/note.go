// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/schema"
)

func noteCommand() *cli.Command {
	return &cli.Command{
		Name:    "note",
		Summary: "Read and write room notes",
		Subcommands: []*cli.Command{
			noteShowCommand(),
			noteSetCommand("shared", "note-shared", "Replace the shared note"),
			noteSetCommand("mine", "note-mine", "Replace this identity's personal note"),
		},
	}
}

// noteSetCommand builds a command that replaces a note with its
// arguments, or with stdin when the only argument is "-".
func noteSetCommand(name, action, summary string) *cli.Command {
	var params sessionOptions
	usage := "commandroom note " + name + " <markdown...|->"
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			content, err := noteContent(args, os.Stdin)
			if err != nil {
				return err
			}
			if content == "" {
				return fmt.Errorf("usage: %s", usage)
			}
			return params.sessionCall(action, map[string]any{"content": content}, nil)
		},
	}
}

func noteContent(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	return strings.Join(args, " "), nil
}

// notesHTMLResult mirrors the service's notes-html response.
type notesHTMLResult struct {
	Shared  string            `cbor:"shared"  json:"shared"`
	Players []playerNoteEntry `cbor:"players" json:"players"`
}

type playerNoteEntry struct {
	Identity    string `cbor:"identity"     json:"identity"`
	DisplayName string `cbor:"display_name" json:"display_name"`
	HTML        string `cbor:"html"         json:"html"`
}

type noteShowParams struct {
	connection
	cli.JSONOutput
	html bool
}

func noteShowCommand() *cli.Command {
	var params noteShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print the shared note and every personal note",
		Usage:   "commandroom note show <room> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.BoolVar(&params.html, "html", false, "render the notes as HTML")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom note show <room>"); err != nil {
				return err
			}

			if params.html {
				var result notesHTMLResult
				if err := params.call("notes-html", map[string]any{"room": args[0]}, &result); err != nil {
					return err
				}
				if done, err := params.EmitJSON(result); done {
					return err
				}
				fmt.Print(result.Shared)
				for _, player := range result.Players {
					fmt.Printf("<h2>%s</h2>\n%s", player.DisplayName, player.HTML)
				}
				return nil
			}

			var snapshot snapshotResult
			if err := params.call("snapshot", map[string]any{"room": args[0]}, &snapshot); err != nil {
				return err
			}
			if done, err := params.EmitJSON(map[string]any{
				"shared":  snapshot.State.SharedNote,
				"players": snapshot.State.PlayerNotes,
			}); done {
				return err
			}
			writeNotes(os.Stdout, snapshot.State)
			return nil
		},
	}
}

func writeNotes(w io.Writer, state schema.RoomState) {
	fmt.Fprintf(w, "%s\n", state.SharedNote)

	identities := make([]string, 0, len(state.PlayerNotes))
	for identity := range state.PlayerNotes {
		identities = append(identities, identity)
	}
	sort.Slice(identities, func(i, j int) bool {
		a, b := state.PlayerNotes[identities[i]], state.PlayerNotes[identities[j]]
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return identities[i] < identities[j]
	})
	for _, identity := range identities {
		note := state.PlayerNotes[identity]
		fmt.Fprintf(w, "\n--- %s ---\n%s\n", note.DisplayName, note.Content)
	}
}
