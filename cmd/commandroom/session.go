// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/identity"
	"github.com/nexus-goc/commandroom/lib/schema"
)

// joinResult mirrors the service's join response.
type joinResult struct {
	SessionID   string          `cbor:"session_id"   json:"session_id"`
	RoomID      string          `cbor:"room_id"      json:"room_id"`
	Identity    string          `cbor:"identity"     json:"identity"`
	DisplayName string          `cbor:"display_name" json:"display_name"`
	Avatar      identity.Avatar `cbor:"avatar"       json:"avatar"`
	AccessScope string          `cbor:"access_scope" json:"access_scope"`
}

type joinParams struct {
	connection
	cli.JSONOutput
	name  string
	quiet bool
}

func joinCommand() *cli.Command {
	var params joinParams
	return &cli.Command{
		Name:    "join",
		Summary: "Join a room and start a session",
		Description: `Join a room under a display name. The room is created on first join.

The display name determines the identity: every session joined under the
same name (ignoring case and surrounding whitespace) shares ownership of
that identity's personal todos and note.`,
		Usage: "commandroom join <room> --name <display-name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.StringVar(&params.name, "name", "", "display name (required)")
			flagSet.BoolVarP(&params.quiet, "quiet", "q", false, "print only the session id")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Join the ops room",
				Command:     `commandroom join ops --name "Ada Lovelace"`,
			},
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom join <room> --name <display-name>"); err != nil {
				return err
			}
			if strings.TrimSpace(params.name) == "" {
				return fmt.Errorf("--name is required")
			}

			var result joinResult
			if err := params.call("join", map[string]any{"room": args[0], "name": params.name}, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			if params.quiet {
				fmt.Println(result.SessionID)
				return nil
			}
			fmt.Printf("Joined %s as %s (%s, %s)\n", result.RoomID, result.DisplayName, result.Identity, result.Avatar.Initials)
			fmt.Printf("export %s=%s\n", SessionEnvironmentVariable, result.SessionID)
			return nil
		},
	}
}

func leaveCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "leave",
		Summary: "End the session",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("leave", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "commandroom leave"); err != nil {
				return err
			}
			return params.sessionCall("leave", nil, nil)
		},
	}
}

type sayParams struct {
	sessionOptions
	cli.JSONOutput
	ai bool
}

func sayCommand() *cli.Command {
	var params sayParams
	return &cli.Command{
		Name:    "say",
		Summary: "Post a message to the room",
		Description: `Post a message to the room conversation.

A message that starts with "@ai" (in any case), or any message while the
session's assistant routing is on, also asks the assistant to answer.`,
		Usage: "commandroom say <text...> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("say", pflag.ContinueOnError)
			params.sessionOptions.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.BoolVar(&params.ai, "ai", false, `address the assistant (prefixes "@ai ")`)
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Ask the assistant",
				Command:     `commandroom say --ai "what is the weakest point of the perimeter?"`,
			},
		},
		Run: func(args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("usage: commandroom say <text...>")
			}
			if params.ai {
				text = "@ai " + text
			}

			var message schema.Message
			if err := params.sessionCall("say", map[string]any{"text": text}, &message); err != nil {
				return err
			}
			if done, err := params.EmitJSON(message); done {
				return err
			}
			fmt.Println(message.ID)
			return nil
		},
	}
}

// cancelResult mirrors the service's cancel response.
type cancelResult struct {
	Cancelled string `cbor:"cancelled" json:"cancelled"`
}

func cancelCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "cancel",
		Summary: "Stop the in-flight assistant response",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("cancel", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "commandroom cancel"); err != nil {
				return err
			}
			var result cancelResult
			if err := params.sessionCall("cancel", nil, &result); err != nil {
				return err
			}
			if result.Cancelled == "" {
				fmt.Println("Nothing to cancel.")
				return nil
			}
			fmt.Printf("Cancelled %s\n", result.Cancelled)
			return nil
		},
	}
}
