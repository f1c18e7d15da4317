// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/schema"
)

func aiCommand() *cli.Command {
	return &cli.Command{
		Name:    "ai",
		Summary: "Configure the room assistant",
		Subcommands: []*cli.Command{
			aiSetCommand(),
			aiReleaseCommand(),
			aiRoutingCommand(),
		},
	}
}

type aiSetParams struct {
	sessionOptions
	cli.JSONOutput
	provider string
	model    string
	mode     string
	thinking string
}

// patchFields returns the set-ai-config fields for every option that
// was given. Empty options are left out of the patch.
func (p *aiSetParams) patchFields() (map[string]any, error) {
	fields := make(map[string]any)
	if p.provider != "" {
		fields["provider"] = p.provider
	}
	if p.model != "" {
		fields["model_id"] = p.model
	}
	if p.mode != "" {
		mode, err := schema.ParseMode(strings.ToLower(p.mode))
		if err != nil {
			return nil, err
		}
		fields["mode"] = string(mode)
	}
	switch p.thinking {
	case "":
	case "on":
		fields["thinking_enabled"] = true
	case "off":
		fields["thinking_enabled"] = false
	default:
		return nil, fmt.Errorf("--thinking must be on or off, got %q", p.thinking)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("nothing to change: pass at least one of --provider, --model, --mode, --thinking")
	}
	return fields, nil
}

func aiSetCommand() *cli.Command {
	var params aiSetParams
	return &cli.Command{
		Name:    "set",
		Summary: "Change the assistant configuration",
		Description: `Change the room's assistant configuration.

The first session to change the configuration becomes the controller for
its identity. Afterwards only that identity may change it, until it
releases control or its last session leaves.`,
		Usage: "commandroom ai set [--provider P] [--model M] [--mode MODE] [--thinking on|off]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("set", pflag.ContinueOnError)
			params.sessionOptions.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.StringVar(&params.provider, "provider", "", "model provider")
			flagSet.StringVar(&params.model, "model", "", "model id")
			flagSet.StringVar(&params.mode, "mode", "", "encyclopedia, advisor, interrogator or planner")
			flagSet.StringVar(&params.thinking, "thinking", "", "on or off")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Switch to planning mode",
				Command:     "commandroom ai set --mode planner",
			},
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "commandroom ai set [flags]"); err != nil {
				return err
			}
			fields, err := params.patchFields()
			if err != nil {
				return err
			}
			var config schema.AIConfig
			if err := params.sessionCall("set-ai-config", fields, &config); err != nil {
				return err
			}
			if done, err := params.EmitJSON(config); done {
				return err
			}
			fmt.Printf("%s/%s mode=%s thinking=%t controller=%s\n",
				config.Provider, config.ModelID, config.Mode, config.ThinkingEnabled, config.ControllerID)
			return nil
		},
	}
}

func aiReleaseCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "release",
		Summary: "Give up control of the assistant configuration",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("release", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "commandroom ai release"); err != nil {
				return err
			}
			return params.sessionCall("release-control", nil, nil)
		},
	}
}

func aiRoutingCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:        "routing",
		Summary:     "Send every message of this session to the assistant",
		Description: `With routing on, every message this session posts asks the assistant to answer, with or without "@ai".`,
		Usage:       "commandroom ai routing on|off",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("routing", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom ai routing on|off"); err != nil {
				return err
			}
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("routing must be on or off, got %q", args[0])
			}
			return params.sessionCall("set-ai-routing", map[string]any{"enabled": enabled}, nil)
		},
	}
}
