// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/schema"
)

func shareCommand() *cli.Command {
	return &cli.Command{
		Name:    "share",
		Summary: "Share a link or an intel image with the room",
		Subcommands: []*cli.Command{
			shareURLCommand(),
			shareIntelCommand(),
		},
	}
}

func shareURLCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:        "url",
		Summary:     "Set the room's current link",
		Description: "Set the room's current link. An empty argument clears it.",
		Usage:       "commandroom share url <url>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("url", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom share url <url>"); err != nil {
				return err
			}
			return params.sessionCall("set-url", map[string]any{"url": args[0]}, nil)
		},
	}
}

func shareIntelCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "intel",
		Summary: "Publish an image as the room's latest intel",
		Usage:   "commandroom share intel <image-url>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("intel", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom share intel <image-url>"); err != nil {
				return err
			}
			var intel schema.Intel
			if err := params.sessionCall("share-intel", map[string]any{"image_url": args[0]}, &intel); err != nil {
				return err
			}
			fmt.Printf("Shared by %s\n", intel.UploaderName)
			return nil
		},
	}
}
