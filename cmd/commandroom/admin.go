// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
)

// statusResult mirrors the service's status response.
type statusResult struct {
	UptimeSeconds float64      `cbor:"uptime_seconds" json:"uptime_seconds"`
	Version       string       `cbor:"version"        json:"version"`
	Sessions      int          `cbor:"sessions"       json:"sessions"`
	Rooms         []roomStatus `cbor:"rooms"          json:"rooms"`
}

type roomStatus struct {
	RoomID          string `json:"roomId"`
	Version         uint64 `json:"version"`
	Present         int    `json:"present"`
	FeedSubscribers int    `json:"feedSubscribers"`
	BusSubscribers  int    `json:"busSubscribers"`
	BusPublished    uint64 `json:"busPublished"`
	BusDropped      uint64 `json:"busDropped"`
}

type statusParams struct {
	connection
	cli.JSONOutput
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show service liveness and room counters",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "commandroom status"); err != nil {
				return err
			}
			var status statusResult
			if err := params.call("status", nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(status); done {
				return err
			}
			writeStatus(os.Stdout, status)
			return nil
		},
	}
}

func writeStatus(w io.Writer, status statusResult) {
	uptime := time.Duration(status.UptimeSeconds * float64(time.Second)).Truncate(time.Second)
	fmt.Fprintf(w, "commandroom-service %s, up %s, %d session(s)\n", status.Version, uptime, status.Sessions)
	if len(status.Rooms) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tVERSION\tPRESENT\tWATCHERS\tEVENTS\tDROPPED")
	for _, room := range status.Rooms {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			room.RoomID, room.Version, room.Present, room.FeedSubscribers, room.BusPublished, room.BusDropped)
	}
	tw.Flush()
}

type deleteRoomParams struct {
	connection
	yes bool
}

func deleteRoomCommand() *cli.Command {
	var params deleteRoomParams
	return &cli.Command{
		Name:        "delete-room",
		Summary:     "Delete a room and its stored snapshot",
		Description: "Delete a room. Every session in it is closed and its snapshot is removed.",
		Usage:       "commandroom delete-room <room> --yes",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete-room", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.BoolVar(&params.yes, "yes", false, "confirm the deletion")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom delete-room <room> --yes"); err != nil {
				return err
			}
			if !params.yes {
				return fmt.Errorf("refusing to delete room %q without --yes", args[0])
			}
			if err := params.call("delete-room", map[string]any{"room": args[0]}, nil); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
