// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/config"
	"github.com/nexus-goc/commandroom/lib/service"
	"github.com/nexus-goc/commandroom/lib/version"
)

// SessionEnvironmentVariable supplies --session when the flag is not
// given.
const SessionEnvironmentVariable = "COMMANDROOM_SESSION"

// callTimeout bounds one request/response exchange.
const callTimeout = 30 * time.Second

// Root returns the command tree of the commandroom binary.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "commandroom",
		Summary: "Operate shared command rooms",
		Description: `Operate shared command rooms through a running commandroom-service.

A session is created with "join" and named by --session (or the
COMMANDROOM_SESSION environment variable) in later commands.`,
		Subcommands: []*cli.Command{
			joinCommand(),
			leaveCommand(),
			sayCommand(),
			cancelCommand(),
			watchCommand(),
			todoCommand(),
			noteCommand(),
			shareCommand(),
			aiCommand(),
			statusCommand(),
			deleteRoomCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Join a room and keep the session for later commands",
				Command:     `export COMMANDROOM_SESSION=$(commandroom join ops --name "Ada Lovelace" --quiet)`,
			},
			{
				Description: "Ask the assistant",
				Command:     `commandroom say "@ai what should we secure first?"`,
			},
			{
				Description: "Follow the room live",
				Command:     "commandroom watch ops",
			},
		},
	}
}

// connection locates the service socket.
type connection struct {
	socketPath string
	configPath string
}

func (c *connection) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.socketPath, "socket", "", "service socket (default: paths.socket from the config)")
	flagSet.StringVar(&c.configPath, "config", "", "path to commandroom.yaml (default: $COMMANDROOM_CONFIG)")
}

// client resolves the socket from --socket, then --config, then
// COMMANDROOM_CONFIG, then the built-in default path.
func (c *connection) client() (*service.ServiceClient, error) {
	if c.socketPath != "" {
		return service.NewServiceClient(c.socketPath), nil
	}

	var cfg *config.Config
	var err error
	switch {
	case c.configPath != "":
		cfg, err = config.LoadFile(c.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return service.NewServiceClient(cfg.Paths.Socket), nil
}

// call performs one action with callTimeout.
func (c *connection) call(action string, fields map[string]any, result any) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return client.Call(ctx, action, fields, result)
}

// sessionOptions are the flags of commands acting as a session.
type sessionOptions struct {
	connection
	sessionID string
}

func (s *sessionOptions) addFlags(flagSet *pflag.FlagSet) {
	s.connection.addFlags(flagSet)
	flagSet.StringVar(&s.sessionID, "session", "", "session id from join (default: $"+SessionEnvironmentVariable+")")
}

// fields returns the request fields naming the session, merged with
// extra.
func (s *sessionOptions) fields(extra map[string]any) (map[string]any, error) {
	sessionID := s.sessionID
	if sessionID == "" {
		sessionID = os.Getenv(SessionEnvironmentVariable)
	}
	if sessionID == "" {
		return nil, errors.New("no session: pass --session or set " + SessionEnvironmentVariable)
	}
	fields := map[string]any{"session": sessionID}
	for key, value := range extra {
		fields[key] = value
	}
	return fields, nil
}

// sessionCall performs a session action.
func (s *sessionOptions) sessionCall(action string, extra map[string]any, result any) error {
	fields, err := s.fields(extra)
	if err != nil {
		return err
	}
	return s.call(action, fields, result)
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, want int, usage string) error {
	if len(args) != want {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Println(version.Banner("commandroom"))
			return nil
		},
	}
}
