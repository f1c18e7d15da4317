// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/cmd/commandroom/cli"
	"github.com/nexus-goc/commandroom/lib/schema"
)

func todoCommand() *cli.Command {
	return &cli.Command{
		Name:    "todo",
		Summary: "Manage the todo board",
		Subcommands: []*cli.Command{
			todoListCommand(),
			todoAddCommand(),
			todoToggleCommand(),
			todoMoveCommand(),
			todoDeleteCommand(),
		},
	}
}

type todoAddParams struct {
	sessionOptions
	cli.JSONOutput
	group    string
	parentID string
	personal bool
}

func todoAddCommand() *cli.Command {
	var params todoAddParams
	return &cli.Command{
		Name:    "add",
		Summary: "Add a todo",
		Usage:   "commandroom todo add <text...> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add", pflag.ContinueOnError)
			params.sessionOptions.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.StringVar(&params.group, "group", "", "group name (default: "+schema.DefaultTodoGroup+")")
			flagSet.StringVar(&params.parentID, "parent", "", "nest under this todo id")
			flagSet.BoolVar(&params.personal, "personal", false, "owned by this session's identity")
			return flagSet
		},
		Run: func(args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("usage: commandroom todo add <text...>")
			}
			var todo schema.Todo
			err := params.sessionCall("todo-add", map[string]any{
				"text":      text,
				"group":     params.group,
				"parent_id": params.parentID,
				"personal":  params.personal,
			}, &todo)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(todo); done {
				return err
			}
			fmt.Println(todo.ID)
			return nil
		},
	}
}

func todoToggleCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "toggle",
		Summary: "Flip a todo between open and done",
		Usage:   "commandroom todo toggle <id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("toggle", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom todo toggle <id>"); err != nil {
				return err
			}
			var todo schema.Todo
			if err := params.sessionCall("todo-toggle", map[string]any{"id": args[0]}, &todo); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", checkbox(todo.Completed), todo.Text)
			return nil
		},
	}
}

func todoMoveCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "move",
		Summary: "Move a todo to a board position",
		Usage:   "commandroom todo move <id> <index>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("move", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 2, "commandroom todo move <id> <index>"); err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[1], err)
			}
			return params.sessionCall("todo-move", map[string]any{"id": args[0], "index": index}, nil)
		},
	}
}

// todoDeleteResult mirrors the service's todo-delete response.
type todoDeleteResult struct {
	Removed []string `cbor:"removed" json:"removed"`
}

func todoDeleteCommand() *cli.Command {
	var params sessionOptions
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a todo and its direct children",
		Usage:   "commandroom todo delete <id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom todo delete <id>"); err != nil {
				return err
			}
			var result todoDeleteResult
			if err := params.sessionCall("todo-delete", map[string]any{"id": args[0]}, &result); err != nil {
				return err
			}
			fmt.Printf("Removed %d todo(s)\n", len(result.Removed))
			return nil
		},
	}
}

type todoListParams struct {
	connection
	cli.JSONOutput
}

func todoListCommand() *cli.Command {
	var params todoListParams
	return &cli.Command{
		Name:    "list",
		Summary: "Show the todo board of a room",
		Usage:   "commandroom todo list <room> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "commandroom todo list <room>"); err != nil {
				return err
			}
			var snapshot snapshotResult
			if err := params.call("snapshot", map[string]any{"room": args[0]}, &snapshot); err != nil {
				return err
			}
			if done, err := params.EmitJSON(snapshot.State.Todos); done {
				return err
			}
			writeTodos(os.Stdout, snapshot.State.Todos)
			return nil
		},
	}
}

// writeTodos prints the board with children indented under their
// parents, in board order.
func writeTodos(w io.Writer, todos []schema.Todo) {
	if len(todos) == 0 {
		fmt.Fprintln(w, "No todos.")
		return
	}

	present := make(map[string]bool, len(todos))
	children := make(map[string][]schema.Todo)
	for _, todo := range todos {
		present[todo.ID] = true
	}
	var roots []schema.Todo
	for _, todo := range todos {
		if todo.ParentID != "" && present[todo.ParentID] {
			children[todo.ParentID] = append(children[todo.ParentID], todo)
			continue
		}
		roots = append(roots, todo)
	}

	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	var write func(todo schema.Todo, depth int)
	write = func(todo schema.Todo, depth int) {
		owner := ""
		if todo.OwnerName != "" {
			owner = "@" + todo.OwnerName
		}
		group := todo.Group
		if group == "" {
			group = schema.DefaultTodoGroup
		}
		fmt.Fprintf(tw, "%s\t%s%s %s\t%s\t%s\n",
			todo.ID, strings.Repeat("  ", depth), checkbox(todo.Completed), todo.Text, group, owner)
		for _, child := range children[todo.ID] {
			write(child, depth+1)
		}
	}
	for _, todo := range roots {
		write(todo, 0)
	}
	tw.Flush()
}

func checkbox(completed bool) string {
	if completed {
		return "[x]"
	}
	return "[ ]"
}
