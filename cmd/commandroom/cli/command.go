// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree.
type Command struct {
	// Name is the command name as typed (e.g., "todo", "add").
	Name string

	// Summary is a one-line description shown in the parent's help listing.
	Summary string

	// Description is shown in the command's own help output.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	Examples []Example

	// Flags returns a configured *pflag.FlagSet for this command. Called
	// on every parse, so it must build a fresh set each time. If nil, the
	// command accepts no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional arg.
	Subcommands []*Command

	// Run executes the command with the positional args left after flag
	// parsing. When both Run and Subcommands are set, Run handles args
	// that match no subcommand.
	Run func(args []string) error

	parent *Command
}

// Example is a usage example shown in help output.
type Example struct {
	Description string
	Command     string
}

// Execute parses args and dispatches to the matching subcommand or to
// Run.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(os.Stderr)
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name := args[0]
		for _, sub := range c.Subcommands {
			if sub.Name == name {
				sub.parent = c
				return sub.Execute(args[1:])
			}
		}
		if c.Run == nil {
			if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
				return fmt.Errorf("unknown command %q (did you mean %q?)\n\nRun '%s --help' for usage.",
					name, suggestion, c.fullName())
			}
			return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.",
				name, c.fullName())
		}
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(os.Stderr)
		if len(args) == 0 {
			return fmt.Errorf("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		flagSet.SetOutput(io.Discard)

		if err := flagSet.Parse(args); err != nil {
			message := err.Error()
			if strings.Contains(message, "unknown flag") {
				if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
					return fmt.Errorf("%s (did you mean %s?)\n\nRun '%s --help' for usage.",
						message, suggestion, c.fullName())
				}
			}
			return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
		}
		args = flagSet.Args()
	}

	if c.Run != nil {
		return c.Run(args)
	}

	c.PrintHelp(os.Stderr)
	return fmt.Errorf("no action defined for %q", c.fullName())
}

// PrintHelp writes structured help output to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	if c.Description != "" {
		fmt.Fprintf(w, "%s\n\n", c.Description)
	} else if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", name)
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", name)
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		var flagHelp strings.Builder
		flagSet := c.Flags()
		flagSet.SetOutput(&flagHelp)
		flagSet.PrintDefaults()
		if flagHelp.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", flagHelp.String())
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
			if example.Description != "" {
				fmt.Fprintln(w)
			}
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// fullName returns the command path (e.g., "commandroom todo add").
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
