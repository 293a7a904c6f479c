// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// execute runs a command tree with a background context and a
// discarded logger, the way main wires it minus the signal handling.
func execute(command *Command, args ...string) error {
	return command.Execute(context.Background(), args, slog.New(slog.DiscardHandler))
}

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "commtrail",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "list",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "list"
					return nil
				},
			},
		},
	}

	if err := execute(root, "list"); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "list" {
		t.Errorf("dispatched to %q, want %q", called, "list")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "commtrail",
		Subcommands: []*Command{
			{
				Name: "contact",
				Subcommands: []*Command{
					{
						Name: "favorite",
						Run: func(_ context.Context, args []string, _ *slog.Logger) error {
							called = "contact favorite"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := execute(root, "contact", "favorite", "42"); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "contact favorite" {
		t.Errorf("dispatched to %q, want %q", called, "contact favorite")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "42" {
		t.Errorf("args = %v, want [42]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string
	var target string

	command := &Command{
		Name: "watch",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := execute(command, "--socket", "/custom.sock", "extra-arg"); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socketPath = %q, want %q", socketPath, "/custom.sock")
	}
	if target != "extra-arg" {
		t.Errorf("target = %q, want %q", target, "extra-arg")
	}
}

func TestCommand_Execute_PassesContextAndLogger(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "threaded")
	logger := slog.New(slog.DiscardHandler)

	var gotValue any
	var gotLogger *slog.Logger
	root := &Command{
		Name: "commtrail",
		Subcommands: []*Command{
			{
				Name: "ping",
				Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
					gotValue = ctx.Value(key{})
					gotLogger = logger
					return nil
				},
			},
		},
	}

	if err := root.Execute(ctx, []string{"ping"}, logger); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if gotValue != "threaded" {
		t.Errorf("context value = %v, want %q", gotValue, "threaded")
	}
	if gotLogger != logger {
		t.Error("logger was not threaded through to Run")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.Bool("json", false, "output as JSON")
			flagSet.String("socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := execute(command, "--josn")
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --json") {
		t.Errorf("error = %q, want suggestion for '--json'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "josn") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := execute(command, "--zzzzzzzzz")
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "commtrail",
		Subcommands: []*Command{
			{Name: "watch"},
			{Name: "export"},
			{Name: "version"},
		},
	}

	err := execute(root, "exprot")
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"export\"") {
		t.Errorf("error = %q, want suggestion for 'export'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "commtrail",
		Subcommands: []*Command{
			{Name: "watch"},
			{Name: "export"},
		},
	}

	err := execute(root, "zzzzzzz")
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "commtrail",
				Summary: "Communication event history",
				Subcommands: []*Command{
					{Name: "list", Summary: "Show recent events"},
				},
			}

			if err := execute(root, helpArg); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "commtrail",
		Subcommands: []*Command{
			{Name: "list", Summary: "Show recent events"},
		},
	}

	err := execute(root)
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "commtrail",
		Description: "Communication event history.",
		Subcommands: []*Command{
			{Name: "list", Summary: "Show recent events"},
			{Name: "watch", Summary: "Follow the event stream"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Show the last 20 events",
				Command:     "commtrail list",
			},
			{
				Description: "Follow calls as they happen",
				Command:     "commtrail watch --categories voicecall",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Communication event history.",
		"Usage:",
		"commtrail <command> [flags]",
		"Commands:",
		"list",
		"Show recent events",
		"watch",
		"Follow the event stream",
		"Examples:",
		"commtrail list",
		"commtrail watch --categories voicecall",
		"Run 'commtrail <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "list",
		Summary: "Show recent events",
		Usage:   "commtrail list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.String("socket", "/run/commtrail.sock", "event service socket")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"commtrail list [flags]",
		"Flags:",
		"socket",
		"json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "commtrail"}
	contact := &Command{Name: "contact", parent: root}
	favorite := &Command{Name: "favorite", parent: contact}

	if got := root.fullName(); got != "commtrail" {
		t.Errorf("root.fullName() = %q, want %q", got, "commtrail")
	}
	if got := contact.fullName(); got != "commtrail contact" {
		t.Errorf("contact.fullName() = %q, want %q", got, "commtrail contact")
	}
	if got := favorite.fullName(); got != "commtrail contact favorite" {
		t.Errorf("favorite.fullName() = %q, want %q", got, "commtrail contact favorite")
	}
}
