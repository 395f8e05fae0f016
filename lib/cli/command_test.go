// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "halyard",
		Subcommands: []*Command{
			{Name: "rooms", Run: func(ctx context.Context, args []string) error {
				called = "rooms"
				return nil
			}},
			{
				Name: "verify",
				Subcommands: []*Command{
					{Name: "emoji", Run: func(ctx context.Context, args []string) error {
						called = "verify emoji"
						receivedArgs = args
						return nil
					}},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"verify", "emoji", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "verify emoji" {
		t.Errorf("dispatched to %q", called)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var limit int
	var gotArgs []string
	command := &Command{
		Name: "messages",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("messages", pflag.ContinueOnError)
			flagSet.IntVar(&limit, "limit", 20, "page size")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			gotArgs = args
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--limit", "5", "!room:example.org"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if limit != 5 {
		t.Errorf("limit = %d, want 5", limit)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "!room:example.org" {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestCommand_Execute_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")
	root := &Command{
		Name: "halyard",
		Subcommands: []*Command{{Name: "sync", Run: func(ctx context.Context, args []string) error {
			if ctx.Value(key{}) != "marker" {
				t.Error("context not passed through")
			}
			return nil
		}}},
	}
	if err := root.Execute(ctx, []string{"sync"}); err != nil {
		t.Fatal(err)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name:   "halyard",
		Stderr: &bytes.Buffer{},
		Subcommands: []*Command{
			{Name: "rooms", Run: func(ctx context.Context, args []string) error { return nil }},
			{Name: "messages", Run: func(ctx context.Context, args []string) error { return nil }},
		},
	}

	err := root.Execute(context.Background(), []string{"romos"})
	if err == nil {
		t.Fatal("unknown command accepted")
	}
	if !strings.Contains(err.Error(), `did you mean "rooms"`) {
		t.Errorf("error = %q, want a suggestion", err)
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryValidation {
		t.Errorf("error not a validation ToolError: %#v", err)
	}

	err = root.Execute(context.Background(), []string{"zzzzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("distant name got a suggestion: %v", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	var limit int
	command := &Command{
		Name: "messages",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("messages", pflag.ContinueOnError)
			flagSet.IntVar(&limit, "limit", 20, "page size")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--limt", "3"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --limit?") {
		t.Errorf("error = %v, want --limit suggestion", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:   "halyard",
		Stderr: &help,
		Subcommands: []*Command{
			{Name: "verify", Summary: "Verify this device", Subcommands: []*Command{
				{Name: "status", Run: func(ctx context.Context, args []string) error { return nil }},
			}},
		},
	}

	if err := root.Execute(context.Background(), []string{"verify"}); err == nil {
		t.Fatal("missing subcommand accepted")
	}
	if !strings.Contains(help.String(), "halyard verify <command>") {
		t.Errorf("help not printed to root Stderr:\n%s", help.String())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	var help bytes.Buffer
	ran := false
	root := &Command{
		Name:        "halyard",
		Description: "Desktop Matrix session client.",
		Stderr:      &help,
		Examples:    []Example{{Description: "List rooms", Command: "halyard rooms"}},
		Subcommands: []*Command{
			{Name: "rooms", Summary: "List joined rooms", Run: func(ctx context.Context, args []string) error {
				ran = true
				return nil
			}},
		},
	}

	if err := root.Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran {
		t.Error("--help ran a command")
	}
	output := help.String()
	for _, want := range []string{"Desktop Matrix session client.", "rooms", "List joined rooms", "# List rooms", "halyard rooms"} {
		if !strings.Contains(output, want) {
			t.Errorf("help missing %q:\n%s", want, output)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	for _, test := range []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"rooms", "rooms", 0},
		{"romos", "rooms", 2},
		{"send", "sned", 2},
		{"kitten", "sitting", 3},
	} {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}
