// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/lib/cli"
	"github.com/halyard-chat/halyard/lib/schema"
)

func roomsCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "rooms",
		Summary: "List joined rooms",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("rooms", &params) },
		Run: func(ctx context.Context, args []string) error {
			var list schema.RoomList
			if err := params.Call(ctx, schema.ActionListRooms, nil, &list); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, list.Rooms); done {
				return err
			}
			if len(list.Rooms) == 0 {
				fmt.Fprintln(stdout, "No joined rooms.")
				return nil
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ROOM\tNAME\tTOPIC")
			for _, room := range list.Rooms {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", room.RoomID, room.Name, firstLine(room.Topic))
			}
			return tw.Flush()
		},
	}
}

type messagesParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	Limit int    `flag:"limit,n" desc:"events to fetch (the page can hold fewer messages)" default:"20"`
	From  string `flag:"from" desc:"continue from this cursor"`
	Older bool   `flag:"older" desc:"continue from the end of the previous page"`
}

func messagesCommand() *cli.Command {
	var params messagesParams
	return &cli.Command{
		Name:    "messages",
		Summary: "Show room history",
		Description: "Show one page of a room's history, oldest first.\n\n" +
			"This build does not decrypt Megolm room messages: events in encrypted\n" +
			"rooms are listed as \"[Encrypted]\" with a waiting-for-keys placeholder.\n" +
			"Unencrypted rooms show their messages as sent.",
		Usage: "halyard messages <room-id> [flags]",
		Examples: []cli.Example{
			{Command: "halyard messages '!abc:example.org'"},
			{Description: "Page further back", Command: "halyard messages '!abc:example.org' --older"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("messages", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected <room-id>, got %d arguments", len(args))
			}
			if params.Older && params.From != "" {
				return cli.Validation("--older and --from are mutually exclusive")
			}
			var page schema.MessagePage
			err := params.Call(ctx, schema.ActionFetchMessages, schema.FetchMessagesRequest{
				Room:     args[0],
				PageSize: params.Limit,
				From:     params.From,
				Older:    params.Older,
			}, &page)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, page); done {
				return err
			}
			for _, message := range page.Messages {
				fmt.Fprintf(stdout, "[%s] %s: %s\n", formatTimestamp(message.Timestamp), message.Sender, message.Body)
			}
			if page.HasMore {
				fmt.Fprintf(stderr, "More history: halyard messages %s --older\n", args[0])
			}
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:     "send",
		Summary:  "Send a text message",
		Usage:    "halyard send <room-id> <message...> [flags]",
		Examples: []cli.Example{{Command: "halyard send '!abc:example.org' hello there"}},
		Flags:    func() *pflag.FlagSet { return cli.FlagsFromParams("send", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return cli.Validation("expected <room-id> <message...>")
			}
			var sent schema.SendMessageResponse
			err := params.Call(ctx, schema.ActionSendMessage, schema.SendMessageRequest{
				Room: args[0],
				Body: strings.Join(args[1:], " "),
			}, &sent)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, sent); done {
				return err
			}
			fmt.Fprintf(stdout, "Sent %s\n", sent.EventID)
			return nil
		},
	}
}

// formatTimestamp renders milliseconds since the epoch in local time.
func formatTimestamp(millis int64) string {
	if millis <= 0 {
		return "????-??-?? ??:??"
	}
	return time.UnixMilli(millis).Local().Format("2006-01-02 15:04")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
