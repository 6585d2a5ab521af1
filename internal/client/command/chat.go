package command

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aussiebroadwan/tabchat/internal/client/session"
)

// FriendsCommand returns the friends subcommand group.
func FriendsCommand() *cli.Command {
	return &cli.Command{
		Name:  "friends",
		Usage: "Manage the local contact list",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a friend",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "public-key",
						Usage: "the friend's public messaging key",
					},
				},
				Action: friendsAdd,
			},
			{
				Name:   "list",
				Usage:  "List friends with their latest message",
				Action: friendsList,
			},
		},
	}
}

func friendsAdd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: tabchat friends add USERNAME")
	}

	application, err := getApp(c)
	if err != nil {
		return err
	}

	f, err := application.Friends.Add(c.Context, c.Args().First(), c.String("public-key"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "added %s\n", f.Username)
	return nil
}

func friendsList(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}

	friends, err := application.Friends.Refresh(c.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tADDED\tLAST MESSAGE")
	for _, f := range friends {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Username, f.AddedAt.Format(time.DateOnly), f.LastMessage)
	}
	return tw.Flush()
}

// MessagesCommand returns the messages subcommand group.
func MessagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "messages",
		Usage: "Read and write local messages",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Record a message to a friend",
				ArgsUsage: "PEER BODY",
				Action:    messagesSend,
			},
			{
				Name:      "show",
				Usage:     "Show the conversation with a friend",
				ArgsUsage: "PEER",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "maximum number of messages",
					},
				},
				Action: messagesShow,
			},
		},
	}
}

func messagesSend(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: tabchat messages send PEER BODY")
	}

	application, err := getApp(c)
	if err != nil {
		return err
	}

	profile := application.Session.GetCachedUser(c.Context)
	if profile == nil {
		return session.ErrNoSession
	}

	m, err := application.Messages.Send(c.Context, profile.Username, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "message %d stored (%s)\n", m.ID, m.ClientID)
	return nil
}

func messagesShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: tabchat messages show PEER")
	}

	application, err := getApp(c)
	if err != nil {
		return err
	}

	msgs, err := application.Messages.Conversation(c.Context, c.Args().First(), c.Int("limit"))
	if err != nil {
		return err
	}

	// Oldest first reads naturally in a terminal.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Fprintf(c.App.Writer, "[%s] %s: %s\n", m.SentAt.Local().Format(time.DateTime), m.From, m.Body)
	}
	return nil
}
