// Package command defines the tabchat command line interface on top of
// urfave/cli/v2. Every command builds a fresh app.Application from the
// environment and global flags and closes it when done.
package command

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/aussiebroadwan/tabchat/internal/client/app"
	"github.com/aussiebroadwan/tabchat/internal/client/session"
	"github.com/aussiebroadwan/tabchat/pkg/idx"
	"github.com/aussiebroadwan/tabchat/pkg/slogx"
)

const appKey = "application"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "tabchat",
		Usage:   "tabchat client: sign in, keep the session alive and chat from a terminal",
		Version: app.BuildVersion,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			SignUpCommand(),
			RefreshCommand(),
			WhoAmICommand(),
			UpdateProfileCommand(),
			LogoutCommand(),
			KeepAliveCommand(),
			FriendsCommand(),
			MessagesCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "api-url",
			Usage: "auth service base URL (overrides TABCHAT_API_URL)",
		},
		&cli.StringFlag{
			Name:  "database",
			Usage: "local database file (overrides TABCHAT_DATABASE_FILE)",
		},
		&cli.StringFlag{
			Name:  "master-key-path",
			Usage: "file holding the local encryption key (overrides TABCHAT_MASTER_KEY_PATH)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error (overrides LOG_LEVEL)",
		},
	}
}

// setup loads the configuration, applies flag overrides and wires the
// application. Help and version output skip it.
func setup(c *cli.Context) error {
	if c.Args().Len() == 0 || c.Args().First() == "help" {
		return nil
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if c.IsSet("api-url") {
		cfg.APIURL = c.String("api-url")
	}
	if c.IsSet("database") {
		cfg.DatabaseFile = c.String("database")
	}
	if c.IsSet("master-key-path") {
		cfg.MasterKeyPath = c.String("master-key-path")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	cfg.LogOutput = c.App.ErrWriter
	if err := cfg.Validate(); err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[appKey] = application
	c.Context = slogx.WithContext(c.Context, application.Logger())
	return nil
}

func teardown(c *cli.Context) error {
	if application, ok := c.App.Metadata[appKey].(*app.Application); ok {
		delete(c.App.Metadata, appKey)
		return application.Close()
	}
	return nil
}

// getApp retrieves the application wired by setup.
func getApp(c *cli.Context) (*app.Application, error) {
	if application, ok := c.App.Metadata[appKey].(*app.Application); ok {
		return application, nil
	}
	return nil, fmt.Errorf("application not initialized")
}

// observe runs op while subscribed to the session state and reports the
// Success or Error event it ends in. The error from op is returned.
func observe(c *cli.Context, m *session.Manager, op func(ctx context.Context) error) error {
	sub := m.Subscribe()
	defer sub.Close()

	opErr := op(c.Context)

	state := m.State()
	for {
		select {
		case s, ok := <-sub.C():
			if ok {
				state = s
				continue
			}
		default:
		}
		break
	}

	report(c.App.Writer, sub.ID(), state)
	return opErr
}

func report(w io.Writer, consumer idx.ID, state session.AuthState) {
	switch state.Phase {
	case session.PhaseSuccess:
		if p, ok := state.Success().Take(consumer); ok && p != nil {
			fmt.Fprintf(w, "signed in as %s\n", p.Username)
		}
	case session.PhaseError:
		if f, ok := state.Error().Take(consumer); ok {
			fmt.Fprintf(w, "%s failed: %s\n", f.Step, f.Message)
		}
	case session.PhaseIdle:
		fmt.Fprintln(w, "signed out")
	}
}
