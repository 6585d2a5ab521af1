package command

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/tabchat/internal/client/session"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
	"github.com/aussiebroadwan/tabchat/pkg/cryptox"
	"github.com/aussiebroadwan/tabchat/pkg/slogx"
)

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "username",
			Aliases:  []string{"u"},
			Usage:    "account username",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "password",
			Aliases:  []string{"p"},
			Usage:    "account password",
			EnvVars:  []string{"TABCHAT_PASSWORD"},
			Required: true,
		},
	}
}

// LoginCommand signs in and stores the session locally.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with a username and password",
		Flags: append(credentialFlags(),
			&cli.StringFlag{
				Name:  "otp",
				Usage: "one-time code when the account has MFA enabled",
			},
			&cli.StringFlag{
				Name:    "totp-secret",
				Usage:   "base32 TOTP secret to compute the one-time code from",
				EnvVars: []string{"TABCHAT_TOTP_SECRET"},
			},
		),
		Action: login,
	}
}

func login(c *cli.Context) error {
	application, err := getApp(c)
	if err != nil {
		return err
	}
	m := application.Session
	username := c.String("username")

	err = observe(c, m, func(ctx context.Context) error {
		_, err := m.Login(ctx, username, c.String("password"))
		return err
	})

	var challenge *authapi.MFARequiredError
	if !errors.As(err, &challenge) {
		return err
	}

	code := c.String("otp")
	if secret := c.String("totp-secret"); code == "" && secret != "" {
		if code, err = authapi.GenerateTOTP(secret, time.Now()); err != nil {
			return err
		}
	}
	if code == "" {
		return fmt.Errorf("account requires a one-time code: pass --otp or --totp-secret")
	}

	return observe(c, m, func(ctx context.Context) error {
		_, err := m.CompleteMFA(ctx, username, challenge, authapi.MFAMethodTOTP, code)
		return err
	})
}

// SignUpCommand creates an account and signs it in.
func SignUpCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and sign in",
		Flags: append(credentialFlags(),
			&cli.StringFlag{
				Name:  "fcm-token",
				Usage: "push notification token of this device",
			},
			&cli.StringFlag{
				Name:  "public-key",
				Usage: "public messaging key of this device",
			},
		),
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}
			m := application.Session

			return observe(c, m, func(ctx context.Context) error {
				_, err := m.Register(ctx, c.String("username"), c.String("password"), c.String("fcm-token"), c.String("public-key"))
				return err
			})
		},
	}
}

// RefreshCommand forces an access token refresh.
func RefreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh the access token of the signed in user",
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}
			m := application.Session

			profile, err := m.TryRefreshAccessToken(c.Context, m.GetCachedUser(c.Context))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "access token refreshed, expires %s\n", m.AccessTokenExpiry(profile).Format(time.RFC3339))
			return nil
		},
	}
}

// WhoAmICommand prints the stored profile without contacting the server.
func WhoAmICommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed in user",
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}
			m := application.Session

			profile := m.GetCachedUser(c.Context)
			if profile == nil {
				return session.ErrNoSession
			}

			w := c.App.Writer
			fmt.Fprintf(w, "username:     %s\n", profile.Username)
			fmt.Fprintf(w, "public key:   %s\n", profile.PublicKey)
			fmt.Fprintf(w, "token:        %s\n", cryptox.FingerprintToken(profile.Token.AccessToken))
			fmt.Fprintf(w, "issued:       %s\n", profile.Token.SetAt().Format(time.RFC3339))
			fmt.Fprintf(w, "expires:      %s\n", m.AccessTokenExpiry(profile).Format(time.RFC3339))
			return nil
		},
	}
}

// UpdateProfileCommand pushes the device fields to the server.
func UpdateProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "update-profile",
		Usage: "Send this device's public key and push token to the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "fcm-token",
				Usage: "push notification token of this device",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}
			m := application.Session

			return observe(c, m, func(ctx context.Context) error {
				return m.SyncProfile(ctx, c.String("fcm-token"))
			})
		},
	}
}

// LogoutCommand revokes the session and clears local credentials.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the stored credentials",
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}
			m := application.Session

			return observe(c, m, m.Logout)
		},
	}
}

// KeepAliveCommand refreshes the access token in the background until
// interrupted, optionally exposing metrics.
func KeepAliveCommand() *cli.Command {
	return &cli.Command{
		Name:  "keepalive",
		Usage: "Keep the access token fresh until interrupted",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Value: time.Minute,
				Usage: "how often to check the token",
			},
			&cli.DurationFlag{
				Name:  "skew",
				Value: 2 * time.Minute,
				Usage: "refresh when the token expires within this window",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := getApp(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slogx.FromContext(ctx)
			logger.Info("keepalive_started", "interval", c.Duration("interval"), "skew", c.Duration("skew"))
			defer logger.Info("keepalive_stopped")

			g, ctx := errgroup.WithContext(ctx)
			if addr := c.String("metrics-addr"); addr != "" {
				g.Go(func() error { return application.ServeMetrics(ctx, addr) })
			}
			g.Go(func() error {
				defer stop()
				return application.Session.KeepAlive(ctx, c.Duration("interval"), c.Duration("skew"))
			})
			return g.Wait()
		},
	}
}
