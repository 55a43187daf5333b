// Command softphone is a terminal SIP softphone.
//
// It provisions a user on the voice API, keeps the SIP registration alive
// across network changes and places and receives calls from an interactive
// prompt.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	softphone "github.com/ghettovoice/softphone"
	"github.com/ghettovoice/softphone/config"
	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/numfmt"
	"github.com/ghettovoice/softphone/provision"
	"github.com/ghettovoice/softphone/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	in  io.Reader
	out io.Writer

	cfg *config.Config
	log *slog.Logger
}

func newApp(in io.Reader, out io.Writer) *cli.Command {
	a := &app{in: in, out: out}
	return &cli.Command{
		Name:    "softphone",
		Usage:   "SIP softphone",
		Version: softphone.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				Sources: cli.EnvVars(config.EnvConfig),
			},
			&cli.StringFlag{
				Name:  "server-url",
				Usage: "voice API base URL",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "verbose development logging to stdout",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			{
				Name:      "provision",
				Usage:     "create a user on the voice API and save the session",
				ArgsUsage: "<user-name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Usage: "user password", Required: true},
				},
				Action: a.provision,
			},
			{
				Name:   "run",
				Usage:  "register and serve the interactive call prompt",
				Action: a.run,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tone-out", Usage: "file to write DTMF tone PCM to"},
				},
			},
			{
				Name:   "logout",
				Usage:  "forget the saved session",
				Action: a.logout,
			},
			{
				Name:      "format",
				Usage:     "format a phone number for display",
				ArgsUsage: "<number>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "e164", Usage: "print E.164 instead of display format"},
					&cli.StringFlag{Name: "region", Usage: "default region", Value: numfmt.DefaultRegion},
				},
				Action: a.format,
			},
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if v := cmd.String("server-url"); v != "" {
		cfg.ServerURL = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}

	logger, err := log.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return ctx, err
	}
	if cmd.Bool("dev") {
		logger = log.Dev
	}
	log.SetDefault(logger)

	a.cfg, a.log = cfg, logger
	return ctx, nil
}

func (a *app) sessions(ctx context.Context) (*session.Manager, func() error, error) {
	store, err := session.OpenSQLite(ctx, a.cfg.SessionDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	return session.NewManager(store, a.cfg.ServerURL, &session.ManagerOptions{Log: a.log}), store.Close, nil
}

func (a *app) provision(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return cli.Exit("user name is required", 2)
	}
	if a.cfg.ServerURL == "" {
		return cli.Exit("server URL is not configured", 2)
	}

	client, err := provision.NewClient(a.cfg.ServerURL, &provision.ClientOptions{Log: a.log})
	if err != nil {
		return err
	}
	u, err := client.CreateUser(ctx, name, cmd.String("password"))
	if err != nil {
		return err
	}

	mgr, closeStore, err := a.sessions(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if _, err := mgr.Set(ctx, u); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "provisioned %s, number %s\n", u.Username, numfmt.FormatE164(u.Number))
	return nil
}

func (a *app) logout(ctx context.Context, _ *cli.Command) error {
	mgr, closeStore, err := a.sessions(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return mgr.Clear(ctx)
}

func (a *app) format(_ context.Context, cmd *cli.Command) error {
	number := cmd.Args().First()
	if number == "" {
		return cli.Exit("number is required", 2)
	}
	if cmd.Bool("e164") {
		s, err := numfmt.ToE164(number, cmd.String("region"))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, s)
		return nil
	}
	fmt.Fprintln(a.out, numfmt.FormatE164(number))
	return nil
}
