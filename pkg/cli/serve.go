package cli

import (
	"context"
	"time"

	"github.com/romirm/advice-app/pkg/server"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg        config
		addr       string
		sessionTTL time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("ADVICE_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Idle time after which a session is closed",
			Value:       30 * time.Minute,
			Sources:     cli.EnvVars("ADVICE_SESSION_TTL"),
			Destination: &sessionTTL,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP and WebSocket API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			factory, err := cfg.newControllerFactory(ctx, repo)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(ctx)
			defer stop()

			srv := server.New(factory, repo, server.WithSessionTTL(sessionTTL))
			return srv.Run(ctx, addr)
		},
	}
}
