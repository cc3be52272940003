package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/romirm/advice-app/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the advice tools over MCP on stdin/stdout",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			uid, err := cfg.user()
			if err != nil {
				return err
			}

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			gateway, err := cfg.newGateway(ctx)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(ctx)
			defer stop()

			return mcp.New(gateway,
				mcp.WithRepository(repo),
				mcp.WithUserID(uid),
			).Run(ctx)
		},
	}
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
