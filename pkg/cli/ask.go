package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Start an interactive advice session",
		ArgsUsage: "[question]",
		Flags:     flags,
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

			factory, err := cfg.newControllerFactory(ctx, repo)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "/quit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize console")
			}
			defer rl.Close()

			con := newConsole(factory(uid), repo, rl.Stdout())
			con.wait = spinnerWait(os.Stderr)

			if q := strings.Join(c.Args().Slice(), " "); q != "" {
				if !con.handle(ctx, q) {
					return nil
				}
			} else {
				con.greet(ctx)
			}

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				if !con.handle(ctx, line) {
					return nil
				}
			}
		},
	}
}
