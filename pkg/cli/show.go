package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg      config
		recordID model.RecordID
		format   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Conversation ID to show",
			Sources:     cli.EnvVars("ADVICE_RECORD_ID"),
			Destination: (*string)(&recordID),
			Required:    true,
		},
		formatFlag(&format),
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show one past conversation",
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

			record, err := history.Get(ctx, repo, uid, recordID)
			if err != nil {
				return goerr.Wrap(err, "failed to show conversation")
			}

			w := c.Root().Writer
			if format == formatText {
				writeRecord(w, record)
				return nil
			}
			return writeValue(w, format, record)
		},
	}
}
