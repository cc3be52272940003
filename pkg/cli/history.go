package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/adapter"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg          config
		limit        int64
		format       string
		archive      string
		bucket       string
		objectPrefix string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of conversations to list (0 for all)",
			Value:       0,
			Sources:     cli.EnvVars("ADVICE_HISTORY_LIMIT"),
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "archive",
			Usage:       "Read an exported JSON Lines archive from --bucket instead of the history store",
			Destination: &archive,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket holding the archive",
			Sources:     cli.EnvVars("ADVICE_EXPORT_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "object-prefix",
			Usage:       "Prefix for archive objects in the bucket",
			Sources:     cli.EnvVars("ADVICE_EXPORT_PREFIX"),
			Destination: &objectPrefix,
		},
		formatFlag(&format),
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "List past conversations, most recent first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			uid, err := cfg.user()
			if err != nil {
				return err
			}

			var records []*model.ConversationRecord
			if archive != "" {
				if bucket == "" {
					return goerr.New("--bucket is required with --archive")
				}
				storage, err := adapter.NewStorage(ctx, bucket, adapter.WithObjectPrefix(objectPrefix))
				if err != nil {
					return goerr.Wrap(err, "failed to create storage client")
				}
				records, err = history.ReadArchive(ctx, storage, uid, archive)
				if err != nil {
					return goerr.Wrap(err, "failed to read archive")
				}
				if limit > 0 && int(limit) < len(records) {
					records = records[:limit]
				}
			} else {
				repo, closeRepo, err := cfg.newRepository(ctx)
				if err != nil {
					return err
				}
				defer closeRepo()

				records, err = history.List(ctx, repo, uid, int(limit))
				if err != nil {
					return goerr.Wrap(err, "failed to list history")
				}
			}

			w := c.Root().Writer
			if format == formatText {
				writeRecordList(w, records)
				return nil
			}
			return writeValue(w, format, records)
		},
	}
}
