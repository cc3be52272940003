package cli

import (
	"context"
	"fmt"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/adapter"
	"github.com/romirm/advice-app/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		cfg          config
		limit        int64
		bqProject    string
		dataset      string
		table        string
		bucket       string
		objectPrefix string
		objectKey    string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of conversations to export (0 for all)",
			Sources:     cli.EnvVars("ADVICE_EXPORT_LIMIT"),
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "BigQuery project ID. Defaults to --project.",
			Sources:     cli.EnvVars("ADVICE_BIGQUERY_PROJECT"),
			Destination: &bqProject,
		},
		&cli.StringFlag{
			Name:        "dataset",
			Usage:       "BigQuery dataset to export into",
			Sources:     cli.EnvVars("ADVICE_BIGQUERY_DATASET"),
			Destination: &dataset,
		},
		&cli.StringFlag{
			Name:        "table",
			Usage:       "BigQuery table to export into",
			Value:       "conversations",
			Sources:     cli.EnvVars("ADVICE_BIGQUERY_TABLE"),
			Destination: &table,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for the JSON Lines archive",
			Sources:     cli.EnvVars("ADVICE_EXPORT_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "object-prefix",
			Usage:       "Prefix for archive objects in the bucket",
			Sources:     cli.EnvVars("ADVICE_EXPORT_PREFIX"),
			Destination: &objectPrefix,
		},
		&cli.StringFlag{
			Name:        "object-key",
			Usage:       "Archive object key. Generated from user and time when empty.",
			Destination: &objectKey,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export conversation history to BigQuery and/or Cloud Storage",
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

			in := history.ExportInput{
				UserID:    uid,
				Limit:     int(limit),
				Dataset:   dataset,
				Table:     table,
				ObjectKey: objectKey,
			}

			if dataset != "" {
				project := bqProject
				if project == "" {
					project = cfg.project
				}
				bq, err := adapter.NewBigQuery(ctx, project)
				if err != nil {
					return goerr.Wrap(err, "failed to create bigquery client")
				}
				in.BigQuery = bq
			}

			if bucket != "" {
				storage, err := adapter.NewStorage(ctx, bucket, adapter.WithObjectPrefix(objectPrefix))
				if err != nil {
					return goerr.Wrap(err, "failed to create storage client")
				}
				in.Storage = storage
			}

			result, err := history.Export(ctx, repo, in)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "Exported %d conversation(s)\n", result.Records)
			if result.Table != "" {
				fmt.Fprintf(w, "  BigQuery: %s\n", result.Table)
			}
			if result.ObjectKey != "" {
				fmt.Fprintf(w, "  Storage:  gs://%s/%s\n", bucket, path.Join(objectPrefix, result.ObjectKey))
			}
			return nil
		},
	}
}
