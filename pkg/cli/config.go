package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/adapter"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/persona"
	"github.com/romirm/advice-app/pkg/repository"
	"github.com/romirm/advice-app/pkg/usecase/advice"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	storeFirestore = "firestore"
	storeSQLite    = "sqlite"
	storeMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	store      string
	project    string
	database   string
	sqlitePath string
	maxRecords int64
	userID     string

	// Gemini
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Conversation
	hardCap       int64
	softCap       int64
	perspectives  int64
	personaPolicy string
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".advice", "history.db")
	}
	return filepath.Join(dir, "advice-app", "history.db")
}

// globalFlags returns logging and storage flags used by every command
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ADVICE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("ADVICE_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "History store (firestore, sqlite, memory)",
			Value:       storeSQLite,
			Sources:     cli.EnvVars("ADVICE_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Path of the SQLite history database",
			Value:       defaultSQLitePath(),
			Sources:     cli.EnvVars("ADVICE_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.IntFlag{
			Name:        "max-records",
			Usage:       "Conversations kept per user",
			Value:       repository.MaxRecordsPerUser,
			Sources:     cli.EnvVars("ADVICE_MAX_RECORDS"),
			Destination: &cfg.maxRecords,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID owning the conversations",
			Value:       "local",
			Sources:     cli.EnvVars("ADVICE_USER"),
			Destination: &cfg.userID,
		},
	}
}

// llmFlags returns flags for Gemini and conversation behaviour
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key. When empty, Vertex AI is used.",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.IntFlag{
			Name:        "hard-cap",
			Usage:       "Maximum clarifying answers before advice is generated",
			Value:       conversation.DefaultHardCap,
			Sources:     cli.EnvVars("ADVICE_HARD_CAP"),
			Destination: &cfg.hardCap,
		},
		&cli.IntFlag{
			Name:        "soft-cap",
			Usage:       "Clarifying answers after which advice is generated without another follow-up round",
			Value:       conversation.DefaultSoftCap,
			Sources:     cli.EnvVars("ADVICE_SOFT_CAP"),
			Destination: &cfg.softCap,
		},
		&cli.IntFlag{
			Name:        "perspectives",
			Usage:       "Number of perspectives to generate",
			Value:       advice.DefaultPerspectiveCount,
			Sources:     cli.EnvVars("ADVICE_PERSPECTIVES"),
			Destination: &cfg.perspectives,
		},
		&cli.StringFlag{
			Name:        "persona-policy",
			Usage:       "Directory of Rego policies mapping perspectives to traits",
			Sources:     cli.EnvVars("ADVICE_PERSONA_POLICY"),
			Destination: &cfg.personaPolicy,
		},
	}
}

// setupLogger installs the configured logger as default and into ctx. Logs go
// to stderr so that stdout stays usable for command output.
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	level, levelErr := logging.ParseLevel(cfg.logLevel)
	format, formatErr := logging.ParseFormat(cfg.logFormat)
	logger := logging.New(
		logging.WithLevel(level),
		logging.WithFormat(format),
		logging.WithWriter(os.Stderr),
	)
	for _, err := range []error{levelErr, formatErr} {
		if err != nil {
			logger.Warn("ignoring log setting", "error", err)
		}
	}
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

func (cfg *config) user() (model.UserID, error) {
	if cfg.userID == "" {
		return "", goerr.New("user is required")
	}
	return model.UserID(cfg.userID), nil
}

// newRepository creates the configured history store. The returned function
// releases it.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	opts := []repository.Option{
		repository.WithMaxRecordsPerUser(int(cfg.maxRecords)),
	}
	logger := logging.From(ctx)

	switch cfg.store {
	case storeFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required for firestore store")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database, opts...)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("failed to close firestore", "error", err)
			}
		}, nil

	case storeSQLite:
		repo, err := repository.NewSQLite(ctx, cfg.sqlitePath, opts...)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("failed to close sqlite", "error", err)
			}
		}, nil

	case storeMemory:
		return repository.NewMemory(opts...), func() {}, nil

	default:
		return nil, nil, goerr.New("unknown store",
			goerr.V("store", cfg.store),
			goerr.V("supported", []string{storeFirestore, storeSQLite, storeMemory}))
	}
}

func (cfg *config) policy() (conversation.Policy, error) {
	p := conversation.Policy{HardCap: int(cfg.hardCap), SoftCap: int(cfg.softCap)}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	gemini, err := adapter.NewGemini(ctx, adapter.GeminiConfig{
		APIKey:   cfg.geminiAPIKey,
		Project:  cfg.geminiProject,
		Location: cfg.geminiLocation,
	}, adapter.WithGenerativeModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

func (cfg *config) newGateway(ctx context.Context) (*advice.Gateway, error) {
	p, err := cfg.policy()
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}
	return advice.New(gemini,
		advice.WithHardCap(p.HardCap),
		advice.WithPerspectiveCount(int(cfg.perspectives)),
	), nil
}

// newControllerFactory wires everything a conversation needs. Each call of the
// returned function starts an independent conversation for one user.
func (cfg *config) newControllerFactory(ctx context.Context, repo repository.Repository) (func(model.UserID) *conversation.Controller, error) {
	p, err := cfg.policy()
	if err != nil {
		return nil, err
	}
	gateway, err := cfg.newGateway(ctx)
	if err != nil {
		return nil, err
	}
	decorator, err := persona.New(ctx, cfg.personaPolicy)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load persona policy")
	}

	return func(uid model.UserID) *conversation.Controller {
		return conversation.New(gateway,
			conversation.WithRepository(repo),
			conversation.WithDecorator(decorator),
			conversation.WithPolicy(p),
			conversation.WithUserID(uid),
		)
	}, nil
}
