package internal

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"go.uber.org/dig"

	"templatesync/internal/config"
	"templatesync/internal/engine"
	gh "templatesync/internal/github"
	"templatesync/internal/gitops"
)

// RegisterProviders registers the sync run's object graph with the DIG container.
// ctx scopes the GitHub client; token is handed to the transports and never stored elsewhere.
func RegisterProviders(ctx context.Context, container *dig.Container, cfg *config.Config, token string) error {
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return err
	}
	if err := container.Provide(func() logger.FieldLogger { return logger.StandardLogger() }); err != nil {
		return err
	}

	// Infrastructure (GitHub API, git)
	if err := container.Provide(func(cfg *config.Config, log logger.FieldLogger) (*gh.Client, error) {
		return gh.NewClient(ctx, token,
			gh.WithVerbose(cfg.Runtime.Verbose, log),
			gh.WithAPIURL(cfg.GitHub.APIURL),
		)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, log logger.FieldLogger) *gitops.Client {
		return gitops.New(token, cfg.GitHub.WebURL,
			gitops.WithIdentity(gitops.Identity{Name: cfg.Sync.AuthorName, Email: cfg.Sync.AuthorEmail}),
			gitops.WithLogger(log),
		)
	}); err != nil {
		return err
	}

	// Engine
	if err := container.Provide(engine.NewSearchSource); err != nil {
		return err
	}
	if err := container.Provide(func(git *gitops.Client, client *gh.Client, cfg *config.Config, log logger.FieldLogger) *engine.Worker {
		return engine.NewWorker(git, client, engine.WorkerOptionsFromConfig(cfg), log)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(source *engine.SearchSource, worker *engine.Worker, log logger.FieldLogger) *engine.Engine {
		e := engine.NewEngine(source, worker)
		e.Log = log
		return e
	}); err != nil {
		return err
	}

	return nil
}

// BuildEngine assembles a ready-to-run Engine for cfg.
func BuildEngine(ctx context.Context, cfg *config.Config, token string) (*engine.Engine, error) {
	container := dig.New()
	if err := RegisterProviders(ctx, container, cfg, token); err != nil {
		return nil, err
	}

	var eng *engine.Engine
	if err := container.Invoke(func(e *engine.Engine) {
		eng = e
	}); err != nil {
		return nil, err
	}
	return eng, nil
}
