package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"issueline/internal/config"
	"issueline/internal/engine"
)

// Overrides carries flag and environment values that win over the config
// file. Empty fields leave the file value in place.
type Overrides struct {
	Actor    string
	LogLevel string
	// Logger replaces the configured logger entirely.
	Logger *slog.Logger
}

// Context is an opened workspace shared by the CLI and the server.
type Context struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	Engine    *engine.Engine

	logCloser io.Closer
}

// ResolveConfig loads issueline.yml from the workspace, falling back to
// defaults when the file does not exist, and applies overrides.
func ResolveConfig(workspace string, ov Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if ov.Actor != "" {
		cfg.Store.Actor = ov.Actor
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(workspace, cfg.Log.File)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenEngine resolves the config, builds the logger and opens the store.
func OpenEngine(ctx context.Context, workspace string, ov Overrides) (*Context, error) {
	if workspace == "" {
		workspace = "."
	}
	cfg, err := ResolveConfig(workspace, ov)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closer := ov.Logger, io.Closer(nil)
	if logger == nil {
		logger, closer = cfg.Log.NewLogger()
	}
	e, err := engine.Open(ctx, engine.Options{
		StoreDir: cfg.StoreDir(workspace),
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		Logger:    logger,
		Engine:    e,
		logCloser: closer,
	}, nil
}

// Close shuts the engine down and flushes the log file.
func (c *Context) Close() error {
	err := c.Engine.Close()
	if c.logCloser != nil {
		err = errors.Join(err, c.logCloser.Close())
	}
	return err
}
