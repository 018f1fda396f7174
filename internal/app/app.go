// Package app wires the services together into one container shared by
// the CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/generation"
	"github.com/evalscribe/evalscribe/internal/llm/models"
	"github.com/evalscribe/evalscribe/internal/llm/provider"
	"github.com/evalscribe/evalscribe/internal/logging"
	"github.com/evalscribe/evalscribe/internal/session"
)

type App struct {
	Logs      logging.Service
	Sessions  session.Service
	Curricula *curriculum.Registry
	Provider  provider.Provider

	Orchestrator *generation.Orchestrator
}

func New(ctx context.Context, conn *sql.DB) (*App, error) {
	if err := logging.InitService(conn); err != nil {
		slog.Error("Failed to initialize logging service", "error", err)
		return nil, err
	}
	if err := session.InitService(conn); err != nil {
		slog.Error("Failed to initialize session service", "error", err)
		return nil, err
	}

	cfg := config.Get()

	curricula := curriculum.NewRegistry()
	curriculaDir := cfg.Curricula.Directory
	if !filepath.IsAbs(curriculaDir) {
		curriculaDir = filepath.Join(cfg.WorkingDir, curriculaDir)
	}
	if err := curricula.LoadDir(curriculaDir); err != nil {
		slog.Warn("No curricula loaded", "dir", curriculaDir, "error", err)
	}

	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Logs:      logging.GetService(),
		Sessions:  session.GetService(),
		Curricula: curricula,
		Provider:  p,
	}
	app.Orchestrator = generation.New(p, app.Sessions, cfg)
	return app, nil
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	model, ok := models.SupportedModels[models.ModelID(cfg.Provider.Model)]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", cfg.Provider.Model)
	}

	return provider.NewProvider(
		models.ModelProvider(cfg.Provider.Name),
		provider.WithAPIKey(cfg.Provider.APIKey),
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithModel(model),
		provider.WithMaxTokens(cfg.Provider.MaxTokens),
		provider.WithSystemMessage(generation.SystemMessage),
	)
}

// Shutdown performs a clean shutdown of the application.
func (app *App) Shutdown() {
	slog.Info("Application shutting down")
}
