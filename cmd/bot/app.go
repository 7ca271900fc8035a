package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/summarybot/internal/collector"
	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
	"github.com/edgard/summarybot/internal/discord"
	"github.com/edgard/summarybot/internal/llm"
	"github.com/edgard/summarybot/internal/logger"
	"github.com/edgard/summarybot/internal/pipeline"
	"github.com/edgard/summarybot/internal/publisher"
	"github.com/edgard/summarybot/internal/summarizer"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *sqlx.DB
	store   database.Store
	discord *discord.Client
}

// newApp loads configuration, sets up logging and opens the database and the
// Discord session.
func newApp() (*app, error) {
	var opts []config.Option
	if devMode {
		opts = append(opts, config.WithMode(config.ModeDevelopment))
	}
	cfg, err := config.Load(configPath, opts...)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	logger.RouteDiscordLogs(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "mode", cfg.Mode)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	dc, err := discord.New(cfg, log)
	if err != nil {
		database.CloseDB(db)
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   database.NewStore(db, log),
		discord: dc,
	}, nil
}

func (a *app) Close() {
	database.CloseDB(a.db)
}

// newRunner builds the summary pipeline.
func (a *app) newRunner(ctx context.Context) (*pipeline.Runner, error) {
	client, err := llm.New(ctx, a.cfg.LLM, a.cfg.Pipeline.CallTimeout, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", a.cfg.LLM.Provider, err)
	}

	var source collector.Source
	if a.cfg.Pipeline.LiveFetch {
		source = a.discord
	}

	coll := collector.New(a.store, source, a.cfg.Pipeline.CallTimeout, a.log)
	summ := summarizer.New(client, summarizer.OptionsFromConfig(a.cfg, a.log), a.log)
	pub := publisher.New(a.discord, a.store, publisher.OptionsFromConfig(a.cfg), a.log)

	return pipeline.NewRunner(a.cfg, a.store, coll, summ, pub, a.discord, a.log), nil
}
