package commands

import (
	"context"
	"fmt"

	"erpcore/internal/app"
	"erpcore/internal/backup"
	"erpcore/internal/config"
	"erpcore/internal/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Globals are the flags shared by every command.
type Globals struct {
	Debug   bool
	EnvFile string
}

func (g *Globals) open(ctx context.Context) (context.Context, *app.App, error) {
	cfg, err := config.Load(g.EnvFile)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Setup(g.Debug)
	ctx = log.WithContext(ctx)

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, a, nil
}

func parseTenant(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant %q: %w", s, err)
	}
	return id, nil
}

// progress logs backup and restore events.
type progress struct {
	logger *zerolog.Logger
}

func (p progress) Notify(tenantID uuid.UUID, ev backup.Event) {
	evt := p.logger.Info()
	if ev.Stage == "failed" {
		evt = p.logger.Error().Str("error", ev.Error)
	}
	evt.Str("tenant", tenantID.String()).
		Str("operation", ev.Operation).
		Str("stage", ev.Stage).
		Str("table", ev.Table).
		Int("rows", ev.Rows).
		Msg("progress")
}
