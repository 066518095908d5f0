package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type SeedCmd struct{}

func (s *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, a, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Roles.SeedDefaultRolesAndPermissions(ctx); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	zerolog.Ctx(ctx).Info().Msg("roles and permissions seeded")
	return nil
}
