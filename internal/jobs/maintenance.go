package jobs

import (
	"context"
)

// Backfiller re-analyses pending complaints; *complaints.Service satisfies it.
type Backfiller interface {
	Backfill(ctx context.Context, batch int) (int, error)
}

// TokenPurger deletes expired API tokens; *auth.TokenManager satisfies it.
type TokenPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// Backfill returns a job analysing up to batch pending complaints per run.
func Backfill(spec string, batch int, b Backfiller) (Job, error) {
	return New("complaint-backfill", spec, func(ctx context.Context) error {
		_, err := b.Backfill(ctx, batch)
		return err
	})
}

// PurgeTokens returns a job deleting expired API tokens.
func PurgeTokens(spec string, p TokenPurger) (Job, error) {
	return New("token-purge", spec, func(ctx context.Context) error {
		_, err := p.Purge(ctx)
		return err
	})
}
