package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frolic/frolicsim/internal/platform"
)

// GameLister fetches the currently active games.
type GameLister interface {
	ActiveGames(ctx context.Context) ([]platform.Game, error)
}

// EligibilityCache refreshes the active-games set at most once per interval.
// A failed refresh keeps the previous snapshot; with no snapshot at all the
// eligible set is empty.
type EligibilityCache struct {
	lister   GameLister
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	games     []platform.Game
	fetchedAt time.Time
}

func NewEligibilityCache(lister GameLister, interval time.Duration, logger *zap.Logger) *EligibilityCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityCache{
		lister:   lister,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Refresh fetches the active set now.
func (c *EligibilityCache) Refresh(ctx context.Context) error {
	games, err := c.lister.ActiveGames(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = c.now()
	if err != nil {
		return err
	}
	c.games = games
	return nil
}

func (c *EligibilityCache) Eligible(ctx context.Context, force bool) []platform.Game {
	c.mu.Lock()
	stale := force || c.now().Sub(c.fetchedAt) >= c.interval
	c.mu.Unlock()

	if stale {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("active games refresh failed, keeping previous set", zap.Error(err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.games
}
