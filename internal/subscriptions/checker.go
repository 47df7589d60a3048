package subscriptions

import (
	"context"
	"log/slog"
	"time"

	"github.com/fetcharr/fetcharr/internal/sites"
)

// DefaultCheckInterval is how often subscriptions are re-checked.
const DefaultCheckInterval = 30 * time.Minute

// Catalog dispatches a series URL to its site adapter.
type Catalog interface {
	ForURL(rawURL string) (sites.Adapter, error)
}

// Checker periodically walks subscriptions and records new episodes.
type Checker struct {
	store    *Store
	catalog  Catalog
	interval time.Duration
	log      *slog.Logger

	// AutoDownload, when set, is invoked once per newly found episode
	// after its notification is recorded. Errors are the hook's to
	// report; the sweep continues regardless.
	AutoDownload func(ctx context.Context, sub *Subscription, season int, ref sites.EpisodeRef)
}

// NewChecker creates a checker. interval <= 0 uses the default.
func NewChecker(store *Store, catalog Catalog, interval time.Duration, log *slog.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Checker{store: store, catalog: catalog, interval: interval, log: log}
}

// Run checks on an interval until ctx is cancelled. The first pass runs
// immediately.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.CheckAll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CheckAll runs one pass over every subscription. Site failures are
// logged per subscription and never abort the sweep.
func (c *Checker) CheckAll(ctx context.Context) {
	subs, err := c.store.List()
	if err != nil {
		c.log.Error("subscription sweep failed", "error", err)
		return
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if err := c.check(ctx, sub); err != nil {
			c.log.Warn("subscription check failed", "title", sub.Title, "error", err)
		}
	}
}

func (c *Checker) check(ctx context.Context, sub *Subscription) error {
	adapter, err := c.catalog.ForURL(sub.URL)
	if err != nil {
		return err
	}
	listing, err := adapter.ListEpisodes(ctx, sub.URL)
	if err != nil {
		return err
	}
	seen, err := c.store.SeenEpisodes(sub.ID)
	if err != nil {
		return err
	}

	// The first sweep of a fresh subscription only seeds the seen set,
	// otherwise every back-catalog episode would fire a notification.
	seedOnly := sub.LastCheckedAt == nil

	newEpisodes := 0
	for season, refs := range listing.Episodes {
		for _, ref := range refs {
			if seen[[2]int{season, ref.Episode}] {
				continue
			}
			if seedOnly {
				if err := c.store.MarkSeen(sub.ID, season, ref.Episode); err != nil {
					return err
				}
				continue
			}
			if err := c.store.Notify(sub.ID, sub.Title, season, ref.Episode); err != nil {
				return err
			}
			if c.AutoDownload != nil {
				c.AutoDownload(ctx, sub, season, ref)
			}
			newEpisodes++
		}
	}

	if newEpisodes > 0 {
		c.log.Info("new episodes found", "title", sub.Title, "count", newEpisodes)
	}
	return c.store.MarkChecked(sub.ID, time.Now())
}
