package arr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Oracle answers whether any configured instance imported a path.
type Oracle struct {
	clients []*Client
	cache   PageCache
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

func NewOracle(clients []*Client, cache PageCache, ttl time.Duration, logger *slog.Logger) *Oracle {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{clients: clients, cache: cache, ttl: ttl, logger: logger}
}

// VerifyAuth checks every instance and returns all failures joined.
func (o *Oracle) VerifyAuth(ctx context.Context) error {
	var errs []error
	for _, c := range o.clients {
		if err := c.VerifyAuth(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		o.logger.Info("arr: verified", slog.String("instance", c.Name()))
	}
	return errors.Join(errs...)
}

func (o *Oracle) IsImported(ctx context.Context, path string) (bool, error) {
	if len(o.clients) == 0 {
		return false, nil
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A failing instance must not cancel the others; a hit does.
	var found atomic.Bool
	var g errgroup.Group
	for _, c := range o.clients {
		g.Go(func() error {
			ok, err := o.searchInstance(searchCtx, c, path)
			if ok {
				found.Store(true)
				cancel()
			}
			return err
		})
	}
	err := g.Wait()
	if found.Load() {
		return true, nil
	}
	return false, err
}

// searchInstance walks history pages until path is found or the history
// is exhausted.
func (o *Oracle) searchInstance(ctx context.Context, c *Client, path string) (bool, error) {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		hp, err := o.page(ctx, c, page)
		if err != nil {
			return false, err
		}
		for _, rec := range hp.Records {
			if dropped, ok := rec.DroppedPath(); ok && dropped == path {
				o.logger.Debug("arr: import found",
					slog.String("instance", c.Name()),
					slog.String("path", path),
				)
				return true, nil
			}
		}
		if hp.Last() {
			return false, nil
		}
	}
}

func (o *Oracle) page(ctx context.Context, c *Client, page int) (HistoryPage, error) {
	key := fmt.Sprintf("%s:%d", c.Name(), page)
	if o.ttl > 0 {
		if hp, ok, err := o.cache.Get(ctx, key); err == nil && ok {
			return hp, nil
		} else if err != nil {
			o.logger.Warn("arr: cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	// Shared fetches are detached from the first caller's cancellation.
	v, err, _ := o.group.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		hp, err := c.History(fetchCtx, page)
		if err != nil {
			return HistoryPage{}, err
		}
		if o.ttl > 0 {
			if err := o.cache.Set(fetchCtx, key, hp, o.ttl); err != nil {
				o.logger.Warn("arr: cache write failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
		return hp, nil
	})
	if err != nil {
		return HistoryPage{}, err
	}
	return v.(HistoryPage), nil
}
