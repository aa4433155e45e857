package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/personagen/pkg/logger"
	"github.com/dotsetgreg/personagen/pkg/store"
)

// RefreshAll re-synthesizes every identity that has a retained account
// bundle, bounded by the configured concurrency. Identities without a
// bundle are skipped. It returns the number of personas refreshed.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	identities, err := s.store.Identities(ctx)
	if err != nil {
		return 0, err
	}

	var (
		g     errgroup.Group
		mu    sync.Mutex
		count int
	)
	g.SetLimit(s.refreshConcurrency)
	for _, identity := range identities {
		identity := identity
		g.Go(func() error {
			if _, err := s.Refresh(ctx, identity); err != nil {
				// A failed identity never aborts the sweep. Identities
				// without a retained bundle are expected and not worth
				// logging.
				if !errors.Is(err, store.ErrNotFound) {
					logger.WarnCF("service", "refresh failed", map[string]interface{}{
						"identity": identity.Key(),
						"error":    err.Error(),
					})
				}
				return nil
			}
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return count, nil
}

// runRefreshWorker wakes once a minute and runs a sweep when the cron
// schedule is due.
func (s *Service) runRefreshWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			due, err := s.cron.IsDue(s.refreshSchedule, now)
			if err != nil {
				logger.WarnCF("service", "refresh schedule check failed", map[string]interface{}{
					"schedule": s.refreshSchedule,
					"error":    err.Error(),
				})
				continue
			}
			if !due {
				continue
			}
			count, err := s.RefreshAll(context.Background())
			if err != nil {
				logger.ErrorCF("service", "scheduled refresh failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			logger.InfoCF("service", "scheduled refresh completed", map[string]interface{}{
				"refreshed": count,
			})
		}
	}
}
