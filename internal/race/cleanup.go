// internal/race/cleanup.go
package race

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
)

// Age thresholds for the periodic sweep, a backstop against timer-based
// cleanup missed across process restarts.
const (
	finishedSweepAge     = time.Hour
	emptyWaitingSweepAge = 5 * time.Minute
)

// CleanupScheduler reclaims abandoned race records. Pending deletions are
// cancellable timers keyed by race id, so "is a cleanup already pending for
// this race" is a queryable fact: at most one timer exists per race.
type CleanupScheduler struct {
	store racestore.Store
	log   *logrus.Logger
	cfg   *config.Config

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCleanupScheduler(store racestore.Store, cfg *config.Config, log *logrus.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		store:  store,
		log:    log,
		cfg:    cfg,
		timers: make(map[string]*time.Timer),
	}
}

// ScheduleEmptyCheck arms a delayed deletion for a race that just reached
// zero players. When the timer fires the race is deleted only if it is still
// empty and still waiting; a player joining in the meantime makes the firing
// a no-op. Repeat zero-player events while a timer is pending do nothing.
func (c *CleanupScheduler) ScheduleEmptyCheck(raceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, pending := c.timers[raceID]; pending {
		return
	}
	c.log.Infof("race %s is empty, scheduling cleanup in %s", raceID, c.cfg.EmptyRaceCleanupDelay)
	c.timers[raceID] = time.AfterFunc(c.cfg.EmptyRaceCleanupDelay, func() {
		c.clearTimer(raceID)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		race, err := c.store.FindByID(ctx, raceID)
		if err != nil {
			c.log.Warnf("empty-race cleanup fetch for %s: %v", raceID, err)
			return
		}
		switch {
		case race == nil:
			// already gone
		case len(race.Players) == 0 && race.Status == models.StatusWaiting:
			if err := c.store.DeleteRace(ctx, raceID); err != nil {
				c.log.Warnf("empty-race cleanup delete for %s: %v", raceID, err)
				return
			}
			c.log.Infof("deleted empty race %s", raceID)
		default:
			c.log.Infof("race %s no longer empty and waiting (%d players, %s), keeping it", raceID, len(race.Players), race.Status)
		}
	})
}

// ScheduleFinishedDeletion arms an unconditional deletion after the
// finished-race grace window. It supersedes any pending empty-check timer.
func (c *CleanupScheduler) ScheduleFinishedDeletion(raceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, pending := c.timers[raceID]; pending {
		t.Stop()
	}
	c.timers[raceID] = time.AfterFunc(c.cfg.FinishedRaceCleanupDelay, func() {
		c.clearTimer(raceID)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.store.DeleteRace(ctx, raceID); err != nil {
			c.log.Warnf("finished-race cleanup delete for %s: %v", raceID, err)
			return
		}
		c.log.Infof("deleted finished race %s", raceID)
	})
}

func (c *CleanupScheduler) clearTimer(raceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, raceID)
}

// Pending reports whether a cleanup timer is armed for the race.
func (c *CleanupScheduler) Pending(raceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[raceID]
	return ok
}

// Sweep deletes finished races older than an hour and empty waiting races
// older than five minutes.
func (c *CleanupScheduler) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	if n, err := c.store.DeleteFinishedBefore(ctx, now.Add(-finishedSweepAge)); err != nil {
		c.log.Warnf("sweep finished races: %v", err)
	} else if n > 0 {
		c.log.Infof("swept %d old finished races", n)
	}
	if n, err := c.store.DeleteEmptyWaitingBefore(ctx, now.Add(-emptyWaitingSweepAge)); err != nil {
		c.log.Warnf("sweep empty races: %v", err)
	} else if n > 0 {
		c.log.Infof("swept %d old empty waiting races", n)
	}
}

// Run sweeps once immediately, then on every interval tick until the context
// is cancelled.
func (c *CleanupScheduler) Run(ctx context.Context) {
	c.Sweep(ctx)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Stop cancels every pending deletion timer.
func (c *CleanupScheduler) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
