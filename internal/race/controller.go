// internal/race/controller.go
package race

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
)

// PlayerProfile is the join payload a connection presents: chosen display
// name, guest flag, and the account reference for authenticated players.
type PlayerProfile struct {
	Username  string
	IsGuest   bool
	AccountID string
}

// Controller owns the per-race state machine. It drives waiting -> countdown
// -> active -> finished, always acting on the race record returned by the
// store rather than any in-memory snapshot.
type Controller struct {
	store      racestore.Store
	registry   *Registry
	gateway    *Gateway
	matchmaker *Matchmaker
	cleanup    *CleanupScheduler
	cfg        *config.Config
	log        *logrus.Logger

	// TickInterval is the countdown tick period. One second in production;
	// tests shorten it.
	TickInterval time.Duration

	// OnRaceFinished, when set, receives the final results of every race for
	// external persistence. Invoked on its own goroutine; failures there
	// never reach players.
	OnRaceFinished func(models.RaceResult)

	mu         sync.Mutex
	countdowns map[string]context.CancelFunc
}

func NewController(store racestore.Store, registry *Registry, gateway *Gateway, matchmaker *Matchmaker, cleanup *CleanupScheduler, cfg *config.Config, log *logrus.Logger) *Controller {
	return &Controller{
		store:        store,
		registry:     registry,
		gateway:      gateway,
		matchmaker:   matchmaker,
		cleanup:      cleanup,
		cfg:          cfg,
		log:          log,
		TickInterval: time.Second,
		countdowns:   make(map[string]context.CancelFunc),
	}
}

// JoinAny puts the connection into any joinable public race, creating one if
// needed. A connection already registered to a race is a no-op: clients
// retry join requests and must not end up in two rooms.
func (c *Controller) JoinAny(ctx context.Context, sub *Subscriber, profile PlayerProfile) error {
	if entry, ok := c.registry.Lookup(sub.ConnID); ok {
		c.log.Debugf("connection %s already in race %s, ignoring join", sub.ConnID, entry.RaceID)
		return nil
	}
	race, err := c.matchmaker.JoinAny(ctx, newPlayer(sub.ConnID, profile))
	if err != nil {
		return err
	}
	c.completeJoin(ctx, race, sub, profile)
	return nil
}

// JoinByID puts the connection into a specific race. Store precondition
// errors pass through so the boundary can tell the player exactly why the
// join failed.
func (c *Controller) JoinByID(ctx context.Context, sub *Subscriber, raceID string, profile PlayerProfile) error {
	if entry, ok := c.registry.Lookup(sub.ConnID); ok {
		c.log.Debugf("connection %s already in race %s, ignoring join", sub.ConnID, entry.RaceID)
		return nil
	}
	race, err := c.matchmaker.JoinByID(ctx, raceID, newPlayer(sub.ConnID, profile))
	if err != nil {
		return err
	}
	c.completeJoin(ctx, race, sub, profile)
	return nil
}

func newPlayer(connID string, profile PlayerProfile) models.Player {
	return models.Player{
		ConnID:    connID,
		AccountID: profile.AccountID,
		Username:  profile.Username,
		IsGuest:   profile.IsGuest,
		Accuracy:  100,
	}
}

func (c *Controller) completeJoin(ctx context.Context, race *models.Race, sub *Subscriber, profile PlayerProfile) {
	c.registry.Register(sub.ConnID, race.RaceID, profile.Username)
	c.gateway.Subscribe(race.RaceID, sub)

	// Snapshot for the joiner, delta for everybody else.
	sub.OutChan <- RaceSnapshotEvent(race)
	joined := race.PlayerByConnID(sub.ConnID)
	c.gateway.BroadcastExcept(race.RaceID, sub.ConnID, PlayerJoinedEvent(*joined, len(race.Players)))

	c.log.Infof("player %s joined race %s (%d/%d)", profile.Username, race.RaceID, len(race.Players), race.MaxPlayers)
	c.maybeStartCountdown(ctx, race)
}

// maybeStartCountdown moves waiting -> countdown once the player count
// crosses the start threshold. Losing the CAS to a concurrent joiner means
// someone else started the countdown; that is not an error.
func (c *Controller) maybeStartCountdown(ctx context.Context, race *models.Race) {
	if race.Status != models.StatusWaiting || len(race.Players) < c.cfg.MinPlayersToStart {
		return
	}
	updated, err := c.store.TransitionStatus(ctx, race.RaceID, models.StatusWaiting, models.StatusCountdown)
	if errors.Is(err, racestore.ErrInvalidTransition) || errors.Is(err, racestore.ErrRaceNotFound) {
		c.log.Debugf("countdown for race %s already claimed elsewhere: %v", race.RaceID, err)
		return
	}
	if err != nil {
		c.log.Warnf("failed to start countdown for race %s: %v", race.RaceID, err)
		return
	}

	c.log.Infof("race %s entered countdown (%ds)", updated.RaceID, c.cfg.CountdownSeconds)
	c.gateway.Broadcast(updated.RaceID, CountdownStartedEvent(c.cfg.CountdownSeconds))
	c.startCountdown(updated.RaceID)
}

// startCountdown runs the per-race countdown goroutine: a tick broadcast
// every interval, then the authoritative countdown -> active transition. The
// expiry path re-fetches the race record; if the race was deleted, emptied,
// or moved on during the window, the start is abandoned without error.
func (c *Controller) startCountdown(raceID string) {
	c.mu.Lock()
	if _, running := c.countdowns[raceID]; running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.countdowns[raceID] = cancel
	c.mu.Unlock()

	go func() {
		defer c.clearCountdown(raceID)

		ticker := time.NewTicker(c.TickInterval)
		defer ticker.Stop()

		for timeLeft := c.cfg.CountdownSeconds; timeLeft > 0; {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				timeLeft--
				c.gateway.Broadcast(raceID, CountdownTickEvent(timeLeft))
			}
		}

		opCtx, opCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer opCancel()

		fresh, err := c.store.FindByID(opCtx, raceID)
		if err != nil {
			c.log.Warnf("countdown expiry fetch for race %s: %v", raceID, err)
			return
		}
		if fresh == nil {
			c.log.Infof("race %s deleted during countdown, start abandoned", raceID)
			return
		}
		if len(fresh.Players) == 0 {
			// Emptied mid-countdown. The race can neither start nor legally
			// return to waiting, so reclaim it now.
			c.log.Infof("race %s emptied during countdown, deleting", raceID)
			if err := c.store.DeleteRace(opCtx, raceID); err != nil {
				c.log.Warnf("deleting emptied race %s: %v", raceID, err)
			}
			return
		}
		if fresh.Status != models.StatusCountdown {
			c.log.Infof("race %s is %s at countdown expiry, start abandoned", raceID, fresh.Status)
			return
		}

		started, err := c.store.TransitionStatus(opCtx, raceID, models.StatusCountdown, models.StatusActive)
		if errors.Is(err, racestore.ErrInvalidTransition) || errors.Is(err, racestore.ErrRaceNotFound) {
			c.log.Infof("race %s start lost to a concurrent transition: %v", raceID, err)
			return
		}
		if err != nil {
			c.log.Warnf("failed to start race %s: %v", raceID, err)
			c.gateway.Broadcast(raceID, RaceErrorEvent("Failed to start race. Please try again."))
			return
		}
		c.log.Infof("race %s started", raceID)
		c.gateway.Broadcast(raceID, RaceStartedEvent(started.StartTime))
	}()
}

func (c *Controller) clearCountdown(raceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.countdowns[raceID]; ok {
		cancel()
		delete(c.countdowns, raceID)
	}
}

// SubmitProgress applies one progress report from a connection. Reports from
// connections not in a race, or against races that are not active, are
// silently dropped: progress is fire-and-forget.
func (c *Controller) SubmitProgress(ctx context.Context, connID string, upd racestore.ProgressUpdate) error {
	entry, ok := c.registry.Lookup(connID)
	if !ok {
		return nil
	}
	race, err := c.store.FindByID(ctx, entry.RaceID)
	if err != nil {
		return err
	}
	if race == nil || race.Status != models.StatusActive {
		return nil
	}

	updated, finishedNow, err := c.store.UpdateProgress(ctx, entry.RaceID, connID, upd)
	if err != nil {
		return err
	}

	c.gateway.Broadcast(entry.RaceID, ProgressUpdateEvent(connID, entry.Username, upd))
	if finishedNow {
		c.finishRace(updated)
	}
	return nil
}

// finishRace runs exactly once per race: the progress update that committed
// the finished transition reports finishedNow and lands here.
func (c *Controller) finishRace(race *models.Race) {
	result := buildResult(race)
	c.log.Infof("race %s finished, winner %q (%d/%d finished)", race.RaceID, result.Winner, result.FinishedPlayers, result.TotalPlayers)
	c.gateway.Broadcast(race.RaceID, RaceFinishedEvent(result))
	c.cleanup.ScheduleFinishedDeletion(race.RaceID)

	if c.OnRaceFinished != nil {
		go c.OnRaceFinished(result)
	}
}

func buildResult(race *models.Race) models.RaceResult {
	finished := race.FinishedPlayers()
	rankings := make([]models.PlayerResult, 0, len(finished))
	for _, p := range finished {
		rankings = append(rankings, models.PlayerResult{
			ConnID:     p.ConnID,
			AccountID:  p.AccountID,
			Username:   p.Username,
			WPM:        p.WPM,
			Accuracy:   p.Accuracy,
			Rank:       p.Rank,
			FinishTime: p.FinishTime,
		})
	}
	var durationMs int64
	if race.StartTime != nil && race.EndTime != nil {
		durationMs = race.EndTime.Sub(*race.StartTime).Milliseconds()
	}
	finishedAt := time.Now().UTC()
	if race.EndTime != nil {
		finishedAt = *race.EndTime
	}
	return models.RaceResult{
		RaceID:          race.RaceID,
		Winner:          race.Winner,
		Rankings:        rankings,
		DurationMs:      durationMs,
		TotalPlayers:    len(race.Players),
		FinishedPlayers: len(finished),
		TextSource:      race.TextSource,
		FinishedAt:      finishedAt,
	}
}

// Leave removes the connection from its race. Unknown connections and
// already-removed players are no-ops; leave must be idempotent because the
// explicit leave-race message and the transport disconnect both land here.
func (c *Controller) Leave(ctx context.Context, connID string) error {
	entry, ok := c.registry.Lookup(connID)
	if !ok {
		return nil
	}
	c.registry.Unregister(connID)
	c.gateway.Unsubscribe(entry.RaceID, connID)

	race, err := c.store.RemovePlayer(ctx, entry.RaceID, connID)
	if errors.Is(err, racestore.ErrRaceNotFound) {
		c.log.Debugf("race %s already deleted before %s left", entry.RaceID, connID)
		return nil
	}
	if err != nil {
		return err
	}

	c.gateway.Broadcast(entry.RaceID, PlayerLeftEvent(entry.Username, len(race.Players)))
	c.log.Infof("player %s left race %s (%d remaining)", entry.Username, entry.RaceID, len(race.Players))

	if len(race.Players) == 0 {
		c.cleanup.ScheduleEmptyCheck(entry.RaceID)
	}
	return nil
}

// Stop cancels all running countdown goroutines.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.countdowns {
		cancel()
		delete(c.countdowns, id)
	}
}
