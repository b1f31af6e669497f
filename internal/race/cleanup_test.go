// internal/race/cleanup_test.go
package race

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		MaxPlayersPerRace:        4,
		MinPlayersToStart:        2,
		CountdownSeconds:         1,
		RaceWordCount:            10,
		EmptyRaceCleanupDelay:    40 * time.Millisecond,
		FinishedRaceCleanupDelay: 40 * time.Millisecond,
		SweepInterval:            time.Hour,
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func raceGone(store racestore.Store, raceID string) func() bool {
	return func() bool {
		r, err := store.FindByID(context.Background(), raceID)
		return err == nil && r == nil
	}
}

func TestEmptyCheckDeletesStillEmptyRace(t *testing.T) {
	store := racestore.NewMemoryStore()
	c := NewCleanupScheduler(store, testConfig(), testLogger())
	defer c.Stop()

	race, err := store.CreateRace(context.Background(), "text", "local", 4, true)
	require.NoError(t, err)

	c.ScheduleEmptyCheck(race.RaceID)
	assert.True(t, c.Pending(race.RaceID))

	waitFor(t, time.Second, raceGone(store, race.RaceID), "empty race deletion")
	assert.False(t, c.Pending(race.RaceID))
}

func TestEmptyCheckSparesRepopulatedRace(t *testing.T) {
	store := racestore.NewMemoryStore()
	c := NewCleanupScheduler(store, testConfig(), testLogger())
	defer c.Stop()

	ctx := context.Background()
	race, err := store.CreateRace(ctx, "text", "local", 4, true)
	require.NoError(t, err)

	c.ScheduleEmptyCheck(race.RaceID)
	_, err = store.AddPlayer(ctx, race.RaceID, models.Player{ConnID: "c1", Username: "alice"})
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return !c.Pending(race.RaceID) }, "timer to fire")
	kept, err := store.FindByID(ctx, race.RaceID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "a repopulated race survives the empty check")
}

func TestEmptyCheckDeduplicates(t *testing.T) {
	store := racestore.NewMemoryStore()
	cfg := testConfig()
	cfg.EmptyRaceCleanupDelay = time.Minute
	c := NewCleanupScheduler(store, cfg, testLogger())
	defer c.Stop()

	race, err := store.CreateRace(context.Background(), "text", "local", 4, true)
	require.NoError(t, err)

	c.ScheduleEmptyCheck(race.RaceID)
	c.ScheduleEmptyCheck(race.RaceID)
	assert.True(t, c.Pending(race.RaceID))

	c.Stop()
	assert.False(t, c.Pending(race.RaceID))
}

func TestFinishedDeletionIsUnconditional(t *testing.T) {
	store := racestore.NewMemoryStore()
	c := NewCleanupScheduler(store, testConfig(), testLogger())
	defer c.Stop()

	ctx := context.Background()
	race, err := store.CreateRace(ctx, "text", "local", 4, true)
	require.NoError(t, err)
	_, err = store.AddPlayer(ctx, race.RaceID, models.Player{ConnID: "c1", Username: "alice"})
	require.NoError(t, err)

	c.ScheduleFinishedDeletion(race.RaceID)
	waitFor(t, time.Second, raceGone(store, race.RaceID), "finished race deletion")
}

func TestFinishedDeletionSupersedesEmptyCheck(t *testing.T) {
	store := racestore.NewMemoryStore()
	cfg := testConfig()
	cfg.EmptyRaceCleanupDelay = time.Minute
	c := NewCleanupScheduler(store, cfg, testLogger())
	defer c.Stop()

	race, err := store.CreateRace(context.Background(), "text", "local", 4, true)
	require.NoError(t, err)

	c.ScheduleEmptyCheck(race.RaceID)
	c.ScheduleFinishedDeletion(race.RaceID)

	waitFor(t, time.Second, raceGone(store, race.RaceID), "superseding deletion")
}
