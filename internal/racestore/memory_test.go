// internal/racestore/memory_test.go
package racestore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typemasterhq/typemaster/internal/models"
)

func testPlayer(connID string) models.Player {
	return models.Player{
		ConnID:   connID,
		Username: "player-" + connID,
		IsGuest:  true,
		Accuracy: 100,
	}
}

// newActiveRace creates a race with n players and drives it to active.
func newActiveRace(t *testing.T, s *MemoryStore, n, maxPlayers int) *models.Race {
	t.Helper()
	ctx := context.Background()

	race, err := s.CreateRace(ctx, "the quick brown fox", "local", maxPlayers, true)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err = s.AddPlayer(ctx, race.RaceID, testPlayer(fmt.Sprintf("c%d", i)))
		require.NoError(t, err)
	}
	_, err = s.TransitionStatus(ctx, race.RaceID, models.StatusWaiting, models.StatusCountdown)
	require.NoError(t, err)
	active, err := s.TransitionStatus(ctx, race.RaceID, models.StatusCountdown, models.StatusActive)
	require.NoError(t, err)
	return active
}

func TestCreateRaceClampsCapacity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	race, err := s.CreateRace(ctx, "text", "local", 1, true)
	require.NoError(t, err)
	assert.Equal(t, 2, race.MaxPlayers)

	race, err = s.CreateRace(ctx, "text", "local", 50, true)
	require.NoError(t, err)
	assert.Equal(t, 10, race.MaxPlayers)

	assert.Equal(t, models.StatusWaiting, race.Status)
	assert.Empty(t, race.Players)
}

func TestAddPlayerPreconditions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.AddPlayer(ctx, "missing", testPlayer("a"))
	assert.ErrorIs(t, err, ErrRaceNotFound)

	race, err := s.CreateRace(ctx, "text", "local", 2, true)
	require.NoError(t, err)

	_, err = s.AddPlayer(ctx, race.RaceID, testPlayer("a"))
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, race.RaceID, testPlayer("a"))
	assert.ErrorIs(t, err, ErrDuplicatePlayer)

	_, err = s.AddPlayer(ctx, race.RaceID, testPlayer("b"))
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, race.RaceID, testPlayer("c"))
	assert.ErrorIs(t, err, ErrRaceFull)

	// Once past countdown the race stops accepting players even with space.
	big, err := s.CreateRace(ctx, "text", "local", 5, true)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, big.RaceID, testPlayer("d"))
	require.NoError(t, err)
	_, err = s.TransitionStatus(ctx, big.RaceID, models.StatusWaiting, models.StatusCountdown)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, big.RaceID, testPlayer("e"))
	require.NoError(t, err, "countdown races still accept players")
	_, err = s.TransitionStatus(ctx, big.RaceID, models.StatusCountdown, models.StatusActive)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, big.RaceID, testPlayer("f"))
	assert.ErrorIs(t, err, ErrRaceNotJoinable)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	race, err := s.CreateRace(ctx, "text", "local", 4, true)
	require.NoError(t, err)

	const joiners = 20
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AddPlayer(ctx, race.RaceID, testPlayer(fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	var accepted, rejected int
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, ErrRaceFull)
			rejected++
		}
	}
	assert.Equal(t, 4, accepted)
	assert.Equal(t, joiners-4, rejected)

	final, err := s.FindByID(ctx, race.RaceID)
	require.NoError(t, err)
	assert.Len(t, final.Players, 4)
}

func TestRemovePlayerIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.RemovePlayer(ctx, "missing", "a")
	assert.ErrorIs(t, err, ErrRaceNotFound)

	race, err := s.CreateRace(ctx, "text", "local", 3, true)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, race.RaceID, testPlayer("a"))
	require.NoError(t, err)

	after, err := s.RemovePlayer(ctx, race.RaceID, "a")
	require.NoError(t, err)
	assert.Empty(t, after.Players)

	// Removing again is a no-op, not an error.
	after, err = s.RemovePlayer(ctx, race.RaceID, "a")
	require.NoError(t, err)
	assert.Empty(t, after.Players)
}

func TestFindJoinablePrefersOldest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.CreateRace(ctx, "text", "local", 4, true)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.CreateRace(ctx, "text", "local", 4, true)
	require.NoError(t, err)

	found, err := s.FindJoinable(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.RaceID, found.RaceID)
}

func TestFindJoinableSkipsPrivateFullAndActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.CreateRace(ctx, "text", "local", 4, false)
	require.NoError(t, err)

	full, err := s.CreateRace(ctx, "text", "local", 2, true)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, full.RaceID, testPlayer("a"))
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, full.RaceID, testPlayer("b"))
	require.NoError(t, err)

	started := newActiveRace(t, s, 2, 4)
	require.Equal(t, models.StatusActive, started.Status)

	found, err := s.FindJoinable(ctx)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTransitionStatusStampsTimestamps(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	race, err := s.CreateRace(ctx, "text", "local", 2, true)
	require.NoError(t, err)

	cd, err := s.TransitionStatus(ctx, race.RaceID, models.StatusWaiting, models.StatusCountdown)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCountdown, cd.Status)
	assert.NotNil(t, cd.CountdownStartTime)
	assert.Nil(t, cd.StartTime)

	// Repeating the same CAS fails: the from status no longer matches.
	_, err = s.TransitionStatus(ctx, race.RaceID, models.StatusWaiting, models.StatusCountdown)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	active, err := s.TransitionStatus(ctx, race.RaceID, models.StatusCountdown, models.StatusActive)
	require.NoError(t, err)
	assert.NotNil(t, active.StartTime)

	_, err = s.TransitionStatus(ctx, "missing", models.StatusWaiting, models.StatusCountdown)
	assert.ErrorIs(t, err, ErrRaceNotFound)
}

func TestUpdateProgressClampAndMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	race := newActiveRace(t, s, 3, 4)

	after, finished, err := s.UpdateProgress(ctx, race.RaceID, "c0", ProgressUpdate{Progress: 60, WPM: 80, Accuracy: 97})
	require.NoError(t, err)
	assert.False(t, finished)
	p := after.PlayerByConnID("c0")
	assert.Equal(t, 60.0, p.Progress)
	assert.Equal(t, 80.0, p.WPM)

	// A stale lower progress report never moves the player backwards, but
	// speed and accuracy still refresh.
	after, _, err = s.UpdateProgress(ctx, race.RaceID, "c0", ProgressUpdate{Progress: 40, WPM: 70, Accuracy: 95})
	require.NoError(t, err)
	p = after.PlayerByConnID("c0")
	assert.Equal(t, 60.0, p.Progress)
	assert.Equal(t, 70.0, p.WPM)

	after, _, err = s.UpdateProgress(ctx, race.RaceID, "c1", ProgressUpdate{Progress: 150, WPM: 120, Accuracy: 99})
	require.NoError(t, err)
	p = after.PlayerByConnID("c1")
	assert.Equal(t, 100.0, p.Progress)
	assert.True(t, p.IsFinished)
}

func TestUpdateProgressIgnoredWhenNotActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	race, err := s.CreateRace(ctx, "text", "local", 2, true)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, race.RaceID, testPlayer("a"))
	require.NoError(t, err)

	after, finished, err := s.UpdateProgress(ctx, race.RaceID, "a", ProgressUpdate{Progress: 50})
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, 0.0, after.PlayerByConnID("a").Progress)

	_, _, err = s.UpdateProgress(ctx, "missing", "a", ProgressUpdate{Progress: 50})
	assert.ErrorIs(t, err, ErrRaceNotFound)

	_, _, err = s.UpdateProgress(ctx, race.RaceID, "ghost", ProgressUpdate{Progress: 50})
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestFirstFinisherWinsAndRanksContiguous(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	race := newActiveRace(t, s, 3, 4)

	after, finished, err := s.UpdateProgress(ctx, race.RaceID, "c1", ProgressUpdate{Progress: 100, WPM: 110})
	require.NoError(t, err)
	assert.False(t, finished, "two racers still unfinished")
	assert.Equal(t, "player-c1", after.Winner)
	assert.Equal(t, 1, after.PlayerByConnID("c1").Rank)

	after, finished, err = s.UpdateProgress(ctx, race.RaceID, "c0", ProgressUpdate{Progress: 100, WPM: 90})
	require.NoError(t, err)
	assert.True(t, finished, "one racer left in a multiplayer race ends it")
	assert.Equal(t, models.StatusFinished, after.Status)
	assert.NotNil(t, after.EndTime)
	assert.Equal(t, "player-c1", after.Winner, "winner never changes once set")
	assert.Equal(t, 2, after.PlayerByConnID("c0").Rank)

	// The race is over: the straggler's report is dropped gracefully.
	after, finished, err = s.UpdateProgress(ctx, race.RaceID, "c2", ProgressUpdate{Progress: 100})
	require.NoError(t, err)
	assert.False(t, finished)
	assert.False(t, after.PlayerByConnID("c2").IsFinished)
}

func TestSoloRaceFinishesWhenOnlyPlayerDone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	race := newActiveRace(t, s, 1, 4)

	after, finished, err := s.UpdateProgress(ctx, race.RaceID, "c0", ProgressUpdate{Progress: 100, WPM: 60})
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, models.StatusFinished, after.Status)
	assert.Equal(t, 1, after.PlayerByConnID("c0").Rank)
	assert.Equal(t, "player-c0", after.Winner)
}

func TestConcurrentFinishesAssignUniqueRanks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	race := newActiveRace(t, s, 4, 4)

	var wg sync.WaitGroup
	var mu sync.Mutex
	finishEvents := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, finished, err := s.UpdateProgress(ctx, race.RaceID, fmt.Sprintf("c%d", i), ProgressUpdate{Progress: 100})
			assert.NoError(t, err)
			if finished {
				mu.Lock()
				finishEvents++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, finishEvents, "exactly one update commits the finished transition")

	final, err := s.FindByID(ctx, race.RaceID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFinished, final.Status)

	finished := final.FinishedPlayers()
	assert.Len(t, finished, 3, "the last racer is ended, not finished")
	seen := map[int]bool{}
	for i, p := range finished {
		assert.Equal(t, i+1, p.Rank, "ranks are contiguous from 1")
		assert.False(t, seen[p.Rank])
		seen[p.Rank] = true
	}
	assert.Equal(t, finished[0].Username, final.Winner)
}

func TestSweepDeletions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	empty, err := s.CreateRace(ctx, "text", "local", 2, true)
	require.NoError(t, err)

	occupied, err := s.CreateRace(ctx, "text", "local", 2, true)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, occupied.RaceID, testPlayer("a"))
	require.NoError(t, err)

	done := newActiveRace(t, s, 1, 2)
	_, _, err = s.UpdateProgress(ctx, done.RaceID, "c0", ProgressUpdate{Progress: 100})
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)

	n, err := s.DeleteFinishedBefore(ctx, future)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteEmptyWaitingBefore(ctx, future)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// The occupied waiting race survives both sweeps.
	left, err := s.FindByID(ctx, occupied.RaceID)
	require.NoError(t, err)
	assert.NotNil(t, left)
	gone, err := s.FindByID(ctx, empty.RaceID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
