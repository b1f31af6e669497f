// internal/racestore/memory.go
package racestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/typemasterhq/typemaster/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store with the same semantics as
// MongoStore. Used by tests and single-process deployments without a
// database.
type MemoryStore struct {
	mu    sync.Mutex
	races map[string]*models.Race
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{races: make(map[string]*models.Race)}
}

// cloneRace deep-copies a race so callers never share player slices with
// stored state.
func cloneRace(r *models.Race) *models.Race {
	out := *r
	out.Players = make([]models.Player, len(r.Players))
	copy(out.Players, r.Players)
	for i := range out.Players {
		if ft := out.Players[i].FinishTime; ft != nil {
			t := *ft
			out.Players[i].FinishTime = &t
		}
	}
	for _, ts := range []**time.Time{&out.StartTime, &out.EndTime, &out.CountdownStartTime} {
		if *ts != nil {
			t := **ts
			*ts = &t
		}
	}
	return &out
}

func (s *MemoryStore) CreateRace(ctx context.Context, text, textSource string, maxPlayers int, isPublic bool) (*models.Race, error) {
	if maxPlayers < 2 {
		maxPlayers = 2
	}
	if maxPlayers > 10 {
		maxPlayers = 10
	}
	now := time.Now().UTC()
	race := &models.Race{
		RaceID:     uuid.NewString(),
		Text:       text,
		TextSource: textSource,
		MaxPlayers: maxPlayers,
		Players:    []models.Player{},
		Status:     models.StatusWaiting,
		IsPublic:   isPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.races[race.RaceID] = race
	return cloneRace(race), nil
}

func (s *MemoryStore) FindJoinable(ctx context.Context) (*models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.Race
	for _, r := range s.races {
		if !r.IsPublic || !r.Status.Joinable() || len(r.Players) >= r.MaxPlayers {
			continue
		}
		if oldest == nil || r.CreatedAt.Before(oldest.CreatedAt) {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return cloneRace(oldest), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, raceID string) (*models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.races[raceID]
	if !ok {
		return nil, nil
	}
	return cloneRace(r), nil
}

func (s *MemoryStore) ListPublic(ctx context.Context, limit int) ([]models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Race
	for _, r := range s.races {
		if r.IsPublic {
			out = append(out, *cloneRace(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AddPlayer(ctx context.Context, raceID string, p models.Player) (*models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.races[raceID]
	if !ok {
		return nil, ErrRaceNotFound
	}
	if !r.Status.Joinable() {
		return nil, ErrRaceNotJoinable
	}
	if len(r.Players) >= r.MaxPlayers {
		return nil, ErrRaceFull
	}
	if r.PlayerByConnID(p.ConnID) != nil {
		return nil, ErrDuplicatePlayer
	}

	r.Players = append(r.Players, p)
	r.UpdatedAt = time.Now().UTC()
	r.Version++
	return cloneRace(r), nil
}

func (s *MemoryStore) RemovePlayer(ctx context.Context, raceID, connID string) (*models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.races[raceID]
	if !ok {
		return nil, ErrRaceNotFound
	}
	for i := range r.Players {
		if r.Players[i].ConnID == connID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			r.UpdatedAt = time.Now().UTC()
			r.Version++
			break
		}
	}
	return cloneRace(r), nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, raceID, connID string, upd ProgressUpdate) (*models.Race, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.races[raceID]
	if !ok {
		return nil, false, ErrRaceNotFound
	}
	if r.Status != models.StatusActive {
		return cloneRace(r), false, nil
	}
	p := r.PlayerByConnID(connID)
	if p == nil {
		return nil, false, ErrPlayerNotFound
	}
	if p.IsFinished {
		return cloneRace(r), false, nil
	}

	mutated, finishesRace := applyProgress(r, connID, upd)
	mutated.UpdatedAt = time.Now().UTC()
	mutated.Version = r.Version + 1
	s.races[raceID] = mutated
	return cloneRace(mutated), finishesRace, nil
}

func (s *MemoryStore) TransitionStatus(ctx context.Context, raceID string, from, to models.RaceStatus) (*models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.races[raceID]
	if !ok {
		return nil, ErrRaceNotFound
	}
	if r.Status != from {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	r.Status = to
	r.UpdatedAt = now
	r.Version++
	switch to {
	case models.StatusCountdown:
		r.CountdownStartTime = &now
	case models.StatusActive:
		r.StartTime = &now
	case models.StatusFinished:
		r.EndTime = &now
	}
	return cloneRace(r), nil
}

func (s *MemoryStore) DeleteRace(ctx context.Context, raceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.races, raceID)
	return nil
}

func (s *MemoryStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.races {
		if r.Status == models.StatusFinished && r.UpdatedAt.Before(cutoff) {
			delete(s.races, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteEmptyWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.races {
		if r.Status == models.StatusWaiting && len(r.Players) == 0 && r.UpdatedAt.Before(cutoff) {
			delete(s.races, id)
			n++
		}
	}
	return n, nil
}
