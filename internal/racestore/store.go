// internal/racestore/store.go
package racestore

import (
	"context"
	"time"

	"github.com/typemasterhq/typemaster/internal/models"
)

// ProgressUpdate carries one progress submission for a single player.
type ProgressUpdate struct {
	Progress  float64
	WPM       float64
	Accuracy  float64
	TypedText string
}

// Store is the single source of truth for race state. All mutations are
// atomic conditional updates: two processes racing to add the last player or
// to declare the first finisher resolve with exactly one winner. Callers must
// always act on the returned race, never on a stale local copy.
type Store interface {
	// CreateRace inserts a new public or private race in waiting status with
	// an empty player list.
	CreateRace(ctx context.Context, text, textSource string, maxPlayers int, isPublic bool) (*models.Race, error)

	// FindJoinable returns the oldest public race in waiting or countdown
	// status with free capacity, or nil if none exists.
	FindJoinable(ctx context.Context) (*models.Race, error)

	// FindByID returns the race with the given external id, or nil.
	FindByID(ctx context.Context, raceID string) (*models.Race, error)

	// ListPublic returns up to limit public races, newest first.
	ListPublic(ctx context.Context, limit int) ([]models.Race, error)

	// AddPlayer appends the player iff the race exists, is joinable, has
	// capacity and contains no player with the same connection id. The
	// failures are distinguishable: ErrRaceNotFound, ErrRaceNotJoinable,
	// ErrRaceFull, ErrDuplicatePlayer.
	AddPlayer(ctx context.Context, raceID string, p models.Player) (*models.Race, error)

	// RemovePlayer removes the player with the given connection id.
	// Removing a non-member is a no-op that returns current state.
	RemovePlayer(ctx context.Context, raceID, connID string) (*models.Race, error)

	// UpdateProgress applies a progress submission to the named player. A
	// progress of 100 or more finishes the player: rank and finish time are
	// assigned and the race winner is set if still unclaimed. The same call
	// re-evaluates the race finish rule; the returned bool is true iff this
	// call transitioned the race to finished. Updates against a race that is
	// no longer active are a graceful no-op.
	UpdateProgress(ctx context.Context, raceID, connID string, upd ProgressUpdate) (*models.Race, bool, error)

	// TransitionStatus performs a compare-and-set from -> to, stamping the
	// timestamp implied by the target status (countdown start, race start,
	// race end). Fails with ErrInvalidTransition if the current status
	// differs from from.
	TransitionStatus(ctx context.Context, raceID string, from, to models.RaceStatus) (*models.Race, error)

	// DeleteRace removes the race. Deleting a missing race is a no-op.
	DeleteRace(ctx context.Context, raceID string) error

	// DeleteFinishedBefore deletes finished races last updated before cutoff.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteEmptyWaitingBefore deletes empty waiting races last updated
	// before cutoff.
	DeleteEmptyWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
