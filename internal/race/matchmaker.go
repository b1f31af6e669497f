// internal/race/matchmaker.go
package race

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
	"github.com/typemasterhq/typemaster/internal/text"
)

// Matchmaker decides which race a newly-joining player lands in.
type Matchmaker struct {
	store racestore.Store
	text  text.Provider
	cfg   *config.Config
	log   *logrus.Logger
}

func NewMatchmaker(store racestore.Store, provider text.Provider, cfg *config.Config, log *logrus.Logger) *Matchmaker {
	return &Matchmaker{store: store, text: provider, cfg: cfg, log: log}
}

// JoinAny places the player into the oldest joinable public race, creating a
// fresh one when none exists. Losing the last slot to a concurrent joiner is
// an expected condition: matchmaking restarts from scratch once before the
// error is surfaced.
func (m *Matchmaker) JoinAny(ctx context.Context, p models.Player) (*models.Race, error) {
	race, err := m.joinOnce(ctx, p)
	if err == nil {
		return race, nil
	}
	if errors.Is(err, racestore.ErrRaceFull) || errors.Is(err, racestore.ErrRaceNotJoinable) || errors.Is(err, racestore.ErrRaceNotFound) {
		m.log.Debugf("matchmaking retry for %s: %v", p.ConnID, err)
		return m.joinOnce(ctx, p)
	}
	return nil, err
}

func (m *Matchmaker) joinOnce(ctx context.Context, p models.Player) (*models.Race, error) {
	race, err := m.store.FindJoinable(ctx)
	if err != nil {
		return nil, err
	}
	if race == nil {
		race, err = m.createRace(ctx)
		if err != nil {
			return nil, err
		}
		m.log.Infof("created race %s (source=%s, capacity=%d)", race.RaceID, race.TextSource, race.MaxPlayers)
	}
	return m.store.AddPlayer(ctx, race.RaceID, p)
}

// JoinByID targets a specific race. Precondition failures pass through
// unchanged so the caller can render "not found" vs "full" vs "already
// started" accurately.
func (m *Matchmaker) JoinByID(ctx context.Context, raceID string, p models.Player) (*models.Race, error) {
	return m.store.AddPlayer(ctx, raceID, p)
}

func (m *Matchmaker) createRace(ctx context.Context) (*models.Race, error) {
	// Text provisioning never blocks race creation; the provider falls back
	// to a local sample on any upstream failure.
	body := m.text.GetText(ctx, text.SourceMixed, m.cfg.RaceWordCount)
	return m.store.CreateRace(ctx, body, text.SourceMixed, m.cfg.MaxPlayersPerRace, true)
}
