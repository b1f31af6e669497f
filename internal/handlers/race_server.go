// internal/handlers/race_server.go
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/race"
	"github.com/typemasterhq/typemaster/internal/racestore"
	"github.com/typemasterhq/typemaster/internal/text"
)

// RaceServer bundles the race subsystem for the HTTP/WS handlers: the
// authoritative store, the process-local registry and gateway, and the
// lifecycle controller that ties them together.
type RaceServer struct {
	Store      racestore.Store
	Registry   *race.Registry
	Gateway    *race.Gateway
	Cleanup    *race.CleanupScheduler
	Controller *race.Controller
	Cfg        *config.Config
}

// NewRaceServer wires the race subsystem around the given store and text
// provider.
func NewRaceServer(store racestore.Store, provider text.Provider, cfg *config.Config, log *logrus.Logger) *RaceServer {
	registry := race.NewRegistry()
	gateway := race.NewGateway(log)
	cleanup := race.NewCleanupScheduler(store, cfg, log)
	matchmaker := race.NewMatchmaker(store, provider, cfg, log)
	controller := race.NewController(store, registry, gateway, matchmaker, cleanup, cfg, log)

	return &RaceServer{
		Store:      store,
		Registry:   registry,
		Gateway:    gateway,
		Cleanup:    cleanup,
		Controller: controller,
		Cfg:        cfg,
	}
}
