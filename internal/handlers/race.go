// internal/handlers/race.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// raceSummary is the REST listing shape: enough to render a lobby browser
// without leaking full player state.
type raceSummary struct {
	RaceID     string    `json:"raceId"`
	Status     string    `json:"status"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"maxPlayers"`
	TextSource string    `json:"textSource"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListRacesHandler returns public races, newest first.
func ListRacesHandler(rs *RaceServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		races, err := rs.Store.ListPublic(r.Context(), 20)
		if err != nil {
			http.Error(w, "failed to list races", http.StatusInternalServerError)
			return
		}
		out := make([]raceSummary, 0, len(races))
		for _, race := range races {
			out = append(out, raceSummary{
				RaceID:     race.RaceID,
				Status:     string(race.Status),
				Players:    len(race.Players),
				MaxPlayers: race.MaxPlayers,
				TextSource: race.TextSource,
				CreatedAt:  race.CreatedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// GetRaceHandler returns one race by its external id: GET /races/{race_id}.
func GetRaceHandler(rs *RaceServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raceID := strings.TrimPrefix(r.URL.Path, "/races/")
		if raceID == "" || strings.Contains(raceID, "/") {
			http.Error(w, "missing race_id", http.StatusBadRequest)
			return
		}
		race, err := rs.Store.FindByID(r.Context(), raceID)
		if err != nil {
			http.Error(w, "failed to fetch race", http.StatusInternalServerError)
			return
		}
		if race == nil {
			http.Error(w, "race not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(race)
	}
}

// StatsHandler reports live process-local counters.
func StatsHandler(rs *RaceServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"activeRaces":      rs.Gateway.RoomCount(),
			"connectedPlayers": rs.Registry.Count(),
		})
	}
}

// HealthHandler is the liveness probe.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
