// internal/race/events.go
//
// Event constructors for the race wire protocol. The event names match the
// client contract: race-joined carries the full snapshot to the joining
// connection only, everything else is an incremental delta.
package race

import (
	"time"

	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
)

func RaceSnapshotEvent(r *models.Race) Event {
	return Event{
		"type":       "race-joined",
		"raceId":     r.RaceID,
		"text":       r.Text,
		"players":    r.Players,
		"status":     r.Status,
		"maxPlayers": r.MaxPlayers,
	}
}

func PlayerJoinedEvent(p models.Player, totalPlayers int) Event {
	return Event{
		"type":         "player-joined",
		"player":       p,
		"totalPlayers": totalPlayers,
	}
}

func PlayerLeftEvent(username string, remainingPlayers int) Event {
	return Event{
		"type":             "player-left",
		"username":         username,
		"remainingPlayers": remainingPlayers,
	}
}

func CountdownStartedEvent(seconds int) Event {
	return Event{
		"type":             "countdown-started",
		"countdownSeconds": seconds,
	}
}

func CountdownTickEvent(timeLeft int) Event {
	return Event{
		"type":     "countdown-tick",
		"timeLeft": timeLeft,
	}
}

func RaceStartedEvent(startTime *time.Time) Event {
	return Event{
		"type":      "race-started",
		"startTime": startTime,
	}
}

func ProgressUpdateEvent(connID, username string, upd racestore.ProgressUpdate) Event {
	return Event{
		"type":     "player-progress-update",
		"connId":   connID,
		"username": username,
		"progress": upd.Progress,
		"wpm":      upd.WPM,
		"accuracy": upd.Accuracy,
	}
}

func RaceFinishedEvent(res models.RaceResult) Event {
	return Event{
		"type":     "race-finished",
		"winner":   res.Winner,
		"rankings": res.Rankings,
		"raceStats": map[string]interface{}{
			"duration":        res.DurationMs,
			"totalPlayers":    res.TotalPlayers,
			"finishedPlayers": res.FinishedPlayers,
		},
	}
}

func RaceErrorEvent(msg string) Event {
	return Event{
		"type":    "race-error",
		"message": msg,
	}
}
