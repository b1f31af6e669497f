// internal/models/race.go
package models

import "time"

// RaceStatus is the lifecycle phase of a race. Transitions are one-directional:
// waiting -> countdown -> active -> finished.
type RaceStatus string

const (
	StatusWaiting   RaceStatus = "waiting"
	StatusCountdown RaceStatus = "countdown"
	StatusActive    RaceStatus = "active"
	StatusFinished  RaceStatus = "finished"
)

// Joinable reports whether a race in this status may still accept players.
func (s RaceStatus) Joinable() bool {
	return s == StatusWaiting || s == StatusCountdown
}

// Player is a participant embedded in a Race document. A player is uniquely
// identified within a race by ConnID (the per-connection identity); AccountID
// is empty for guests.
type Player struct {
	ConnID     string     `bson:"connId" json:"connId"`
	AccountID  string     `bson:"accountId,omitempty" json:"accountId,omitempty"`
	Username   string     `bson:"username" json:"username"`
	IsGuest    bool       `bson:"isGuest" json:"isGuest"`
	Progress   float64    `bson:"progress" json:"progress"` // 0-100, monotonic per race
	WPM        float64    `bson:"wpm" json:"wpm"`
	Accuracy   float64    `bson:"accuracy" json:"accuracy"` // 0-100
	TypedText  string     `bson:"typedText" json:"typedText"`
	IsFinished bool       `bson:"isFinished" json:"isFinished"`
	FinishTime *time.Time `bson:"finishTime,omitempty" json:"finishTime,omitempty"`
	Rank       int        `bson:"rank,omitempty" json:"rank,omitempty"` // 1-based, 0 until finished
}

// Race is one multiplayer typing contest. RaceID is the externally
// addressable identifier, independent of any storage-internal id.
type Race struct {
	RaceID             string     `bson:"raceId" json:"raceId"`
	Text               string     `bson:"text" json:"text"`
	TextSource         string     `bson:"textSource" json:"textSource"`
	MaxPlayers         int        `bson:"maxPlayers" json:"maxPlayers"` // bounded 2-10
	Players            []Player   `bson:"players" json:"players"`       // join order
	Status             RaceStatus `bson:"status" json:"status"`
	StartTime          *time.Time `bson:"startTime,omitempty" json:"startTime,omitempty"`
	EndTime            *time.Time `bson:"endTime,omitempty" json:"endTime,omitempty"`
	CountdownStartTime *time.Time `bson:"countdownStartTime,omitempty" json:"countdownStartTime,omitempty"`
	Winner             string     `bson:"winner,omitempty" json:"winner,omitempty"` // username of first finisher, set once
	IsPublic           bool       `bson:"isPublic" json:"isPublic"`
	CreatedAt          time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time  `bson:"updatedAt" json:"updatedAt"`

	// Version guards optimistic updates; incremented on every progress write.
	Version int64 `bson:"version" json:"-"`
}

// PlayerByConnID returns the player with the given connection id, or nil.
func (r *Race) PlayerByConnID(connID string) *Player {
	for i := range r.Players {
		if r.Players[i].ConnID == connID {
			return &r.Players[i]
		}
	}
	return nil
}

// FinishedPlayers returns the finished players ordered by rank ascending.
func (r *Race) FinishedPlayers() []Player {
	var out []Player
	for _, p := range r.Players {
		if p.IsFinished {
			out = append(out, p)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Rank < out[j-1].Rank; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// UnfinishedCount returns the number of players who have not finished.
func (r *Race) UnfinishedCount() int {
	n := 0
	for _, p := range r.Players {
		if !p.IsFinished {
			n++
		}
	}
	return n
}
