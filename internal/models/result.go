package models

import "time"

// PlayerResult is one finisher's final line in a race-finished payload.
type PlayerResult struct {
	ConnID    string     `json:"connId"`
	AccountID string     `json:"accountId,omitempty"`
	Username  string     `json:"username"`
	WPM       float64    `json:"wpm"`
	Accuracy  float64    `json:"accuracy"`
	Rank      int        `json:"rank"`
	FinishTime *time.Time `json:"finishTime,omitempty"`
}

// RaceResult is the final outcome of a race, handed to result listeners
// (postgres insert, redis queue) when the race finishes.
type RaceResult struct {
	RaceID          string         `json:"raceId"`
	Winner          string         `json:"winner"`
	Rankings        []PlayerResult `json:"rankings"`
	DurationMs      int64          `json:"durationMs"`
	TotalPlayers    int            `json:"totalPlayers"`
	FinishedPlayers int            `json:"finishedPlayers"`
	TextSource      string         `json:"textSource"`
	FinishedAt      time.Time      `json:"finishedAt"`
}

// TypingResult is a solo-mode test result submitted over REST.
type TypingResult struct {
	AccountID string    `json:"accountId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	IsGuest   bool      `json:"isGuest"`
	WPM       float64   `json:"wpm"`
	Accuracy  float64   `json:"accuracy"`
	WordCount int       `json:"wordCount"`
	Source    string    `json:"source"`
	TestDate  time.Time `json:"testDate"`
}
