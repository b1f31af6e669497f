// internal/handlers/race_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/typemasterhq/typemaster/internal/auth"
	"github.com/typemasterhq/typemaster/internal/race"
	"github.com/typemasterhq/typemaster/internal/racestore"
)

// RaceMessage is the client-to-server envelope for the race websocket.
type RaceMessage struct {
	Type string `json:"type"`

	// join-race / join-race-by-id
	RaceID   string `json:"raceId,omitempty"`
	Username string `json:"username,omitempty"`
	IsGuest  *bool  `json:"isGuest,omitempty"`

	// player-progress
	Progress  float64 `json:"progress,omitempty"`
	WPM       float64 `json:"wpm,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	TypedText string  `json:"typedText,omitempty"`
}

// RaceWSHandler upgrades the connection and runs the race message loop. Each
// connection gets a fresh opaque connection id; an auth_token cookie, when
// present and valid, attaches the player's account reference. Guests need
// neither.
func RaceWSHandler(logger *logrus.Logger, rs *RaceServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"race"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "race" {
			c.Close(BadSubprotocolError, "client must speak the race subprotocol")
			return
		}

		connID := uuid.NewString()
		accountID := resolveAccount(r)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub := race.NewSubscriber(connID, cancel)
		logger.Infof("player connected: %s (%s)", connID, r.RemoteAddr)

		go writePump(ctx, c, sub, logger)

		readRaceMessages(ctx, c, rs, sub, accountID, logger)

		// The transport dropped or the client left; either way the
		// connection is done racing.
		logger.Infof("player disconnected: %s", connID)
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer leaveCancel()
		if err := rs.Controller.Leave(leaveCtx, connID); err != nil {
			logger.Warnf("disconnect cleanup for %s: %v", connID, err)
		}
	}
}

// resolveAccount maps an auth cookie to an account reference. Invalid or
// missing tokens mean a guest; that is never an error.
func resolveAccount(r *http.Request) string {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		return ""
	}
	accountID, err := auth.AuthenticateJWT(token)
	if err != nil {
		return ""
	}
	return accountID
}

func readRaceMessages(ctx context.Context, c *websocket.Conn, rs *RaceServer, sub *race.Subscriber, accountID string, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for %s", sub.ConnID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("read error for %s: %v", sub.ConnID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg RaceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid json from %s: %v", sub.ConnID, err)
			sub.WriteError("Invalid JSON format")
			continue
		}

		// Client-initiated failures become race-error events; the
		// connection stays up.
		switch msg.Type {
		case "join-race":
			if err := rs.Controller.JoinAny(ctx, sub, joinProfile(msg, accountID)); err != nil {
				logger.Warnf("join-race failed for %s: %v", sub.ConnID, err)
				sub.WriteError(clientMessage(err))
			}
		case "join-race-by-id":
			if err := rs.Controller.JoinByID(ctx, sub, msg.RaceID, joinProfile(msg, accountID)); err != nil {
				logger.Warnf("join-race-by-id failed for %s: %v", sub.ConnID, err)
				sub.WriteError(clientMessage(err))
			}
		case "player-progress":
			upd := racestore.ProgressUpdate{
				Progress:  msg.Progress,
				WPM:       msg.WPM,
				Accuracy:  msg.Accuracy,
				TypedText: msg.TypedText,
			}
			if err := rs.Controller.SubmitProgress(ctx, sub.ConnID, upd); err != nil {
				logger.Warnf("progress update failed for %s: %v", sub.ConnID, err)
				sub.WriteError(clientMessage(err))
			}
		case "leave-race":
			if err := rs.Controller.Leave(ctx, sub.ConnID); err != nil {
				logger.Warnf("leave-race failed for %s: %v", sub.ConnID, err)
				sub.WriteError(clientMessage(err))
			}
		default:
			sub.WriteError("Unknown action type: " + msg.Type)
		}
	}
}

func joinProfile(msg RaceMessage, accountID string) race.PlayerProfile {
	username := strings.TrimSpace(msg.Username)
	if username == "" {
		username = "Guest"
	}
	isGuest := true
	if msg.IsGuest != nil {
		isGuest = *msg.IsGuest
	}
	if accountID != "" {
		isGuest = false
	}
	return race.PlayerProfile{
		Username:  username,
		IsGuest:   isGuest,
		AccountID: accountID,
	}
}

// clientMessage translates store errors into the message a player sees.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, racestore.ErrRaceNotFound):
		return "Race not found"
	case errors.Is(err, racestore.ErrRaceFull):
		return "Race is full"
	case errors.Is(err, racestore.ErrRaceNotJoinable):
		return "Race has already started or finished"
	case errors.Is(err, racestore.ErrDuplicatePlayer):
		return "Player already in race"
	case errors.Is(err, racestore.ErrPlayerNotFound):
		return "Player not found in race"
	default:
		return "Something went wrong. Please try again."
	}
}

// writePump drains the subscriber's event channel onto the websocket and
// keeps the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, sub *race.Subscriber, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal event for %s: %v", sub.ConnID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for %s: %v", sub.ConnID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for %s, assuming disconnect: %v", sub.ConnID, err)
				return
			}
		}
	}
}
