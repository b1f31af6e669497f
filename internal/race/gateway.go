// internal/race/gateway.go
package race

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event is one server-to-client message. Constructors live in events.go.
type Event map[string]interface{}

// Subscriber wraps one connection's subscription to a race room. The write
// pump owning the websocket drains OutChan; Cancel tears down the
// connection's context when the subscriber is beyond saving.
type Subscriber struct {
	ConnID  string
	OutChan chan Event
	Cancel  context.CancelFunc
}

// NewSubscriber returns a subscriber with a buffered outbound channel.
func NewSubscriber(connID string, cancel context.CancelFunc) *Subscriber {
	return &Subscriber{
		ConnID:  connID,
		OutChan: make(chan Event, 64),
		Cancel:  cancel,
	}
}

// WriteError pushes a race-error event to this subscriber only.
func (s *Subscriber) WriteError(msg string) {
	select {
	case s.OutChan <- RaceErrorEvent(msg):
	default:
	}
}

// Gateway fans race events out to every connection subscribed to a room.
// Events are enqueued inline, in the order the corresponding store mutations
// were applied, so each subscriber observes per-race broadcast order. A
// subscriber whose buffer is full is considered dead: the event is dropped
// and its connection cancelled rather than letting one stalled client block
// the room.
type Gateway struct {
	mu    sync.Mutex
	log   *logrus.Logger
	rooms map[string]map[string]*Subscriber
}

func NewGateway(log *logrus.Logger) *Gateway {
	return &Gateway{
		log:   log,
		rooms: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe adds the connection to the race room.
func (g *Gateway) Subscribe(raceID string, sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[raceID]
	if !ok {
		room = make(map[string]*Subscriber)
		g.rooms[raceID] = room
	}
	room[sub.ConnID] = sub
}

// Unsubscribe removes the connection from the race room. After it returns no
// further events are delivered to that connection.
func (g *Gateway) Unsubscribe(raceID, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[raceID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(g.rooms, raceID)
	}
}

// Broadcast sends an event to every subscriber in the room.
func (g *Gateway) Broadcast(raceID string, ev Event) {
	g.broadcast(raceID, "", ev)
}

// BroadcastExcept sends an event to every subscriber except one, used for
// "player joined" deltas where the joiner gets a full snapshot instead.
func (g *Gateway) BroadcastExcept(raceID, exceptConnID string, ev Event) {
	g.broadcast(raceID, exceptConnID, ev)
}

func (g *Gateway) broadcast(raceID, exceptConnID string, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for connID, sub := range g.rooms[raceID] {
		if connID == exceptConnID {
			continue
		}
		select {
		case sub.OutChan <- ev:
		default:
			g.log.Warnf("dropping event %v for stalled connection %s in race %s", ev["type"], connID, raceID)
			sub.Cancel()
		}
	}
}

// RoomCount returns the number of races with at least one subscriber.
func (g *Gateway) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
