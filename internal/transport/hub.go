// Package transport adapts round-scheduler and payout events onto
// websocket connections grouped into rooms, generalizing the teacher's
// single global broadcast hub (internal/game/hub.go) into per-room
// fan-out: one room per market, one per player-balance channel, per
// spec.md §6's event table.
package transport

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Client is one authenticated websocket connection, a member of zero or
// more rooms.
type Client struct {
	conn   *websocket.Conn
	id     string
	mu     sync.Mutex
}

// Event is a named payload broadcast to a room, matching the {type,
// data} envelope spec.md §6's event table implies.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type roomMessage struct {
	room  string
	event Event
}

// Hub owns room membership and fans out events to every client in a
// room. It is the single writer of the clients/rooms maps, reached only
// through its channels, mirroring the teacher's register/unregister/
// broadcast actor loop.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]bool
	clientRm map[*Client]map[string]bool

	register   chan roomRegistration
	unregister chan *Client
	broadcast  chan roomMessage
}

type roomRegistration struct {
	client *Client
	room   string
}

// NewHub builds an idle Hub; call Run to start its actor loop.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clientRm:   make(map[*Client]map[string]bool),
		register:   make(chan roomRegistration),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
	}
}

// NewClient wraps a websocket connection.
func NewClient(conn *websocket.Conn, id string) *Client {
	return &Client{conn: conn, id: id}
}

// Run drives the hub's actor loop. It never returns, so it runs in its
// own goroutine for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			if h.rooms[reg.room] == nil {
				h.rooms[reg.room] = make(map[*Client]bool)
			}
			h.rooms[reg.room][reg.client] = true
			if h.clientRm[reg.client] == nil {
				h.clientRm[reg.client] = make(map[string]bool)
			}
			h.clientRm[reg.client][reg.room] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			for room := range h.clientRm[client] {
				delete(h.rooms[room], client)
			}
			delete(h.clientRm, client)
			h.mu.Unlock()
			client.conn.Close()

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg.event)
			if err != nil {
				log.Printf("[WS] marshal event %s: %v", msg.event.Type, err)
				continue
			}
			h.mu.RLock()
			for client := range h.rooms[msg.room] {
				go client.send(payload)
			}
			h.mu.RUnlock()
		}
	}
}

// JoinRoom adds a client to a room, creating the room if it does not
// exist yet.
func (h *Hub) JoinRoom(room string, client *Client) {
	h.register <- roomRegistration{client: client, room: room}
}

// Leave removes a client from every room it was in and closes its
// connection.
func (h *Hub) Leave(client *Client) {
	h.unregister <- client
}

// BroadcastRoom fans event out to every client currently in room. A full
// internal queue drops the message rather than blocking the caller
// (the scheduler tick must never stall on slow websocket writers).
func (h *Hub) BroadcastRoom(room string, event Event) {
	select {
	case h.broadcast <- roomMessage{room: room, event: event}:
	default:
		log.Printf("[WS] broadcast queue full, dropping %s for room %s", event.Type, room)
	}
}

// EmitToRoom is an alias for BroadcastRoom kept for the player-balance
// room call sites in the payout pipeline, matching spec.md §6's
// "broadcast and per-room emit" phrasing for the two event targets.
func (h *Hub) EmitToRoom(room string, event Event) {
	h.BroadcastRoom(room, event)
}

// RoomSize reports how many clients are currently in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (c *Client) send(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("[WS] write error for client %s: %v", c.id, err)
	}
}

// Send writes event directly to this client, bypassing room fan-out.
// Used for replies that are never broadcast: place_bet/cancel_bet
// acknowledgements and bet_error, per spec.md §7's "never broadcast"
// propagation policy for bet/cancel errors.
func (c *Client) Send(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.send(payload)
	return nil
}

// ID returns the client's connection identifier.
func (c *Client) ID() string { return c.id }

// MarketRoom and BalanceRoom name the two room kinds spec.md §6's event
// table targets.
func MarketRoom(market string) string { return "market:" + market }
func BalanceRoom(playerID string) string { return "balance:" + playerID }
