package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/simon"
	"github.com/ayusman/mudra/internal/videocontrol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebSocket message types.
const (
	TypeFrame         = "frame"
	TypeEasterEgg     = "easter_egg"
	TypeVideoAction   = "video_action"
	TypePlayerCommand = "player_command"
	TypePlayerState   = "player_state"
	TypeGame          = "game"
	TypeStatus        = "status"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is the envelope of every WebSocket message.
type Message struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans demo events out to WebSocket clients and routes player state
// reports from them. It implements app.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	player  *RemotePlayer
	log     *logrus.Entry
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     logging.Component("ws"),
	}
}

// AttachPlayer routes player_state messages to p.
func (h *Hub) AttachPlayer(p *RemotePlayer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.player = p
}

// Subscribe forwards recognition frames and easter eggs from bus.
func (h *Hub) Subscribe(bus *events.Bus) error {
	if err := bus.OnFrameAsync(func(f events.Frame) {
		h.Broadcast(TypeFrame, f)
	}); err != nil {
		return err
	}
	return bus.OnEasterEggAsync(func(e events.EasterEgg) {
		h.Broadcast(TypeEasterEgg, e)
	})
}

// Broadcast sends a message to every client. Clients that cannot keep up
// drop the message.
func (h *Hub) Broadcast(msgType string, data any) {
	msg, err := encode(msgType, data)
	if err != nil {
		h.log.WithError(err).WithField("type", msgType).Error("failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) StatusChanged(s app.Status) {
	h.Broadcast(TypeStatus, s)
}

func (h *Hub) VideoAction(a videocontrol.AppliedAction) {
	h.Broadcast(TypeVideoAction, a)
}

func (h *Hub) GameChanged(s simon.Snapshot) {
	h.Broadcast(TypeGame, s)
}

// Serve upgrades the request and runs the client until it disconnects. The
// greeting messages are sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, greeting ...[]byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	for _, msg := range greeting {
		c.send <- msg
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()

	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
	<-done
}

// readPump handles inbound messages until the connection fails.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.WithError(err).Debug("ignoring malformed message")
			continue
		}
		h.handle(msg)
	}
}

func (h *Hub) handle(msg Message) {
	switch msg.Type {
	case TypePlayerState:
		var st PlayerReport
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			h.log.WithError(err).Debug("ignoring malformed player state")
			return
		}
		h.mu.RLock()
		p := h.player
		h.mu.RUnlock()
		if p != nil {
			p.Update(st)
		}
	default:
		h.log.WithField("type", msg.Type).Debug("ignoring message")
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Data: raw})
}
