package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pokerdice/apps/server/internal/logger"
	"pokerdice/match"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

const (
	KindSubscribed = "subscribed"
	KindEvent      = "event"
)

// Message is the JSON frame pushed to subscribers.
type Message struct {
	Kind     string            `json:"kind"`
	MatchID  string            `json:"match_id"`
	Snapshot *match.MatchState `json:"snapshot,omitempty"`
	Event    *match.Event      `json:"event,omitempty"`
}

// SnapshotSource lets a new subscriber start from the current state.
type SnapshotSource interface {
	Snapshot(matchID string) (*match.MatchState, error)
}

// Connection is one websocket subscriber of one match.
type Connection struct {
	ID       string
	MatchID  string
	PlayerID match.PlayerID
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
}

// Hub fans match events out to websocket subscribers.
type Hub struct {
	mu         sync.RWMutex
	matches    map[string]map[string]*Connection // matchID -> connID -> conn
	nextConnID uint64
	source     SnapshotSource
	log        *zap.Logger
}

func New(source SnapshotSource) *Hub {
	return &Hub{
		matches: make(map[string]map[string]*Connection),
		source:  source,
		log:     logger.With(zap.String("component", "gateway")),
	}
}

// HandleWebSocket upgrades a request for /ws?match_id=...&player_id=...
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match_id")
	if matchID == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	var player match.PlayerID
	if raw := r.URL.Query().Get("player_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid player_id", http.StatusBadRequest)
			return
		}
		player = match.PlayerID(id)
	}

	var snap *match.MatchState
	if h.source != nil {
		s, err := h.source.Snapshot(matchID)
		if errors.Is(err, match.ErrNotFound) {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
			return
		}
		snap = s
	}

	hello, err := json.Marshal(Message{Kind: KindSubscribed, MatchID: matchID, Snapshot: snap})
	if err != nil {
		http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.nextConnID++
	c := &Connection{
		ID:       fmt.Sprintf("conn_%d", h.nextConnID),
		MatchID:  matchID,
		PlayerID: player,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		Hub:      h,
	}
	// First frame, queued before the connection becomes visible to Publish.
	c.Send <- hello
	subs := h.matches[matchID]
	if subs == nil {
		subs = make(map[string]*Connection)
		h.matches[matchID] = subs
	}
	subs[c.ID] = c
	total := len(subs)
	h.mu.Unlock()

	h.log.Info("client subscribed",
		zap.String("conn_id", c.ID),
		zap.String("match_id", matchID),
		zap.Uint64("player_id", uint64(player)),
		zap.Int("subscribers", total))

	go c.readPump()
	go c.writePump()
}

// readPump only services control frames; clients act through the HTTP API.
func (c *Connection) readPump() {
	defer func() {
		c.Hub.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) removeConnection(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.matches[c.MatchID]
	if _, ok := subs[c.ID]; !ok {
		return
	}
	delete(subs, c.ID)
	if len(subs) == 0 {
		delete(h.matches, c.MatchID)
	}
	close(c.Send)
	h.log.Info("client disconnected", zap.String("conn_id", c.ID), zap.String("match_id", c.MatchID))
}

// Publish implements room.Publisher. Slow subscribers lose frames rather than
// stalling the room; Seq gaps tell them to resync.
func (h *Hub) Publish(matchID string, events []match.Event) {
	if len(events) == 0 {
		return
	}
	frames := make([][]byte, 0, len(events))
	for i := range events {
		data, err := json.Marshal(Message{Kind: KindEvent, MatchID: matchID, Event: &events[i]})
		if err != nil {
			h.log.Error("encode event", zap.String("match_id", matchID), zap.Error(err))
			continue
		}
		frames = append(frames, data)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.matches[matchID] {
		for _, data := range frames {
			select {
			case c.Send <- data:
			default:
			}
		}
	}
}

// CloseMatch disconnects every subscriber of a match.
func (h *Hub) CloseMatch(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.matches[matchID] {
		close(c.Send)
	}
	delete(h.matches, matchID)
}

func (h *Hub) Subscribers(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.matches[matchID])
}
