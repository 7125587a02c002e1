package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/justinabrahms/chessduel/internal/auth"
	"github.com/justinabrahms/chessduel/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

var ErrBroadcastBufferFull = errors.New("broadcast buffer full")

// Frame is every outbound websocket message.
type Frame struct {
	Topic string      `json:"topic,omitempty"`
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
}

type topicMessage struct {
	topic   string
	payload []byte
}

// Hub fans published payloads out to the clients subscribed to their
// topic. It implements game.Broadcaster.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan topicMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger zerolog.Logger
}

type HubOption func(*Hub)

func WithHubLogger(logger zerolog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// WithBroadcastBuffer sets how many published messages may queue before
// Publish starts dropping.
func WithBroadcastBuffer(n int) HubOption {
	return func(h *Hub) { h.broadcast = make(chan topicMessage, n) }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan topicMessage, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			h.logger.Info().Str("userID", client.userID).Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()

			h.logger.Info().Str("userID", client.userID).Msg("Client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.subscribedTo(msg.topic) {
					continue
				}
				if !client.trySend(msg.payload) {
					h.logger.Warn().
						Str("userID", client.userID).
						Str("topic", msg.topic).
						Msg("Client send buffer full, dropping update")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues payload for every subscriber of topic. It never blocks:
// when the queue is full the update is dropped and an error returned.
func (h *Hub) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(Frame{Topic: topic, Type: game.TopicEvent(topic), Data: payload})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- topicMessage{topic: topic, payload: data}:
		return nil
	default:
		h.logger.Warn().Str("topic", topic).Msg("Broadcast channel full, dropping update")
		return ErrBroadcastBufferFull
	}
}

// add registers a client. It reports false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one websocket connection belonging to an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu            sync.Mutex
	send          chan []byte
	closed        bool
	subscriptions map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		userID:        userID,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]bool),
	}
}

func (c *Client) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = true
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, topic)
}

func (c *Client) subscribedTo(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subscriptions {
		if game.TopicMatches(sub, topic) {
			return true
		}
	}
	return false
}

// trySend queues data without blocking. It reports false if the buffer is
// full or the client has been closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.hub.logger.Error().Err(err).Msg("Failed to marshal frame")
		return
	}
	if !c.trySend(data) {
		c.hub.logger.Warn().Str("userID", c.userID).Str("type", f.Type).Msg("Dropping direct frame")
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads inbound frames and hands them to handle until the
// connection fails.
func (c *Client) readPump(handle func(*Client, []byte), done func()) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error().Err(err).Str("userID", c.userID).Msg("WebSocket error")
			}
			return
		}
		handle(c, message)
	}
}

// writePump writes queued frames, one frame per websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inboundFrame is every message a client may send.
type inboundFrame struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	GameID    string `json:"gameId,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// WebSocketHandler upgrades an authenticated request. The token may come
// from the Authorization header or the token query parameter, since
// browsers cannot set headers on websocket requests.
func (s *Service) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, errMissingToken)
		return
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := claims.UserID()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := newClient(s.hub, conn, userID)
	client.subscribe(game.UserTopic(userID))
	client.subscribe(game.PresenceTopic)
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	ctx := context.Background()
	s.presence.Connected(ctx, userID)

	go client.writePump()
	go client.readPump(s.handleFrame, func() { s.presence.Disconnected(userID) })
}

func (s *Service) handleFrame(c *Client, message []byte) {
	var in inboundFrame
	if err := json.Unmarshal(message, &in); err != nil {
		c.sendFrame(errorFrame(ErrBadRequest))
		return
	}

	ctx := context.Background()
	switch in.Type {
	case "ping":
		c.sendFrame(Frame{Type: "pong"})

	case "subscribe":
		if err := checkSubscription(c.userID, in.Topic); err != nil {
			c.sendFrame(errorFrame(err))
			return
		}
		c.subscribe(in.Topic)
		c.sendFrame(Frame{Topic: in.Topic, Type: "subscribed"})

	case "unsubscribe":
		c.unsubscribe(in.Topic)
		c.sendFrame(Frame{Topic: in.Topic, Type: "unsubscribed"})

	case "move":
		mv, err := s.games.ApplyMove(ctx, game.MoveRequest{
			GameID:    in.GameID,
			PlayerID:  c.userID,
			From:      in.From,
			To:        in.To,
			Promotion: in.Promotion,
		})
		if err != nil {
			c.sendFrame(errorFrame(err))
			return
		}
		c.sendFrame(Frame{Topic: game.MovesTopic(in.GameID), Type: "move-accepted", Data: mv})

	case "resign":
		g, err := s.games.Resign(ctx, in.GameID, c.userID)
		if err != nil {
			c.sendFrame(errorFrame(err))
			return
		}
		c.sendFrame(Frame{Topic: game.ResignedTopic(in.GameID), Type: "resign-accepted", Data: g})

	default:
		c.sendFrame(errorFrame(ErrBadRequest))
	}
}

var (
	errMissingToken   = fmt.Errorf("%w: missing token", auth.ErrInvalidToken)
	errForbiddenTopic = fmt.Errorf("%w: cannot subscribe to another user's topic", ErrBadRequest)
	errUnknownTopic   = fmt.Errorf("%w: unknown topic", ErrBadRequest)
)

// checkSubscription allows game topics, the presence topic and the
// caller's own user topics.
func checkSubscription(userID, topic string) error {
	switch {
	case topic == game.PresenceTopic:
		return nil
	case strings.HasPrefix(topic, "game/") && len(topic) > len("game/"):
		return nil
	case game.TopicMatches(game.UserTopic(userID), topic):
		return nil
	case strings.HasPrefix(topic, "user/"):
		return errForbiddenTopic
	default:
		return errUnknownTopic
	}
}

func errorFrame(err error) Frame {
	body, _ := errorBody(err)
	return Frame{Type: "error", Data: body}
}
