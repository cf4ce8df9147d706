package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/train-control-panel/backend/internal/hub"
	"github.com/train-control-panel/backend/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler handles WebSocket connections for the control panel.
type Handler struct {
	pool       *Pool
	registry   *hub.Registry
	dispatcher *hub.Dispatcher
}

// NewHandler creates a new WebSocket handler.
func NewHandler(pool *Pool, registry *hub.Registry, dispatcher *hub.Dispatcher) *Handler {
	h := &Handler{
		pool:       pool,
		registry:   registry,
		dispatcher: dispatcher,
	}
	pool.SetOnMessage(h.handleMessage)
	return h
}

// HandleConnection upgrades the HTTP connection to WebSocket, sends the
// initial hub list, and starts the read and write pumps.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(h.pool, conn)
	h.pool.Register(client)

	h.sendInit(client)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// sendInit sends the full hub list so a fresh client can render the
// panel without a separate fetch.
func (h *Handler) sendInit(client *Client) {
	msg := &Message{
		Type: MessageTypeInit,
		Hubs: h.registry.Snapshots(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal init message: %v", err)
		return
	}

	client.Send(data)
}

// handleMessage processes incoming messages from clients.
func (h *Handler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeSpeed:
		h.handleSpeed(client, msg)
	case MessageTypeSpeedAll:
		h.handleSpeedAll(client, msg)
	case MessageTypeStop:
		if err := h.dispatcher.Stop(msg.HubID); err != nil {
			h.sendError(client, err)
		}
	case MessageTypeStopAll:
		h.dispatcher.StopAll()
	case MessageTypePing:
		h.handlePing(client)
	}
}

func (h *Handler) handleSpeed(client *Client, msg *Message) {
	if msg.Speed == nil {
		h.sendError(client, model.ErrInvalidCommand)
		return
	}
	if err := h.dispatcher.Command(msg.HubID, *msg.Speed); err != nil {
		h.sendError(client, err)
	}
}

func (h *Handler) handleSpeedAll(client *Client, msg *Message) {
	if msg.Speed == nil {
		h.sendError(client, model.ErrInvalidCommand)
		return
	}
	if _, err := h.dispatcher.CommandAll(*msg.Speed); err != nil {
		h.sendError(client, err)
	}
}

// handlePing handles ping messages from the client.
func (h *Handler) handlePing(client *Client) {
	msg := &Message{Type: MessageTypePong}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.Send(data)
}

func (h *Handler) sendError(client *Client, err error) {
	msg := &Message{
		Type:  MessageTypeError,
		Error: err.Error(),
	}
	data, marshalErr := json.Marshal(msg)
	if marshalErr != nil {
		return
	}
	client.Send(data)
}

// BroadcastState pushes one hub's snapshot to every client.
func (h *Handler) BroadcastState(snap model.HubSnapshot) {
	msg := &Message{
		Type:  MessageTypeState,
		HubID: snap.ID,
		Hub:   &snap,
	}
	if err := h.pool.BroadcastMessage(msg); err != nil {
		log.Printf("Failed to broadcast state for hub %s: %v", snap.ID, err)
	}
}

// readPump pumps messages from the WebSocket connection to the pool.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.pool.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			continue
		}

		h.pool.HandleMessage(client, &msg)
	}
}

// writePump pumps messages from the pool to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The pool closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Send each message in a separate WebSocket frame
			// so JSON.parse() works correctly on the frontend
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queuedMsg := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queuedMsg); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
