package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anime-shed/defect-inspector-go/internal/logger"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	// pingPeriod must stay below readTimeout so idle viewers answer before their deadline.
	pingPeriod = readTimeout * 9 / 10
	// broadcastBuffer bounds undelivered events; beyond it new events are dropped.
	broadcastBuffer = 64
)

// Hub fans inspection events out to connected websocket viewers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader

	readTimeout time.Duration
	pingPeriod  time.Duration
}

// NewHub creates a hub accepting viewers from allowedOrigins. An empty list allows any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),

		readTimeout: readTimeout,
		pingPeriod:  pingPeriod,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	log := logger.Component("websocket_hub")
	defer close(h.done)

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.WithField("clients", total).Info("Viewer connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			log.WithField("clients", total).Info("Viewer disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					log.WithError(err).Warn("Error sending event")
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()

		case <-ticker.C:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					log.WithError(err).Debug("Ping failed, dropping viewer")
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Broadcast queues a message for every viewer. It never blocks.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

// GetClientCount returns the number of connected viewers
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the viewer registered until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := logger.Component("websocket_hub")

	connection, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	connection.SetReadLimit(512)
	connection.SetReadDeadline(time.Now().Add(h.readTimeout))
	connection.SetPongHandler(func(string) error {
		connection.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	select {
	case h.register <- connection:
	case <-h.done:
		connection.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- connection:
		case <-h.done:
		}
	}()

	// Viewers only listen; reading drives pong and close handling.
	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			return
		}
	}
}

// WebSocketObserver forwards events to a Hub as JSON
type WebSocketObserver struct {
	hub *Hub
}

// NewWebSocketObserver creates an observer broadcasting on hub
func NewWebSocketObserver(hub *Hub) Observer {
	return &WebSocketObserver{hub: hub}
}

// OnEvent marshals the event and broadcasts it
func (o *WebSocketObserver) OnEvent(ctx context.Context, event InspectionEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		logger.Component("websocket_hub").WithError(err).Error("Cannot encode event")
		return
	}
	if !o.hub.Broadcast(message) {
		logger.Component("websocket_hub").WithField("event_type", event.EventType).Warn("Event dropped, broadcast queue full")
	}
}

// GetObserverName returns the observer name
func (o *WebSocketObserver) GetObserverName() string {
	return "websocket_observer"
}
