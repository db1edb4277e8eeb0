package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// TaskUpdate is the message pushed to websocket clients on every task transition.
type TaskUpdate struct {
	Type      string           `json:"type"`
	TaskID    string           `json:"task_id"`
	Status    models.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// WebSocketManager handles WebSocket connections and broadcasts
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
	log        *zap.Logger
}

func NewWebSocketManager(log *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Start runs the manager loop until ctx is done, then closes every client.
func (wsm *WebSocketManager) Start(ctx context.Context) {
	go func() {
		defer close(wsm.done)
		for {
			select {
			case <-ctx.Done():
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.Close()
					delete(wsm.clients, client)
				}
				wsm.mu.Unlock()
				return

			case client := <-wsm.register:
				wsm.mu.Lock()
				wsm.clients[client] = true
				count := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.log.Debug("websocket client connected", zap.Int("clients", count))

			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				count := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.log.Debug("websocket client disconnected", zap.Int("clients", count))

			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.SetWriteDeadline(time.Now().Add(writeWait))
					if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
						wsm.log.Debug("dropping websocket client", zap.Error(err))
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			}
		}
	}()
}

// BroadcastTaskUpdate queues an update for every connected client. A full
// queue drops the update.
func (wsm *WebSocketManager) BroadcastTaskUpdate(task models.Task) {
	update := TaskUpdate{
		Type:      "task_update",
		TaskID:    task.ID,
		Status:    task.Status,
		Progress:  task.Progress,
		Timestamp: task.UpdatedAt,
	}
	if task.Status == models.StatusFailed {
		update.Error = task.ErrorMessage
	}

	data, err := json.Marshal(update)
	if err != nil {
		wsm.log.Warn("failed to marshal task update", zap.Error(err))
		return
	}

	select {
	case wsm.broadcast <- data:
	default:
		wsm.log.Debug("websocket broadcast queue full", zap.String("task_id", task.ID))
	}
}

// RegisterClient adds conn to the broadcast set. After shutdown conn is closed instead.
func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	select {
	case wsm.register <- conn:
	case <-wsm.done:
		conn.Close()
	}
}

func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}

// ClientCount is the number of connected clients.
func (wsm *WebSocketManager) ClientCount() int {
	wsm.mu.Lock()
	defer wsm.mu.Unlock()
	return len(wsm.clients)
}
