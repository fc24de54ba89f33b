package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kitchenline/server/internal/models"
)

// Hub управляет WebSocket соединениями экранов кухни
type Hub struct {
	name      string
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.RWMutex
}

// NewHub создает хаб. Буфер канала ограничен: при переполнении сообщения пропускаются.
func NewHub(name string) *Hub {
	return &Hub{
		name:      name,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Run рассылает сообщения до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			var failed []*websocket.Conn
			h.mutex.RLock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					failed = append(failed, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range failed {
				h.RemoveClient(client)
			}
		}
	}
}

// AddClient добавляет нового клиента
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

// RemoveClient удаляет клиента
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mutex.Unlock()
}

// BroadcastMessage отправляет сообщение всем подключенным клиентам
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Printf("⚠️ Hub %s: канал переполнен, сообщение пропущено", h.name)
	}
}

// Broadcast оборачивает данные в {type, data, timestamp}
func (h *Hub) Broadcast(messageType string, data interface{}) {
	payload, err := envelope(messageType, data)
	if err != nil {
		log.Printf("⚠️ Hub %s: ошибка маршалинга %s: %v", h.name, messageType, err)
		return
	}
	h.BroadcastMessage(payload)
}

func envelope(messageType string, data interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":      messageType,
		"data":      data,
		"timestamp": time.Now().Unix(),
	})
}

// GetClientsCount возвращает количество подключенных клиентов
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HubNotifier доставляет уведомления на экраны кухни через хаб
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier создает notifier поверх хаба
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// Notify не блокирует: хаб сам отбрасывает сообщения при переполнении
func (n *HubNotifier) Notify(ctx context.Context, notification models.Notification) error {
	n.hub.Broadcast("notification", notification)
	return nil
}
