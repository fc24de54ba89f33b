package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Экраны кухни открываются с разных хостов внутри филиала
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS подключает экран кухни. Первое сообщение - текущий снимок станций и тревог.
func (kc *KitchenController) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ Ошибка обновления WebSocket соединения: %v", err)
		return
	}

	if payload, err := envelope("snapshot", kc.monitor.Snapshot()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			return
		}
	}

	kc.hub.AddClient(conn)
	log.Printf("📱 Экран кухни подключен. Всего подключений: %d", kc.hub.GetClientsCount())

	defer func() {
		kc.hub.RemoveClient(conn)
		log.Printf("📱 Экран кухни отключен. Осталось подключений: %d", kc.hub.GetClientsCount())
	}()

	// Читаем сообщения от клиента (ping/pong для поддержания соединения)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket ошибка: %v", err)
			}
			break
		}
	}
}
