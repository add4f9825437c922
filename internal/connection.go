package internal

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Role 連線在房間中的角色
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// User 連線的使用者描述，角色確定後才會設置
type User struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Connection 一條存活的 WebSocket 連線
//
// 設計考量：
//
//  1. 異步發送（Send channel）：
//     - 業務邏輯只把訊息丟進緩衝 channel，不直接寫 socket
//     - writePump 單一 goroutine 消費，避免 gorilla 的並發寫入限制
//     - 緩衝滿時直接略過（fire-and-forget，慢客戶端不拖累整個房間）
//
//  2. 狀態歸屬：
//     - RoomCode / User 只由 Manager 在持有鎖的情況下讀寫
//     - 底層 transport 只由 writePump / readPump 觸碰
//
//  3. closeOnce：
//     - Send channel 只能關閉一次（斷線處理與房間廢棄可能同時到達）
type Connection struct {
	ID       string
	RoomCode string
	User     *User

	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewConnection 創建連線物件（ws 在單元測試中可為 nil）
func NewConnection(id string, ws *websocket.Conn, sendBuffer int) *Connection {
	return &Connection{
		ID:   id,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

// Outbox 取得外送佇列（測試用：讀取伺服器發給此連線的訊息）
func (c *Connection) Outbox() <-chan []byte {
	return c.send
}

// enqueue 非阻塞送出
//
// 這是系統的背壓策略：transport 已關閉或緩衝已滿的連線
// 會被本次發送略過（不重試、不回報錯誤、不阻塞其他接收者）。
func (c *Connection) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// shutdown 關閉連線（只能在 Manager 持鎖的路徑呼叫）
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// 心跳配置
//
// 54 秒 Ping / 60 秒讀取超時：
//   - 很多代理預設 60 秒閒置超時，54 秒確保在超時前送出 Ping
//   - 收到 Pong 就延長讀取期限，60 秒內毫無音訊則視為死連接
const (
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// readPump 讀取客戶端訊息
//
// 收到的每一條訊息交給 Manager 路由；讀取錯誤（包含對端關閉）
// 一律走斷線處理：transport 錯誤與正常關閉在這裡沒有區別。
func (c *Connection) readPump(m *Manager) {
	defer func() {
		m.HandleDisconnect(c.ID)
	}()

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		m.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				m.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"connection_id", c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			m.Route(c.ID, message)
		}
	}
}

// writePump 寫入訊息到客戶端，並定期發送 Ping
func (c *Connection) writePump(m *Manager) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				m.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Manager 關閉了佇列，送出關閉幀後結束
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出佇列裡剩餘的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				m.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
