package internal

import (
	"encoding/json"
	"time"
)

// 訊息路由
//
// 路由規則：
//  1. 解析失敗的封包記錄後丟棄，連線保持開啟（協議錯誤不致命）
//  2. 來源連線沒有房間上下文時靜默丟棄（無處可路由）
//  3. game-state 類型的訊息順帶合併進快取（僅快取副作用，不影響轉發）
//  4. 有 dst 且 dst 是同房間成員 → 單播；否則 → 廣播給來源以外的所有成員
//  5. 轉發時蓋上來源 ID 與新的伺服器時間戳，data 原樣透傳
//
// 交付語義是 fire-and-forget 的盡力而為：單一來源的訊息對同一目的地
// 保序（路由不重排），跨來源之間沒有順序保證。

// Route 路由一條入站訊息
func (m *Manager) Route(srcID string, raw []byte) {
	conn := m.registry.Get(srcID)
	if conn == nil {
		return
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.Warn("丟棄無法解析的訊息",
			"error", err,
			"connection_id", srcID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.RoomCode == "" {
		return
	}
	room, ok := m.store.Get(conn.RoomCode)
	if !ok {
		return
	}

	room.touch()

	// 投機式更新快取：解析不了補丁就只記錄，照常轉發
	if msg.Type == TypeGameState && len(msg.Data) > 0 {
		var patch GameState
		if err := json.Unmarshal(msg.Data, &patch); err != nil {
			m.logger.Warn("遊戲狀態補丁解析失敗",
				"error", err,
				"room_code", room.Code)
		} else {
			room.CachedGameState.Merge(&patch)
		}
	}

	msg.Src = srcID
	msg.Timestamp = time.Now().UnixMilli()

	out, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("序列化轉發訊息失敗", "error", err)
		return
	}

	if msg.Dst != "" && room.isMember(msg.Dst) {
		if dest := m.registry.Get(msg.Dst); dest != nil {
			dest.enqueue(out)
		}
		return
	}

	m.broadcastLocked(room, srcID, out)
}

// broadcastLocked 廣播給 exclude 以外的所有房間成員
//
// transport 不在可寫狀態（已關閉、緩衝已滿）的成員直接略過，
// 不重試、不回報，也不阻塞同一輪廣播的其他接收者。
// 呼叫方必須持有 m.mu。
func (m *Manager) broadcastLocked(room *Room, exclude string, payload []byte) {
	for id := range room.Members {
		if id == exclude {
			continue
		}
		if conn := m.registry.Get(id); conn != nil {
			if !conn.enqueue(payload) {
				m.logger.Warn("連線緩衝已滿，略過本次發送",
					"room_code", room.Code,
					"connection_id", id)
			}
		}
	}
}

// sendEvent 發送伺服器事件給單一連線（呼叫方必須持有 m.mu）
func (m *Manager) sendEvent(conn *Connection, data map[string]any) {
	message, err := newEventMessage(data)
	if err != nil {
		m.logger.Error("序列化事件失敗", "error", err)
		return
	}
	conn.enqueue(message)
}

// sendError 發送錯誤事件給單一連線（呼叫方必須持有 m.mu）
func (m *Manager) sendError(conn *Connection, text string) {
	message, err := newErrorMessage(text)
	if err != nil {
		m.logger.Error("序列化錯誤事件失敗", "error", err)
		return
	}
	conn.enqueue(message)

	m.logger.Info("回報房間錯誤",
		"connection_id", conn.ID,
		"message", text)
}

// broadcastEvent 廣播伺服器事件給房間成員（呼叫方必須持有 m.mu）
func (m *Manager) broadcastEvent(room *Room, exclude string, data map[string]any) {
	message, err := newEventMessage(data)
	if err != nil {
		m.logger.Error("序列化事件失敗", "error", err)
		return
	}
	m.broadcastLocked(room, exclude, message)
}
