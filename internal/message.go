package internal

import (
	"encoding/json"
	"time"
)

// 訊息類型（wire 層的 type 判別欄位）
const (
	TypeEvent     = "event"      // 伺服器發起的事件
	TypeError     = "error"      // 伺服器回報的錯誤
	TypeGameState = "game-state" // 遊戲狀態變更（會更新快取）
)

// 伺服器事件名稱（放在 data.name）
const (
	EventRoomCreated     = "room-created"
	EventRoomJoined      = "room-joined"
	EventHostReconnected = "host-reconnected"
	EventReactivated     = "reactivated"
	EventHibernated      = "hibernated"
	EventMemberJoined    = "member-joined"
	EventMemberLeft      = "member-left"
)

// Message 雙向通用的訊息封包
//
// 設計考量：
//   - Data 使用 json.RawMessage：伺服器大多數情況只做轉發，
//     不需要理解內容，保持原樣透傳（避免解析再序列化造成欄位丟失）
//   - Timestamp 由伺服器在送出時蓋章（毫秒）
//   - Src 由路由器在轉發時蓋章，伺服器自己發起的事件不帶 Src
//   - Dst 有值且為同房間成員時走單播，否則廣播
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Src       string          `json:"src,omitempty"`
	Dst       string          `json:"dst,omitempty"`
}

// GameState 快取的共享遊戲狀態快照
//
// 已知的頂層欄位採用 json.RawMessage：
//   - 伺服器不驗證內容形狀，只做逐欄位的整體覆寫
//     （陣列與巢狀結構整個替換，不做深度合併）
//   - 未知欄位直接忽略（盡力而為的快取，不是權威儲存）
type GameState struct {
	Scenes      json.RawMessage `json:"scenes,omitempty"`
	Characters  json.RawMessage `json:"characters,omitempty"`
	ActiveScene json.RawMessage `json:"activeScene,omitempty"`
	Initiative  json.RawMessage `json:"initiative,omitempty"`
}

// Merge 將補丁中出現的欄位覆寫到快取
func (s *GameState) Merge(patch *GameState) {
	if patch.Scenes != nil {
		s.Scenes = patch.Scenes
	}
	if patch.Characters != nil {
		s.Characters = patch.Characters
	}
	if patch.ActiveScene != nil {
		s.ActiveScene = patch.ActiveScene
	}
	if patch.Initiative != nil {
		s.Initiative = patch.Initiative
	}
}

// newEventMessage 構造伺服器事件封包
func newEventMessage(data map[string]any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      TypeEvent,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// newErrorMessage 構造錯誤封包（訊息為人類可讀的字串，不暴露錯誤碼）
func newErrorMessage(message string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"message": message,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      TypeError,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
}
