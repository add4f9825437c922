package internal

import (
	"time"
)

// 系統設計問題：
//   主持人斷線時，房間該立刻解散，還是給一個重連的寬限期？
//
// 核心挑戰：
//   1. 瀏覽器環境斷線頻繁（切分頁、休眠、網路抖動），立刻解散體驗極差
//   2. 寬限期內狀態必須保得住（場景、角色、先攻表），重連後無縫恢復
//   3. 計時器與重連事件會競爭（誰先到誰贏，輸家必須是安全的 no-op）
//   4. 廢棄的房間要徹底回收（連線、計時器、記憶體）
//
// 設計方案：
//   ✅ 休眠模型 - active → hibernating → abandoned（刪除）
//   ✅ hibernating → active 是唯一的回邊（重連 / 玩家加入觸發）
//   ✅ 單一計時器 + 世代編號 - 任何改變狀態的轉換都讓舊計時器失效
//   ✅ abandoned 即刪除 - 不保留殭屍記錄

// RoomStatus 房間狀態
//
// 狀態轉換規則：
//   - active → hibernating：主持人斷線（非主持人斷線不改變狀態）
//   - hibernating → active：主持人重連，或玩家加入（主持人位置保持空缺）
//   - hibernating → abandoned：寬限計時器到期，房間當場從 Store 刪除
//   - active → abandoned 不存在：房間失去主持人後一定先經過休眠
type RoomStatus string

const (
	StatusActive      RoomStatus = "active"
	StatusHibernating RoomStatus = "hibernating"
	StatusAbandoned   RoomStatus = "abandoned" // 瞬態：到達即刪除
)

// Room 一場進行中的遊戲房間
//
// 不變量：
//   - active 房間恰有一個 HostConnectionID，且它是 Members 的成員
//   - hibernating 房間沒有主持人，仍可有 ≥0 個玩家掛在上面
//
// 所有欄位只由 Manager 在持鎖的情況下讀寫；Room 自己沒有鎖。
// 計時器的世代編號（timerGen）是「任何改變狀態的轉換都要讓舊計時器
// 失效」這條規則的實現：轉換時遞增編號，計時器回調比對編號，
// 對不上就當作已被取代，直接返回。
type Room struct {
	Code             string
	HostConnectionID string
	Members          map[string]struct{}
	Status           RoomStatus
	CachedGameState  GameState
	CreatedAt        time.Time
	LastActivityAt   time.Time

	hibernateTimer *time.Timer
	timerGen       uint64
}

// NewRoom 創建新房間（初始即為 active，創建者為主持人）
func NewRoom(code, hostConnectionID string) *Room {
	now := time.Now()
	return &Room{
		Code:             code,
		HostConnectionID: hostConnectionID,
		Members:          map[string]struct{}{hostConnectionID: {}},
		Status:           StatusActive,
		CreatedAt:        now,
		LastActivityAt:   now,
	}
}

// touch 更新最後活動時間（每條入站訊息、每次成員變動都要呼叫）
func (r *Room) touch() {
	r.LastActivityAt = time.Now()
}

// hibernate 進入休眠：清空主持人並武裝寬限計時器
//
// 回調收到本次武裝的世代編號，觸發時用它確認自己沒有被取代。
func (r *Room) hibernate(grace time.Duration, fire func(gen uint64)) {
	r.disarmTimer()
	r.Status = StatusHibernating
	r.HostConnectionID = ""
	r.touch()

	gen := r.timerGen
	r.hibernateTimer = time.AfterFunc(grace, func() {
		fire(gen)
	})
}

// reactivate 從休眠恢復為 active
//
// hostConnectionID 可為空字串：玩家加入休眠房間時房間復活，
// 但主持人位置保持空缺，直到有主持人專門重連進來。
func (r *Room) reactivate(hostConnectionID string) {
	r.disarmTimer()
	r.Status = StatusActive
	if hostConnectionID != "" {
		r.HostConnectionID = hostConnectionID
	}
	r.touch()
}

// disarmTimer 解除計時器並讓尚未觸發的回調失效
func (r *Room) disarmTimer() {
	r.timerGen++
	if r.hibernateTimer != nil {
		r.hibernateTimer.Stop()
		r.hibernateTimer = nil
	}
}

// timerCurrent 計時器回調用：確認世代編號仍然有效
func (r *Room) timerCurrent(gen uint64) bool {
	return r.timerGen == gen && r.Status == StatusHibernating
}

// addMember 加入成員
func (r *Room) addMember(connectionID string) {
	r.Members[connectionID] = struct{}{}
	r.touch()
}

// removeMember 移除成員（不在名單內為 no-op）
func (r *Room) removeMember(connectionID string) {
	delete(r.Members, connectionID)
	r.touch()
}

// isMember 檢查連線是否為房間成員
func (r *Room) isMember(connectionID string) bool {
	_, ok := r.Members[connectionID]
	return ok
}

// memberIDs 成員 ID 快照
func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	return ids
}
