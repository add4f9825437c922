package internal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager 會話協調器
//
// 房間 Store 與連線 Registry 的唯一擁有者：明確地在伺服器啟動時
// 構造、關機時清空，不做程序級的全域單例。所有房間／連線狀態的
// 變更都序列化在同一把鎖之下：處理函數跑完才輪到下一個事件，
// 每次狀態轉換因此是原子的。計時器回調也走同一把鎖，
// 「重連」與「計時器到期」的競爭只是單純的先後問題：
// 誰先拿到鎖誰贏，輸家檢查當前狀態與計時器世代後直接返回。
type Manager struct {
	mu       sync.Mutex
	store    *Store
	registry *Registry
	config   *Config
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager 創建會話協調器並啟動閒置掃描
func NewManager(config *Config, logger *slog.Logger) *Manager {
	m := &Manager{
		store:    NewStore(),
		registry: NewRegistry(),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.sweepLoop()

	return m
}

// IntentKind 連線建立時的意圖
type IntentKind string

const (
	IntentHost      IntentKind = "host"
	IntentJoin      IntentKind = "join"
	IntentReconnect IntentKind = "reconnect"
)

// Intent 從連線請求解析出的初始意圖
type Intent struct {
	Kind IntentKind
	Code string
	Name string
}

// HandleConnect 處理新連線：註冊後分派到四種初始流程之一
//
// host 無代碼 → 生成代碼開房；host 帶代碼 → 用該代碼開房（被占用
// 則回報錯誤）；reconnect → 重連路徑；join → 加入路徑。
// 什麼參數都沒帶的連線視同「host 無代碼」。
func (m *Manager) HandleConnect(conn *Connection, intent Intent) {
	m.registry.Register(conn)

	switch intent.Kind {
	case IntentJoin:
		m.joinRoom(conn, intent.Code, intent.Name)
	case IntentReconnect:
		m.reconnectRoom(conn, intent.Code, intent.Name)
	default:
		m.hostRoom(conn, intent.Code, intent.Name)
	}
}

// hostRoom 開新房間
func (m *Manager) hostRoom(conn *Connection, requestedCode, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := NormalizeCode(requestedCode)
	switch {
	case code == "":
		code = m.store.GenerateCode()
	case !ValidCode(code):
		m.sendError(conn, fmt.Sprintf("房間代碼格式不正確: %s", code))
		return
	default:
		if _, taken := m.store.Get(code); taken {
			// 指定代碼已被占用：回報錯誤，不創建房間
			m.sendError(conn, fmt.Sprintf("房間已存在: %s", code))
			return
		}
	}

	room := NewRoom(code, conn.ID)
	m.store.Put(room)

	conn.RoomCode = code
	conn.User = &User{Name: name, Role: RoleHost}

	m.sendEvent(conn, map[string]any{
		"name":     EventRoomCreated,
		"roomCode": code,
		"hostId":   conn.ID,
		"status":   room.Status,
	})

	m.logger.Info("房間已創建",
		"room_code", code,
		"host_connection_id", conn.ID)
}

// joinRoom 以玩家身分加入房間
//
// 加入休眠中的房間會順帶把房間喚醒（這是與主持人重連的不對稱處：
// 兩者都能讓休眠房間復活，但只有重連會補上主持人位置）。
func (m *Manager) joinRoom(conn *Connection, code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(code)
	if !ok {
		m.sendError(conn, fmt.Sprintf("房間不存在: %s", NormalizeCode(code)))
		return
	}

	switch room.Status {
	case StatusAbandoned:
		// 防禦性分支：abandoned 到達即刪除，正常情況查不到這種房間
		m.sendError(conn, fmt.Sprintf("房間暫時無法使用: %s", room.Code))
		return
	case StatusHibernating:
		room.reactivate("")
		m.broadcastEvent(room, "", map[string]any{
			"name":     EventReactivated,
			"roomCode": room.Code,
		})
		m.logger.Info("房間因玩家加入而復活",
			"room_code", room.Code,
			"connection_id", conn.ID)
	}

	room.addMember(conn.ID)
	conn.RoomCode = room.Code
	conn.User = &User{Name: name, Role: RolePlayer}

	m.broadcastEvent(room, conn.ID, map[string]any{
		"name":     EventMemberJoined,
		"id":       conn.ID,
		"userName": name,
	})

	m.sendEvent(conn, map[string]any{
		"name":      EventRoomJoined,
		"roomCode":  room.Code,
		"hostId":    room.HostConnectionID,
		"status":    room.Status,
		"members":   room.memberIDs(),
		"gameState": room.CachedGameState,
	})

	m.logger.Info("玩家加入房間",
		"room_code", room.Code,
		"connection_id", conn.ID)
}

// reconnectRoom 以主持人身分重連
//
// 只比對房間代碼，不驗證重連方是否為原主持人。在隨興的桌遊
// 場景裡這是有意接受的取捨（參見 doc.go）。
func (m *Manager) reconnectRoom(conn *Connection, code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(code)
	if !ok {
		m.sendError(conn, fmt.Sprintf("房間不存在: %s", NormalizeCode(code)))
		return
	}

	if room.HostConnectionID != "" {
		// 房間已有存活的主持人連線，不允許搶位
		m.sendError(conn, fmt.Sprintf("房間暫時無法使用: %s", room.Code))
		return
	}

	room.reactivate(conn.ID)
	room.addMember(conn.ID)
	conn.RoomCode = room.Code
	conn.User = &User{Name: name, Role: RoleHost}

	m.broadcastEvent(room, conn.ID, map[string]any{
		"name":     EventHostReconnected,
		"roomCode": room.Code,
		"hostId":   conn.ID,
	})

	m.sendEvent(conn, map[string]any{
		"name":      EventRoomJoined,
		"roomCode":  room.Code,
		"hostId":    conn.ID,
		"status":    room.Status,
		"members":   room.memberIDs(),
		"gameState": room.CachedGameState,
	})

	m.logger.Info("主持人重連，房間恢復",
		"room_code", room.Code,
		"host_connection_id", conn.ID)
}

// HandleDisconnect 處理連線關閉或出錯
//
// 離開的是主持人 → 房間休眠；一般成員 → 移出名單並廣播離開通知，
// 房間狀態不變。無論哪種情況，連線最後都無條件從註冊表移除。
func (m *Manager) HandleDisconnect(id string) {
	conn := m.registry.Get(id)
	if conn == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.RoomCode != "" {
		if room, ok := m.store.Get(conn.RoomCode); ok && room.isMember(id) {
			room.removeMember(id)

			if room.Status == StatusActive && room.HostConnectionID == id {
				// 主持人斷線：不立即廢棄，進入休眠等待重連
				grace := m.config.Session.HibernationGrace.Std()
				room.hibernate(grace, func(gen uint64) {
					m.onHibernationTimeout(room.Code, gen)
				})

				m.broadcastEvent(room, "", map[string]any{
					"name":            EventHibernated,
					"roomCode":        room.Code,
					"reconnectWindow": grace.Milliseconds(),
				})

				m.logger.Info("主持人斷線，房間進入休眠",
					"room_code", room.Code,
					"grace", grace)
			} else {
				m.broadcastEvent(room, "", map[string]any{
					"name": EventMemberLeft,
					"id":   id,
				})

				m.logger.Info("成員離開房間",
					"room_code", room.Code,
					"connection_id", id)
			}
		}
	}

	m.registry.Remove(id)
	conn.shutdown()
}

// onHibernationTimeout 休眠寬限期到期
//
// 世代編號對不上代表回調在等鎖期間已被重連／復活取代，
// 此時必須是安全的 no-op，不能把房間砍掉或讓它復活。
func (m *Manager) onHibernationTimeout(code string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(code)
	if !ok || !room.timerCurrent(gen) {
		return
	}

	m.abandonLocked(room, "hibernation_timeout")
}

// abandonLocked 廢棄房間：強制關閉殘餘連線並刪除房間記錄
//
// abandoned 是瞬態：設置狀態與刪除記錄發生在同一次操作裡。
// 呼叫方必須持有 m.mu。
func (m *Manager) abandonLocked(room *Room, reason string) {
	room.disarmTimer()
	room.Status = StatusAbandoned

	for _, id := range room.memberIDs() {
		if conn := m.registry.Get(id); conn != nil {
			conn.shutdown()
		}
		m.registry.Remove(id)
	}

	m.store.Delete(room.Code)

	m.logger.Info("房間已廢棄",
		"room_code", room.Code,
		"reason", reason)
}

// sweepLoop 長視野的閒置掃描
//
// 休眠計時器是廢棄的正常路徑；掃描只兜底回收太久沒有任何活動、
// 且不在 active 狀態的房間（例如計時器遺失而卡住的休眠房間），
// 上限由 abandon_after 配置。
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Session.SweepInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCh:
			return
		}
	}
}

// Sweep 執行一輪閒置掃描（公開方法供測試使用）
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.config.Session.AbandonAfter.Std())

	var stale []*Room
	m.store.Each(func(room *Room) {
		// active 房間不在掃描範圍：廢棄一律先經過休眠
		if room.Status == StatusActive {
			return
		}
		if room.LastActivityAt.Before(cutoff) {
			stale = append(stale, room)
		}
	})

	for _, room := range stale {
		m.abandonLocked(room, "idle_sweep")
	}
}

// Stop 停止協調器：解除所有計時器、關閉所有連線、清空狀態
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Each(func(room *Room) {
		room.disarmTimer()
	})
	for _, conn := range m.registry.All() {
		conn.shutdown()
	}
	m.registry.Clear()
	m.store = NewStore()

	m.logger.Info("會話協調器已停止")
}

// GetRoom 查詢房間（測試與健康檢查使用）
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(code)
}

// RoomCount 目前的房間數
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Count()
}

// ConnectionCount 目前的連線數
func (m *Manager) ConnectionCount() int {
	return m.registry.Count()
}
