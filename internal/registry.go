package internal

import "sync"

// Registry 連線註冊表
//
// 只負責「連線 ID → 存活連線」的對應，不知道房間的內部狀態。
// 查無此人一律視為靜默的 no-op（對端早已斷線）。
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry 創建連線註冊表
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// Register 註冊連線
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
}

// Get 查詢連線，不存在時回傳 nil
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Remove 移除連線（不存在時為 no-op）
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Count 目前存活的連線數
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// All 回傳所有連線的快照（關機時逐一關閉用）
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Clear 清空註冊表
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = make(map[string]*Connection)
}
