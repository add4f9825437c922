package internal

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

// 房間代碼：4 個字元，取自 [A-Z0-9]，輸入一律轉大寫
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 4
)

// Store 房間儲存
//
// code → Room 的對應，由 Manager 獨佔持有：所有讀寫都發生在
// Manager 的鎖之下，Store 自己不加鎖。房間記錄的生殺大權在這裡，
// 連線只以 code 弱引用房間（查詢用，不擁有）。
type Store struct {
	rooms map[string]*Room
}

// NewStore 創建房間儲存
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// NormalizeCode 房間代碼正規化（大小寫不敏感，統一轉大寫）
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode 檢查正規化後的代碼是否符合格式（4 個字元，取自 [A-Z0-9]）
func ValidCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// Get 查詢房間
func (s *Store) Get(code string) (*Room, bool) {
	room, ok := s.rooms[NormalizeCode(code)]
	return room, ok
}

// Put 放入房間
func (s *Store) Put(room *Room) {
	s.rooms[room.Code] = room
}

// Delete 刪除房間
func (s *Store) Delete(code string) {
	delete(s.rooms, NormalizeCode(code))
}

// Count 目前存在的房間數
func (s *Store) Count() int {
	return len(s.rooms)
}

// Each 遍歷所有房間（閒置掃描用）
func (s *Store) Each(fn func(room *Room)) {
	for _, room := range s.rooms {
		fn(room)
	}
}

// GenerateCode 產生一個目前未被占用的房間代碼
//
// 反覆抽取直到抽中未占用的代碼。36^4 ≈ 170 萬種組合，
// 現實的房間數量下碰撞機率可以忽略，不另設重試上限。
func (s *Store) GenerateCode() string {
	for {
		code := randomCode(codeLength)
		if _, taken := s.rooms[code]; !taken {
			return code
		}
	}
}

// randomCode 抽取指定長度的代碼
func randomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = codeAlphabet[randInt(len(codeAlphabet))]
	}
	return string(b)
}

// randInt 生成 [0, max) 的均勻亂數
func randInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// 隨機讀取失敗時退回時間作為隨機源
		return int(time.Now().UnixNano()) % max
	}
	return int(n.Int64())
}
