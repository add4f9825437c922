package internal_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-relay/internal"
)

// 組一個三人房間：主持人加兩名玩家，並把入場事件清空
func setupRoomWithPlayers(t *testing.T, m *internal.Manager) (code string, host, p1, p2 *internal.Connection) {
	t.Helper()

	host = newTestConn("conn_host")
	code = hostNewRoom(t, m, host)

	p1 = newTestConn("conn_p1")
	m.HandleConnect(p1, internal.Intent{Kind: internal.IntentJoin, Code: code})
	recvEvent(t, p1)   // room-joined
	recvEvent(t, host) // member-joined

	p2 = newTestConn("conn_p2")
	m.HandleConnect(p2, internal.Intent{Kind: internal.IntentJoin, Code: code})
	recvEvent(t, p2)   // room-joined
	recvEvent(t, host) // member-joined
	recvEvent(t, p1)   // member-joined

	return code, host, p1, p2
}

// TestRoute_Broadcast 沒有 dst 的訊息：來源以外的每個成員恰收到一次，
// 來源自己不會收到回聲
func TestRoute_Broadcast(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	_, host, p1, p2 := setupRoomWithPlayers(t, m)

	m.Route(p1.ID, []byte(`{"type":"dice-roll","data":{"result":17}}`))

	for _, conn := range []*internal.Connection{host, p2} {
		msg := recvMessage(t, conn)
		assert.Equal(t, "dice-roll", msg.Type)
		assert.Equal(t, p1.ID, msg.Src) // 路由器蓋上來源 ID
		assert.NotZero(t, msg.Timestamp)
		assert.JSONEq(t, `{"result":17}`, string(msg.Data)) // 內容原樣透傳
	}

	assert.Empty(t, p1.Outbox(), "來源不得收到自己的廣播")
}

// TestRoute_Unicast 有 dst 且 dst 是同房間成員：只有目的地收到
func TestRoute_Unicast(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	_, host, p1, p2 := setupRoomWithPlayers(t, m)

	payload := []byte(`{"type":"whisper","dst":"` + p2.ID + `","data":{"text":"旁白"}}`)
	m.Route(p1.ID, payload)

	msg := recvMessage(t, p2)
	assert.Equal(t, "whisper", msg.Type)
	assert.Equal(t, p1.ID, msg.Src)
	assert.Equal(t, p2.ID, msg.Dst)

	assert.Empty(t, host.Outbox(), "單播不得外溢給其他成員")
	assert.Empty(t, p1.Outbox())
}

// TestRoute_UnknownDst dst 不是同房間成員時退回廣播
func TestRoute_UnknownDst(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	_, host, p1, p2 := setupRoomWithPlayers(t, m)

	m.Route(p1.ID, []byte(`{"type":"whisper","dst":"conn_nobody","data":{}}`))

	for _, conn := range []*internal.Connection{host, p2} {
		msg := recvMessage(t, conn)
		assert.Equal(t, "whisper", msg.Type)
	}
}

// TestRoute_GameStateMerge game-state 訊息更新快取的對應欄位，
// 其餘欄位保持不動，且照常廣播
func TestRoute_GameStateMerge(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	code, host, p1, _ := setupRoomWithPlayers(t, m)

	m.Route(host.ID, []byte(`{"type":"game-state","data":{"scenes":[{"id":"s1"}],"activeScene":"s1"}}`))
	recvMessage(t, p1) // 廣播照常送達

	m.Route(host.ID, []byte(`{"type":"game-state","data":{"activeScene":"s2"}}`))
	recvMessage(t, p1)

	room, ok := m.GetRoom(code)
	require.True(t, ok)
	assert.JSONEq(t, `"s2"`, string(room.CachedGameState.ActiveScene))
	assert.JSONEq(t, `[{"id":"s1"}]`, string(room.CachedGameState.Scenes), "未出現在補丁的欄位不得變動")
	assert.Nil(t, room.CachedGameState.Characters)

	// 之後加入的客戶端在確認訊息裡拿到快取
	late := newTestConn("conn_late")
	m.HandleConnect(late, internal.Intent{Kind: internal.IntentJoin, Code: code})
	data := recvEvent(t, late)
	require.Equal(t, internal.EventRoomJoined, data["name"])

	state, err := json.Marshal(data["gameState"])
	require.NoError(t, err)
	assert.Contains(t, string(state), `"s2"`)
}

// TestRoute_SlowPeerSkipped 外送緩衝已滿的成員被略過，
// 不阻塞同一輪廣播的其他接收者
func TestRoute_SlowPeerSkipped(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	host := newTestConn("conn_host")
	code := hostNewRoom(t, m, host)

	// 緩衝為零的連線：任何發送都會立刻失敗
	stuck := internal.NewConnection("conn_stuck", nil, 0)
	m.HandleConnect(stuck, internal.Intent{Kind: internal.IntentJoin, Code: code})
	recvEvent(t, host) // member-joined

	healthy := newTestConn("conn_healthy")
	m.HandleConnect(healthy, internal.Intent{Kind: internal.IntentJoin, Code: code})
	recvEvent(t, healthy)
	recvEvent(t, host)

	done := make(chan struct{})
	go func() {
		m.Route(host.ID, []byte(`{"type":"event","data":{"name":"ping"}}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("廣播被慢速成員阻塞")
	}

	msg := recvMessage(t, healthy)
	assert.Equal(t, host.ID, msg.Src)
	assert.Empty(t, stuck.Outbox())
}

// TestRoute_Drops 該丟棄的訊息：沒有房間上下文、來源不明、封包壞掉
func TestRoute_Drops(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	code, host, p1, _ := setupRoomWithPlayers(t, m)

	t.Run("unknown source", func(t *testing.T) {
		m.Route("conn_ghost", []byte(`{"type":"event","data":{}}`))
		assert.Empty(t, host.Outbox())
	})

	t.Run("source without room context", func(t *testing.T) {
		// 開房失敗（代碼被占用）的連線沒有房間上下文
		orphan := newTestConn("conn_orphan")
		m.HandleConnect(orphan, internal.Intent{Kind: internal.IntentHost, Code: code})
		recvError(t, orphan)

		m.Route(orphan.ID, []byte(`{"type":"event","data":{}}`))
		assert.Empty(t, host.Outbox())
	})

	t.Run("malformed payload dropped and connection survives", func(t *testing.T) {
		m.Route(p1.ID, []byte(`{not json`))
		assert.Empty(t, host.Outbox())

		// 連線保持開啟，之後的訊息照常路由
		m.Route(p1.ID, []byte(`{"type":"chat","data":{"text":"還在"}}`))
		msg := recvMessage(t, host)
		assert.Equal(t, "chat", msg.Type)
	})

	t.Run("malformed game-state patch still relayed", func(t *testing.T) {
		m.Route(p1.ID, []byte(`{"type":"game-state","data":[1,2,3]}`))
		msg := recvMessage(t, host)
		assert.Equal(t, "game-state", msg.Type)
	})
}

// TestRoute_PerSourceOrdering 單一來源對同一目的地保序
func TestRoute_PerSourceOrdering(t *testing.T) {
	m := internal.NewManager(testConfig(10*time.Minute), testLogger())
	defer m.Stop()

	_, host, p1, _ := setupRoomWithPlayers(t, m)

	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(map[string]any{
			"type": "chat",
			"data": map[string]any{"seq": i},
		})
		m.Route(host.ID, payload)
	}

	for i := 0; i < 10; i++ {
		msg := recvMessage(t, p1)
		var data map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.EqualValues(t, i, data["seq"])
	}
}
