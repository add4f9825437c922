// Package relay 提供桌遊虛擬桌面的多人會話協調服務器。
//
// 這是一個有狀態的 WebSocket 中繼：管理遊戲「房間」、追蹤存活連線、
// 以休眠（寬限期）模型處理主持人的斷線與重連，並把遊戲狀態變更事件
// 以至少一次、盡力而為的語義扇出給所有參與者。
//
// 房間生命週期
//
// 房間以 4 位英數代碼為鍵，狀態機只有三個狀態：
//   - active：恰有一位主持人，若干玩家
//   - hibernating：主持人斷線後的寬限狀態（預設 10 分鐘），玩家可留守
//   - abandoned：瞬態，到達即從儲存刪除
//
// 主持人重連或玩家加入都會喚醒休眠中的房間；只有主持人重連會補上
// 主持人位置。寬限期到期則強制關閉殘餘連線並刪除房間。另有一道
// 60 分鐘的長視野閒置掃描兜底回收卡住的房間。
//
// # 訊息路由
//
// 入站訊息帶 dst 且 dst 為同房間成員時單播，否則廣播給來源以外的
// 所有成員；轉發時蓋上來源 ID 與伺服器時間戳，內容原樣透傳。
// 交付是 fire-and-forget：慢速或已死的對端在該輪廣播中被略過，
// 不會阻塞其他接收者。game-state 類型的訊息會順帶合併進房間的
// 狀態快取，供之後加入／重連的客戶端開局。
//
// 並發模型
//
// 所有房間／連線狀態變更序列化在協調器的單一互斥鎖之下，處理函數
// 跑完才輪到下一個事件，每次狀態轉換因此是原子的。休眠計時器的
// 回調也走同一把鎖，與重連事件的競爭是單純的先後問題：輸家檢查
// 當前狀態與計時器世代後直接返回。
//
// 安全取捨
//
// 主持人重連只比對房間代碼，不驗證重連方是否為原主持人（沒有
// token 或秘密）。在隨興的桌遊場景下這是有意接受的取捨，
// 而不是待修補的漏洞；部署在不受信任的環境前應重新評估。
//
// 狀態只存在於記憶體：服務器重啟後房間不復存在，
// 持久化與跨程序的水平擴展都不在此核心的範圍內。
package relay
