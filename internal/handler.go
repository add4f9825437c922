package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler HTTP 請求處理器
//
// 這個核心只有兩個外部介面：WebSocket 升級端點（連線意圖走查詢
// 參數）與同步的健康檢查端點，不提供其他 REST 表面。
type Handler struct {
	manager  *Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler 創建 HTTP 處理器
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /ws", h.recoverer(h.serveWS))

	return mux
}

// ParseIntent 從連線請求的查詢參數解析初始意圖
//
// host / join / reconnect 三個參數擇一生效（依此優先序檢查），
// 一個都沒帶的連線視同「host 無代碼」：預設成為新房間的主持人。
func ParseIntent(query url.Values) Intent {
	name := query.Get("name")

	switch {
	case query.Has("host"):
		return Intent{Kind: IntentHost, Code: query.Get("host"), Name: name}
	case query.Has("join"):
		return Intent{Kind: IntentJoin, Code: query.Get("join"), Name: name}
	case query.Has("reconnect"):
		return Intent{Kind: IntentReconnect, Code: query.Get("reconnect"), Name: name}
	default:
		return Intent{Kind: IntentHost, Name: name}
	}
}

// serveWS 處理 WebSocket 連線
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	intent := ParseIntent(r.URL.Query())

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := NewConnection(uuid.New().String(), ws, h.manager.config.Session.SendBuffer)

	// 先跑完初始流程再啟動讀取，避免入站訊息搶在意圖處理之前；
	// 流程產生的回覆只進外送緩衝，writePump 啟動後才真正送出
	h.manager.HandleConnect(conn, intent)

	go conn.writePump(h.manager)
	go conn.readPump(h.manager)

	h.logger.Info("WebSocket 連線建立",
		"connection_id", conn.ID,
		"intent", intent.Kind)
}

// health 健康檢查：回報房間數與連線數
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status":      "ok",
		"rooms":       h.manager.RoomCount(),
		"connections": h.manager.ConnectionCount(),
	}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.jsonResponse(w, map[string]any{
					"error": "內部伺服器錯誤",
				}, http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
