package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabletop-relay/internal"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "config.yaml", "配置檔案路徑")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置檔）")
	)
	flag.Parse()

	// 載入配置
	config, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		config.Server.Port = *port
	}

	// 設置日誌
	logger := setupLogger(config.Log.Level, config.Log.Format)
	slog.SetDefault(logger)

	// 創建會話協調器與 HTTP 處理器
	manager := internal.NewManager(config, logger)
	handler := internal.NewHandler(manager, logger)

	// 創建 HTTP 服務器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  config.Server.ReadTimeout.Std(),
		WriteTimeout: config.Server.WriteTimeout.Std(),
		IdleTimeout:  120 * time.Second,
	}

	// 啟動服務器
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("會話協調服務器啟動",
			"port", config.Server.Port,
			"hibernation_grace", config.Session.HibernationGrace.Std())
		serverErrors <- server.ListenAndServe()
	}()

	// 等待中斷信號或致命錯誤
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			// 程序級的致命條件：有序關閉後退出，
			// 不在可能已損壞的狀態下繼續服務
			logger.Error("服務器錯誤", "error", err)
			manager.Stop()
			os.Exit(1)
		}

	case sig := <-shutdown:
		logger.Info("收到關閉信號，開始優雅關閉", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 停止接受新連接
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("服務器關閉失敗", "error", err)
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("強制關閉服務器失敗", "error", closeErr)
			}
		}

		// 解除所有計時器、關閉所有連線、清空記憶體狀態
		manager.Stop()
	}

	logger.Info("服務器已關閉")
}

// loadConfig 載入配置檔案，檔案不存在時使用預設配置
func loadConfig(path string) (*internal.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return internal.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return internal.LoadConfig(data)
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
