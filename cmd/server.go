// Package main はVisionFlowサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"visionflow/internal/config"
	"visionflow/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host        = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port        = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath  = flag.String("config", "", "設定ファイル (YAML)")
		device      = flag.Int("device", -1, "カメラのデバイス番号 (デフォルト: 0)")
		driver      = flag.String("driver", "", "カメラドライバ: opencv / v4l2 / x11")
		snapshotDir = flag.String("snapshot-dir", "", "スナップショットの保存先 (デフォルト: snapshots)")
		logLevel    = flag.String("log-level", "", "ログレベル: debug / info / warn / error")
		help        = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("VisionFlow")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *device >= 0 {
		cfg.Camera.Index = *device
	}
	if *driver != "" {
		cfg.Camera.Driver = *driver
	}
	if *snapshotDir != "" {
		cfg.Stream.SnapshotDir = *snapshotDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が無効です: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := server.Build(cfg, logger)
	if err != nil {
		logger.Fatal("サーバーの作成に失敗しました", zap.Error(err))
	}

	// サーバーを起動
	logger.Info("VisionFlow サーバーを起動します",
		zap.String("addr", cfg.ServerAddress()),
		zap.String("driver", cfg.Camera.Driver),
		zap.Int("device", cfg.Camera.Index))
	if err := srv.Start(context.Background()); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
