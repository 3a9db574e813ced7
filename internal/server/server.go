package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"visionflow/internal/camera"
	"visionflow/internal/config"
	"visionflow/internal/filter"
	"visionflow/internal/session"
	"visionflow/internal/stream"
	"visionflow/internal/viewer"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間
const shutdownTimeout = 5 * time.Second

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	session    *session.Session
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, sess *session.Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	s := &Server{
		config:  cfg,
		session: sess,
		engine:  engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.Named("server"),
	}
	s.setupRoutes()
	return s
}

// Build は設定からカメラ・キャプチャ・表示・操作の各部品を組み立ててServerを作成する
func Build(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	opener, err := camera.NewDriverFactory().CreateOpener(cfg.Camera.Driver, cfg.CameraSettings())
	if err != nil {
		return nil, fmt.Errorf("カメラドライバの作成に失敗: %w", err)
	}

	st, err := stream.New(stream.Options{
		Registry:          filter.Default(),
		Opener:            opener,
		Index:             cfg.Camera.Index,
		DefaultFilter:     cfg.Stream.DefaultFilter,
		SnapshotDir:       cfg.Stream.SnapshotDir,
		StopTimeout:       cfg.Stream.StopTimeout,
		MaxReadFailures:   cfg.Stream.MaxReadFailures,
		OpenAttempts:      cfg.Camera.OpenAttempts,
		OpenRetryInterval: cfg.Camera.OpenRetryInterval,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("キャプチャの作成に失敗: %w", err)
	}

	v := viewer.New(st.Slot(), viewer.Options{
		Interval:    cfg.Viewer.Interval,
		JPEGQuality: cfg.Viewer.JPEGQuality,
		Buffer:      cfg.Viewer.SubscriberBuffer,
		Logger:      logger,
	})

	sess := session.New(st, v, camera.NewLinuxDiscovery(), logger)
	return New(cfg, sess, logger), nil
}

// Handler はHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/filters", s.handleFilters)
		api.GET("/devices", s.handleDevices)

		api.POST("/stream/start", s.handleStart)
		api.POST("/stream/stop", s.handleStop)
		api.PUT("/stream/filter", s.handleSelectFilter)

		api.POST("/snapshots", s.handleTakeSnapshot)
		api.GET("/snapshots", s.handleListSnapshots)
	}

	s.engine.GET("/stream.mjpg", s.handleMJPEG)
	s.engine.GET("/ws/status", s.handleStatusWebSocket)
}

// requestLogger はリクエストごとにアクセスログを出す
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("リクエスト",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		_ = s.session.Close(context.Background())
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はカメラを停止し、サーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 購読を閉じてMJPEG・WebSocketの接続を終わらせる
	if err := s.session.Close(ctx); err != nil {
		s.logger.Warn("キャプチャの停止に失敗しました", zap.Error(err))
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
