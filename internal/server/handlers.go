package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visionflow/internal/session"
	"visionflow/internal/stream"
)

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// FiltersResponse はフィルタ一覧の応答
type FiltersResponse struct {
	Filters  []session.FilterInfo `json:"filters"`
	Selected string               `json:"selected"`
}

// SelectFilterRequest はフィルタ選択のリクエスト
type SelectFilterRequest struct {
	Name string `json:"name" binding:"required"`
}

// handleIndex はビューアのページを返す
func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML())
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus は現在の状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Status())
}

// handleFilters はフィルタ一覧を返す
func (s *Server) handleFilters(c *gin.Context) {
	c.JSON(http.StatusOK, FiltersResponse{
		Filters:  s.session.Filters(),
		Selected: s.session.Stream().Filter(),
	})
}

// handleDevices はカメラデバイス一覧を返す
func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.session.Devices(c.Request.Context())
	if err != nil {
		s.logger.Error("デバイスのスキャンに失敗しました", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "scan_failed",
			Message:   "デバイスのスキャンに失敗しました",
			Details:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// handleStart はキャプチャを開始する
func (s *Server) handleStart(c *gin.Context) {
	respondResult(c, s.session.Start(c.Request.Context()), http.StatusOK)
}

// handleStop はキャプチャを停止する
func (s *Server) handleStop(c *gin.Context) {
	respondResult(c, s.session.Stop(c.Request.Context()), http.StatusOK)
}

// handleSelectFilter はフィルタを切り替える
func (s *Server) handleSelectFilter(c *gin.Context) {
	var req SelectFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "リクエストが不正です",
			Details:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	respondResult(c, s.session.SelectFilter(req.Name), http.StatusOK)
}

// handleTakeSnapshot はスナップショットを保存する
func (s *Server) handleTakeSnapshot(c *gin.Context) {
	respondResult(c, s.session.TakeSnapshot(), http.StatusCreated)
}

// handleListSnapshots は保存済みスナップショットを返す
func (s *Server) handleListSnapshots(c *gin.Context) {
	snapshots, err := s.session.Snapshots()
	if err != nil {
		s.logger.Error("スナップショット一覧の取得に失敗しました", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "list_failed",
			Message:   "スナップショット一覧の取得に失敗しました",
			Details:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// ヘルパー関数

// respondResult は操作結果を応答する
func respondResult(c *gin.Context, res session.Result, okStatus int) {
	if res.OK {
		c.JSON(okStatus, res)
		return
	}
	c.JSON(statusFor(res.Err), res)
}

// statusFor はエラーをHTTPステータスに対応付ける
func statusFor(err error) int {
	switch {
	case errors.Is(err, stream.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, stream.ErrUnknownFilter):
		return http.StatusBadRequest
	case errors.Is(err, stream.ErrNoFrameAvailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
