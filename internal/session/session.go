// Package session は利用者の操作を受け付け、結果を表示用の文言にして返す
//
// Session は Stream と Viewer をまとめて扱い、開始・停止・フィルタ選択・
// スナップショット保存の各操作の成否を Result で返す。
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"visionflow/internal/camera"
	"visionflow/internal/stream"
	"visionflow/internal/viewer"
)

// 結果のタイトル
const (
	TitleError         = "Ошибка"
	TitleFilterError   = "Ошибка фильтра"
	TitleSnapshotError = "Не удалось сохранить"
	TitleSnapshotSaved = "Снимок сохранён"
)

// Result は操作の結果
type Result struct {
	OK      bool   `json:"ok"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
	Err     error  `json:"-"`
}

// FilterInfo はフィルタの表示情報
type FilterInfo struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Status は現在の状態
type Status struct {
	SessionID string       `json:"session_id"`
	State     stream.State `json:"state"`
	Filter    string       `json:"filter"`
	Text      string       `json:"text"`
	Stats     stream.Stats `json:"stats"`
	LastError string       `json:"last_error,omitempty"`
}

// Session は1台のカメラに対する操作の窓口
type Session struct {
	stream    *stream.Stream
	viewer    *viewer.Viewer
	discovery camera.Discovery
	logger    *zap.Logger
}

// New は新しいSessionを作成する
func New(s *stream.Stream, v *viewer.Viewer, discovery camera.Discovery, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		stream:    s,
		viewer:    v,
		discovery: discovery,
		logger:    logger.Named("session").With(zap.String("session", s.ID())),
	}
}

// Stream は操作対象のStreamを返す
func (s *Session) Stream() *stream.Stream {
	return s.stream
}

// Viewer は表示更新のViewerを返す
func (s *Session) Viewer() *viewer.Viewer {
	return s.viewer
}

// Start はキャプチャと表示更新を開始する
func (s *Session) Start(ctx context.Context) Result {
	if err := s.stream.Start(ctx); err != nil {
		s.logger.Error("キャプチャの開始に失敗しました", zap.Error(err))
		return failure(TitleError, err)
	}
	s.viewer.Start()
	return Result{OK: true, Message: "Стрим запущен"}
}

// Stop は表示更新を止めてからキャプチャを停止する
func (s *Session) Stop(ctx context.Context) Result {
	s.viewer.Stop()
	if err := s.stream.Stop(ctx); err != nil {
		s.logger.Error("キャプチャの停止に失敗しました", zap.Error(err))
		return failure(TitleError, err)
	}
	return Result{OK: true, Message: "Стрим остановлен"}
}

// SelectFilter はフィルタを切り替える
func (s *Session) SelectFilter(name string) Result {
	if err := s.stream.SetFilter(name); err != nil {
		s.logger.Warn("フィルタを切り替えられません", zap.String("filter", name), zap.Error(err))
		return Result{
			Title:   TitleFilterError,
			Message: fmt.Sprintf("Неизвестный фильтр: %s", name),
			Err:     err,
		}
	}

	entry, _ := s.stream.Registry().Lookup(s.stream.Filter())
	return Result{OK: true, Message: entry.Label}
}

// TakeSnapshot は現在のフレームを保存する
func (s *Session) TakeSnapshot() Result {
	path, err := s.stream.Snapshot()
	if err != nil {
		return failure(TitleSnapshotError, err)
	}
	return Result{
		OK:      true,
		Title:   TitleSnapshotSaved,
		Message: "Файл: " + path,
		Path:    path,
	}
}

// Filters はフィルタ一覧を登録順で返す
func (s *Session) Filters() []FilterInfo {
	selected := s.stream.Filter()
	entries := s.stream.Registry().Entries()

	filters := make([]FilterInfo, 0, len(entries))
	for _, e := range entries {
		filters = append(filters, FilterInfo{
			Name:     e.Name,
			Label:    e.Label,
			Selected: e.Name == selected,
		})
	}
	return filters
}

// Devices はシステムのカメラデバイスを返す
func (s *Session) Devices(ctx context.Context) ([]camera.DeviceInfo, error) {
	if s.discovery == nil {
		return []camera.DeviceInfo{}, nil
	}
	return s.discovery.ScanDevices(ctx)
}

// Snapshots は保存済みスナップショットを新しい順に返す
func (s *Session) Snapshots() ([]stream.SnapshotInfo, error) {
	return s.stream.ListSnapshots()
}

// Status は現在の状態を返す
func (s *Session) Status() Status {
	st := Status{
		SessionID: s.stream.ID(),
		State:     s.stream.State(),
		Filter:    s.stream.Filter(),
		Text:      s.stream.Slot().StatusText(),
		Stats:     s.stream.Slot().Stats(),
	}
	if err := s.stream.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Close は表示更新とキャプチャを停止し、購読を閉じる
func (s *Session) Close(ctx context.Context) error {
	s.viewer.Close()
	return s.stream.Stop(ctx)
}

// failure は失敗の結果を作る
func failure(title string, err error) Result {
	return Result{Title: title, Message: Message(err), Err: err}
}

// Message はエラーを利用者向けの文言にする
func Message(err error) string {
	switch {
	case errors.Is(err, stream.ErrDeviceUnavailable):
		return "Не удалось открыть веб-камеру"
	case errors.Is(err, stream.ErrNoFrameAvailable):
		return "Нет кадра для сохранения"
	case errors.Is(err, stream.ErrUnknownFilter):
		return "Неизвестный фильтр"
	default:
		return err.Error()
	}
}
