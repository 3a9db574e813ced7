package stream

import (
	"fmt"
	"sync"

	"visionflow/internal/camera"
)

// noDataText はまだフレームが公開されていないときの状態表示
const noDataText = "Нет данных"

// Stats は公開済みフレームの統計
type Stats struct {
	Counter int64   `json:"counter"`
	FPS     float64 `json:"fps"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// Slot は最新フレームを1つだけ保持する共有領域
// 生フレーム・処理済みフレーム・カウンタ・FPSは常にまとめて更新される
type Slot struct {
	mu        sync.Mutex
	raw       *camera.Frame
	processed *camera.Frame
	counter   int64
	fps       float64
}

// NewSlot は空のSlotを作成する
func NewSlot() *Slot {
	return &Slot{}
}

// Publish は最新フレームを置き換える
// 渡したフレームは以後書き換えてはならない
func (s *Slot) Publish(raw, processed *camera.Frame, counter int64, fps float64) {
	s.mu.Lock()
	s.raw = raw
	s.processed = processed
	s.counter = counter
	s.fps = fps
	s.mu.Unlock()
}

// LatestProcessed は処理済みフレームのコピーを返す。未公開ならnil
func (s *Slot) LatestProcessed() *camera.Frame {
	s.mu.Lock()
	f := s.processed
	s.mu.Unlock()

	// 公開済みフレームは不変なのでロック外でコピーしてよい
	return f.Clone()
}

// StatusText は表示用の1行の状態文字列を返す
func (s *Slot) StatusText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raw == nil {
		return noDataText
	}
	return fmt.Sprintf("Кадр: %dx%d, FPS: %.1f, Всего кадров: %d", s.raw.Width, s.raw.Height, s.fps, s.counter)
}

// Stats は公開済みの統計を返す
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Counter: s.counter, FPS: s.fps}
	if s.raw != nil {
		st.Width = s.raw.Width
		st.Height = s.raw.Height
	}
	return st
}

// HasFrame は1度でもフレームが公開されたかを返す
func (s *Slot) HasFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed != nil
}
