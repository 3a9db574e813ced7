// Package stream はカメラからの連続キャプチャとフィルタ適用、最新フレームの公開を行う
//
// Stream は1台のカメラを所有し、バックグラウンドのゴルーチンで
// 読み取り → フィルタ → チャンネル正規化 → 公開 を繰り返す。
// 公開されたフレームは Slot から任意のゴルーチンで参照できる。
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"visionflow/internal/camera"
	"visionflow/internal/filter"
)

// State はキャプチャループの状態
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// 読み取り失敗後に次の読み取りまで空ける時間
const readRetryDelay = 5 * time.Millisecond

// Options はStreamの設定
type Options struct {
	Registry          *filter.Registry // nil なら filter.Default()
	Opener            camera.Opener
	Index             int
	DefaultFilter     string        // 空なら登録順で最初のフィルタ
	SnapshotDir       string        // 空なら "snapshots"
	StopTimeout       time.Duration // ループ終了の待ち時間 (0 = 1秒)
	MaxReadFailures   int           // 連続読み取り失敗の上限 (0 = 無制限)
	OpenAttempts      int           // デバイスを開く試行回数 (0 = 1回)
	OpenRetryInterval time.Duration
	Logger            *zap.Logger
}

// Stream はカメラ1台分のキャプチャループ
type Stream struct {
	id       string
	opts     Options
	registry *filter.Registry
	logger   *zap.Logger
	slot     *Slot
	filter   atomic.Pointer[string]

	// ライフサイクル操作を直列化する
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	errMu   sync.Mutex
	lastErr error

	// 以下はループのゴルーチンだけが触る
	counter  int64
	fps      float64
	lastRead time.Time

	now func() time.Time
}

// New は新しいStreamを作成する
func New(opts Options) (*Stream, error) {
	if opts.Opener == nil {
		return nil, errors.New("カメラのOpenerが指定されていません")
	}
	if opts.Registry == nil {
		opts.Registry = filter.Default()
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = "snapshots"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = time.Second
	}
	if opts.OpenAttempts < 1 {
		opts.OpenAttempts = 1
	}
	if opts.MaxReadFailures < 0 {
		return nil, fmt.Errorf("無効な連続失敗上限: %d", opts.MaxReadFailures)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	defaultFilter := opts.DefaultFilter
	if defaultFilter == "" {
		names := opts.Registry.Names()
		if len(names) == 0 {
			return nil, errors.New("フィルタが1つも登録されていません")
		}
		defaultFilter = names[0]
	}
	entry, err := opts.Registry.Lookup(defaultFilter)
	if err != nil {
		return nil, fmt.Errorf("既定のフィルタが不正です: %w", err)
	}

	id := uuid.New().String()
	s := &Stream{
		id:       id,
		opts:     opts,
		registry: opts.Registry,
		logger:   opts.Logger.Named("stream").With(zap.String("session", id)),
		slot:     NewSlot(),
		now:      time.Now,
	}
	name := entry.Name
	s.filter.Store(&name)
	return s, nil
}

// ID はログの相関に使うセッションIDを返す
func (s *Stream) ID() string {
	return s.id
}

// Slot は公開フレームの共有領域を返す
func (s *Stream) Slot() *Slot {
	return s.slot
}

// Registry はフィルタの登録表を返す
func (s *Stream) Registry() *filter.Registry {
	return s.registry
}

// SnapshotDir はスナップショットの保存先を返す
func (s *Stream) SnapshotDir() string {
	return s.opts.SnapshotDir
}

// Start はデバイスを開いてキャプチャループを開始する
// 既に動作中なら何もしない
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return nil
	}

	// 前回のループがまだデバイスを解放していなければ待つ
	if s.done != nil {
		timer := time.NewTimer(s.opts.StopTimeout)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			err := fmt.Errorf("前回のキャプチャループが終了していません: %w", ErrDeviceUnavailable)
			s.setLastError(err)
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	dev, err := s.open(ctx)
	if err != nil {
		err = fmt.Errorf("カメラ %d を開けません: %w: %w", s.opts.Index, ErrDeviceUnavailable, err)
		s.setLastError(err)
		return err
	}

	s.setLastError(nil)
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	s.lastRead = time.Time{}

	// ループはリクエストのctxではなく stopCh で止める
	go s.loop(dev, s.stopCh, s.done)

	s.logger.Info("キャプチャを開始しました",
		zap.Int("index", s.opts.Index),
		zap.String("filter", s.Filter()))
	return nil
}

// Stop はキャプチャループに停止を指示し、一定時間まで終了を待つ
// デバイスはループの終了時に解放される
func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		s.logger.Info("キャプチャを停止しました", zap.Int64("frames", s.slot.Stats().Counter))
	case <-timer.C:
		s.logger.Warn("キャプチャループの終了待ちがタイムアウトしました",
			zap.Duration("timeout", s.opts.StopTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// State は現在の状態を返す
// ループが自ら終了した場合は Idle になる
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return StateRunning
	}
	return StateIdle
}

// LastError は直近の開始失敗またはループ終了の原因を返す
func (s *Stream) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// SetFilter は適用するフィルタを切り替える
// 未登録の名前なら選択は変わらず ErrUnknownFilter を返す
func (s *Stream) SetFilter(name string) error {
	entry, err := s.registry.Lookup(name)
	if err != nil {
		return err
	}
	selected := entry.Name
	s.filter.Store(&selected)
	s.logger.Debug("フィルタを切り替えました", zap.String("filter", selected))
	return nil
}

// Filter は選択中のフィルタ名を返す
func (s *Stream) Filter() string {
	return *s.filter.Load()
}

func (s *Stream) runningLocked() bool {
	if !s.running {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Stream) setLastError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// open はデバイスを開く。失敗したら一定間隔で OpenAttempts 回まで試す
func (s *Stream) open(ctx context.Context) (camera.Device, error) {
	var dev camera.Device

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(s.opts.OpenRetryInterval),
			uint64(s.opts.OpenAttempts-1),
		),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		d, err := s.opts.Opener.Open(s.opts.Index)
		if err != nil {
			return err
		}
		dev = d
		return nil
	}, b, func(err error, wait time.Duration) {
		s.logger.Warn("カメラを開けません。再試行します",
			zap.Int("index", s.opts.Index),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// loop はキャプチャループ本体。終了時にデバイスを解放してから done を閉じる
func (s *Stream) loop(dev camera.Device, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := dev.Release(); err != nil {
			s.logger.Warn("デバイスの解放に失敗しました", zap.Error(err))
		}
	}()

	failures := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		raw, err := dev.Read()
		if err != nil {
			failures++
			s.logger.Debug("フレームの読み取りに失敗しました", zap.Int("consecutive", failures), zap.Error(err))

			if s.opts.MaxReadFailures > 0 && failures >= s.opts.MaxReadFailures {
				err = fmt.Errorf("連続 %d 回読み取りに失敗しました: %w", failures, ErrDeviceUnavailable)
				s.setLastError(err)
				s.logger.Error("キャプチャを中断します", zap.Error(err))
				return
			}

			select {
			case <-stopCh:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		failures = 0

		s.process(raw)
	}
}

// process は1フレーム分の統計更新・フィルタ適用・公開を行う
func (s *Stream) process(raw *camera.Frame) {
	s.counter++

	now := s.now()
	if !s.lastRead.IsZero() {
		if elapsed := now.Sub(s.lastRead).Seconds(); elapsed > 0 {
			s.fps = 1 / elapsed
		}
	}
	s.lastRead = now

	name := s.Filter()
	apply, err := s.registry.Get(name)
	if err != nil {
		s.logger.Error("フィルタが見つかりません", zap.String("filter", name), zap.Error(err))
		return
	}

	processed, err := apply(raw)
	if err == nil {
		processed, err = filter.Normalize(processed, raw.Channels)
	}
	if err != nil {
		s.logger.Warn("フィルタの適用に失敗しました",
			zap.String("filter", name),
			zap.Int64("frame", s.counter),
			zap.Error(err))
		return
	}

	s.slot.Publish(raw, processed, s.counter, s.fps)
}
