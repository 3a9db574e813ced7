// Package viewer は公開済みフレームを一定間隔で取り出し、JPEGにして購読者へ配る
//
// Viewer はキャプチャが動いている間だけ動作する表示用のティッカーで、
// ブラウザ向けのMJPEG配信や状態表示の供給源になる。
// 購読者のバッファが一杯のときは最も古い更新を捨てる。
package viewer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"visionflow/internal/camera"
)

// 既定値
const (
	DefaultInterval    = 33 * time.Millisecond
	DefaultJPEGQuality = 80
	DefaultBuffer      = 2
)

// Source は表示するフレームと状態文字列の供給元
type Source interface {
	LatestProcessed() *camera.Frame
	StatusText() string
}

// Update は1回の表示更新
type Update struct {
	JPEG   []byte // まだフレームがなければnil
	Status string
	Time   time.Time
}

// Subscription は更新の購読
type Subscription struct {
	ID string
	C  <-chan Update
	ch chan Update
}

// Options はViewerの設定
type Options struct {
	Interval    time.Duration
	JPEGQuality int
	Buffer      int // 購読者ごとのバッファ数
	Logger      *zap.Logger
}

// Viewer は表示更新のティッカー
type Viewer struct {
	source Source
	opts   Options
	logger *zap.Logger
	encode func(*camera.Frame, int) ([]byte, error)

	mu      sync.Mutex
	subs    map[string]*Subscription
	latest  *Update
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New は新しいViewerを作成する
func New(source Source, opts Options) *Viewer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.Buffer < 1 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Viewer{
		source: source,
		opts:   opts,
		logger: opts.Logger.Named("viewer"),
		encode: camera.EncodeJPEG,
		subs:   make(map[string]*Subscription),
	}
}

// Start は更新ティッカーを開始する。動作中なら何もしない
func (v *Viewer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return
	}
	v.running = true
	v.stopCh = make(chan struct{})
	v.done = make(chan struct{})

	go v.run(v.stopCh, v.done)
	v.logger.Debug("表示更新を開始しました", zap.Duration("interval", v.opts.Interval))
}

// Stop は更新ティッカーを停止し、終了を待つ
// 購読は維持される
func (v *Viewer) Stop() {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	v.running = false
	close(v.stopCh)
	done := v.done
	v.mu.Unlock()

	<-done
	v.logger.Debug("表示更新を停止しました")
}

// Running はティッカーが動作中かを返す
func (v *Viewer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// Subscribe は更新を購読する
// 直近の更新があれば最初に届く
func (v *Viewer) Subscribe() *Subscription {
	ch := make(chan Update, v.opts.Buffer)
	sub := &Subscription{
		ID: uuid.New().String(),
		C:  ch,
		ch: ch,
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.subs[sub.ID] = sub
	if v.latest != nil {
		ch <- *v.latest
	}
	v.logger.Debug("購読を追加しました", zap.String("subscriber", sub.ID), zap.Int("subscribers", len(v.subs)))
	return sub
}

// Unsubscribe は購読を解除し、チャンネルを閉じる
func (v *Viewer) Unsubscribe(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sub, ok := v.subs[id]
	if !ok {
		return
	}
	delete(v.subs, id)
	close(sub.ch)
	v.logger.Debug("購読を解除しました", zap.String("subscriber", id), zap.Int("subscribers", len(v.subs)))
}

// Subscribers は購読者数を返す
func (v *Viewer) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Latest は直近の更新を返す
func (v *Viewer) Latest() (Update, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest == nil {
		return Update{}, false
	}
	return *v.latest, true
}

// Close はティッカーを止め、全ての購読を閉じる
func (v *Viewer) Close() {
	v.Stop()

	v.mu.Lock()
	defer v.mu.Unlock()
	for id, sub := range v.subs {
		delete(v.subs, id)
		close(sub.ch)
	}
}

func (v *Viewer) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(v.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			v.tick()
		}
	}
}

// tick は1回分の更新を作って配る
func (v *Viewer) tick() {
	u := Update{
		Status: v.source.StatusText(),
		Time:   time.Now(),
	}

	if frame := v.source.LatestProcessed(); frame != nil {
		data, err := v.encode(frame, v.opts.JPEGQuality)
		if err != nil {
			v.logger.Warn("JPEGへの変換に失敗しました", zap.Error(err))
		} else {
			u.JPEG = data
		}
	}

	v.broadcast(u)
}

func (v *Viewer) broadcast(u Update) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.latest = &u
	for _, sub := range v.subs {
		deliver(sub.ch, u)
	}
}

// deliver は満杯なら最も古い更新を捨ててから送る
// 送信側は broadcast だけなので必ず終わる
func deliver(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
