package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// NewTestPattern は画素ごとにB/G/Rが異なる3チャンネルのテスト画像を作成する
func NewTestPattern(width, height int) *Frame {
	f := NewFrame(width, height, 3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px := f.Pixel(x, y)
			px[0] = uint8(40 * x)       // B
			px[1] = uint8(40 * y)       // G
			px[2] = uint8(200 - 10*x*y) // R
		}
	}
	return f
}

// MockDevice はテスト用のモックデバイス実装
// 毎回同じフレームのコピーを返す
type MockDevice struct {
	mu       sync.Mutex
	frame    *Frame
	delay    time.Duration
	failures int // 次のN回の読み取りを失敗させる (負数なら常に失敗)
	limit    int // 成功する読み取りの上限 (0 = 無制限)
	reads    int // 成功した読み取り回数
	released bool

	onRead    func(n int)
	onRelease func()
}

// NewMockDevice は新しいMockDeviceを作成する
func NewMockDevice(frame *Frame) *MockDevice {
	return &MockDevice{
		frame: frame,
		delay: time.Millisecond,
	}
}

// SetDelay は1回の読み取りにかかる時間を設定する
func (m *MockDevice) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetFailures は次のN回の読み取りを失敗させる
func (m *MockDevice) SetFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// SetLimit は成功する読み取り回数の上限を設定する。以降の読み取りは失敗する
func (m *MockDevice) SetLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = n
}

// OnRead は読み取り成功時に呼ばれるフックを設定する (n は成功回数)
func (m *MockDevice) OnRead(fn func(n int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRead = fn
}

// Reads は成功した読み取り回数を返す
func (m *MockDevice) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Released は解放済みかを返す
func (m *MockDevice) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Read はフレームのコピーを返す
func (m *MockDevice) Read() (*Frame, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	if m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("モック: %w", ErrFrameRead)
	}
	if m.limit > 0 && m.reads >= m.limit {
		m.mu.Unlock()
		return nil, fmt.Errorf("モック: 上限に達しました: %w", ErrFrameRead)
	}
	m.reads++
	n := m.reads
	hook := m.onRead
	frame := m.frame.Clone()
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return frame, nil
}

// Release はモックデバイスを解放する
func (m *MockDevice) Release() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	hook := m.onRelease
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// MockOpener はテスト用のモックOpener実装
// 同時に開かれているハンドル数を記録する
type MockOpener struct {
	mu        sync.Mutex
	newDevice func(index int) *MockDevice
	failures  int // 次のN回のOpenを失敗させる (負数なら常に失敗)
	opens     int
	open      int
	maxOpen   int
	devices   []*MockDevice
}

// NewMockOpener は新しいMockOpenerを作成する
func NewMockOpener(newDevice func(index int) *MockDevice) *MockOpener {
	return &MockOpener{newDevice: newDevice}
}

// SetFailures は次のN回のOpenを失敗させる
func (o *MockOpener) SetFailures(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = n
}

// Open はモックデバイスを作成する
func (o *MockOpener) Open(index int) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens++
	if o.failures != 0 {
		if o.failures > 0 {
			o.failures--
		}
		return nil, errors.New("モック: デバイスを開けません")
	}

	dev := o.newDevice(index)
	dev.onRelease = func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.open--
	}
	o.open++
	if o.open > o.maxOpen {
		o.maxOpen = o.open
	}
	o.devices = append(o.devices, dev)
	return dev, nil
}

// Opens はOpenが呼ばれた回数を返す
func (o *MockOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// OpenHandles は現在開かれているハンドル数を返す
func (o *MockOpener) OpenHandles() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// MaxOpenHandles は同時に開かれたハンドル数の最大値を返す
func (o *MockOpener) MaxOpenHandles() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxOpen
}

// Devices は作成したデバイスの一覧を返す
func (o *MockOpener) Devices() []*MockDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := make([]*MockDevice, len(o.devices))
	copy(result, o.devices)
	return result
}
