package camera

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrFrameRead は1回分のフレーム読み取りに失敗したことを表す（一時的な失敗）
	ErrFrameRead = errors.New("フレームの読み取りに失敗")

	// ErrDeviceClosed は解放済みのデバイスから読み取ろうとしたことを表す
	ErrDeviceClosed = errors.New("デバイスは解放済みです")
)

// Frame は1枚の画像データを表す
// Data は行優先・チャンネルインターリーブの8bit配列で、3チャンネルの場合はBGR順
type Frame struct {
	Width    int
	Height   int
	Channels int
	Data     []byte
}

// NewFrame はゼロ値で埋められたフレームを作成する
func NewFrame(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]byte, width*height*channels),
	}
}

// Empty はフレームが画素を持たないかを返す
func (f *Frame) Empty() bool {
	return f == nil || f.Width == 0 || f.Height == 0 || len(f.Data) == 0
}

// Clone はフレームの深いコピーを返す
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		Data:     data,
	}
}

// Pixel は(x, y)の画素のチャンネル値を返す
func (f *Frame) Pixel(x, y int) []byte {
	off := (y*f.Width + x) * f.Channels
	return f.Data[off : off+f.Channels]
}

// Settings はカメラドライバの設定を表す
type Settings struct {
	Width       int           // 画像幅 (0 = ドライバ既定)
	Height      int           // 画像高さ (0 = ドライバ既定)
	FPS         int           // フレームレート (0 = ドライバ既定)
	Display     string        // x11ドライバの画面指定
	ReadTimeout time.Duration // 1フレーム読み取りの最大待ち時間
}

// Device は開かれたカメラデバイスのハンドル
// Read と Release は同じゴルーチンから呼ばれることを前提とする
type Device interface {
	// Read は1フレームを読み取る。失敗は ErrFrameRead をラップして返す
	Read() (*Frame, error)

	// Release はデバイスを解放する。複数回呼んでもよい
	Release() error
}

// Opener はデバイス番号からカメラを開く
type Opener interface {
	Open(index int) (Device, error)
}

// OpenerFunc は関数を Opener として扱うためのアダプタ
type OpenerFunc func(index int) (Device, error)

// Open は f(index) を呼ぶ
func (f OpenerFunc) Open(index int) (Device, error) {
	return f(index)
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]DeviceInfo, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool
}

// DeviceInfo はカメラデバイスの情報を表す
type DeviceInfo struct {
	Index  int    `json:"index"`  // デバイス番号
	Device string `json:"device"` // デバイスパス
	Name   string `json:"name"`   // デバイス名
}
