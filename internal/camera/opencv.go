package camera

import (
	"fmt"

	"gocv.io/x/gocv"
)

// OpenCVDevice はgocvのVideoCaptureを使うデバイス実装
type OpenCVDevice struct {
	index   int
	capture *gocv.VideoCapture
	buf     gocv.Mat // 読み取り用に使い回すMat
	closed  bool
}

// NewOpenCVOpener はOpenCVドライバのOpenerを作成する
func NewOpenCVOpener(settings Settings) Opener {
	return OpenerFunc(func(index int) (Device, error) {
		return OpenOpenCVDevice(index, settings)
	})
}

// OpenOpenCVDevice は指定番号のカメラをOpenCVで開く
func OpenOpenCVDevice(index int, settings Settings) (*OpenCVDevice, error) {
	capture, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("カメラ %d を開けません: %w", index, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("カメラ %d を開けません", index)
	}

	if settings.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	}
	if settings.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	}
	if settings.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(settings.FPS))
	}

	return &OpenCVDevice{
		index:   index,
		capture: capture,
		buf:     gocv.NewMat(),
	}, nil
}

// Read は1フレームを読み取る
func (d *OpenCVDevice) Read() (*Frame, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if ok := d.capture.Read(&d.buf); !ok {
		return nil, fmt.Errorf("カメラ %d: %w", d.index, ErrFrameRead)
	}
	if d.buf.Empty() {
		return nil, fmt.Errorf("カメラ %d: 空のフレーム: %w", d.index, ErrFrameRead)
	}
	return FrameFromMat(d.buf)
}

// Release はデバイスを解放する
func (d *OpenCVDevice) Release() error {
	if d.closed {
		return nil
	}
	d.closed = true

	err := d.capture.Close()
	_ = d.buf.Close()
	if err != nil {
		return fmt.Errorf("カメラ %d の解放に失敗: %w", d.index, err)
	}
	return nil
}
