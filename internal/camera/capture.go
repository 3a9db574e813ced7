package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8} // JPEGの開始マーカー
	jpegEOI = []byte{0xFF, 0xD9} // JPEGの終了マーカー
)

// maxPendingBytes を超えても完全なJPEGが見つからない場合はバッファを捨てる
const maxPendingBytes = 16 * 1024 * 1024

const defaultReadTimeout = 2 * time.Second

// FFmpegDevice はffmpegのMJPEG出力をパイプで受け取るデバイス実装
// v4l2 (USBカメラ) と x11grab (画面キャプチャ) の両方に使う
type FFmpegDevice struct {
	source      string
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	stderr      bytes.Buffer
	frames      chan []byte
	done        chan struct{}
	pending     []byte // Open時の動作確認で受け取った最初のフレーム
	readTimeout time.Duration
	closed      bool
}

// NewFFmpegOpener はffmpegを使うドライバのOpenerを作成する
func NewFFmpegOpener(driver string, settings Settings) Opener {
	return OpenerFunc(func(index int) (Device, error) {
		return OpenFFmpegDevice(driver, index, settings)
	})
}

// ffmpegArgs はドライバごとのffmpeg引数と入力元を組み立てる
func ffmpegArgs(driver string, index int, s Settings) ([]string, string, error) {
	args := []string{"-loglevel", "error"}

	var source string
	switch driver {
	case DriverV4L2:
		source = fmt.Sprintf("/dev/video%d", index)
		args = append(args, "-f", "v4l2")
	case DriverX11:
		source = s.Display
		if source == "" {
			source = fmt.Sprintf(":%d.0", index)
		}
		args = append(args, "-f", "x11grab")
	default:
		return nil, "", fmt.Errorf("ffmpegでサポートされていないドライバ: %s", driver)
	}

	if s.Width > 0 && s.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", s.Width, s.Height))
	}
	if s.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(s.FPS))
	}
	args = append(args, "-i", source)
	if driver == DriverX11 {
		args = append(args, "-vf", "format=yuv420p")
	}
	args = append(args,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
	return args, source, nil
}

// OpenFFmpegDevice はffmpegを起動し、最初のフレームが届くことを確認してから返す
func OpenFFmpegDevice(driver string, index int, settings Settings) (*FFmpegDevice, error) {
	args, source, err := ffmpegArgs(driver, index, settings)
	if err != nil {
		return nil, err
	}

	timeout := settings.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &FFmpegDevice{
		source:      source,
		cancel:      cancel,
		frames:      make(chan []byte, 2),
		done:        make(chan struct{}),
		readTimeout: timeout,
	}
	d.cmd = exec.CommandContext(ctx, "ffmpeg", args...)
	d.cmd.Stderr = &d.stderr

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	if err := d.cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	go d.readFrames(stdout)

	// 最初のフレームでデバイスの動作を確認する
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data, ok := <-d.frames:
		if !ok {
			_ = d.Release()
			return nil, fmt.Errorf("%s を開けません: %s", source, bytes.TrimSpace(d.stderr.Bytes()))
		}
		d.pending = data
	case <-timer.C:
		_ = d.Release()
		return nil, fmt.Errorf("%s から %s 以内にフレームが届きません", source, timeout)
	}

	return d, nil
}

// readFrames はffmpegの出力をJPEG単位に分割して転送する
func (d *FFmpegDevice) readFrames(r io.Reader) {
	defer close(d.done)
	defer close(d.frames)

	chunk := make([]byte, 64*1024)
	var pending []byte

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)

			frames, rest := splitJPEGFrames(pending)
			for _, frame := range frames {
				d.offer(frame)
			}
			pending = append([]byte(nil), rest...)
			if len(pending) > maxPendingBytes {
				pending = nil
			}
		}
		if err != nil {
			// EOFはプロセス終了・キャンセル時に発生する
			return
		}
	}
}

// offer は最新フレームを優先して転送する（満杯なら古いフレームを破棄）
func (d *FFmpegDevice) offer(frame []byte) {
	select {
	case d.frames <- frame:
		return
	default:
	}
	select {
	case <-d.frames:
	default:
	}
	select {
	case d.frames <- frame:
	default:
	}
}

// splitJPEGFrames はバイト列から完全なJPEGを切り出し、残りを返す
func splitJPEGFrames(data []byte) (frames [][]byte, rest []byte) {
	for {
		startIdx := bytes.Index(data, jpegSOI)
		if startIdx == -1 {
			// マーカーの前半だけが末尾にある可能性がある
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				return frames, data[len(data)-1:]
			}
			return frames, nil
		}

		endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
		if endIdx == -1 {
			// 完全なフレームがまだない
			return frames, data[startIdx:]
		}

		endIdx += startIdx + 2 + 2 // マーカーのサイズを含める
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		data = data[endIdx:]
	}
}

// Read は1フレームを読み取る
func (d *FFmpegDevice) Read() (*Frame, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}

	data := d.pending
	d.pending = nil
	if data == nil {
		timer := time.NewTimer(d.readTimeout)
		defer timer.Stop()

		var ok bool
		select {
		case data, ok = <-d.frames:
			if !ok {
				return nil, fmt.Errorf("%s: ffmpegが終了しました: %w", d.source, ErrFrameRead)
			}
		case <-timer.C:
			return nil, fmt.Errorf("%s: %s 以内にフレームが届きません: %w", d.source, d.readTimeout, ErrFrameRead)
		}
	}

	frame, err := DecodeJPEG(data)
	if err != nil {
		return nil, errors.Join(ErrFrameRead, err)
	}
	return frame, nil
}

// Release はffmpegを停止して読み取りゴルーチンの終了を待つ
func (d *FFmpegDevice) Release() error {
	if d.closed {
		return nil
	}
	d.closed = true

	d.cancel()
	<-d.done
	_ = d.cmd.Wait() // キャンセル時のエラーは無視
	return nil
}
