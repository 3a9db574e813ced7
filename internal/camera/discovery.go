package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var deviceNumberPattern = regexp.MustCompile(`^/dev/video(\d+)$`)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{pattern: "/dev/video*"}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]DeviceInfo, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	devices := make([]DeviceInfo, 0, len(matches))
	seenNames := make(map[string]bool)
	for _, match := range matches {
		// コンテキストのキャンセルをチェック
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !d.IsDeviceAvailable(ctx, match) {
			continue
		}

		// メタデータ用ノードなど映像を出さないデバイスは除外
		capture, known := d.hasColorFormat(ctx, match)
		if known && !capture {
			continue
		}

		name := d.deviceName(ctx, match)
		// 同じ物理カメラの複数ノードは最も小さい番号のみを残す
		if known && seenNames[name] {
			continue
		}
		seenNames[name] = true

		devices = append(devices, DeviceInfo{
			Index:  extractDeviceNumber(match),
			Device: match,
			Name:   name,
		})
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !deviceNumberPattern.MatchString(device) {
		return false
	}

	// デバイスファイルの読み取り権限チェック
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// hasColorFormat はデバイスがカラー映像フォーマットを持つかを返す
// v4l2-ctl が無い環境では known=false を返す
func (d *LinuxDiscovery) hasColorFormat(ctx context.Context, device string) (capture bool, known bool) {
	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, false
		}
		return false, true
	}

	formats := string(output)
	return strings.Contains(formats, "YUYV") || strings.Contains(formats, "MJPG"), true
}

// deviceName はv4l2-ctlの "Card type" から表示名を取得する
func (d *LinuxDiscovery) deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Card type") {
				continue
			}
			if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
				if name := strings.TrimSpace(parts[1]); name != "" {
					return name
				}
			}
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices []DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(paths []string) *MockDiscovery {
	devices := make([]DeviceInfo, 0, len(paths))
	for i, path := range paths {
		devices = append(devices, DeviceInfo{
			Index:  extractDeviceNumber(path),
			Device: path,
			Name:   fmt.Sprintf("テストカメラ %d", i+1),
		})
	}
	return &MockDiscovery{devices: devices}
}

// ScanDevices はモックデバイス一覧のコピーを返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]DeviceInfo, error) {
	result := make([]DeviceInfo, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	for _, d := range m.devices {
		if d.Device == device {
			return true
		}
	}
	return false
}
