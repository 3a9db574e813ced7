package stream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"visionflow/internal/camera"
)

const (
	snapshotPrefix     = "snapshot_"
	snapshotExt        = ".png"
	snapshotTimeLayout = "20060102_150405"
)

// SnapshotInfo は保存済みスナップショットの情報
type SnapshotInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Snapshot は最新の処理済みフレームをPNGで保存し、そのパスを返す
// 同じ秒に2回保存すると後のものが上書きする
func (s *Stream) Snapshot() (string, error) {
	frame := s.slot.LatestProcessed()
	if frame == nil {
		return "", ErrNoFrameAvailable
	}

	if err := os.MkdirAll(s.opts.SnapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}

	path := filepath.Join(s.opts.SnapshotDir, SnapshotName(time.Now()))
	if err := camera.WritePNG(frame, path); err != nil {
		return "", fmt.Errorf("スナップショットの保存に失敗: %w", err)
	}

	s.logger.Info("スナップショットを保存しました", zap.String("path", path))
	return path, nil
}

// SnapshotName は時刻からスナップショットのファイル名を作る
func SnapshotName(t time.Time) string {
	return snapshotPrefix + t.Format(snapshotTimeLayout) + snapshotExt
}

// ListSnapshots は保存済みスナップショットを新しい順に返す
// 保存先がまだなければ空を返す
func (s *Stream) ListSnapshots() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.opts.SnapshotDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []SnapshotInfo{}, nil
		}
		return nil, fmt.Errorf("保存先ディレクトリの読み取りに失敗: %w", err)
	}

	snapshots := make([]SnapshotInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // 読み取り中に消えた
		}
		snapshots = append(snapshots, SnapshotInfo{
			Name:    name,
			Path:    filepath.Join(s.opts.SnapshotDir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// ファイル名は時刻順に並ぶ
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name > snapshots[j].Name
	})
	return snapshots, nil
}
