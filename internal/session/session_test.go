package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"visionflow/internal/camera"
	"visionflow/internal/filter"
	"visionflow/internal/stream"
	"visionflow/internal/viewer"
)

func newTestSession(t *testing.T, opener *camera.MockOpener) *Session {
	t.Helper()

	s, err := stream.New(stream.Options{
		Opener:      opener,
		SnapshotDir: filepath.Join(t.TempDir(), "snapshots"),
		StopTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("stream.New failed: %v", err)
	}
	v := viewer.New(s.Slot(), viewer.Options{Interval: 5 * time.Millisecond})
	discovery := camera.NewMockDiscovery([]string{"/dev/video0", "/dev/video2"})

	sess := New(s, v, discovery, nil)
	t.Cleanup(func() {
		_ = sess.Close(context.Background())
	})
	return sess
}

func patternOpener() *camera.MockOpener {
	return camera.NewMockOpener(func(int) *camera.MockDevice {
		return camera.NewMockDevice(camera.NewTestPattern(4, 4))
	})
}

func waitForFrame(t *testing.T, sess *Session) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !sess.Stream().Slot().HasFrame() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for a frame")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSession_StartStop(t *testing.T) {
	sess := newTestSession(t, patternOpener())
	ctx := context.Background()

	res := sess.Start(ctx)
	if !res.OK {
		t.Fatalf("Start failed: %+v", res)
	}
	if !sess.Viewer().Running() {
		t.Error("Expected viewer to run while streaming")
	}
	if sess.Status().State != stream.StateRunning {
		t.Errorf("Expected running, got %s", sess.Status().State)
	}

	res = sess.Stop(ctx)
	if !res.OK {
		t.Fatalf("Stop failed: %+v", res)
	}
	if sess.Viewer().Running() {
		t.Error("Expected viewer to stop with the stream")
	}
	if sess.Status().State != stream.StateIdle {
		t.Errorf("Expected idle, got %s", sess.Status().State)
	}
}

func TestSession_StartFailure(t *testing.T) {
	opener := patternOpener()
	opener.SetFailures(-1)
	sess := newTestSession(t, opener)

	res := sess.Start(context.Background())
	if res.OK {
		t.Fatal("Expected start to fail")
	}
	if res.Title != TitleError {
		t.Errorf("Expected title %q, got %q", TitleError, res.Title)
	}
	if res.Message != "Не удалось открыть веб-камеру" {
		t.Errorf("Unexpected message %q", res.Message)
	}
	if !errors.Is(res.Err, stream.ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", res.Err)
	}
	if sess.Viewer().Running() {
		t.Error("Expected viewer to stay stopped")
	}
	if sess.Status().LastError == "" {
		t.Error("Expected last error in status")
	}
}

func TestSession_SelectFilter(t *testing.T) {
	sess := newTestSession(t, patternOpener())

	res := sess.SelectFilter(filter.NameEdges)
	if !res.OK || res.Message != "Грани" {
		t.Errorf("Unexpected result %+v", res)
	}

	res = sess.SelectFilter("sepia")
	if res.OK {
		t.Fatal("Expected unknown filter to fail")
	}
	if res.Title != TitleFilterError {
		t.Errorf("Expected title %q, got %q", TitleFilterError, res.Title)
	}
	if res.Message != "Неизвестный фильтр: sepia" {
		t.Errorf("Unexpected message %q", res.Message)
	}
	if !errors.Is(res.Err, filter.ErrUnknownFilter) {
		t.Errorf("Expected ErrUnknownFilter, got %v", res.Err)
	}
	if sess.Status().Filter != filter.NameEdges {
		t.Errorf("Expected selection unchanged, got %s", sess.Status().Filter)
	}
}

func TestSession_Filters(t *testing.T) {
	sess := newTestSession(t, patternOpener())
	sess.SelectFilter(filter.NameBlur)

	filters := sess.Filters()
	if len(filters) != 4 {
		t.Fatalf("Expected 4 filters, got %d", len(filters))
	}
	wantLabels := []string{"Оригинал", "Оттенки серого", "Размытие", "Грани"}
	for i, f := range filters {
		if f.Label != wantLabels[i] {
			t.Errorf("filter %d label = %q, want %q", i, f.Label, wantLabels[i])
		}
		if f.Selected != (f.Name == filter.NameBlur) {
			t.Errorf("Unexpected selection flag for %s", f.Name)
		}
	}
}

func TestSession_TakeSnapshot(t *testing.T) {
	sess := newTestSession(t, patternOpener())

	res := sess.TakeSnapshot()
	if res.OK {
		t.Fatal("Expected snapshot to fail before any frame")
	}
	if res.Title != TitleSnapshotError || res.Message != "Нет кадра для сохранения" {
		t.Errorf("Unexpected result %+v", res)
	}

	if res := sess.Start(context.Background()); !res.OK {
		t.Fatalf("Start failed: %+v", res)
	}
	waitForFrame(t, sess)

	res = sess.TakeSnapshot()
	if !res.OK {
		t.Fatalf("Snapshot failed: %+v", res)
	}
	if res.Title != TitleSnapshotSaved {
		t.Errorf("Expected title %q, got %q", TitleSnapshotSaved, res.Title)
	}
	if res.Message != "Файл: "+res.Path {
		t.Errorf("Unexpected message %q", res.Message)
	}

	list, err := sess.Snapshots()
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(list) != 1 || list[0].Path != res.Path {
		t.Errorf("Expected saved snapshot to be listed, got %+v", list)
	}
}

func TestSession_Status(t *testing.T) {
	sess := newTestSession(t, patternOpener())

	st := sess.Status()
	if st.Text != "Нет данных" {
		t.Errorf("Expected no-data text, got %q", st.Text)
	}
	if st.SessionID == "" || st.State != stream.StateIdle {
		t.Errorf("Unexpected status %+v", st)
	}

	sess.Start(context.Background())
	waitForFrame(t, sess)

	st = sess.Status()
	if !strings.HasPrefix(st.Text, "Кадр: 4x4") {
		t.Errorf("Unexpected status text %q", st.Text)
	}
	if st.Stats.Counter < 1 {
		t.Errorf("Expected counter >= 1, got %d", st.Stats.Counter)
	}
}

func TestSession_Devices(t *testing.T) {
	sess := newTestSession(t, patternOpener())

	devices, err := sess.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 2 || devices[1].Index != 2 {
		t.Errorf("Unexpected devices %+v", devices)
	}
}

func TestMessage(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", stream.ErrDeviceUnavailable), "Не удалось открыть веб-камеру"},
		{stream.ErrNoFrameAvailable, "Нет кадра для сохранения"},
		{filter.ErrUnknownFilter, "Неизвестный фильтр"},
		{errors.New("その他"), "その他"},
	}
	for _, tc := range testCases {
		if got := Message(tc.err); got != tc.want {
			t.Errorf("Message(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
