// Package filter はフレームに適用する画像フィルタの登録と参照を提供する
//
// フィルタは純粋関数で、入力フレームを書き換えずに新しいフレームを返す。
// 登録内容は作成後に変更されない。
package filter

import (
	"errors"
	"fmt"

	"visionflow/internal/camera"
)

// ErrUnknownFilter は登録されていないフィルタ名を指定したことを表す
var ErrUnknownFilter = errors.New("未知のフィルタ")

// Func はフレームを変換するフィルタ関数
type Func func(*camera.Frame) (*camera.Frame, error)

// Entry はフィルタの登録情報
type Entry struct {
	Name  string // 一意なキー
	Label string // 表示名
	Apply Func
}

// Registry はフィルタ名から関数を引く不変の表
type Registry struct {
	entries []Entry
	index   map[string]int // 名前・表示名 → entries の添字
}

// NewRegistry は登録順を保ったRegistryを作成する
// 名前または表示名が重複している場合はエラーを返す
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)*2),
	}
	for _, e := range entries {
		if e.Name == "" || e.Apply == nil {
			return nil, fmt.Errorf("フィルタの登録情報が不正です: %q", e.Name)
		}
		if _, dup := r.index[e.Name]; dup {
			return nil, fmt.Errorf("フィルタ名が重複しています: %s", e.Name)
		}
		r.index[e.Name] = len(r.entries)
		if e.Label != "" && e.Label != e.Name {
			if _, dup := r.index[e.Label]; dup {
				return nil, fmt.Errorf("表示名が重複しています: %s", e.Label)
			}
			r.index[e.Label] = len(r.entries)
		}
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Names は登録順のフィルタ名を返す
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries は登録順の登録情報のコピーを返す
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Lookup は名前または表示名から登録情報を返す
func (r *Registry) Lookup(name string) (Entry, error) {
	i, ok := r.index[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	return r.entries[i], nil
}

// Get は名前または表示名からフィルタ関数を返す
func (r *Registry) Get(name string) (Func, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.Apply, nil
}
