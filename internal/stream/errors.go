package stream

import (
	"errors"

	"visionflow/internal/filter"
)

var (
	// ErrDeviceUnavailable はカメラを開けない、または読み取りが継続して失敗したことを表す
	ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")

	// ErrNoFrameAvailable は保存できるフレームがまだないことを表す
	ErrNoFrameAvailable = errors.New("保存できるフレームがありません")

	// ErrUnknownFilter は filter.ErrUnknownFilter と同じ値
	ErrUnknownFilter = filter.ErrUnknownFilter
)
