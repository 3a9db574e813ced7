package camera

import (
	"fmt"
	"sort"
)

// ドライバ名
const (
	DriverOpenCV = "opencv" // gocv (OpenCV VideoCapture)
	DriverV4L2   = "v4l2"   // ffmpeg -f v4l2
	DriverX11    = "x11"    // ffmpeg -f x11grab
)

// IsKnownDriver は標準で登録されるドライバ名かを返す
func IsKnownDriver(name string) bool {
	switch name {
	case DriverOpenCV, DriverV4L2, DriverX11:
		return true
	default:
		return false
	}
}

// OpenerCreator はドライバ設定からOpenerを作る関数の型
type OpenerCreator func(settings Settings) Opener

// DriverFactory はドライバ名からOpenerを作成するファクトリー
type DriverFactory struct {
	creators map[string]OpenerCreator
}

// NewDriverFactory は標準ドライバを登録したファクトリーを作成する
func NewDriverFactory() *DriverFactory {
	factory := &DriverFactory{
		creators: make(map[string]OpenerCreator),
	}

	factory.Register(DriverOpenCV, NewOpenCVOpener)
	factory.Register(DriverV4L2, func(settings Settings) Opener {
		return NewFFmpegOpener(DriverV4L2, settings)
	})
	factory.Register(DriverX11, func(settings Settings) Opener {
		return NewFFmpegOpener(DriverX11, settings)
	})

	return factory
}

// Register はドライバを登録する（同名は上書き）
func (f *DriverFactory) Register(driver string, creator OpenerCreator) {
	f.creators[driver] = creator
}

// CreateOpener はドライバ名に対応するOpenerを作成する
func (f *DriverFactory) CreateOpener(driver string, settings Settings) (Opener, error) {
	creator, exists := f.creators[driver]
	if !exists {
		return nil, fmt.Errorf("サポートされていないドライバ: %s", driver)
	}
	return creator(settings), nil
}

// SupportedDrivers は登録済みのドライバ名を名前順で返す
func (f *DriverFactory) SupportedDrivers() []string {
	drivers := make([]string, 0, len(f.creators))
	for driver := range f.creators {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}
