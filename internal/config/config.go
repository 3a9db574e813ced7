package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"visionflow/internal/camera"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Stream StreamConfig `yaml:"stream"`
	Viewer ViewerConfig `yaml:"viewer"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver  string `yaml:"driver"`  // opencv / v4l2 / x11
	Index   int    `yaml:"index"`   // デバイス番号 (/dev/videoN, X11ディスプレイ番号)
	Width   int    `yaml:"width"`   // 画像幅
	Height  int    `yaml:"height"`  // 画像高さ
	FPS     int    `yaml:"fps"`     // フレームレート
	Display string `yaml:"display"` // x11ドライバ用の画面指定 (空ならIndexから生成)

	// デバイスを開く試行回数 (1 = リトライなし)
	OpenAttempts      int           `yaml:"open_attempts"`
	OpenRetryInterval time.Duration `yaml:"open_retry_interval"`

	// 1フレーム読み取りの最大待ち時間 (ffmpegドライバのみ)
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// StreamConfig はキャプチャループの設定
type StreamConfig struct {
	DefaultFilter string        `yaml:"default_filter"` // 起動時のフィルタ
	SnapshotDir   string        `yaml:"snapshot_dir"`   // スナップショット保存先
	StopTimeout   time.Duration `yaml:"stop_timeout"`   // 停止時のループ終了待ち時間

	// 連続読み取り失敗の上限 (0 = 無制限に再試行)
	MaxReadFailures int `yaml:"max_read_failures"`
}

// ViewerConfig は表示ティックの設定
type ViewerConfig struct {
	Interval         time.Duration `yaml:"interval"`          // 表示更新間隔
	JPEGQuality      int           `yaml:"jpeg_quality"`      // MJPEG配信時の品質 (1-100)
	SubscriberBuffer int           `yaml:"subscriber_buffer"` // 購読者ごとのバッファ数
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level       string `yaml:"level"`       // debug / info / warn / error
	Development bool   `yaml:"development"` // コンソール形式で出力する
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Driver:            camera.DriverOpenCV,
			Index:             0,
			Width:             640,
			Height:            480,
			FPS:               30,
			OpenAttempts:      1,
			OpenRetryInterval: 500 * time.Millisecond,
			ReadTimeout:       2 * time.Second,
		},
		Stream: StreamConfig{
			DefaultFilter: "original",
			SnapshotDir:   "snapshots",
			StopTimeout:   time.Second,
		},
		Viewer: ViewerConfig{
			Interval:         33 * time.Millisecond,
			JPEGQuality:      80,
			SubscriberBuffer: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// path が空の場合は VISIONFLOW_CONFIG を参照し、それも無ければデフォルト値のみを使う
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VISIONFLOW_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの内容をデフォルト値の上に重ねる
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Index = getEnvAsIntOrDefault("CAMERA_INDEX", c.Camera.Index)
	c.Stream.SnapshotDir = getEnvOrDefault("SNAPSHOT_DIR", c.Stream.SnapshotDir)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("タイムアウトに負の値は指定できません"))
	}

	// カメラ設定の検証
	if !camera.IsKnownDriver(c.Camera.Driver) {
		errs = append(errs, fmt.Errorf("未知のカメラドライバ: %q", c.Camera.Driver))
	}
	if c.Camera.Index < 0 {
		errs = append(errs, fmt.Errorf("無効なデバイス番号: %d", c.Camera.Index))
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		errs = append(errs, errors.New("解像度とFPSに負の値は指定できません"))
	}
	if c.Camera.OpenAttempts < 1 {
		errs = append(errs, fmt.Errorf("open_attempts は1以上が必要です: %d", c.Camera.OpenAttempts))
	}

	// ストリーム設定の検証
	if c.Stream.SnapshotDir == "" {
		errs = append(errs, errors.New("スナップショット保存先が設定されていません"))
	}
	if c.Stream.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("無効な停止タイムアウト: %s", c.Stream.StopTimeout))
	}
	if c.Stream.MaxReadFailures < 0 {
		errs = append(errs, fmt.Errorf("無効な読み取り失敗上限: %d", c.Stream.MaxReadFailures))
	}

	// 表示設定の検証
	if c.Viewer.Interval <= 0 {
		errs = append(errs, fmt.Errorf("無効な表示間隔: %s", c.Viewer.Interval))
	}
	if c.Viewer.JPEGQuality < 1 || c.Viewer.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Viewer.JPEGQuality))
	}
	if c.Viewer.SubscriberBuffer < 1 {
		errs = append(errs, fmt.Errorf("無効な購読バッファ数: %d", c.Viewer.SubscriberBuffer))
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CameraSettings はカメラドライバに渡す設定を組み立てる
func (c *Config) CameraSettings() camera.Settings {
	return camera.Settings{
		Width:       c.Camera.Width,
		Height:      c.Camera.Height,
		FPS:         c.Camera.FPS,
		Display:     c.Camera.Display,
		ReadTimeout: c.Camera.ReadTimeout,
	}
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
