// Package camera はカメラデバイスとフレームの扱いを担う
//
// # 責務
// - フレーム型 (Frame) とOpenCV Matとの相互変換
// - カメラデバイスを開く・読む・解放する (Opener / Device)
// - ドライバ名からOpenerを作るファクトリー
// - V4L2デバイスの検出と実名取得
// - JPEG / PNG へのエンコード
//
// # ドライバ
//   - opencv: gocv の VideoCapture を使う（既定）
//   - v4l2: ffmpeg -f v4l2 のMJPEG出力をパイプで受け取る
//   - x11: ffmpeg -f x11grab で画面をキャプチャする
//
// # 前提要件
//   - OpenCV 4.x: gocv のビルドに必要
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: v4l2 / x11 ドライバで使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
