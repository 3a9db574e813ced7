package camera

import (
	"fmt"

	"gocv.io/x/gocv"
)

// matType はチャンネル数に対応するOpenCVの型を返す
func matType(channels int) (gocv.MatType, error) {
	switch channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	case 4:
		return gocv.MatTypeCV8UC4, nil
	default:
		return 0, fmt.Errorf("サポートされていないチャンネル数: %d", channels)
	}
}

// ToMat はフレームをOpenCVのMatに変換する
// 返されたMatは呼び出し側が Close する
func (f *Frame) ToMat() (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), fmt.Errorf("空のフレームは変換できません")
	}
	mt, err := matType(f.Channels)
	if err != nil {
		return gocv.NewMat(), err
	}
	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return gocv.NewMat(), fmt.Errorf("フレームサイズが不正: %d バイト (期待値 %d)", len(f.Data), want)
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("Matの作成に失敗: %w", err)
	}
	return mat, nil
}

// FrameFromMat はMatの画素をコピーしてフレームを作成する
func FrameFromMat(m gocv.Mat) (*Frame, error) {
	if m.Empty() {
		return nil, fmt.Errorf("空のMatです")
	}
	data := m.ToBytes()
	return &Frame{
		Width:    m.Cols(),
		Height:   m.Rows(),
		Channels: m.Channels(),
		Data:     data,
	}, nil
}

// EncodeJPEG はフレームをJPEGにエンコードする
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	mat, err := f.ToMat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	defer buf.Close()

	// GetBytesの領域はClose後に無効になる
	encoded := buf.GetBytes()
	out := make([]byte, len(encoded))
	copy(out, encoded)
	return out, nil
}

// DecodeJPEG はJPEGデータをBGRフレームにデコードする
func DecodeJPEG(data []byte) (*Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	defer mat.Close()
	return FrameFromMat(mat)
}

// WritePNG はフレームをPNGファイルとして書き出す
func WritePNG(f *Frame, path string) error {
	mat, err := f.ToMat()
	if err != nil {
		return err
	}
	defer mat.Close()

	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("画像の書き込みに失敗: %s", path)
	}
	return nil
}
