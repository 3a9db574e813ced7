package filter

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"visionflow/internal/camera"
)

// 標準フィルタの名前
const (
	NameOriginal  = "original"
	NameGrayscale = "grayscale"
	NameBlur      = "blur"
	NameEdges     = "edges"
)

// フィルタのパラメータ
const (
	BlurKernelSize     = 11
	CannyLowThreshold  = 50
	CannyHighThreshold = 150
)

// DisplayChannels は表示経路で使うチャンネル数
const DisplayChannels = 3

// Default は4つの標準フィルタを登録したRegistryを返す
func Default() *Registry {
	r, err := NewRegistry(
		Entry{Name: NameOriginal, Label: "Оригинал", Apply: Identity},
		Entry{Name: NameGrayscale, Label: "Оттенки серого", Apply: Grayscale},
		Entry{Name: NameBlur, Label: "Размытие", Apply: Blur(BlurKernelSize)},
		Entry{Name: NameEdges, Label: "Грани", Apply: Edges(CannyLowThreshold, CannyHighThreshold)},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Identity は入力をそのまま返す
func Identity(f *camera.Frame) (*camera.Frame, error) {
	return f, nil
}

// Grayscale はBGRフレームを1チャンネルの輝度画像に変換する
func Grayscale(f *camera.Frame) (*camera.Frame, error) {
	return transform(f, func(src gocv.Mat, dst *gocv.Mat) {
		toGray(src, dst)
	})
}

// Blur はガウシアンぼかしを返す。偶数のカーネルサイズは次の奇数に切り上げる
func Blur(ksize int) Func {
	k := OddKernel(ksize)
	return func(f *camera.Frame) (*camera.Frame, error) {
		return transform(f, func(src gocv.Mat, dst *gocv.Mat) {
			gocv.GaussianBlur(src, dst, image.Pt(k, k), 0, 0, gocv.BorderDefault)
		})
	}
}

// Edges はグレースケール化の後Cannyで2値のエッジ画像を返す
func Edges(low, high float32) Func {
	return func(f *camera.Frame) (*camera.Frame, error) {
		return transform(f, func(src gocv.Mat, dst *gocv.Mat) {
			gray := gocv.NewMat()
			defer gray.Close()
			toGray(src, &gray)
			gocv.Canny(gray, dst, low, high)
		})
	}
}

// OddKernel はカーネルサイズを1以上の奇数にそろえる
func OddKernel(ksize int) int {
	if ksize < 1 {
		return 1
	}
	if ksize%2 == 0 {
		return ksize + 1
	}
	return ksize
}

// Normalize はフレームを指定チャンネル数にそろえる
// 1チャンネルの出力は同じ値を複製して3チャンネルに戻す
func Normalize(f *camera.Frame, channels int) (*camera.Frame, error) {
	if f.Empty() || f.Channels == channels {
		return f, nil
	}

	var code gocv.ColorConversionCode
	switch {
	case f.Channels == 1 && channels == 3:
		code = gocv.ColorGrayToBGR
	case f.Channels == 4 && channels == 3:
		code = gocv.ColorBGRAToBGR
	case f.Channels == 3 && channels == 1:
		code = gocv.ColorBGRToGray
	default:
		return nil, fmt.Errorf("%dチャンネルから%dチャンネルへは変換できません", f.Channels, channels)
	}

	return transform(f, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.CvtColor(src, dst, code)
	})
}

// toGray はチャンネル数に応じてグレースケールへ変換する
func toGray(src gocv.Mat, dst *gocv.Mat) {
	switch src.Channels() {
	case 1:
		src.CopyTo(dst)
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	}
}

// transform はフレームをMatに載せて op を適用し、結果を新しいフレームとして返す
func transform(f *camera.Frame, op func(src gocv.Mat, dst *gocv.Mat)) (*camera.Frame, error) {
	src, err := f.ToMat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	op(src, &dst)
	if dst.Empty() {
		return nil, fmt.Errorf("フィルタの出力が空です")
	}
	return camera.FrameFromMat(dst)
}
