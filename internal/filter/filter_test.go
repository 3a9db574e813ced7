package filter

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"visionflow/internal/camera"
)

func TestDefaultRegistry_Names(t *testing.T) {
	r := Default()

	want := []string{NameOriginal, NameGrayscale, NameBlur, NameEdges}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := Default()

	for _, name := range r.Names() {
		if _, err := r.Get(name); err != nil {
			t.Errorf("Get(%s) failed: %v", name, err)
		}
	}

	// 表示名でも引ける
	e, err := r.Lookup("Оттенки серого")
	if err != nil {
		t.Fatalf("Lookup by label failed: %v", err)
	}
	if e.Name != NameGrayscale {
		t.Errorf("Expected %s, got %s", NameGrayscale, e.Name)
	}

	if _, err := r.Get("sepia"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("Expected ErrUnknownFilter, got %v", err)
	}
}

func TestNewRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(
		Entry{Name: "a", Apply: Identity},
		Entry{Name: "a", Apply: Identity},
	)
	if err == nil {
		t.Error("Expected error for duplicate name")
	}

	_, err = NewRegistry(
		Entry{Name: "a", Label: "x", Apply: Identity},
		Entry{Name: "b", Label: "x", Apply: Identity},
	)
	if err == nil {
		t.Error("Expected error for duplicate label")
	}

	if _, err := NewRegistry(Entry{Name: "nil"}); err == nil {
		t.Error("Expected error for missing function")
	}
}

func TestOddKernel(t *testing.T) {
	testCases := []struct{ in, want int }{
		{11, 11},
		{10, 11},
		{1, 1},
		{0, 1},
		{-4, 1},
	}
	for _, tc := range testCases {
		if got := OddKernel(tc.in); got != tc.want {
			t.Errorf("OddKernel(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// 全フィルタの出力を正規化すると入力と同じH×W×3になる
func TestFilters_PreserveShapeAfterNormalize(t *testing.T) {
	r := Default()
	src := camera.NewTestPattern(16, 12)

	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			apply, _ := r.Get(name)
			out, err := apply(src)
			if err != nil {
				t.Fatalf("filter failed: %v", err)
			}
			out, err = Normalize(out, DisplayChannels)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if out.Width != 16 || out.Height != 12 || out.Channels != 3 {
				t.Errorf("Expected 16x12x3, got %dx%dx%d", out.Width, out.Height, out.Channels)
			}
			if len(out.Data) != 16*12*3 {
				t.Errorf("Unexpected data length %d", len(out.Data))
			}
		})
	}
}

// フィルタは入力を書き換えない
func TestFilters_DoNotMutateInput(t *testing.T) {
	r := Default()
	src := camera.NewTestPattern(8, 8)
	orig := src.Clone()

	for _, name := range r.Names() {
		apply, _ := r.Get(name)
		if _, err := apply(src); err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		if !bytes.Equal(src.Data, orig.Data) {
			t.Fatalf("%s mutated its input", name)
		}
	}
}

func TestGrayscale_SingleChannel(t *testing.T) {
	out, err := Grayscale(camera.NewTestPattern(4, 4))
	if err != nil {
		t.Fatalf("Grayscale failed: %v", err)
	}
	if out.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", out.Channels)
	}

	norm, err := Normalize(out, 3)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			px := norm.Pixel(x, y)
			if px[0] != px[1] || px[1] != px[2] {
				t.Fatalf("Expected equal channels at (%d,%d), got %v", x, y, px)
			}
			if px[0] != out.Pixel(x, y)[0] {
				t.Fatalf("Expected luminance to be replicated at (%d,%d)", x, y)
			}
		}
	}
}

func TestEdges_BinaryOutput(t *testing.T) {
	// 左半分が黒、右半分が白の画像は縦のエッジを持つ
	src := camera.NewFrame(20, 20, 3)
	for y := 0; y < 20; y++ {
		for x := 10; x < 20; x++ {
			px := src.Pixel(x, y)
			px[0], px[1], px[2] = 255, 255, 255
		}
	}

	out, err := Edges(CannyLowThreshold, CannyHighThreshold)(src)
	if err != nil {
		t.Fatalf("Edges failed: %v", err)
	}
	if out.Channels != 1 {
		t.Fatalf("Expected 1 channel, got %d", out.Channels)
	}

	edgeCount := 0
	for _, v := range out.Data {
		switch v {
		case 0:
		case 255:
			edgeCount++
		default:
			t.Fatalf("Expected binary edge map, found value %d", v)
		}
	}
	if edgeCount == 0 {
		t.Error("Expected at least one edge pixel")
	}
}

func TestBlur_SmoothsStep(t *testing.T) {
	src := camera.NewFrame(21, 1, 3)
	for x := 11; x < 21; x++ {
		px := src.Pixel(x, 0)
		px[0], px[1], px[2] = 255, 255, 255
	}

	out, err := Blur(10)(src) // 偶数は11に切り上げられる
	if err != nil {
		t.Fatalf("Blur failed: %v", err)
	}
	v := out.Pixel(10, 0)[0]
	if v == 0 || v == 255 {
		t.Errorf("Expected an intermediate value at the step, got %d", v)
	}
}

func TestNormalize(t *testing.T) {
	src := camera.NewTestPattern(2, 2)

	same, err := Normalize(src, 3)
	if err != nil || same != src {
		t.Error("Expected 3-channel frame to be returned as-is")
	}

	if _, err := Normalize(&camera.Frame{Width: 1, Height: 1, Channels: 2, Data: []byte{1, 2}}, 3); err == nil {
		t.Error("Expected error for unsupported conversion")
	}
}
