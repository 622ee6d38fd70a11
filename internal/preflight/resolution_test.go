package preflight

import (
	"encoding/binary"
	"testing"
)

func TestPNGResolution(t *testing.T) {
	data := pngWithDPI(t, 10, 10, 300)
	res := extractResolution(data, formatPNG)
	if res == nil {
		t.Fatal("expected resolution, got nil")
	}
	if res.DpiX != 300 || res.DpiY != 300 {
		t.Errorf("resolution = %+v, want 300x300", res)
	}
}

func TestPNGResolution72(t *testing.T) {
	// 72dpi → 2835 pixels/meter → 逆算 72.009 → 72.0
	data := pngWithDPI(t, 10, 10, 72)
	res := extractResolution(data, formatPNG)
	if res == nil {
		t.Fatal("expected resolution, got nil")
	}
	if res.DpiX != 72.0 || res.DpiY != 72.0 {
		t.Errorf("resolution = %+v, want 72.0x72.0", res)
	}
}

func TestPNGResolutionAbsent(t *testing.T) {
	data := opaquePNG(t, 10, 10)
	if res := extractResolution(data, formatPNG); res != nil {
		t.Errorf("expected nil for PNG without pHYs, got %+v", res)
	}
}

func TestJFIFResolution(t *testing.T) {
	// SOI + APP0(JFIF, units=1, 300x150) + EOI の最小JPEG
	seg := []byte{
		0xFF, 0xD8, // SOI
		0xFF, 0xE0, 0x00, 0x10, // APP0, length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version
		0x01,       // units: dpi
		0x01, 0x2C, // x density 300
		0x00, 0x96, // y density 150
		0x00, 0x00, // no thumbnail
		0xFF, 0xD9, // EOI
	}
	res := extractResolution(seg, formatJPEG)
	if res == nil {
		t.Fatal("expected resolution, got nil")
	}
	if res.DpiX != 300 || res.DpiY != 150 {
		t.Errorf("resolution = %+v, want 300x150", res)
	}
}

func TestJFIFResolutionDotsPerCm(t *testing.T) {
	seg := []byte{
		0xFF, 0xD8,
		0xFF, 0xE0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01,
		0x02,       // units: dots per cm
		0x00, 0x64, // 100/cm = 254dpi
		0x00, 0x64,
		0x00, 0x00,
		0xFF, 0xD9,
	}
	res := extractResolution(seg, formatJPEG)
	if res == nil {
		t.Fatal("expected resolution, got nil")
	}
	if res.DpiX != 254 || res.DpiY != 254 {
		t.Errorf("resolution = %+v, want 254x254", res)
	}
}

func TestJFIFResolutionAspectOnly(t *testing.T) {
	seg := []byte{
		0xFF, 0xD8,
		0xFF, 0xE0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01,
		0x00, // units: aspect ratio only
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00,
		0xFF, 0xD9,
	}
	if res := extractResolution(seg, formatJPEG); res != nil {
		t.Errorf("expected nil for aspect-only density, got %+v", res)
	}
}

func TestJPEGWithoutMetadata(t *testing.T) {
	// Goのエンコーダが出すJPEGはJFIFもEXIFも持たない
	data := jpegBytes(t, 8, 8)
	if res := extractResolution(data, formatJPEG); res != nil {
		t.Errorf("expected nil, got %+v", res)
	}
}

func TestBMPResolution(t *testing.T) {
	data := make([]byte, 54)
	data[0], data[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(data[14:18], 40) // BITMAPINFOHEADER
	binary.LittleEndian.PutUint32(data[38:42], 11811)
	binary.LittleEndian.PutUint32(data[42:46], 11811)

	res := extractResolution(data, formatBMP)
	if res == nil {
		t.Fatal("expected resolution, got nil")
	}
	if res.DpiX != 300 || res.DpiY != 300 {
		t.Errorf("resolution = %+v, want 300x300", res)
	}
}

func TestBMPResolutionZero(t *testing.T) {
	data := make([]byte, 54)
	data[0], data[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(data[14:18], 40)
	if res := extractResolution(data, formatBMP); res != nil {
		t.Errorf("expected nil for zero ppm, got %+v", res)
	}
}

func TestGIFHasNoResolution(t *testing.T) {
	if res := extractResolution([]byte("GIF89a"), formatGIF); res != nil {
		t.Errorf("expected nil for GIF, got %+v", res)
	}
}

func TestRoundTo1(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{51.28, 51.3},
		{254.000001, 254.0},
		{299.95, 300.0},
		{72.009, 72.0},
	}
	for _, tt := range tests {
		if got := roundTo1(tt.in); got != tt.want {
			t.Errorf("roundTo1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
