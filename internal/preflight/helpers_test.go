package preflight

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yourusername/print-preflight/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:           "8080",
		GinMode:        "test",
		MaxFileSize:    32 << 20,
		DefaultBleedMm: 5,
		WorkDir:        t.TempDir(),
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(newTestConfig(t))
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

// opaquePNG はアルファなしトゥルーカラーとしてエンコードされるPNGを返します。
// （全画素不透明なのでエンコーダがcolor type 2を選ぶ）
func opaquePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return encodePNG(t, img)
}

// alphaPNG は半透明画素を含むPNG（color type 6）を返します。
func alphaPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 40, G: 40, B: 200, A: 128})
		}
	}
	return encodePNG(t, img)
}

func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode failed: %v", err)
	}
	return buf.Bytes()
}

// pngWithDPI はIHDR直後にpHYsチャンクを差し込んだPNGを返します。
func pngWithDPI(t *testing.T, w, h int, dpi float64) []byte {
	t.Helper()
	base := opaquePNG(t, w, h)

	ppu := uint32(math.Round(dpi / 0.0254))
	payload := make([]byte, 9)
	binary.BigEndian.PutUint32(payload[0:4], ppu)
	binary.BigEndian.PutUint32(payload[4:8], ppu)
	payload[8] = 1 // unit: meter

	chunk := make([]byte, 0, 21)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	chunk = append(chunk, length[:]...)
	chunk = append(chunk, []byte("pHYs")...)
	chunk = append(chunk, payload...)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(append([]byte("pHYs"), payload...)))
	chunk = append(chunk, crc[:]...)

	// 8バイト署名 + IHDRチャンク25バイト = 33バイト目に挿入
	const insertAt = 33
	out := make([]byte, 0, len(base)+len(chunk))
	out = append(out, base[:insertAt]...)
	out = append(out, chunk...)
	out = append(out, base[insertAt:]...)
	return out
}

type uploadFile struct {
	name string
	data []byte
}

// buildFileHeaders はテスト用に multipart.FileHeader 列を組み立てます。
// 順序はfilesの並びどおりに保たれます。
func buildFileHeaders(t *testing.T, files []uploadFile) []*multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		fw, err := writer.CreateFormFile("files[]", f.name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(64 << 20); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	return req.MultipartForm.File["files[]"]
}
