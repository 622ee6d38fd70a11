package preflight

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // デコーダ登録
	_ "image/jpeg" // デコーダ登録
	_ "image/png"  // デコーダ登録
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // デコーダ登録
	_ "golang.org/x/image/tiff" // デコーダ登録
)

// previewBound はプレビューの長辺上限（幅・高さ共通）です。
const previewBound = 500

type imageFormat int

const (
	formatNone imageFormat = iota
	formatPNG
	formatJPEG
	formatTIFF
	formatBMP
	formatGIF
)

// classifyKind は拡張子のみでファイル種別を決定します（仕様）。
// 実コンテンツのMIMEは参考情報としてレコードに併記されます。
func classifyKind(name string) FileKind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "png", "jpg", "jpeg", "tiff", "bmp", "gif":
		return KindImage
	case "pdf":
		return KindPDF
	default:
		return KindUnknown
	}
}

func formatForName(name string) imageFormat {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "png":
		return formatPNG
	case "jpg", "jpeg":
		return formatJPEG
	case "tiff":
		return formatTIFF
	case "bmp":
		return formatBMP
	case "gif":
		return formatGIF
	default:
		return formatNone
	}
}

// detectColorMode はデコーダが返した具象型からカラーモードを決定します。
// PNGのトゥルーカラー（アルファなし）は *image.RGBA、アルファ付きは
// *image.NRGBA になるため、この対応で元フォーマットのモードが区別できます。
func detectColorMode(img image.Image) ColorMode {
	switch img.(type) {
	case *image.CMYK:
		return ColorModeCMYK
	case *image.Gray, *image.Gray16:
		return ColorModeGrayscale
	case *image.YCbCr, *image.RGBA, *image.RGBA64:
		return ColorModeRGB
	case *image.NRGBA, *image.NRGBA64:
		return ColorModeRGBA
	default:
		// パレット形式など
		return ColorModeOther
	}
}

// extractRecord は保存済みファイル1件からFileRecordを組み立てます。
// デコード失敗はレコードのErrorに記録するだけで、バッチ全体は続行します。
func (s *Service) extractRecord(stored storedFile, data []byte) *FileRecord {
	rec := &FileRecord{
		Name:         stored.originalName,
		Kind:         stored.kind,
		DetectedMIME: stored.contentType,
		Size:         stored.size,
	}

	switch stored.kind {
	case KindPDF:
		// PDFは素通し。ページ数だけ持つ。
		rec.Pages = stored.pages
		return rec
	case KindUnknown:
		return rec
	}

	cfgImg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		rec.Error = fmt.Sprintf("Error processing file: %v", err)
		return rec
	}
	if s.cfg.MaxPixelCount > 0 {
		if px := int64(cfgImg.Width) * int64(cfgImg.Height); px > s.cfg.MaxPixelCount {
			rec.Error = fmt.Sprintf("Error processing file: image exceeds pixel limit (%d > %d)", px, s.cfg.MaxPixelCount)
			return rec
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		rec.Error = fmt.Sprintf("Error processing file: %v", err)
		return rec
	}

	bounds := img.Bounds()
	rec.PixelDimensions = &PixelSize{Width: bounds.Dx(), Height: bounds.Dy()}
	rec.ColorMode = detectColorMode(img)
	rec.decoded = img

	// メタデータがなければ nil のまま（0や既定値にしない）
	rec.Resolution = extractResolution(data, formatForName(stored.originalName))
	if rec.Resolution != nil {
		ps := physicalSizeMm(bounds.Dx(), bounds.Dy(), rec.Resolution.DpiX, rec.Resolution.DpiY)
		rec.PhysicalSizeMm = &ps
	}

	preview, err := makePreview(img)
	if err != nil {
		rec.Error = fmt.Sprintf("Error processing file: %v", err)
		return rec
	}
	rec.Preview = preview

	return rec
}

// makePreview は長辺500以内に収めた可逆（PNG）プレビューを生成します。
// imagingの処理はNRGBAで行われるため、CMYK入力もここで表示可能な
// 色空間に落ちます。元のデコード済み画像は変更されません。
func makePreview(img image.Image) (*PreviewImage, error) {
	thumb := imaging.Fit(img, previewBound, previewBound, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("プレビューのエンコードに失敗しました: %w", err)
	}
	return &PreviewImage{
		PNG:    buf.Bytes(),
		Width:  thumb.Bounds().Dx(),
		Height: thumb.Bounds().Dy(),
	}, nil
}
