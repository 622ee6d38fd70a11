// Package preflight は入稿画像の検査・印刷適性チェック・補正・レポート生成を提供します。
package preflight

import (
	"image"
	"sync"
	"time"
)

// FileKind はアップロードされたファイルの種別を表します。
type FileKind string

const (
	KindImage   FileKind = "Image"
	KindPDF     FileKind = "PDF"
	KindUnknown FileKind = "Unknown"
)

// ColorMode はデコーダが報告する画像のカラーモードを表します。
type ColorMode string

const (
	ColorModeRGB       ColorMode = "RGB"
	ColorModeRGBA      ColorMode = "RGBA"
	ColorModeCMYK      ColorMode = "CMYK"
	ColorModeGrayscale ColorMode = "Grayscale"
	ColorModeOther     ColorMode = "Other"
)

// Resolution は埋め込みメタデータ由来の解像度（DPI）です。
// メタデータが存在しない場合はポインタ自体が nil になります
// （0 や既定値で代用してはいけません）。
type Resolution struct {
	DpiX float64 `json:"dpiX"`
	DpiY float64 `json:"dpiY"`
}

// PhysicalSize は物理寸法（mm）です。
type PhysicalSize struct {
	WidthMm  float64 `json:"widthMm"`
	HeightMm float64 `json:"heightMm"`
}

// PixelSize はピクセル寸法です。
type PixelSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FileRecord はアップロード1件ぶんの検査結果を保持します。
// パイプラインの各段が同じレコードにフィールドを積み上げていきます。
type FileRecord struct {
	Name         string   `json:"name"`
	DisplayIndex int      `json:"displayIndex"`
	Kind         FileKind `json:"kind"`
	DetectedMIME string   `json:"detectedMime,omitempty"`
	Size         int64    `json:"size"`

	// Image種別のみ
	PixelDimensions *PixelSize    `json:"pixelDimensions,omitempty"`
	ColorMode       ColorMode     `json:"colorMode,omitempty"`
	Resolution      *Resolution   `json:"resolution,omitempty"`
	PhysicalSizeMm  *PhysicalSize `json:"physicalSizeMm,omitempty"`

	// PDF種別のみ
	Pages int `json:"pages,omitempty"`

	// 検証結果（追加順 = ルール評価順）
	Warnings      []string `json:"warnings,omitempty"`
	StatusMessage string   `json:"statusMessage,omitempty"`

	// 派生ラスタ。元のアップロードバイト列は保持せず、ここには
	// 再エンコード済みのプレビューのみを置く。
	Preview *PreviewImage `json:"preview,omitempty"`

	// 補正（enhance）後のメタデータと派生ラスタ
	Enhanced     *EnhanceResult `json:"enhanced,omitempty"`
	EnhanceError string         `json:"enhanceError,omitempty"`

	// 抽出が失敗した場合のみ設定される。設定時は他の派生フィールドは空。
	Error string `json:"error,omitempty"`

	// デコード済み画像。検証・補正がモードを参照するため元のモードのまま保持する。
	decoded image.Image
}

// PreviewImage は可逆フォーマットで再エンコードしたインメモリのプレビューです。
// JSONではPNGバイト列がbase64として載ります。
type PreviewImage struct {
	PNG    []byte `json:"png"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// HasImagePayload はレポートに画像ページを載せられるかを返します。
func (r *FileRecord) HasImagePayload() bool {
	if r == nil || r.Kind != KindImage || r.Error != "" {
		return false
	}
	if r.Enhanced != nil && len(r.Enhanced.PNG) > 0 {
		return true
	}
	return r.Preview != nil && len(r.Preview.PNG) > 0
}

// KindLabel はアペンディクス表示用の種別文字列を返します。
func (r *FileRecord) KindLabel() string {
	if r.Kind == "" {
		return string(KindUnknown)
	}
	return string(r.Kind)
}

// Batch は1回のアップロードぶんの検査結果です。表示順に並びます。
type Batch struct {
	Records []*FileRecord `json:"records"`
	// RGBA警告などでUI側の通知（音）を促すフラグ
	Alert bool `json:"alert"`
}

// ResultKind は生成される成果物の種別を表します。
type ResultKind string

const (
	ResultKindPDF ResultKind = "pdf"
	ResultKindPNG ResultKind = "png"
)

// Result はレポート生成などファイル成果物を伴う処理の結果です。
type Result struct {
	JobID          string     `json:"jobId"`
	OutputPath     string     `json:"outputPath"`
	OutputFilename string     `json:"outputFilename"`
	OutputSize     int64      `json:"outputSize"`
	ResultKind     ResultKind `json:"resultKind"`
	CreatedAt      time.Time  `json:"createdAt"`

	jobDir      string
	cleanupOnce sync.Once
	cleanupErr  error
}

// Cleanup は作業ディレクトリを削除します。
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.jobDir)
	})
	return r.cleanupErr
}
