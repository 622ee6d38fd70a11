package preflight

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"os"
)

// artworkPresets は定型アートワーク寸法です。ラベルは「高さx幅」表記
// （現場の発注表記に合わせたもの）で、値は幅・高さ（mm）です。
var artworkPresets = map[string]PhysicalSize{
	"300x1980":  {WidthMm: 1980, HeightMm: 300},
	"2414x980":  {WidthMm: 980, HeightMm: 2414},
	"2480x1960": {WidthMm: 1960, HeightMm: 2480},
}

// PresetSize は定型寸法ラベルを仕上がり寸法に解決します。
func PresetSize(name string) (PhysicalSize, bool) {
	size, ok := artworkPresets[name]
	return size, ok
}

// DPIResult はDPI計算の結果です。
type DPIResult struct {
	Name        string      `json:"name"`
	PixelWidth  int         `json:"pixelWidth"`
	PixelHeight int         `json:"pixelHeight"`
	// 埋め込みメタデータの解像度（参考値、なければnil）
	MetadataResolution *Resolution  `json:"metadataResolution,omitempty"`
	TargetSize         PhysicalSize `json:"targetSize"`
	DpiX               float64      `json:"dpiX"`
	DpiY               float64      `json:"dpiY"`
	// 2軸のうち低い方を「その画像の解像度」として示す
	LowestDPI  float64 `json:"lowestDpi"`
	PrintReady bool    `json:"printReady"`
}

// CalculateDPIMultipart は仕上がり寸法からDPIを導出し、印刷適性を判定します。
// 判定は両軸が300を厳密に上回る場合のみ合格です。
func (s *Service) CalculateDPIMultipart(ctx context.Context, file *multipart.FileHeader, target PhysicalSize) (*DPIResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError(CodeInvalidInput, "画像ファイルを選択してください。", nil)
	}
	if target.WidthMm <= 0 || target.HeightMm <= 0 {
		return nil, newError(CodeInvalidInput, "仕上がり寸法（mm）は正の値で指定してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = removeDir(ws.dir)
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0)
	if err != nil {
		return nil, err
	}
	if stored.kind != KindImage {
		return nil, newError(CodeInvalidInput, "画像ファイル（png/jpg/jpeg/tiff/bmp/gif）を指定してください。", nil)
	}

	data, err := os.ReadFile(stored.path)
	if err != nil {
		return nil, err
	}

	cfgImg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, newError(CodeDecodeFailed, "画像のデコードに失敗しました: "+stored.originalName, err)
	}

	dpiX, dpiY := calculateDPI(cfgImg.Width, cfgImg.Height, target.WidthMm, target.HeightMm)

	return &DPIResult{
		Name:               stored.originalName,
		PixelWidth:         cfgImg.Width,
		PixelHeight:        cfgImg.Height,
		MetadataResolution: extractResolution(data, formatForName(stored.originalName)),
		TargetSize:         target,
		DpiX:               roundTo1(dpiX),
		DpiY:               roundTo1(dpiY),
		LowestDPI:          roundTo1(lowestDPI(dpiX, dpiY)),
		PrintReady:         isPrintReady(dpiX, dpiY),
	}, nil
}
