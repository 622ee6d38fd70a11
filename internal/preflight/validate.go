package preflight

import "math"

// 印刷適性の固定しきい値。
const (
	minPrintDPI = 300.0
	fallbackDPI = 72.0
	a4WidthMm   = 210.0
	a4HeightMm  = 297.0
)

// 警告・成功メッセージ。レポートとUIにそのまま表示されます。
const (
	warnLowDPI  = "below 300 DPI, consider enhancing resolution."
	warnRGB     = "Image is in RGB color mode. Consider converting to CMYK for print."
	warnRGBA    = "Image is in RGBA color mode."
	warnBelowA4 = "Image is smaller than A4 (210mm x 297mm)."
	successCMYK = "Image is in CMYK color mode, suitable for print."
)

// AlertFunc はRGBA警告などでUI側の通知（音）を起動するためのフックです。
// 検出（純粋）と通知（副作用）を分離するため、検証はここを呼ぶだけで
// 自らは何も再生しません。
type AlertFunc func(rec *FileRecord)

// ValidateOptions は検証モードを表します。
type ValidateOptions struct {
	// ユーザー指定の仕上がり寸法（mm）。nil なら未指定。
	TargetSize *PhysicalSize
	// メタデータ欠落時に72DPIを仮定するフォールバックモード
	AssumeFallbackDPI bool
	// RGBA検出時のフック
	OnAlert AlertFunc
}

// physicalSizeMm はピクセル寸法とDPIから物理寸法（mm）を計算します。
func physicalSizeMm(pxW, pxH int, dpiX, dpiY float64) PhysicalSize {
	return PhysicalSize{
		WidthMm:  float64(pxW) / dpiX * mmPerInch,
		HeightMm: float64(pxH) / dpiY * mmPerInch,
	}
}

// calculateDPI はピクセル寸法と仕上がり寸法（mm）から軸ごとのDPIを計算します。
func calculateDPI(pxW, pxH int, widthMm, heightMm float64) (float64, float64) {
	dpiX := float64(pxW) / (widthMm / mmPerInch)
	dpiY := float64(pxH) / (heightMm / mmPerInch)
	return dpiX, dpiY
}

// isPrintReady は両軸が300を厳密に上回るときのみ真を返します。
// ちょうど300は不合格（メタデータ表示の「300以上は警告付きで可」とは
// 意図的に非対称）。
func isPrintReady(dpiX, dpiY float64) bool {
	return dpiX > minPrintDPI && dpiY > minPrintDPI
}

// lowestDPI は2軸のうち小さい方を「その画像の解像度」として返します。
func lowestDPI(dpiX, dpiY float64) float64 {
	return math.Min(dpiX, dpiY)
}

// validateRecord は検査ルールを固定順で適用し、警告と成功メッセージを
// レコードに積みます。画素データには一切触れません。
func validateRecord(rec *FileRecord, opts ValidateOptions) {
	if rec == nil || rec.Kind != KindImage || rec.Error != "" {
		return
	}

	// ルール1: DPI下限。どちらかの軸が300未満なら警告。
	// 解像度が全く分からないモードではこのルールは「失敗」ではなく「スキップ」。
	if dpiX, dpiY, ok := effectiveResolution(rec, opts); ok {
		if dpiX < minPrintDPI || dpiY < minPrintDPI {
			rec.Warnings = append(rec.Warnings, warnLowDPI)
		}
	}

	// ルール2: カラーモード適性。
	switch rec.ColorMode {
	case ColorModeRGB:
		rec.Warnings = append(rec.Warnings, warnRGB)
	case ColorModeRGBA:
		rec.Warnings = append(rec.Warnings, warnRGBA)
		if opts.OnAlert != nil {
			opts.OnAlert(rec)
		}
	case ColorModeCMYK:
		rec.StatusMessage = successCMYK
	}

	// ルール3: A4下限。物理寸法が分かる場合のみ。
	if size, ok := effectivePhysicalSize(rec, opts); ok {
		if size.WidthMm < a4WidthMm || size.HeightMm < a4HeightMm {
			rec.Warnings = append(rec.Warnings, warnBelowA4)
		}
	}
}

// effectiveResolution は検証に使うDPIを決めます。優先順:
// メタデータ → 仕上がり寸法からの導出 → 72DPIフォールバック。
func effectiveResolution(rec *FileRecord, opts ValidateOptions) (float64, float64, bool) {
	if rec.Resolution != nil {
		return rec.Resolution.DpiX, rec.Resolution.DpiY, true
	}
	if rec.PixelDimensions == nil {
		return 0, 0, false
	}
	if opts.TargetSize != nil && opts.TargetSize.WidthMm > 0 && opts.TargetSize.HeightMm > 0 {
		dpiX, dpiY := calculateDPI(rec.PixelDimensions.Width, rec.PixelDimensions.Height,
			opts.TargetSize.WidthMm, opts.TargetSize.HeightMm)
		return dpiX, dpiY, true
	}
	if opts.AssumeFallbackDPI {
		return fallbackDPI, fallbackDPI, true
	}
	return 0, 0, false
}

// effectivePhysicalSize は検証に使う物理寸法を決めます。仕上がり寸法の
// 指定があればそれが物理寸法そのものです。
func effectivePhysicalSize(rec *FileRecord, opts ValidateOptions) (PhysicalSize, bool) {
	if opts.TargetSize != nil && opts.TargetSize.WidthMm > 0 && opts.TargetSize.HeightMm > 0 {
		return *opts.TargetSize, true
	}
	if rec.PhysicalSizeMm != nil {
		return *rec.PhysicalSizeMm, true
	}
	if opts.AssumeFallbackDPI && rec.PixelDimensions != nil {
		return physicalSizeMm(rec.PixelDimensions.Width, rec.PixelDimensions.Height,
			fallbackDPI, fallbackDPI), true
	}
	return PhysicalSize{}, false
}
