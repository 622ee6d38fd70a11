package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// レポートの紙面定数。A4縦・mm単位。
const (
	reportFilename  = "output.pdf"
	pageBreakMargin = 15.0 // 自動改ページの下マージン
	pageTopMargin   = 10.0 // 画像の配置位置（x=y=10）
	pageImageWidth  = 180.0
	pageGap         = 10.0 // 画像とメタデータブロックの間隔
)

// BuildReport は最終表示順のレコード列からレポートPDFを組み立てます。
// 並び順はここでは一切変更しません。ファイル単位のデコード失敗はレコード
// 側で吸収済みなので、この操作だけが全体として失敗しえます。
func (s *Service) BuildReport(ctx context.Context, batch *Batch, filename string) (_ *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if batch == nil || len(batch.Records) == 0 {
		return nil, newError(CodeInvalidInput, "レポート対象のファイルがありません。", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(filename)
	if name == "" {
		name = reportFilename
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = removeDir(ws.dir)
		}
	}()

	outputPath := filepath.Join(ws.outDir, reportFilename)
	if err := assembleReport(batch.Records, ws.outDir, outputPath); err != nil {
		return nil, newError(CodeAssemblyFailed, "レポートの生成に失敗しました。", err)
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil {
		return nil, newError(CodeAssemblyFailed, "レポートファイルの確認に失敗しました。", statErr)
	}

	return &Result{
		JobID:          ws.jobID,
		OutputPath:     outputPath,
		OutputFilename: name,
		OutputSize:     info.Size(),
		ResultKind:     ResultKindPDF,
		CreatedAt:      s.now().UTC(),
		jobDir:         ws.dir,
	}, nil
}

func assembleReport(records []*FileRecord, scratchDir, outputPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, pageBreakMargin)

	// 1ページ目は常にアペンディクス: 受け取った順に1行ずつ。
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 10, "Appendix", "", 1, "C", false, 0, "")
	pdf.Ln(10)
	for _, rec := range records {
		line := fmt.Sprintf("%d: %s - %s", rec.DisplayIndex, rec.Name, rec.KindLabel())
		pdf.CellFormat(0, 10, line, "", 1, "L", false, 0, "")
	}

	// 画像ペイロードを持つレコードだけが詳細ページを得る。
	// PDF種別・エラーレコードはアペンディクス行のみ。
	for i, rec := range records {
		if !rec.HasImagePayload() {
			continue
		}
		if err := addImagePage(pdf, rec, scratchDir, i); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(outputPath)
}

// addImagePage は画像1件の詳細ページを描きます。埋め込み用の一時ファイル
// は途中で失敗しても必ず削除します。
func addImagePage(pdf *gofpdf.Fpdf, rec *FileRecord, scratchDir string, index int) error {
	png, imgW, imgH := rec.reportPayload()

	// ワークスペース内で衝突しない一時名
	imgPath := filepath.Join(scratchDir, fmt.Sprintf("page-%03d.png", index))
	if err := os.WriteFile(imgPath, png, 0o640); err != nil {
		return fmt.Errorf("埋め込み画像の書き出しに失敗しました: %w", err)
	}
	defer func() {
		_ = os.Remove(imgPath)
	}()

	pdf.AddPage()
	pdf.ImageOptions(imgPath, pageTopMargin, pageTopMargin, pageImageWidth, 0, false,
		gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	// 画像の下端直下にメタデータブロックを置く
	bottomY := pageTopMargin + (pageImageWidth/float64(imgW))*float64(imgH)
	pdf.SetY(bottomY + pageGap)

	pdf.SetFont("Arial", "", 10)
	center := func(text string) {
		pdf.CellFormat(0, 10, text, "", 1, "C", false, 0, "")
	}

	center("File Name: " + rec.Name)
	if rec.PixelDimensions != nil {
		center(fmt.Sprintf("Dimensions: %d x %d pixels", rec.PixelDimensions.Width, rec.PixelDimensions.Height))
	}
	center("Color Mode: " + string(rec.effectiveColorMode()))
	center("Resolution: " + rec.resolutionLabel())
	if size := rec.effectivePhysicalSizeMm(); size != nil {
		center(fmt.Sprintf("Physical Size: %.1f x %.1f mm", size.WidthMm, size.HeightMm))
	}

	// 警告は注意色、成功は肯定色。以降のテキストのために必ず黒へ戻す。
	if len(rec.Warnings) > 0 {
		pdf.SetTextColor(255, 0, 0)
		for _, warning := range rec.Warnings {
			center("Warning: " + warning)
		}
		pdf.SetTextColor(0, 0, 0)
	}
	if rec.StatusMessage != "" {
		pdf.SetTextColor(0, 128, 0)
		center("Success: " + rec.StatusMessage)
		pdf.SetTextColor(0, 0, 0)
	}

	return nil
}

// reportPayload はレポートに埋め込むラスタを返します。補正済みがあれば
// そちらを優先します。
func (r *FileRecord) reportPayload() ([]byte, int, int) {
	if r.Enhanced != nil && len(r.Enhanced.PNG) > 0 {
		return r.Enhanced.PNG, r.Enhanced.Width, r.Enhanced.Height
	}
	return r.Preview.PNG, r.Preview.Width, r.Preview.Height
}

// effectiveColorMode は補正があれば補正後のモードを返します。
func (r *FileRecord) effectiveColorMode() ColorMode {
	if r.Enhanced != nil {
		return r.Enhanced.Mode
	}
	return r.ColorMode
}

// resolutionLabel は表示用の解像度文字列を返します。メタデータ欠落は
// 明示的に "Not available" と表記します。
func (r *FileRecord) resolutionLabel() string {
	if r.Enhanced != nil {
		return fmt.Sprintf("%.1f x %.1f DPI", r.Enhanced.Resolution.DpiX, r.Enhanced.Resolution.DpiY)
	}
	if r.Resolution != nil {
		return fmt.Sprintf("%.1f x %.1f DPI", r.Resolution.DpiX, r.Resolution.DpiY)
	}
	return "Not available"
}

// effectivePhysicalSizeMm は補正があれば補正後の物理寸法を返します。
func (r *FileRecord) effectivePhysicalSizeMm() *PhysicalSize {
	if r.Enhanced != nil {
		size := r.Enhanced.PhysicalSizeMm
		return &size
	}
	return r.PhysicalSizeMm
}
