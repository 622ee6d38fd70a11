package preflight

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"mime/multipart"
	"os"

	"github.com/disintegration/imaging"
)

// enhancedDPI は補正時に無条件で刻印する解像度です。
// 事前のDPI判定の合否とは無関係に上書きされます。
const enhancedDPI = 300.0

// EnhanceOptions は補正処理の入力です。
type EnhanceOptions struct {
	AddBleed bool
	BleedMm  float64
}

// EnhanceResult は補正後のキャンバスとメタデータです。
// PNGは表示・レポート埋め込み用に落としたもので、モードの真値は
// Mode / Resolution が持ちます。
type EnhanceResult struct {
	PNG            []byte       `json:"-"`
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	Mode           ColorMode    `json:"mode"`
	Resolution     Resolution   `json:"resolution"`
	BleedPx        int          `json:"bleedPx"`
	PhysicalSizeMm PhysicalSize `json:"physicalSizeMm"`
}

// EnhanceMultipart はアップロード1件を補正し、表示用PNGとメタデータを返します。
func (s *Service) EnhanceMultipart(ctx context.Context, file *multipart.FileHeader, opts EnhanceOptions) (*EnhanceResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError(CodeInvalidInput, "画像ファイルを選択してください。", nil)
	}
	if opts.BleedMm <= 0 {
		opts.BleedMm = s.cfg.DefaultBleedMm
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
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, newError(CodeDecodeFailed, "画像のデコードに失敗しました: "+stored.originalName, err)
	}

	return enhanceImage(img, opts)
}

// enhanceImage はCMYK変換・300DPI刻印・塗り足しキャンバス合成を行います。
// 呼び出し元のデコード済み画像は変更しません（常に新しいキャンバスに描く
// か、読み取りのみ）。
func enhanceImage(img image.Image, opts EnhanceOptions) (*EnhanceResult, error) {
	if img == nil {
		return nil, newError(CodeInvalidInput, "補正対象の画像がありません。", nil)
	}

	// CMYK以外はCMYKへ変換（不可逆・一方向）。CMYKは再変換しない。
	source := toCMYK(img)

	result := &EnhanceResult{
		Mode:       ColorModeCMYK,
		Resolution: Resolution{DpiX: enhancedDPI, DpiY: enhancedDPI},
	}

	canvas := source
	if opts.AddBleed && opts.BleedMm > 0 {
		bleedPx := int(math.Round(opts.BleedMm * enhancedDPI / mmPerInch))
		result.BleedPx = bleedPx
		canvas = padWithBleed(source, bleedPx)
	}

	bounds := canvas.Bounds()
	result.Width = bounds.Dx()
	result.Height = bounds.Dy()
	result.PhysicalSizeMm = physicalSizeMm(bounds.Dx(), bounds.Dy(), enhancedDPI, enhancedDPI)

	// 表示用レンダリング。imaging.CloneがNRGBAへ落とす。
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Clone(canvas), imaging.PNG); err != nil {
		return nil, fmt.Errorf("補正結果のエンコードに失敗しました: %w", err)
	}
	result.PNG = buf.Bytes()

	return result, nil
}

// toCMYK は任意の画像をCMYKへ変換します。入力が既にCMYKならそのまま
// 返します（変更しないので共有して問題ない）。
func toCMYK(img image.Image) *image.CMYK {
	if cmyk, ok := img.(*image.CMYK); ok {
		return cmyk
	}
	bounds := img.Bounds()
	dst := image.NewCMYK(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// padWithBleed は白地の拡張キャンバス中央に元画像を貼り、元の版面の縁に
// 1pxの見当ガイドを描きます。ゼロ値のCMYKキャンバスは全チャンネル0、
// すなわち白なので塗りつぶしは不要です。
func padWithBleed(src *image.CMYK, bleedPx int) *image.CMYK {
	if bleedPx <= 0 {
		return src
	}
	srcBounds := src.Bounds()
	w, h := srcBounds.Dx(), srcBounds.Dy()

	canvas := image.NewCMYK(image.Rect(0, 0, w+2*bleedPx, h+2*bleedPx))
	content := image.Rect(bleedPx, bleedPx, bleedPx+w, bleedPx+h)
	draw.Draw(canvas, content, src, srcBounds.Min, draw.Src)
	drawRegistrationGuide(canvas, content)
	return canvas
}

// drawRegistrationGuide は版面の外周1pxに黒（K100）の枠線を描きます。
// 内容側の画素には触れません。
func drawRegistrationGuide(canvas *image.CMYK, content image.Rectangle) {
	guide := color.CMYK{K: 255}
	ring := content.Inset(-1)
	if !ring.In(canvas.Bounds()) {
		return
	}
	for x := ring.Min.X; x < ring.Max.X; x++ {
		canvas.SetCMYK(x, ring.Min.Y, guide)
		canvas.SetCMYK(x, ring.Max.Y-1, guide)
	}
	for y := ring.Min.Y; y < ring.Max.Y; y++ {
		canvas.SetCMYK(ring.Min.X, y, guide)
		canvas.SetCMYK(ring.Max.X-1, y, guide)
	}
}
