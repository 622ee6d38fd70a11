package preflight

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// AnalyzeService は検査バッチとレポート生成を提供します。
type AnalyzeService interface {
	AnalyzeMultipart(ctx context.Context, files []*multipart.FileHeader, opts AnalyzeOptions) (*Batch, error)
	BuildReport(ctx context.Context, batch *Batch, filename string) (*Result, error)
}

// DPIService はDPI計算を提供します。
type DPIService interface {
	CalculateDPIMultipart(ctx context.Context, file *multipart.FileHeader, target PhysicalSize) (*DPIResult, error)
}

// EnhanceService は画像補正を提供します。
type EnhanceService interface {
	EnhanceMultipart(ctx context.Context, file *multipart.FileHeader, opts EnhanceOptions) (*EnhanceResult, error)
}

// AnalyzeHandler は POST /api/preflight/analyze のハンドラーを返します。
func AnalyzeHandler(svc AnalyzeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "multipart/form-data でファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "アップロードされたファイルが見つかりません。",
			})
			return
		}

		opts, err := parseAnalyzeOptions(c)
		if err != nil {
			respondWithError(c, err)
			return
		}

		batch, err := svc.AnalyzeMultipart(c.Request.Context(), files, opts)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

// DPIHandler は POST /api/preflight/dpi のハンドラーを返します。
func DPIHandler(svc DPIService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "multipart/form-data で画像ファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		target, err := parseTargetSize(c)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if target == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "仕上がり寸法（target_width_mm / target_height_mm）または preset を指定してください。",
			})
			return
		}

		result, err := svc.CalculateDPIMultipart(c.Request.Context(), file, *target)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// EnhanceHandler は POST /api/preflight/enhance のハンドラーを返します。
// 補正後のキャンバスを表示用PNGとして返し、モード・解像度・塗り足し幅は
// レスポンスヘッダーに載せます。
func EnhanceHandler(svc EnhanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "multipart/form-data で画像ファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		opts := EnhanceOptions{
			AddBleed: parseBoolField(c, "bleed"),
		}
		if raw := strings.TrimSpace(c.PostForm("bleed_mm")); raw != "" {
			bleedMm, err := strconv.ParseFloat(raw, 64)
			if err != nil || bleedMm <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    CodeInvalidInput,
					"message": "bleed_mm は正の数値で指定してください。",
				})
				return
			}
			opts.BleedMm = bleedMm
		}

		result, err := svc.EnhanceMultipart(c.Request.Context(), file, opts)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.Header("X-Color-Mode", string(result.Mode))
		c.Header("X-Resolution", fmt.Sprintf("%.0fx%.0f", result.Resolution.DpiX, result.Resolution.DpiY))
		c.Header("X-Bleed-Px", strconv.Itoa(result.BleedPx))
		c.Header("Content-Disposition", `attachment; filename="enhanced.png"`)
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", result.PNG)
	}
}

// ReportHandler は POST /api/preflight/report のハンドラーを返します。
// 検査パイプラインを通した結果をその場でPDFに組み立てて返します。
func ReportHandler(svc AnalyzeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "multipart/form-data でファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "アップロードされたファイルが見つかりません。",
			})
			return
		}

		opts, err := parseAnalyzeOptions(c)
		if err != nil {
			respondWithError(c, err)
			return
		}

		batch, err := svc.AnalyzeMultipart(c.Request.Context(), files, opts)
		if err != nil {
			respondWithError(c, err)
			return
		}

		result, err := svc.BuildReport(c.Request.Context(), batch, c.PostForm("filename"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer result.Cleanup()

		if err := streamResult(c, result, "レポートの読み込みに失敗しました"); err != nil {
			respondWithError(c, err)
		}
	}
}

func parseAnalyzeOptions(c *gin.Context) (AnalyzeOptions, error) {
	opts := AnalyzeOptions{
		AssumeFallbackDPI: parseBoolField(c, "fallback_dpi"),
		Enhance:           parseBoolField(c, "enhance"),
		AddBleed:          parseBoolField(c, "bleed"),
	}

	target, err := parseTargetSize(c)
	if err != nil {
		return AnalyzeOptions{}, err
	}
	opts.TargetSize = target

	if raw := strings.TrimSpace(c.PostForm("bleed_mm")); raw != "" {
		bleedMm, err := strconv.ParseFloat(raw, 64)
		if err != nil || bleedMm <= 0 {
			return AnalyzeOptions{}, newError(CodeInvalidInput, "bleed_mm は正の数値で指定してください。", nil)
		}
		opts.BleedMm = bleedMm
	}

	return opts, nil
}

// parseTargetSize は preset または target_width_mm / target_height_mm を
// 仕上がり寸法に解決します。どちらも無ければ nil（メタデータのみモード）。
func parseTargetSize(c *gin.Context) (*PhysicalSize, error) {
	if preset := strings.TrimSpace(c.PostForm("preset")); preset != "" {
		size, ok := PresetSize(preset)
		if !ok {
			return nil, newError(CodeInvalidInput,
				"preset には 300x1980 / 2414x980 / 2480x1960 のいずれかを指定してください。", nil)
		}
		return &size, nil
	}

	widthRaw := strings.TrimSpace(c.PostForm("target_width_mm"))
	heightRaw := strings.TrimSpace(c.PostForm("target_height_mm"))
	if widthRaw == "" && heightRaw == "" {
		return nil, nil
	}
	if widthRaw == "" || heightRaw == "" {
		return nil, newError(CodeInvalidInput, "仕上がり寸法は幅と高さの両方を指定してください。", nil)
	}

	width, err := strconv.Atoi(widthRaw)
	if err != nil || width <= 0 {
		return nil, newError(CodeInvalidInput, "target_width_mm は正の整数で指定してください。", nil)
	}
	height, err := strconv.Atoi(heightRaw)
	if err != nil || height <= 0 {
		return nil, newError(CodeInvalidInput, "target_height_mm は正の整数で指定してください。", nil)
	}

	return &PhysicalSize{WidthMm: float64(width), HeightMm: float64(height)}, nil
}

func parseBoolField(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.PostForm(key)))
	return err == nil && value
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case CodeLimitExceeded:
			status = http.StatusRequestEntityTooLarge
		case CodeAssemblyFailed:
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	return files
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("ファイルを選択してください。")
	}
	if file := form.File["file"]; len(file) > 0 {
		return file[0], nil
	}
	if file := form.File["file[]"]; len(file) > 0 {
		return file[0], nil
	}
	if files := form.File["files"]; len(files) > 0 {
		return files[0], nil
	}
	if alt := form.File["files[]"]; len(alt) > 0 {
		return alt[0], nil
	}
	return nil, errors.New("ファイルを選択してください。")
}

func streamResult(c *gin.Context, result *Result, readErrMsg string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch result.ResultKind {
	case ResultKindPDF:
		contentType = "application/pdf"
	case ResultKindPNG:
		contentType = "image/png"
	}

	encodedName := url.PathEscape(result.OutputFilename)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", result.JobID)
	c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	return nil
}
