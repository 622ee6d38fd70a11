package preflight

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// storedFile はワークスペースに保存した受領ファイルのメタデータです。
type storedFile struct {
	path         string
	originalName string
	size         int64
	contentType  string
	kind         FileKind
	pages        int // PDF種別のみ（取得できない場合は0）
}

// storeMultipartFile はアップロードされたファイルをワークスペースの in/ に保存します。
// サイズ上限の検査と実コンテンツのMIME判定もここで行います。
func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, inDir string, index int) (storedFile, error) {
	if file == nil {
		return storedFile{}, newError(CodeInvalidInput, "ファイルを選択してください。", nil)
	}
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}

	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return storedFile{}, newError(CodeLimitExceeded,
			fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています: %s", s.cfg.MaxFileSize, file.Filename), nil)
	}

	src, err := file.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	storedName := fmt.Sprintf("upload-%03d%s", index, filepath.Ext(file.Filename))
	path := filepath.Join(inDir, storedName)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return storedFile{}, fmt.Errorf("受領ファイルの保存に失敗しました: %w", err)
	}

	written, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return storedFile{}, fmt.Errorf("受領ファイルの書き込みに失敗しました: %w", copyErr)
	}
	if closeErr != nil {
		return storedFile{}, fmt.Errorf("受領ファイルのクローズに失敗しました: %w", closeErr)
	}

	stored := storedFile{
		path:         path,
		originalName: file.Filename,
		size:         written,
		kind:         classifyKind(file.Filename),
	}

	// 種別判定はあくまで拡張子ベース。実コンテンツのMIMEは参考情報として持つ。
	if mt, err := mimetype.DetectFile(path); err == nil {
		stored.contentType = mt.String()
	}

	// PDFは中身に立ち入らないが、ページ数だけはメタデータとして取る。
	// 壊れたPDFでもエラーにはしない（0ページ扱い）。
	if stored.kind == KindPDF {
		if pages, err := pdfapi.PageCountFile(path); err == nil {
			stored.pages = pages
		}
	}

	return stored, nil
}
