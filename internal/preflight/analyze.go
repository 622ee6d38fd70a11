package preflight

import (
	"context"
	"errors"
	"mime/multipart"
	"os"
)

// AnalyzeOptions は検査バッチ全体の入力です。
type AnalyzeOptions struct {
	// ユーザー指定の仕上がり寸法（mm）。nil なら未指定。
	TargetSize *PhysicalSize
	// メタデータ欠落時に72DPIを仮定する
	AssumeFallbackDPI bool
	// 補正（CMYK変換 + 300DPI刻印）を行う
	Enhance bool
	// 塗り足しキャンバスを合成する（Enhance時のみ有効）
	AddBleed bool
	// 塗り足し幅（mm）。0以下なら設定の既定値。
	BleedMm float64
	// RGBA検出時のフック
	OnAlert AlertFunc
}

// AnalyzeMultipart はアップロード一式を抽出→検証→（任意で）補正の順に
// 処理します。1ファイルの失敗はそのレコードのErrorに閉じ、バッチは
// 最後まで続行します。
func (s *Service) AnalyzeMultipart(ctx context.Context, files []*multipart.FileHeader, opts AnalyzeOptions) (*Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(files) == 0 {
		return nil, newError(CodeInvalidInput, "ファイルを選択してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = removeDir(ws.dir)
	}()

	batch := &Batch{}
	for i, fh := range files {
		rec, err := s.processUpload(ctx, fh, ws, i)
		if err != nil {
			return nil, err
		}
		// 最新の処理結果を先頭へ挿入する（most-recent-first）
		batch.Records = append([]*FileRecord{rec}, batch.Records...)
	}

	// 確定した表示順に合わせて 1..N を振り直す。先頭＝最新が常に1。
	for i, rec := range batch.Records {
		rec.DisplayIndex = i + 1
	}

	vopts := ValidateOptions{
		TargetSize:        opts.TargetSize,
		AssumeFallbackDPI: opts.AssumeFallbackDPI,
		OnAlert: func(rec *FileRecord) {
			batch.Alert = true
			if opts.OnAlert != nil {
				opts.OnAlert(rec)
			}
		},
	}
	for _, rec := range batch.Records {
		validateRecord(rec, vopts)
	}

	if opts.Enhance {
		bleedMm := opts.BleedMm
		if bleedMm <= 0 {
			bleedMm = s.cfg.DefaultBleedMm
		}
		for _, rec := range batch.Records {
			if rec.Kind != KindImage || rec.decoded == nil {
				continue
			}
			enhanced, err := enhanceImage(rec.decoded, EnhanceOptions{
				AddBleed: opts.AddBleed,
				BleedMm:  bleedMm,
			})
			if err != nil {
				rec.EnhanceError = err.Error()
				continue
			}
			rec.Enhanced = enhanced
		}
	}

	return batch, nil
}

// processUpload は1ファイルを保存してレコード化します。エラーを返すのは
// コンテキスト中断のみで、それ以外の失敗はレコードに閉じます。
func (s *Service) processUpload(ctx context.Context, fh *multipart.FileHeader, ws workspace, index int) (*FileRecord, error) {
	stored, err := s.storeMultipartFile(ctx, fh, ws.inDir, index)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		name := ""
		if fh != nil {
			name = fh.Filename
		}
		return &FileRecord{
			Name:  name,
			Kind:  classifyKind(name),
			Error: err.Error(),
		}, nil
	}

	data, err := os.ReadFile(stored.path)
	if err != nil {
		return &FileRecord{
			Name:  stored.originalName,
			Kind:  stored.kind,
			Error: err.Error(),
		}, nil
	}

	return s.extractRecord(stored, data), nil
}
