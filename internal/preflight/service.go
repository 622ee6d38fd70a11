package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/print-preflight/internal/config"
)

// Service は検査パイプライン全体を提供します。
// 状態はリクエスト単位のワークスペースのみで、リクエストを跨ぐ共有状態は持ちません。
type Service struct {
	cfg     *config.Config
	baseDir string
	now     func() time.Time
}

// NewService は Service を初期化し、作業ディレクトリを用意します。
func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	base := cfg.WorkDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "print-preflight")
	}
	if err := os.MkdirAll(base, 0o750); err != nil {
		return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}

	svc := &Service{
		cfg:     cfg,
		baseDir: base,
		now:     time.Now,
	}

	// 正常系はリクエスト終了時に必ずワークスペースを消すので、ここで
	// 見つかるのはクラッシュ等で残った孤児だけ。起動時に期限切れ分を掃除する。
	svc.sweepExpiredJobs()

	return svc, nil
}

// sweepExpiredJobs は有効期限を過ぎたジョブディレクトリを削除します。
// JobExpireMinutes が0以下なら何もしません。
func (s *Service) sweepExpiredJobs() {
	ttl := time.Duration(s.cfg.JobExpireMinutes) * time.Minute
	if ttl <= 0 {
		return
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}

	cutoff := s.now().Add(-ttl)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = removeDir(filepath.Join(s.baseDir, entry.Name()))
		}
	}
}
