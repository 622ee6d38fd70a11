package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// workspace はリクエスト単位の一時作業ディレクトリです。
// in/ に受領ファイル、out/ に生成物を置き、処理終了時に丸ごと削除します。
type workspace struct {
	jobID  string
	dir    string
	inDir  string
	outDir string
}

func (s *Service) createWorkspace() (workspace, error) {
	jobID := uuid.NewString()
	ws := s.workspaceFor(jobID)

	for _, dir := range []string{ws.inDir, ws.outDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = removeDir(ws.dir)
			return workspace{}, fmt.Errorf("ワークスペースの作成に失敗しました: %w", err)
		}
	}
	return ws, nil
}

func (s *Service) workspaceFor(jobID string) workspace {
	dir := filepath.Join(s.baseDir, jobID)
	return workspace{
		jobID:  jobID,
		dir:    dir,
		inDir:  filepath.Join(dir, "in"),
		outDir: filepath.Join(dir, "out"),
	}
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
