package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// FileNameLayout 输出文件名时间格式
const FileNameLayout = "20060102_150405"

// FileSink 每轮写一个 mesh_data_YYYYMMDD_HHMMSS.json（缩进的记录数组）
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

// Path 返回该批次的输出路径
func (s *FileSink) Path(b Batch) string {
	return filepath.Join(s.Dir, "mesh_data_"+b.CollectedAt.Local().Format(FileNameLayout)+".json")
}

func (s *FileSink) Deliver(ctx context.Context, b Batch) error {
	records := b.Records
	if records == nil {
		records = []mesh.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// 先写临时文件再改名，避免读到半个文件
	path := s.Path(b)
	tmp, err := os.CreateTemp(s.Dir, ".mesh_data_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
