// 包 export 负责将运行报告与表统计写为 JSON 文件。
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"oura-sync/internal/model"
)

// Status 为 status 命令的导出结构。
type Status struct {
	Database  string             `json:"database"`
	Tables    []model.TableStats `json:"tables"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ReportToJSON 写入一次运行的端点结果（带缩进格式）。
func ReportToJSON(rep model.Report, path string) error {
	if rep.Outcomes == nil {
		rep.Outcomes = []model.Outcome{}
	}
	return writeJSON(rep, path)
}

// StatusToJSON 写入数据库各表的列数与行数。
func StatusToJSON(db string, tables []model.TableStats, path string) error {
	if tables == nil {
		tables = []model.TableStats{}
	}
	return writeJSON(Status{Database: db, Tables: tables, UpdatedAt: time.Now()}, path)
}

func writeJSON(v any, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
