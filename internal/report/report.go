// Package report 把一次运行的汇总写成 JSON 文档。
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ticket_engine/internal/model"
)

// Write 写入 <dir>/<run_id>.json 并返回路径。先写临时文件再改名，读者不会看到半截文件。
func Write(dir string, r model.RunReport) (string, error) {
	if strings.TrimSpace(r.RunID) == "" {
		return "", errors.New("run id is required")
	}
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, r.RunID+".json")
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Read 读取 Write 写出的文档。
func Read(path string) (model.RunReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.RunReport{}, err
	}
	var r model.RunReport
	if err := json.Unmarshal(b, &r); err != nil {
		return model.RunReport{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return r, nil
}

// Summary 退出时打印的一行汇总。
func Summary(r model.RunReport) string {
	mark := "✅"
	if r.Succeeded == 0 {
		mark = "❌"
	}
	s := fmt.Sprintf("%s %d/%d accounts succeeded", mark, r.Succeeded, r.Total)
	if r.Manual > 0 {
		s += fmt.Sprintf(", %d need manual attention", r.Manual)
	}
	return s
}
