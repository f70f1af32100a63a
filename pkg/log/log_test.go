package log

import (
	"os"
	"path/filepath"
	"testing"

	"pdf-vectorize-go/internal/config"
)

func TestInit_WritesToOutputPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Init(config.LogConfig{Level: "debug", Format: "json", OutputPath: dir}); err != nil {
		t.Fatalf("init: %v", err)
	}
	Infof("[Test] hello %d", 1)
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	if err := Init(config.LogConfig{Level: "loud", Format: "console"}); err != nil {
		t.Fatalf("init: %v", err)
	}
}
