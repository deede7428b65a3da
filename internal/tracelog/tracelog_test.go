package tracelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_DisabledByDefaultWritesNothing(t *testing.T) {
	t.Setenv("KLENDATHU_TRACE", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	logger := New()
	logger.Logf("hello %d", 1)

	if _, err := os.Stat(filepath.Join(home, ".klendathu", "trace.log")); !os.IsNotExist(err) {
		t.Fatalf("expected no trace file to be written, stat err=%v", err)
	}
}

func TestLogger_EnabledAppendsLines(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KLENDATHU_TRACE", "1")

	logger := New()
	logger.Logf("first %d", 1)
	logger.Logf("second %d", 2)

	data, err := os.ReadFile(filepath.Join(home, ".klendathu", "trace.log"))
	if err != nil {
		t.Fatalf("expected a trace file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "first 1") || !strings.Contains(content, "second 2") {
		t.Fatalf("unexpected trace content: %q", content)
	}
}
