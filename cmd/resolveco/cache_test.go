package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, httpDir, llmDir string, maxAge string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "resolveco.yaml")
	content := fmt.Sprintf(`
llm:
  model: test-model
cache:
  httpDir: %s
  llmDir: %s
  maxAge: %s
`, httpDir, llmDir, maxAge)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCacheCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"cache"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCacheGCPurgesExpiredEntries(t *testing.T) {
	httpDir := t.TempDir()
	llmDir := t.TempDir()

	metaPath := filepath.Join(httpDir, "stale.meta.json")
	if err := os.WriteFile(metaPath, []byte(`{"url":"https://acme.com","saved_at":"2000-01-01T00:00:00Z"}`), 0o644); err != nil {
		t.Fatalf("write stale meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(httpDir, "stale.body"), []byte("stale body"), 0o644); err != nil {
		t.Fatalf("write stale body: %v", err)
	}

	llmEntry := filepath.Join(llmDir, "stale.json")
	if err := os.WriteFile(llmEntry, []byte(`{"match":true}`), 0o644); err != nil {
		t.Fatalf("write stale llm entry: %v", err)
	}
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(llmEntry, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	cfgPath := writeTestConfig(t, httpDir, llmDir, "1h")
	out, err := runCacheCommand(t, "gc", "--config", cfgPath)
	if err != nil {
		t.Fatalf("cache gc: %v", err)
	}
	if _, statErr := os.Stat(metaPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected stale http meta to be purged")
	}
	if _, statErr := os.Stat(llmEntry); !os.IsNotExist(statErr) {
		t.Fatalf("expected stale llm entry to be purged")
	}
	if out == "" {
		t.Fatalf("expected a summary line on stdout")
	}
}

func TestCacheClearRemovesAndRecreatesDir(t *testing.T) {
	httpDir := t.TempDir()
	llmDir := t.TempDir()
	marker := filepath.Join(httpDir, "keep.meta.json")
	if err := os.WriteFile(marker, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	cfgPath := writeTestConfig(t, httpDir, llmDir, "1h")
	if _, err := runCacheCommand(t, "clear", "--which", "http", "--config", cfgPath); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Fatalf("expected http cache dir to be cleared")
	}
	if info, statErr := os.Stat(httpDir); statErr != nil || !info.IsDir() {
		t.Fatalf("expected http cache dir to be recreated empty, got err=%v", statErr)
	}
}

func TestCacheClearRejectsUnknownWhich(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), t.TempDir(), "1h")
	if _, err := runCacheCommand(t, "clear", "--which", "bogus", "--config", cfgPath); err == nil {
		t.Fatalf("expected an error for an unrecognized --which value")
	}
}
