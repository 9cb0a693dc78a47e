package main

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig writes a discord-platform config backed by a temp sqlite
// file and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yaml := "platform: discord\n" +
		"discord:\n  bot_token: test-token\n" +
		"database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "taskline.db") + "\n"
	path := filepath.Join(dir, "taskline.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
