package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDBMigrateCmd(t *testing.T) {
	path := writeConfig(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"db", "migrate", "-c", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("db migrate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Migrated") || !strings.Contains(buf.String(), "sqlite") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	// Migrating twice is a no-op.
	cmd = newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"db", "migrate", "-c", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestDBMigrateCmd_BadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"db", "migrate", "-c", "/nonexistent.yaml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
}
