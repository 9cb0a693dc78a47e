package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zulandar/taskline/internal/db"
	"github.com/zulandar/taskline/internal/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormDB
}

func outCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	return cmd, buf
}

func TestRunUserList_Empty(t *testing.T) {
	cmd, buf := outCmd()
	if err := runUserList(cmd, testDB(t)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "No users registered") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunUserList_Table(t *testing.T) {
	gormDB := testDB(t)
	u, err := user.Register(gormDB, "5511999990000", "Ana", "America/Sao_Paulo")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	clock := "08:00"
	if err := user.SetSummaryTime(gormDB, u.ID, &clock); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if _, err := user.Register(gormDB, "5511988880000", "Bruno", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd, buf := outCmd()
	if err := runUserList(cmd, gormDB); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"HANDLE", "Ana", "5511999990000", "08:00", "Bruno"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Ana") > strings.Index(out, "Bruno") {
		t.Errorf("users not sorted by name:\n%s", out)
	}
}

func TestRunUserSummary(t *testing.T) {
	gormDB := testDB(t)
	u, err := user.Register(gormDB, "5511999990000", "Ana", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd, buf := outCmd()
	if err := runUserSummary(cmd, gormDB, "+55 11 99999-0000", "7:30"); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(buf.String(), "07:30") {
		t.Errorf("output = %q", buf.String())
	}
	got, _ := user.Get(gormDB, u.ID)
	if got.DailySummaryTime == nil || *got.DailySummaryTime != "07:30" {
		t.Fatalf("summary time = %v, want 07:30", got.DailySummaryTime)
	}

	cmd, buf = outCmd()
	if err := runUserSummary(cmd, gormDB, "5511999990000", "OFF"); err != nil {
		t.Fatalf("summary off: %v", err)
	}
	if !strings.Contains(buf.String(), "disabled") {
		t.Errorf("output = %q", buf.String())
	}
	got, _ = user.Get(gormDB, u.ID)
	if got.DailySummaryTime != nil {
		t.Errorf("summary time = %q, want nil", *got.DailySummaryTime)
	}
}

func TestRunUserSummary_Errors(t *testing.T) {
	gormDB := testDB(t)
	if _, err := user.Register(gormDB, "5511999990000", "Ana", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd, _ := outCmd()
	if err := runUserSummary(cmd, gormDB, "5500000000000", "08:00"); !errors.Is(err, user.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
	if err := runUserSummary(cmd, gormDB, "5511999990000", "25:99"); err == nil {
		t.Error("expected error for bad clock")
	}
}

func TestUserListCmd_WithConfig(t *testing.T) {
	path := writeConfig(t)

	migrate := newRootCmd()
	migrate.SetOut(new(bytes.Buffer))
	migrate.SetArgs([]string{"db", "migrate", "-c", path})
	if err := migrate.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"user", "list", "-c", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("user list: %v", err)
	}
	if !strings.Contains(buf.String(), "No users registered") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestUserSummaryCmd_RequiresArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"user", "summary", "5511999990000"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected args error")
	}
}
