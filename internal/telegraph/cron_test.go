package telegraph

import (
	"testing"
	"time"
)

func TestNextCronDuration_ValidExpression(t *testing.T) {
	// "0 9 * * *" = daily at 09:00.
	now := time.Date(2026, 10, 14, 8, 30, 0, 0, time.Local)
	d := nextCronDuration("0 9 * * *", now)
	if d != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", d)
	}
}

func TestNextCronDuration_InvalidExpression(t *testing.T) {
	d := nextCronDuration("not a cron expr", time.Now())
	if d != 0 {
		t.Fatalf("expected 0 for invalid expression, got %v", d)
	}
}

func TestNextCronDuration_EveryMinute(t *testing.T) {
	// "* * * * *" = every minute. Duration should be < 61s.
	d := nextCronDuration("* * * * *", time.Now())
	if d <= 0 {
		t.Fatalf("expected positive duration, got %v", d)
	}
	if d > 61*time.Second {
		t.Fatalf("expected duration < 61s, got %v", d)
	}
}

func TestValidateCron(t *testing.T) {
	if err := ValidateCron("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	for _, bad := range []string{"", "* * * *", "0 0 0 * * *", "every minute"} {
		if err := ValidateCron(bad); err == nil {
			t.Errorf("ValidateCron(%q) = nil, want error", bad)
		}
	}
}
