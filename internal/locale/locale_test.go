package locale

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestResolver_Location(t *testing.T) {
	r := NewResolver("America/Sao_Paulo", nil)

	tests := []struct {
		tz   string
		want string
	}{
		{"America/Manaus", "America/Manaus"},
		{"", "America/Sao_Paulo"},
		{"Mars/Olympus", "America/Sao_Paulo"},
		{"Europe/Lisbon", "Europe/Lisbon"},
	}
	for _, tt := range tests {
		if got := r.Location(tt.tz).String(); got != tt.want {
			t.Errorf("Location(%q) = %q, want %q", tt.tz, got, tt.want)
		}
	}
}

func TestResolver_BadDefaultFallsBackToUTC(t *testing.T) {
	r := NewResolver("Nowhere/Land", nil)
	if r.Default() != time.UTC {
		t.Errorf("Default() = %v, want UTC", r.Default())
	}
}

func TestResolver_Context(t *testing.T) {
	r := NewResolver("America/Sao_Paulo", nil)
	// 2026-10-14 15:30 UTC is 12:30 in São Paulo, a Wednesday.
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

	tc := r.Context(now, "America/Sao_Paulo")
	if tc.Now.Hour() != 12 || tc.Now.Minute() != 30 {
		t.Errorf("local time = %v, want 12:30", tc.Now)
	}
	if tc.Weekday != "quarta-feira" {
		t.Errorf("Weekday = %q, want quarta-feira", tc.Weekday)
	}
	if tc.Offset != "-03:00" {
		t.Errorf("Offset = %q, want -03:00", tc.Offset)
	}
	if tc.Zone != "America/Sao_Paulo" {
		t.Errorf("Zone = %q", tc.Zone)
	}
}

func TestParseIntentDate(t *testing.T) {
	sp := mustLoad(t, "America/Sao_Paulo")
	tests := []struct {
		in     string
		loc    *time.Location
		ok     bool
		offset int
		hour   int
	}{
		{"2026-10-15T10:00:00-03:00", sp, true, -3 * 3600, 10},
		{"2026-10-15T10:00-03:00", sp, true, -3 * 3600, 10},
		{"2026-10-15T10:00:00.000+01:00", nil, true, 3600, 10},
		// Foreign offsets keep the wall clock in the user's zone.
		{"2026-10-15T10:00:00+00:00", sp, true, -3 * 3600, 10},
		{"2026-10-15T10:00:00.000+01:00", sp, true, -3 * 3600, 10},
		{"2026-10-15T10:00:00Z", sp, false, 0, 0},
		{"2026-10-15T10:00:00", sp, false, 0, 0},
		{"amanhã", sp, false, 0, 0},
		{"", nil, false, 0, 0},
	}
	for _, tt := range tests {
		got, ok := ParseIntentDate(tt.in, tt.loc)
		if ok != tt.ok {
			t.Errorf("ParseIntentDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if _, off := got.Zone(); off != tt.offset {
			t.Errorf("ParseIntentDate(%q) offset = %d, want %d", tt.in, off, tt.offset)
		}
		if got.Hour() != tt.hour {
			t.Errorf("ParseIntentDate(%q) hour = %d, want %d", tt.in, got.Hour(), tt.hour)
		}
	}
}

func TestFormatting(t *testing.T) {
	loc := mustLoad(t, "America/Sao_Paulo")
	ts := time.Date(2026, 10, 16, 21, 0, 0, 0, time.UTC)

	if got := FormatShort(ts, loc); got != "16/10/2026 18:00" {
		t.Errorf("FormatShort = %q", got)
	}
	if got := FormatDate(ts, loc); got != "16/10" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatClock(ts, loc); got != "18:00" {
		t.Errorf("FormatClock = %q", got)
	}
	if got := LocalDate(ts, loc); got != "2026-10-16" {
		t.Errorf("LocalDate = %q", got)
	}
}

func TestDayBounds(t *testing.T) {
	loc := mustLoad(t, "America/Sao_Paulo")
	// 01:00 UTC on the 15th is still the 14th in São Paulo.
	now := time.Date(2026, 10, 15, 1, 0, 0, 0, time.UTC)

	start, end := DayBounds(now, loc, 1)
	if got := start.Format("2006-01-02 15:04 -07:00"); got != "2026-10-15 00:00 -03:00" {
		t.Errorf("start = %s", got)
	}
	if !end.Equal(start.Add(24 * time.Hour)) {
		t.Errorf("end = %v, want start+24h", end)
	}

	today, _ := DayBounds(now, loc, 0)
	if today.Day() != 14 {
		t.Errorf("today start day = %d, want 14", today.Day())
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"08:30", "08:30", false},
		{"8:30", "08:30", false},
		{" 21:00 ", "21:00", false},
		{"24:00", "", true},
		{"830", "", true},
		{"off", "", true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
