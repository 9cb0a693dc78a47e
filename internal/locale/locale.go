// Package locale resolves user timezones and formats instants the way the
// bot shows them to Brazilian users.
package locale

import (
	"fmt"
	"strings"
	"sync"
	"time"

	// Embedded zone database so LoadLocation works in minimal containers.
	_ "time/tzdata"

	"go.uber.org/zap"
)

var weekdays = [...]string{
	"domingo", "segunda-feira", "terça-feira", "quarta-feira",
	"quinta-feira", "sexta-feira", "sábado",
}

// Temporal is the wall-clock context injected into extraction prompts.
type Temporal struct {
	Now      time.Time // now, expressed in Location
	Weekday  string
	Offset   string // "-03:00"
	Zone     string // IANA name
	Location *time.Location
}

// Resolver loads IANA zones with a fallback to a default zone. It never
// returns an error for a bad zone name.
type Resolver struct {
	def    *time.Location
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewResolver creates a Resolver. If defaultTZ itself cannot be loaded the
// resolver falls back to UTC.
func NewResolver(defaultTZ string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	def, err := time.LoadLocation(defaultTZ)
	if err != nil || defaultTZ == "" {
		logger.Warn("default timezone invalid, using UTC", zap.String("tz", defaultTZ))
		def = time.UTC
	}
	return &Resolver{def: def, logger: logger, cache: make(map[string]*time.Location)}
}

// Default returns the fallback location.
func (r *Resolver) Default() *time.Location { return r.def }

// Location returns the zone named tz, or the default zone when tz is empty
// or unknown.
func (r *Resolver) Location(tz string) *time.Location {
	if tz == "" {
		return r.def
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if loc, ok := r.cache[tz]; ok {
		return loc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		r.logger.Warn("invalid timezone, using default",
			zap.String("tz", tz), zap.String("default", r.def.String()), zap.Error(err))
		loc = r.def
	}
	r.cache[tz] = loc
	return loc
}

// Context builds the temporal context for a user in zone tz.
func (r *Resolver) Context(now time.Time, tz string) Temporal {
	loc := r.Location(tz)
	local := now.In(loc)
	return Temporal{
		Now:      local,
		Weekday:  WeekdayName(local.Weekday()),
		Offset:   local.Format("-07:00"),
		Zone:     loc.String(),
		Location: loc,
	}
}

// WeekdayName returns the Portuguese name of a weekday.
func WeekdayName(d time.Weekday) string { return weekdays[d] }

// ParseIntentDate parses an extracted ISO-8601 instant. The string must
// carry a numeric UTC offset; a bare "Z" is rejected because the model was
// told to answer in the user's zone. When the offset disagrees with loc at
// that wall-clock time, the wall clock is kept and re-read in loc. A nil
// loc accepts any offset.
func ParseIntentDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04-07:00"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if loc == nil {
			return t, true
		}
		local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		_, got := t.Zone()
		if _, want := local.Zone(); got != want {
			return local, true
		}
		return t.In(loc), true
	}
	return time.Time{}, false
}

// FormatShort renders t as "dd/mm/yyyy HH:MM" in loc.
func FormatShort(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01/2006 15:04")
}

// FormatDate renders t as "dd/mm" in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01")
}

// FormatClock renders t as "HH:MM" in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// DayBounds returns local midnight of the day offsetDays away from now and
// the following midnight.
func DayBounds(now time.Time, loc *time.Location, offsetDays int) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()+offsetDays, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseClock validates an "HH:mm" time of day and returns it zero-padded.
func ParseClock(s string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("locale: clock %q: want HH:mm", s)
	}
	return t.Format("15:04"), nil
}

// Clock returns the local "HH:mm" of now in loc.
func Clock(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("15:04")
}

// LocalDate returns the local "YYYY-MM-DD" of now in loc.
func LocalDate(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}
