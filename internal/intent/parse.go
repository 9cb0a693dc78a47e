package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zulandar/taskline/internal/locale"
)

// wireTask is one task as the model encodes it.
type wireTask struct {
	Title                 string   `json:"title"`
	Description           *string  `json:"description"`
	Priority              string   `json:"priority"`
	Category              string   `json:"category"`
	Date                  *string  `json:"date"`
	DateMissing           bool     `json:"date_missing"`
	IsRecurring           bool     `json:"is_recurring"`
	Recurrence            *string  `json:"recurrence"`
	ReminderOffsetMinutes *float64 `json:"reminder_offset_minutes"`
}

// multiResult is the preferred contract: any number of tasks plus an
// optional reply.
type multiResult struct {
	Tasks        []wireTask `json:"tasks"`
	ReplyMessage *string    `json:"reply_message"`
}

// legacyResult is the older single-task contract.
type legacyResult struct {
	wireTask
	IsTask       bool    `json:"is_task"`
	ReplyMessage *string `json:"reply_message"`
}

// ParseResult validates raw model output. It accepts either contract and
// tolerates a markdown code fence around the JSON. Any task without a
// title makes the whole result malformed. Dates are resolved in loc, the
// user's zone.
func ParseResult(raw string, loc *time.Location) (Result, error) {
	body := StripFence(raw)
	if body == "" {
		return Result{}, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case fields["tasks"] != nil:
		var m multiResult
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		res := Result{Reply: deref(m.ReplyMessage)}
		for i, wt := range m.Tasks {
			ti, err := wt.toIntent(loc)
			if err != nil {
				return Result{}, fmt.Errorf("%w: task %d: %v", ErrMalformed, i, err)
			}
			res.Tasks = append(res.Tasks, ti)
		}
		return res, nil

	case fields["is_task"] != nil:
		var l legacyResult
		if err := json.Unmarshal([]byte(body), &l); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		res := Result{Reply: deref(l.ReplyMessage)}
		if !l.IsTask {
			return res, nil
		}
		ti, err := l.wireTask.toIntent(loc)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		res.Tasks = []TaskIntent{ti}
		return res, nil

	default:
		// A bare reply is the multi-task contract with tasks omitted.
		if _, ok := fields["reply_message"]; ok {
			var m multiResult
			if err := json.Unmarshal([]byte(body), &m); err == nil && m.ReplyMessage != nil {
				return Result{Reply: *m.ReplyMessage}, nil
			}
		}
		return Result{}, fmt.Errorf("%w: neither tasks nor is_task present", ErrMalformed)
	}
}

func (wt wireTask) toIntent(loc *time.Location) (TaskIntent, error) {
	title := strings.TrimSpace(wt.Title)
	if title == "" {
		return TaskIntent{}, fmt.Errorf("missing title")
	}

	ti := TaskIntent{
		Title:       title,
		Description: strings.TrimSpace(deref(wt.Description)),
		Priority:    ParsePriority(wt.Priority),
		Category:    ParseCategory(wt.Category),
		Recurrence:  ParseRecurrence(deref(wt.Recurrence)),
	}
	// A recurring flag without a usable interval is dropped.
	ti.Recurring = wt.IsRecurring && ti.Recurrence != RecurrenceNone
	if !ti.Recurring {
		ti.Recurrence = RecurrenceNone
	}

	if wt.DateMissing || wt.Date == nil {
		ti.DateMissing = true
	} else if due, ok := locale.ParseIntentDate(*wt.Date, loc); ok {
		ti.Due = &due
	} else {
		ti.DateMissing = true
	}

	// Offsets outside (0, one year] are dropped rather than clamped.
	if off := wt.ReminderOffsetMinutes; off != nil && *off > 0 && *off <= MaxReminderOffsetMinutes {
		if m := int(math.Round(*off)); m > 0 {
			ti.ReminderOffsetMinutes = &m
		}
	}
	return ti, nil
}

// StripFence removes a surrounding ```json ... ``` block if present.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
