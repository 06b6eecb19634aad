// Package recurring expands weekly series into reservation instances.
package recurring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"practicespace/internal/model"
)

var dayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Rule is the supported subset of RFC 5545 recurrence rules:
// FREQ=WEEKLY with BYDAY and INTERVAL.
type Rule struct {
	Interval int
	Days     []time.Weekday
}

// ParseRule parses strings like "FREQ=WEEKLY;BYDAY=MO,TH;INTERVAL=2".
// An optional "RRULE:" prefix is accepted.
func ParseRule(s string) (Rule, error) {
	r := Rule{Interval: 1}
	s = strings.Join(strings.Fields(strings.ToUpper(s)), "")
	s = strings.TrimPrefix(s, "RRULE:")
	if s == "" {
		return r, model.Invalid("recurrence_rule", "is empty")
	}

	seen := map[string]bool{}
	var parts []string
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		key, _, ok := strings.Cut(part, "=")
		if !ok {
			return r, model.Invalid("recurrence_rule", "malformed part %q", part)
		}
		switch key {
		case "FREQ", "BYDAY", "INTERVAL":
		default:
			return r, model.Invalid("recurrence_rule", "unsupported part %s", key)
		}
		if seen[key] {
			return r, model.Invalid("recurrence_rule", "duplicate %s", key)
		}
		seen[key] = true
		parts = append(parts, part)
	}
	if !seen["FREQ"] {
		return r, model.Invalid("recurrence_rule", "FREQ is required")
	}
	if !seen["BYDAY"] {
		return r, model.Invalid("recurrence_rule", "BYDAY is required")
	}

	opt, err := rrule.StrToROption(strings.Join(parts, ";"))
	if err != nil {
		return r, model.Invalid("recurrence_rule", "%v", err)
	}
	if opt.Freq != rrule.WEEKLY {
		return r, model.Invalid("recurrence_rule", "only weekly rules are supported")
	}
	if seen["INTERVAL"] {
		if opt.Interval < 1 {
			return r, model.Invalid("recurrence_rule", "interval must be a positive integer")
		}
		r.Interval = opt.Interval
	}

	days := map[time.Weekday]bool{}
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return r, model.Invalid("recurrence_rule", "ordinal days like %s are not supported", wd.String())
		}
		days[time.Weekday((wd.Day()+1)%7)] = true
	}
	for d := range days {
		r.Days = append(r.Days, d)
	}
	sort.Slice(r.Days, func(i, j int) bool { return isoDay(r.Days[i]) < isoDay(r.Days[j]) })
	return r, nil
}

// String renders the canonical form of the rule.
func (r Rule) String() string {
	codes := make([]string, len(r.Days))
	for i, d := range r.Days {
		codes[i] = dayCodes[d]
	}
	out := "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
	if r.Interval > 1 {
		out += fmt.Sprintf(";INTERVAL=%d", r.Interval)
	}
	return out
}

// civil drops the clock and zone so day arithmetic ignores DST.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// isoDay numbers weekdays from Monday.
func isoDay(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// recurrence anchors the rule at the civil date of anchor, with weeks
// starting on Monday.
func (r Rule) recurrence(anchor time.Time) (*rrule.RRule, error) {
	days := make([]rrule.Weekday, len(r.Days))
	for i, d := range r.Days {
		days[i] = rruleDays[d]
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  r.Interval,
		Wkst:      rrule.MO,
		Byweekday: days,
		Dtstart:   civil(anchor),
	})
}

// Matches reports whether date is an occurrence of a series anchored at anchor.
func (r Rule) Matches(anchor, date time.Time) bool {
	d := civil(date)
	return len(r.Dates(anchor, d, d)) > 0
}

// Dates returns the occurrences in [from, to], both inclusive, as civil
// dates at UTC midnight.
func (r Rule) Dates(anchor, from, to time.Time) []time.Time {
	start := civil(from)
	if a := civil(anchor); start.Before(a) {
		start = a
	}
	end := civil(to)
	if end.Before(start) || len(r.Days) == 0 {
		return nil
	}
	rec, err := r.recurrence(anchor)
	if err != nil {
		return nil
	}
	return rec.Between(start, end, true)
}
