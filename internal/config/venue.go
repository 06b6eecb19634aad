package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"practicespace/internal/model"
)

// HoursConfig is an opening window for one day.
type HoursConfig struct {
	Open  string `yaml:"open"`  // "09:00"
	Close string `yaml:"close"` // "23:00", "24:00" allowed
}

// HolidayConfig represents a holiday configuration.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"`
}

// DefaultsConfig represents venue-wide default settings.
type DefaultsConfig struct {
	Hours   *HoursConfig `yaml:"hours"`
	DaysOff []int        `yaml:"days_off"` // 1=Mon, 7=Sun
}

// VenueConfig is the root configuration for venue.yaml.
type VenueConfig struct {
	Name     string               `yaml:"name"`
	Timezone string               `yaml:"timezone"`
	Defaults DefaultsConfig       `yaml:"defaults"`
	Weekly   map[int]*HoursConfig `yaml:"weekly"` // per-weekday override, 1=Mon
	Holidays []HolidayConfig      `yaml:"holidays"`

	loc *time.Location
}

// LoadVenueConfig loads and validates the venue configuration from a YAML file.
func LoadVenueConfig(path string) (*VenueConfig, error) {
	if path == "" {
		path = "configs/venue.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue config: %w", err)
	}

	return ParseVenueConfig(data)
}

func ParseVenueConfig(data []byte) (*VenueConfig, error) {
	var cfg VenueConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse venue config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate venue config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors and resolves the timezone.
func (c *VenueConfig) Validate() error {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: unknown location '%s'", c.Timezone)
	}
	c.loc = loc

	if c.Defaults.Hours == nil {
		return fmt.Errorf("defaults.hours is required")
	}
	if err := validateHours(c.Defaults.Hours, "defaults.hours"); err != nil {
		return err
	}

	for day, h := range c.Weekly {
		if day < 1 || day > 7 {
			return fmt.Errorf("weekly: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", day)
		}
		if h == nil {
			continue
		}
		if err := validateHours(h, fmt.Sprintf("weekly[%d]", day)); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(model.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	for i, d := range c.Defaults.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("defaults.days_off[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}

	return nil
}

func validateHours(h *HoursConfig, prefix string) error {
	if h.Open == "" {
		return fmt.Errorf("%s.open is required", prefix)
	}
	if h.Close == "" {
		return fmt.Errorf("%s.close is required", prefix)
	}
	open, err := model.ParseTimeOfDay(h.Open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, h.Open)
	}
	closeAt, err := model.ParseTimeOfDay(h.Close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, h.Close)
	}
	if closeAt <= open {
		return fmt.Errorf("%s: close must be after open", prefix)
	}
	return nil
}

// Location returns the venue timezone, UTC when the config was never validated.
func (c *VenueConfig) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// IsDayOff checks if a weekday is a day off.
func (c *VenueConfig) IsDayOff(weekday time.Weekday) bool {
	day := isoWeekday(weekday)
	for _, d := range c.Defaults.DaysOff {
		if d == day {
			return true
		}
	}
	return false
}

// IsHoliday checks if a date is a holiday.
func (c *VenueConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.In(c.Location()).Format(model.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// OperatingHours returns the opening window for the given venue-local date.
// ok is false on days off. Holidays are handled as closures, not here.
func (c *VenueConfig) OperatingHours(date time.Time) (open, closeAt model.TimeOfDay, ok bool) {
	local := date.In(c.Location())
	if c.IsDayOff(local.Weekday()) {
		return 0, 0, false
	}
	h := c.Defaults.Hours
	if w, found := c.Weekly[isoWeekday(local.Weekday())]; found {
		if w == nil {
			return 0, 0, false
		}
		h = w
	}
	if h == nil {
		return 0, 0, false
	}
	// validated on load
	open, _ = model.ParseTimeOfDay(h.Open)
	closeAt, _ = model.ParseTimeOfDay(h.Close)
	return open, closeAt, true
}

// String returns a summary of the configuration.
func (c *VenueConfig) String() string {
	return fmt.Sprintf("VenueConfig: %s (%s), %d days off, %d holidays",
		c.Name, c.Location(), len(c.Defaults.DaysOff), len(c.Holidays))
}

func isoWeekday(w time.Weekday) int {
	if w == time.Sunday {
		return 7
	}
	return int(w)
}

// VenueHolder keeps the latest venue config for readers while WatchVenue swaps it.
type VenueHolder struct {
	v atomic.Pointer[VenueConfig]
}

func NewVenueHolder(v *VenueConfig) *VenueHolder {
	h := &VenueHolder{}
	h.v.Store(v)
	return h
}

func (h *VenueHolder) Get() *VenueConfig { return h.v.Load() }

func (h *VenueHolder) Set(v *VenueConfig) {
	if v != nil {
		h.v.Store(v)
	}
}

func (h *VenueHolder) Location() *time.Location { return h.Get().Location() }

func (h *VenueHolder) OperatingHours(date time.Time) (model.TimeOfDay, model.TimeOfDay, bool) {
	return h.Get().OperatingHours(date)
}
