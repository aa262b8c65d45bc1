package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseDateField parses a "YYYY-MM-DD" calendar date in the given location.
// The returned time is midnight local.
func ParseDateField(path, raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%s: date is required", path)
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q (want YYYY-MM-DD): %w", path, raw, err)
	}
	return t, nil
}

// ParseClockField parses an "HH:MM" time of day.
func ParseClockField(path, raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, 0, fmt.Errorf("%s: clock is required", path)
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%s: invalid clock %q (want HH:MM)", path, raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%s: invalid hour in %q", path, raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%s: invalid minute in %q", path, raw)
	}
	return h, m, nil
}

// Validate checks the parts of the config the app cannot start without.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	tz := strings.TrimSpace(cfg.Calendar.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("calendar.timezone: unknown timezone %q", cfg.Calendar.Timezone)
	}
	start, err := ParseDateField("calendar.window_start", cfg.Calendar.WindowStart, loc)
	if err != nil {
		return err
	}
	end, err := ParseDateField("calendar.window_end", cfg.Calendar.WindowEnd, loc)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("calendar: window_end %s is before window_start %s", cfg.Calendar.WindowEnd, cfg.Calendar.WindowStart)
	}
	if _, _, err := ParseClockField("calendar.publish_at", cfg.Calendar.PublishAt); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}
