package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the automatic synchronization schedule.
type Config struct {
	// Enabled turns the automatic synchronization on.
	Enabled bool `json:"enabled" mapstructure:"enabled" default:"false"`
	// IntervalMinutes is the pause between successful runs.
	IntervalMinutes int `json:"interval_minutes" mapstructure:"interval_minutes" default:"60"`
	// Days lists the allowed weekdays, comma separated, 1=Monday .. 7=Sunday.
	Days string `json:"days" mapstructure:"days" default:"1,2,3,4,5"`
	// StartTime is the start of the daily window, HH:MM.
	StartTime string `json:"start_time" mapstructure:"start_time" default:"08:00"`
	// EndTime is the end of the daily window, HH:MM.
	EndTime string `json:"end_time" mapstructure:"end_time" default:"18:00"`
}

// Interval returns the run interval as a duration, at least one minute.
func (c Config) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Weekdays parses Days into the 1..7 weekday set.
func (c Config) Weekdays() (map[int]bool, error) {
	days := make(map[int]bool)
	for _, part := range strings.Split(c.Days, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > 7 {
			return nil, fmt.Errorf("scheduler: invalid weekday %q", part)
		}
		days[d] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("scheduler: no weekdays configured")
	}
	return days, nil
}

// Window parses StartTime and EndTime into minutes since midnight.
func (c Config) Window() (startMin, endMin int, err error) {
	startMin, err = parseClock(c.StartTime)
	if err != nil {
		return 0, 0, err
	}
	endMin, err = parseClock(c.EndTime)
	if err != nil {
		return 0, 0, err
	}
	if endMin < startMin {
		return 0, 0, fmt.Errorf("scheduler: window end %s before start %s", c.EndTime, c.StartTime)
	}
	return startMin, endMin, nil
}

// Validate checks every derived schedule parameter at once.
func (c Config) Validate() error {
	if _, err := c.Weekdays(); err != nil {
		return err
	}
	_, _, err := c.Window()
	return err
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("scheduler: invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
