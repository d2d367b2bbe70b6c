package models

import "time"

// DaySchedule is the opening window for a single weekday, in "HH:MM"
type DaySchedule struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
}

// WeeklySchedule maps a weekday key ("Mon".."Sun") to its window.
// A missing key means the schedule has no opinion about that day.
type WeeklySchedule map[string]DaySchedule

// WeekdayKey returns the schedule key for a weekday
func WeekdayKey(d time.Weekday) string {
	return d.String()[:3]
}

// Lookup returns the entry for the given weekday, if present
func (s WeeklySchedule) Lookup(d time.Weekday) (DaySchedule, bool) {
	if s == nil {
		return DaySchedule{}, false
	}
	entry, ok := s[WeekdayKey(d)]
	return entry, ok
}

// DefaultBusinessHours is every day, all day
func DefaultBusinessHours() WeeklySchedule {
	s := make(WeeklySchedule, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		s[WeekdayKey(d)] = DaySchedule{Enabled: true, Start: "00:00", End: "23:59"}
	}
	return s
}
