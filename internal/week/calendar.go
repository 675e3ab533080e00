package week

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used for task dates.
const DateLayout = "2006-01-02"

// Weeks run Saturday through Friday. Week 1 of a week-year is the week that
// contains January 1st.
const firstDay = time.Saturday

// civil drops the clock and zone, keeping the calendar date as seen in t's location.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start returns the Saturday that opens the week containing t.
func Start(t time.Time) time.Time {
	c := civil(t)
	offset := (int(c.Weekday()) - int(firstDay) + 7) % 7
	return c.AddDate(0, 0, -offset)
}

// End returns the Friday that closes the week containing t.
func End(t time.Time) time.Time {
	return Start(t).AddDate(0, 0, 6)
}

// Year returns the week-year owning the week of t. A week that straddles
// New Year belongs to the new year.
func Year(t time.Time) int {
	c := civil(t)
	y := c.Year()
	if !c.Before(Start(time.Date(y+1, time.January, 1, 0, 0, 0, 0, time.UTC))) {
		return y + 1
	}
	return y
}

// Number returns the 1-based week of the week-year for t.
func Number(t time.Time) int {
	first := Start(time.Date(Year(t), time.January, 1, 0, 0, 0, 0, time.UTC))
	days := int(Start(t).Sub(first).Hours() / 24)
	return days/7 + 1
}

// DisplayID is the stable human readable week key, e.g. "2026-W07".
func DisplayID(t time.Time) string {
	return fmt.Sprintf("%d-W%02d", Year(t), Number(t))
}

// Days lists the seven dates of the week containing t, Saturday first.
func Days(t time.Time) []time.Time {
	start := Start(t)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return civil(t).Format(DateLayout)
}

// DisplayIDForDate is DisplayID for an ISO date string.
func DisplayIDForDate(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return DisplayID(t), nil
}
