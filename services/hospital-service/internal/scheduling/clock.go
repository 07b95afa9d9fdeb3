package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// SlotLength is the fixed length of every appointment.
const SlotLength = 30 * time.Minute

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Clock is a time of day in whole minutes since midnight.
type Clock int

// ParseClock accepts "HH:MM" and the "HH:MM:SS" form Postgres prints for
// TIME columns. Seconds must be zero.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := ClockLayout
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil || t.Second() != 0 {
		return 0, &MalformedInputError{Field: "time", Value: s, Err: err}
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf drops the date and anything below minutes.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

func (c Clock) Hour() int { return int(c) / 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DayPart labels a clock the way the front desk buckets appointments.
func (c Clock) DayPart() string {
	switch h := c.Hour(); {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

// Date is a calendar day without a time zone.
type Date struct {
	t time.Time // midnight UTC
}

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &MalformedInputError{Field: "date", Value: s, Err: err}
	}
	return Date{t: t}, nil
}

func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf takes the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) IsZero() bool         { return d.t.IsZero() }
func (d Date) Time() time.Time      { return d.t }
func (d Date) Before(o Date) bool   { return d.t.Before(o.t) }
func (d Date) Equal(o Date) bool    { return d.t.Equal(o.t) }
func (d Date) At(c Clock) time.Time { return d.t.Add(c.Duration()) }

func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
