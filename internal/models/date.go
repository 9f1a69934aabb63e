package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date layout used on the wire
const DateLayout = "2006-01-02"

var alternateDateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	time.RFC3339,
}

// Date is a calendar date without a time component. The zero value means
// "no date".
type Date struct {
	t time.Time
}

// NewDate creates a Date from its components
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar date
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses YYYY-MM-DD and a few common bank-export layouts
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("date cannot be empty")
	}

	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	for _, layout := range alternateDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date format: %q", s)
}

// MustParseDate is ParseDate for literals known to be valid
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the date
func (d Date) Time() time.Time { return d.t }

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

func (d Date) After(other Date) bool { return d.t.After(other.t) }

func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// AddDays returns the date n calendar days later (or earlier for negative n)
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysBetween returns the absolute number of calendar days between two dates
func DaysBetween(a, b Date) int {
	days := int(a.t.Sub(b.t).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalJSON encodes the date as a YYYY-MM-DD string, or null when zero
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a date string or null
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
