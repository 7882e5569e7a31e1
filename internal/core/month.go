package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month identifies a calendar month. The zero value is invalid.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth builds a Month and validates the month number.
func NewMonth(year int, month int) (Month, error) {
	m := Month{Year: year, Month: time.Month(month)}
	if err := m.Validate(); err != nil {
		return Month{}, err
	}
	return m, nil
}

// ParseMonth parses "YYYY-MM", the form months cross the backend boundary in.
func ParseMonth(s string) (Month, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return NewMonth(year, month)
}

func (m Month) Validate() error {
	if m.Month < time.January || m.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidMonth, int(m.Month))
	}
	if m.Year < 1 {
		return fmt.Errorf("%w: year %d", ErrInvalidMonth, m.Year)
	}
	return nil
}

// String formats the month as "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Range returns the half-open interval [start, end) covering the month in UTC.
func (m Month) Range() (start, end time.Time) {
	start = time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// Contains reports whether t falls within the month.
func (m Month) Contains(t time.Time) bool {
	start, end := m.Range()
	return !t.Before(start) && t.Before(end)
}

// Prev returns the preceding calendar month.
func (m Month) Prev() Month {
	start, _ := m.Range()
	p := start.AddDate(0, -1, 0)
	return Month{Year: p.Year(), Month: p.Month()}
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	_, end := m.Range()
	return Month{Year: end.Year(), Month: end.Month()}
}

// MarshalJSON encodes the month as its "YYYY-MM" string form.
func (m Month) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON decodes a "YYYY-MM" string.
func (m *Month) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMonth, data)
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
