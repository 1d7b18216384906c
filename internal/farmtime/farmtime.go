package farmtime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"

	// DefaultTimezone is used when no farm timezone is configured.
	DefaultTimezone = "Africa/Douala"
)

// ErrInvalidDate is returned when a string is not a YYYY-MM-DD calendar date.
var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar day with no time-of-day or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate reads a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(DateLayout) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date was never set.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.compare(other) < 0
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.compare(other) > 0
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n))
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return d.Year - other.Year
	case d.Month != other.Month:
		return int(d.Month) - int(other.Month)
	default:
		return d.Day - other.Day
	}
}

// TimezoneContext carries the farm's configured zone and clock. Dates shown to
// and submitted by users are always computed here, never from the host zone.
type TimezoneContext struct {
	loc *time.Location
	now func() time.Time
}

// New loads the named IANA zone. An empty name selects DefaultTimezone.
func New(name string) (TimezoneContext, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return TimezoneContext{}, fmt.Errorf("load timezone %s: %w", name, err)
	}
	return TimezoneContext{loc: loc, now: time.Now}, nil
}

// Fixed builds a context from an already resolved location.
func Fixed(loc *time.Location) TimezoneContext {
	if loc == nil {
		loc = time.UTC
	}
	return TimezoneContext{loc: loc, now: time.Now}
}

// WithClock returns a copy that reads the current instant from now.
func (z TimezoneContext) WithClock(now func() time.Time) TimezoneContext {
	z.now = now
	return z
}

// Location returns the farm zone.
func (z TimezoneContext) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// Name returns the IANA name of the farm zone.
func (z TimezoneContext) Name() string {
	return z.Location().String()
}

// Now returns the current instant in the farm zone.
func (z TimezoneContext) Now() time.Time {
	now := z.now
	if now == nil {
		now = time.Now
	}
	return now().In(z.Location())
}

// Today returns the farm-local calendar day.
func (z TimezoneContext) Today() Date {
	return DateOf(z.Now())
}

// IsFuture reports whether d is after the farm-local today.
func (z TimezoneContext) IsFuture(d Date) bool {
	return d.After(z.Today())
}
