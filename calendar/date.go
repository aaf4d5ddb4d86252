package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate signals a DD/MM/YYYY string that does not name a real day.
var ErrInvalidDate = errors.New("calendar: invalid date")

// Date is a civil calendar day without time of day or location. The zero
// value is the unset date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Clock returns the current instant. Services take one so tests can pin "today".
type Clock func() time.Time

// FromTime truncates t to its civil day in t's location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current civil day according to clock.
func Today(clock Clock) Date {
	if clock == nil {
		clock = time.Now
	}
	return FromTime(clock())
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Valid reports whether d names an existing day.
func (d Date) Valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return d.Day <= DaysIn(d.Year, d.Month)
}

// Time returns midnight of d in loc (UTC when loc is nil).
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) After(o Date) bool {
	return o.Before(d)
}

func (d Date) Equal(o Date) bool {
	return d == o
}

// String formats d as DD/MM/YYYY.
func (d Date) String() string {
	return Format(d)
}

// Format renders d as zero-padded DD/MM/YYYY. The zero date renders as "".
func Format(d Date) string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// Parse reads a DD/MM/YYYY string. Single digit day and month are accepted.
func Parse(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		nums[i] = n
	}

	d := Date{Year: nums[2], Month: time.Month(nums[1]), Day: nums[0]}
	if len(parts[2]) != 4 || !d.Valid() {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// MarshalText implements encoding.TextMarshaler using the DD/MM/YYYY form.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(Format(d)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the zero date.
func (d *Date) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
