package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	// GridCells is the fixed size of a month view: 6 rows of 7 days.
	GridCells = 42
	// GridColumns is the number of days per row, Monday first.
	GridColumns = 7
)

// ErrInvalidCursor signals a month outside 1..12.
var ErrInvalidCursor = errors.New("calendar: invalid cursor")

// Weekdays are the column headers of a Grid.
var Weekdays = [GridColumns]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Cursor is the month currently displayed, independent of any selection.
type Cursor struct {
	Year  int
	Month time.Month
}

// NewCursor validates year and month. Callers at an input boundary use it so
// that MonthGrid and Advance never see a malformed cursor.
func NewCursor(year int, month int) (Cursor, error) {
	c := Cursor{Year: year, Month: time.Month(month)}
	if !c.Valid() {
		return Cursor{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidCursor, year, month)
	}
	return c, nil
}

// CursorOf returns the month containing d.
func CursorOf(d Date) Cursor {
	return Cursor{Year: d.Year, Month: d.Month}
}

func (c Cursor) Valid() bool {
	return c.Month >= time.January && c.Month <= time.December
}

// Title renders the cursor as "March 2025".
func (c Cursor) Title() string {
	return fmt.Sprintf("%s %d", c.Month, c.Year)
}

func (c Cursor) mustValid() {
	if !c.Valid() {
		panic(fmt.Sprintf("calendar: month %d out of range", int(c.Month)))
	}
}

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Advance moves c by delta months, rolling the year over in both directions.
func Advance(c Cursor, delta int) Cursor {
	c.mustValid()

	idx := c.Year*12 + int(c.Month-1) + delta
	year := idx / 12
	month := idx % 12
	if month < 0 {
		month += 12
		year--
	}
	return Cursor{Year: year, Month: time.Month(month + 1)}
}

// Grid is a Monday-first month view. Zero cells are empty placeholders; the
// others hold the day of month.
type Grid [GridCells]int

// MonthGrid lays out the days of c. It panics on an invalid cursor.
func MonthGrid(c Cursor) Grid {
	c.mustValid()

	first := time.Date(c.Year, c.Month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	offset := (int(first) + 6) % 7
	days := DaysIn(c.Year, c.Month)

	var g Grid
	for i := offset; i < offset+days; i++ {
		g[i] = i - offset + 1
	}
	return g
}

// Offset is the index of day 1.
func (g Grid) Offset() int {
	for i, d := range g {
		if d == 1 {
			return i
		}
	}
	return -1
}

// Days counts the non-empty cells.
func (g Grid) Days() int {
	n := 0
	for _, d := range g {
		if d != 0 {
			n++
		}
	}
	return n
}

// Rows splits the grid into six weeks.
func (g Grid) Rows() [GridCells / GridColumns][GridColumns]int {
	var rows [GridCells / GridColumns][GridColumns]int
	for i, d := range g {
		rows[i/GridColumns][i%GridColumns] = d
	}
	return rows
}
