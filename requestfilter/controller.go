// Package requestfilter holds the transient filter state of the service
// request list: the date range, the status multi-select and the calendar
// dialog used to pick either end of the range.
//
// Every operation takes a state value and returns the next one; nothing here
// performs I/O or keeps state between calls.
package requestfilter

import (
	"fmt"

	"agriflow/calendar"
)

// Endpoint names the end of the range a calendar dialog edits.
type Endpoint string

const (
	EndpointStart Endpoint = "start"
	EndpointEnd   Endpoint = "end"
)

// DialogState is the calendar dialog's position in its Closed → Open → Closed cycle.
type DialogState int

const (
	DialogClosed DialogState = iota
	DialogOpenForStart
	DialogOpenForEnd
)

func (s DialogState) String() string {
	switch s {
	case DialogOpenForStart:
		return "open_for_start"
	case DialogOpenForEnd:
		return "open_for_end"
	default:
		return "closed"
	}
}

// Endpoint returns the range end edited in state s, or "" when closed.
func (s DialogState) Endpoint() Endpoint {
	switch s {
	case DialogOpenForStart:
		return EndpointStart
	case DialogOpenForEnd:
		return EndpointEnd
	default:
		return ""
	}
}

// DateRange bounds a filter query. Start after End is allowed; see Normalized.
type DateRange struct {
	Start calendar.Date
	End   calendar.Date
}

// Ordered reports whether Start is not after End.
func (r DateRange) Ordered() bool {
	return !r.Start.After(r.End)
}

// Normalized returns r with its endpoints swapped when Start is after End.
func (r DateRange) Normalized() DateRange {
	if r.Ordered() {
		return r
	}
	return DateRange{Start: r.End, End: r.Start}
}

// Contains reports whether d falls inside the normalized range, inclusive.
func (r DateRange) Contains(d calendar.Date) bool {
	n := r.Normalized()
	return !d.Before(n.Start) && !d.After(n.End)
}

// Selection holds at most one picked date.
type Selection struct {
	Date calendar.Date
	Set  bool
}

// Selected reports whether d is the picked date.
func (s Selection) Selected(d calendar.Date) bool {
	return s.Set && s.Date == d
}

// Query is the part of the controller state handed to the request listing.
type Query struct {
	Range    *DateRange
	Statuses []Status
}

// GenerateMonthGrid lays out the month under cursor, Monday first.
func GenerateMonthGrid(cursor calendar.Cursor) calendar.Grid {
	return calendar.MonthGrid(cursor)
}

// AdvanceMonth moves cursor by delta, which must be +1 or -1.
func AdvanceMonth(cursor calendar.Cursor, delta int) calendar.Cursor {
	if delta != 1 && delta != -1 {
		panic(fmt.Sprintf("requestfilter: advance by %d months", delta))
	}
	return calendar.Advance(cursor, delta)
}

// SelectDate replaces the current selection.
func SelectDate(_ Selection, date calendar.Date) Selection {
	return Selection{Date: date, Set: true}
}

// ConfirmSelection writes the selected date into the endpoint of r. An empty
// selection leaves r untouched.
func ConfirmSelection(endpoint Endpoint, sel Selection, r DateRange) DateRange {
	if !sel.Set {
		return r
	}
	switch endpoint {
	case EndpointStart:
		r.Start = sel.Date
	case EndpointEnd:
		r.End = sel.Date
	default:
		panic(fmt.Sprintf("requestfilter: unknown endpoint %q", endpoint))
	}
	return r
}

// FormatDate renders d as DD/MM/YYYY, or "" when d is unset.
func FormatDate(d calendar.Date) string {
	return calendar.Format(d)
}

// ClearFilters returns the reset range (today/today) and the empty status set.
func ClearFilters(clock calendar.Clock) (DateRange, StatusFilter) {
	today := calendar.Today(clock)
	return DateRange{Start: today, End: today}, StatusFilter{}
}

// Controller is the full filter screen state.
type Controller struct {
	Range          DateRange
	Statuses       StatusFilter
	Cursor         calendar.Cursor
	Selection      Selection
	Dialog         DialogState
	FiltersVisible bool

	clock calendar.Clock
}

// New returns the state of a freshly mounted request list screen.
func New(clock calendar.Clock) Controller {
	r, statuses := ClearFilters(clock)
	return Controller{
		Range:    r,
		Statuses: statuses,
		Cursor:   calendar.CursorOf(r.Start),
		clock:    clock,
	}
}

func (c Controller) ShowFilters() Controller {
	c.FiltersVisible = true
	return c
}

func (c Controller) HideFilters() Controller {
	c.FiltersVisible = false
	return c
}

// OpenCalendar opens the dialog for endpoint, seeding cursor and selection
// from that endpoint's current date. Opening over an open dialog replaces it.
func (c Controller) OpenCalendar(endpoint Endpoint) Controller {
	var current calendar.Date
	switch endpoint {
	case EndpointStart:
		current = c.Range.Start
		c.Dialog = DialogOpenForStart
	case EndpointEnd:
		current = c.Range.End
		c.Dialog = DialogOpenForEnd
	default:
		panic(fmt.Sprintf("requestfilter: unknown endpoint %q", endpoint))
	}

	c.Cursor = calendar.CursorOf(current)
	c.Selection = SelectDate(Selection{}, current)
	return c
}

func (c Controller) PrevMonth() Controller {
	c.Cursor = AdvanceMonth(c.Cursor, -1)
	return c
}

func (c Controller) NextMonth() Controller {
	c.Cursor = AdvanceMonth(c.Cursor, 1)
	return c
}

// SelectDay picks day of the displayed month. Ignored while the dialog is closed.
func (c Controller) SelectDay(day int) Controller {
	if c.Dialog == DialogClosed {
		return c
	}
	d := calendar.Date{Year: c.Cursor.Year, Month: c.Cursor.Month, Day: day}
	if !d.Valid() {
		panic(fmt.Sprintf("requestfilter: day %d not in %s", day, c.Cursor.Title()))
	}
	c.Selection = SelectDate(c.Selection, d)
	return c
}

// Apply confirms the selection into the range and closes the dialog.
func (c Controller) Apply() Controller {
	if endpoint := c.Dialog.Endpoint(); endpoint != "" {
		c.Range = ConfirmSelection(endpoint, c.Selection, c.Range)
	}
	c.Dialog = DialogClosed
	c.Selection = Selection{}
	return c
}

// Dismiss closes the dialog discarding the selection; the range is untouched.
func (c Controller) Dismiss() Controller {
	c.Dialog = DialogClosed
	c.Selection = Selection{}
	return c
}

func (c Controller) ToggleStatus(s Status) Controller {
	c.Statuses = ToggleStatus(c.Statuses, s)
	return c
}

// ClearAll resets the range to today/today and empties the status set.
func (c Controller) ClearAll() Controller {
	c.Range, c.Statuses = ClearFilters(c.clock)
	return c
}

// Cell is one rendered day of the dialog grid.
type Cell struct {
	Day      int  `json:"day"`
	Empty    bool `json:"empty"`
	Selected bool `json:"selected"`
}

// Grid renders the displayed month with the selection marked.
func (c Controller) Grid() []Cell {
	g := GenerateMonthGrid(c.Cursor)
	cells := make([]Cell, len(g))
	for i, day := range g {
		if day == 0 {
			cells[i] = Cell{Empty: true}
			continue
		}
		d := calendar.Date{Year: c.Cursor.Year, Month: c.Cursor.Month, Day: day}
		cells[i] = Cell{Day: day, Selected: c.Selection.Selected(d)}
	}
	return cells
}

// Query returns the filter to run against the request listing.
func (c Controller) Query() Query {
	r := c.Range
	return Query{Range: &r, Statuses: c.Statuses.Sorted()}
}
