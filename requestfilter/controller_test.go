package requestfilter

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"agriflow/calendar"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 13, 9, 30, 0, 0, time.UTC)
}

var today = calendar.Date{Year: 2025, Month: time.March, Day: 13}

func TestToggleStatus_SelfInverse(t *testing.T) {
	base := NewStatusFilter(StatusPlaced, StatusPaid)
	for _, s := range AllStatuses() {
		got := ToggleStatus(ToggleStatus(base, s), s)
		if !got.Equal(base) {
			t.Fatalf("toggling %q twice changed the set: %v -> %v", s, base.Sorted(), got.Sorted())
		}
	}
}

func TestToggleStatus_OrderIndependent(t *testing.T) {
	a := ToggleStatus(ToggleStatus(StatusFilter{}, StatusAccepted), StatusCompleted)
	b := ToggleStatus(ToggleStatus(StatusFilter{}, StatusCompleted), StatusAccepted)

	want := []Status{StatusAccepted, StatusCompleted}
	if diff := cmp.Diff(want, a.Sorted()); diff != "" {
		t.Fatalf("unexpected members (-want +got):\n%s", diff)
	}
	if !a.Equal(b) {
		t.Fatalf("expected equal sets, got %v and %v", a.Sorted(), b.Sorted())
	}
}

func TestToggleStatus_DoesNotMutateInput(t *testing.T) {
	base := NewStatusFilter(StatusOnHold)
	_ = ToggleStatus(base, StatusOnHold)
	if !base.Contains(StatusOnHold) {
		t.Fatal("input set was mutated")
	}
}

func TestToggleStatus_PanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	ToggleStatus(StatusFilter{}, Status("Lost"))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" out of service ")
	if err != nil || s != StatusOutOfService {
		t.Fatalf("expected %q, got %q (%v)", StatusOutOfService, s, err)
	}
	if _, err := ParseStatus("Lost"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if len(AllStatuses()) != 9 {
		t.Fatalf("expected 9 statuses, got %d", len(AllStatuses()))
	}
}

func TestConfirmSelection(t *testing.T) {
	r := DateRange{Start: today, End: today}
	picked := calendar.Date{Year: 2025, Month: time.April, Day: 2}
	sel := SelectDate(Selection{}, picked)

	got := ConfirmSelection(EndpointEnd, sel, r)
	if got.Start != today || got.End != picked {
		t.Fatalf("unexpected range %+v", got)
	}

	got = ConfirmSelection(EndpointStart, sel, r)
	if got.Start != picked || got.End != today {
		t.Fatalf("unexpected range %+v", got)
	}

	if got := ConfirmSelection(EndpointStart, Selection{}, r); got != r {
		t.Fatalf("empty selection should not change range, got %+v", got)
	}
}

func TestSelectDate_LastWriteWins(t *testing.T) {
	first := calendar.Date{Year: 2025, Month: time.March, Day: 1}
	second := calendar.Date{Year: 2025, Month: time.March, Day: 2}
	sel := SelectDate(SelectDate(Selection{}, first), second)
	if !sel.Selected(second) || sel.Selected(first) {
		t.Fatalf("expected only %v selected, got %+v", second, sel)
	}
}

func TestDateRange_Normalized(t *testing.T) {
	later := calendar.Date{Year: 2025, Month: time.May, Day: 1}
	r := DateRange{Start: later, End: today}
	if r.Ordered() {
		t.Fatal("expected unordered range")
	}
	n := r.Normalized()
	if n.Start != today || n.End != later {
		t.Fatalf("unexpected normalized range %+v", n)
	}
	if !r.Contains(calendar.Date{Year: 2025, Month: time.April, Day: 1}) {
		t.Fatal("expected contained date")
	}
	if r.Contains(calendar.Date{Year: 2025, Month: time.May, Day: 2}) {
		t.Fatal("expected date outside range")
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(today); got != "13/03/2025" {
		t.Fatalf("expected 13/03/2025, got %q", got)
	}
	if got := FormatDate(calendar.Date{}); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestAdvanceMonth_RejectsLargeDelta(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	AdvanceMonth(calendar.Cursor{Year: 2025, Month: time.March}, 2)
}

func TestController_DialogApply(t *testing.T) {
	c := New(fixedClock).ShowFilters()
	if c.Range.Start != today || c.Range.End != today {
		t.Fatalf("expected today/today, got %+v", c.Range)
	}

	c = c.OpenCalendar(EndpointEnd)
	if c.Dialog != DialogOpenForEnd {
		t.Fatalf("expected open for end, got %s", c.Dialog)
	}
	if !c.Selection.Selected(today) {
		t.Fatal("expected selection seeded from the range end")
	}

	c = c.NextMonth().SelectDay(20)
	c = c.Apply()

	want := DateRange{Start: today, End: calendar.Date{Year: 2025, Month: time.April, Day: 20}}
	if c.Range != want {
		t.Fatalf("expected %+v, got %+v", want, c.Range)
	}
	if c.Dialog != DialogClosed || c.Selection.Set {
		t.Fatalf("expected closed dialog without selection, got %s %+v", c.Dialog, c.Selection)
	}
}

func TestController_DialogDismissKeepsRange(t *testing.T) {
	c := New(fixedClock).OpenCalendar(EndpointStart).PrevMonth().SelectDay(1).Dismiss()
	if c.Range.Start != today {
		t.Fatalf("dismiss changed the range: %+v", c.Range)
	}
	if c.Dialog != DialogClosed {
		t.Fatalf("expected closed dialog, got %s", c.Dialog)
	}
}

func TestController_SelectDayIgnoredWhenClosed(t *testing.T) {
	c := New(fixedClock).SelectDay(2)
	if c.Selection.Set {
		t.Fatal("expected no selection while dialog is closed")
	}
}

func TestController_ClearAll(t *testing.T) {
	c := New(fixedClock).
		ToggleStatus(StatusAccepted).
		ToggleStatus(StatusPaid).
		OpenCalendar(EndpointStart).
		PrevMonth().
		SelectDay(3).
		Apply().
		OpenCalendar(EndpointEnd).
		NextMonth().
		NextMonth().
		SelectDay(28).
		Apply()

	c = c.ClearAll()
	if c.Range != (DateRange{Start: today, End: today}) {
		t.Fatalf("expected today/today, got %+v", c.Range)
	}
	if c.Statuses.Len() != 0 {
		t.Fatalf("expected empty status set, got %v", c.Statuses.Sorted())
	}
}

func TestController_Grid(t *testing.T) {
	c := New(fixedClock).OpenCalendar(EndpointStart)
	cells := c.Grid()
	if len(cells) != calendar.GridCells {
		t.Fatalf("expected %d cells, got %d", calendar.GridCells, len(cells))
	}
	for i := 0; i < 5; i++ {
		if !cells[i].Empty {
			t.Fatalf("expected empty cell %d", i)
		}
	}
	// March 13th sits at offset 5 + 12.
	if got := cells[17]; got.Day != 13 || !got.Selected {
		t.Fatalf("expected selected 13 at cell 17, got %+v", got)
	}
	selected := 0
	for _, cell := range cells {
		if cell.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Fatalf("expected one selected cell, got %d", selected)
	}
}

func TestController_Query(t *testing.T) {
	q := New(fixedClock).ToggleStatus(StatusPaid).ToggleStatus(StatusAccepted).Query()
	if q.Range == nil || q.Range.Start != today {
		t.Fatalf("unexpected range %+v", q.Range)
	}
	if diff := cmp.Diff([]Status{StatusAccepted, StatusPaid}, q.Statuses); diff != "" {
		t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
	}
}

func TestParseQuery(t *testing.T) {
	values := url.Values{
		"from":   {"01/03/2025"},
		"to":     {"31/03/2025"},
		"status": {"Paid,accepted", "Paid"},
	}
	q, err := ParseQuery(values)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Query{
		Range: &DateRange{
			Start: calendar.Date{Year: 2025, Month: time.March, Day: 1},
			End:   calendar.Date{Year: 2025, Month: time.March, Day: 31},
		},
		Statuses: []Status{StatusAccepted, StatusPaid},
	}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Fatalf("unexpected query (-want +got):\n%s", diff)
	}

	q, err = ParseQuery(url.Values{"to": {"02/03/2025"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Range == nil || q.Range.Start != q.Range.End {
		t.Fatalf("expected single-day range, got %+v", q.Range)
	}

	q, err = ParseQuery(url.Values{})
	if err != nil || q.Range != nil || len(q.Statuses) != 0 {
		t.Fatalf("expected empty query, got %+v (%v)", q, err)
	}

	if _, err := ParseQuery(url.Values{"from": {"2025-03-01"}}); !errors.Is(err, calendar.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := ParseQuery(url.Values{"status": {"Lost"}}); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}
