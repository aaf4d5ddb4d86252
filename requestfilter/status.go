package requestfilter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownStatus signals a label outside the fixed status enumeration.
var ErrUnknownStatus = errors.New("requestfilter: unknown status")

// Status is the display label of a service request state.
type Status string

const (
	StatusAccepted     Status = "Accepted"
	StatusInProgress   Status = "In Progress"
	StatusCanceled     Status = "Canceled"
	StatusCompleted    Status = "Completed"
	StatusOutOfService Status = "Out of Service"
	StatusRescheduled  Status = "Rescheduled"
	StatusPlaced       Status = "Placed"
	StatusPaid         Status = "Paid"
	StatusOnHold       Status = "On Hold"
)

var allStatuses = []Status{
	StatusAccepted,
	StatusInProgress,
	StatusCanceled,
	StatusCompleted,
	StatusOutOfService,
	StatusRescheduled,
	StatusPlaced,
	StatusPaid,
	StatusOnHold,
}

// AllStatuses returns the status options in the order the filter dialog shows them.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

func (s Status) rank() int {
	for i, v := range allStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

// ParseStatus matches label case-insensitively against the enumeration.
func ParseStatus(label string) (Status, error) {
	trimmed := strings.TrimSpace(label)
	for _, s := range allStatuses {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, label)
}

// StatusFilter is the set of statuses a user chose to include. The zero value
// is the empty set and is ready to use; operations never mutate the receiver.
type StatusFilter struct {
	set map[Status]struct{}
}

// NewStatusFilter builds a filter holding statuses.
func NewStatusFilter(statuses ...Status) StatusFilter {
	f := StatusFilter{}
	for _, s := range statuses {
		if !f.Contains(s) {
			f = ToggleStatus(f, s)
		}
	}
	return f
}

func (f StatusFilter) Contains(s Status) bool {
	_, ok := f.set[s]
	return ok
}

func (f StatusFilter) Len() int {
	return len(f.set)
}

// Sorted lists the members in enumeration order.
func (f StatusFilter) Sorted() []Status {
	out := make([]Status, 0, len(f.set))
	for s := range f.set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].rank() < out[j].rank()
	})
	return out
}

// Equal compares membership.
func (f StatusFilter) Equal(o StatusFilter) bool {
	if f.Len() != o.Len() {
		return false
	}
	for s := range f.set {
		if !o.Contains(s) {
			return false
		}
	}
	return true
}

// Toggle is ToggleStatus as a method.
func (f StatusFilter) Toggle(s Status) StatusFilter {
	return ToggleStatus(f, s)
}

// ToggleStatus removes s when present and adds it otherwise. It panics on a
// status outside the enumeration.
func ToggleStatus(f StatusFilter, s Status) StatusFilter {
	if !s.Valid() {
		panic(fmt.Sprintf("requestfilter: toggle of unknown status %q", s))
	}

	next := make(map[Status]struct{}, len(f.set)+1)
	for k := range f.set {
		next[k] = struct{}{}
	}
	if _, ok := next[s]; ok {
		delete(next, s)
	} else {
		next[s] = struct{}{}
	}
	return StatusFilter{set: next}
}
