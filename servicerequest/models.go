package servicerequest

import (
	"fmt"
	"time"

	"agriflow/calendar"
	"agriflow/requestfilter"
)

// Status is the display label of a request state; see requestfilter.
type Status = requestfilter.Status

const (
	ServiceSpraying = "spraying"

	EventRequestPlaced        = "REQUEST_PLACED"
	EventRequestStatusChanged = "REQUEST_STATUS_CHANGED"
	EventRequestAccepted      = "REQUEST_ACCEPTED"

	TopicRequestPlaced        = "request.placed"
	TopicRequestStatusChanged = "request.status_changed"
	TopicRequestCanceled      = "request.canceled"
)

// Request mirrors the service_requests table.
type Request struct {
	ID            string
	FarmerID      string
	ProviderID    *string
	Service       string
	Address       string
	Latitude      *float64
	Longitude     *float64
	Acres         float64
	NumberOfTanks int
	TanksToSpray  int
	ScheduledOn   calendar.Date
	Agrochemical  string
	Crop          string
	Coupon        *string
	PricePaise    int64
	DiscountPaise int64
	Status        Status
	CancelReason  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Event is one entry of a request's timeline.
type Event struct {
	ID        int64
	RequestID string
	Seq       int
	Type      string
	ActorID   *string
	Payload   []byte
	CreatedAt time.Time
}

// Filters scopes a listing. FarmerID and ProviderID restrict ownership; an
// admin passes neither. Unassigned keeps only requests no provider has taken.
type Filters struct {
	FarmerID   string
	ProviderID string
	Unassigned bool
	Query      requestfilter.Query
	Search     string
	Page       int
	PageSize   int
	SortKey    string
	SortOrder  string
}

var codes = map[Status]string{
	requestfilter.StatusAccepted:     "accepted",
	requestfilter.StatusInProgress:   "in_progress",
	requestfilter.StatusCanceled:     "canceled",
	requestfilter.StatusCompleted:    "completed",
	requestfilter.StatusOutOfService: "out_of_service",
	requestfilter.StatusRescheduled:  "rescheduled",
	requestfilter.StatusPlaced:       "placed",
	requestfilter.StatusPaid:         "paid",
	requestfilter.StatusOnHold:       "on_hold",
}

// StatusCode returns the stored code of s.
func StatusCode(s Status) string {
	return codes[s]
}

// StatusFromCode maps a stored code back to its label.
func StatusFromCode(code string) (Status, error) {
	for s, c := range codes {
		if c == code {
			return s, nil
		}
	}
	return "", fmt.Errorf("servicerequest: unknown status code %q", code)
}

var transitions = map[Status][]Status{
	requestfilter.StatusPlaced: {
		requestfilter.StatusAccepted,
		requestfilter.StatusCanceled,
		requestfilter.StatusOnHold,
	},
	requestfilter.StatusAccepted: {
		requestfilter.StatusInProgress,
		requestfilter.StatusRescheduled,
		requestfilter.StatusCanceled,
		requestfilter.StatusOnHold,
		requestfilter.StatusOutOfService,
	},
	requestfilter.StatusRescheduled: {
		requestfilter.StatusAccepted,
		requestfilter.StatusInProgress,
		requestfilter.StatusCanceled,
	},
	requestfilter.StatusInProgress: {
		requestfilter.StatusCompleted,
		requestfilter.StatusOnHold,
		requestfilter.StatusOutOfService,
	},
	requestfilter.StatusOnHold: {
		requestfilter.StatusAccepted,
		requestfilter.StatusInProgress,
		requestfilter.StatusCanceled,
	},
	requestfilter.StatusOutOfService: {
		requestfilter.StatusRescheduled,
		requestfilter.StatusCanceled,
	},
	requestfilter.StatusCompleted: {
		requestfilter.StatusPaid,
	},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
