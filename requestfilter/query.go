package requestfilter

import (
	"fmt"
	"net/url"
	"strings"

	"agriflow/calendar"
)

// ParseQuery reads from, to and status parameters. Dates use DD/MM/YYYY;
// status may repeat or hold a comma separated list. A single endpoint is used
// for both ends of the range.
func ParseQuery(values url.Values) (Query, error) {
	var q Query

	from, err := parseOptionalDate(values.Get("from"))
	if err != nil {
		return Query{}, fmt.Errorf("requestfilter: from: %w", err)
	}
	to, err := parseOptionalDate(values.Get("to"))
	if err != nil {
		return Query{}, fmt.Errorf("requestfilter: to: %w", err)
	}
	switch {
	case !from.IsZero() && !to.IsZero():
		q.Range = &DateRange{Start: from, End: to}
	case !from.IsZero():
		q.Range = &DateRange{Start: from, End: from}
	case !to.IsZero():
		q.Range = &DateRange{Start: to, End: to}
	}

	filter := StatusFilter{}
	for _, raw := range values["status"] {
		for _, label := range strings.Split(raw, ",") {
			if strings.TrimSpace(label) == "" {
				continue
			}
			s, err := ParseStatus(label)
			if err != nil {
				return Query{}, err
			}
			if !filter.Contains(s) {
				filter = filter.Toggle(s)
			}
		}
	}
	q.Statuses = filter.Sorted()

	return q, nil
}

func parseOptionalDate(s string) (calendar.Date, error) {
	if strings.TrimSpace(s) == "" {
		return calendar.Date{}, nil
	}
	return calendar.Parse(s)
}
