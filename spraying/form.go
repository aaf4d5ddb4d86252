// Package spraying validates and prices the spraying booking form.
package spraying

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"agriflow/calendar"
)

// Steps is the number of form steps; the last one submits.
const Steps = 6

// MaxTanks bounds both tank counts on the form.
const MaxTanks = 1000

var (
	// Agrochemicals lists the selectable agrochemicals.
	Agrochemicals = []string{"Insecticide", "Herbicide", "Fungicide", "Fertilizer"}
	// Crops lists the selectable crops.
	Crops = []string{"Bajra", "Wheat", "Rice", "Cotton", "Sugarcane"}
)

// ErrInvalidStep signals a step number outside 1..Steps.
var ErrInvalidStep = errors.New("spraying: invalid step")

var notices = [Steps + 1]string{
	1: "Please enter your address",
	2: "Please enter both acres and number of tanks",
	3: "Please enter how many tanks you want to spray",
	4: "Please enter when you want spraying",
	5: "Please select an agrochemical",
	6: "Please select a crop",
}

// Location is the farm position picked on the map.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Form is the spraying request as typed by the farmer. Numbers stay strings
// until validation, as entered.
type Form struct {
	Address       string    `json:"address"`
	Acres         string    `json:"acres"`
	NumberOfTanks string    `json:"numberOfTanks"`
	TanksToSpray  string    `json:"tanksToSpray"`
	SprayingDate  string    `json:"sprayingDate"`
	Agrochemical  string    `json:"agrochemical"`
	Crop          string    `json:"crop"`
	Coupon        string    `json:"coupon"`
	Location      *Location `json:"location,omitempty"`
}

// ValidationError is the blocking notice for the first incomplete step.
type ValidationError struct {
	Step   int
	Notice string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("spraying: step %d: %s", e.Step, e.Notice)
}

func invalid(step int) error {
	return &ValidationError{Step: step, Notice: notices[step]}
}

// ValidateStep checks the fields collected at step.
func (f Form) ValidateStep(step int) error {
	switch step {
	case 1:
		if strings.TrimSpace(f.Address) == "" {
			return invalid(step)
		}
	case 2:
		if _, ok := positiveFloat(f.Acres); !ok {
			return invalid(step)
		}
		if _, ok := tankCount(f.NumberOfTanks); !ok {
			return invalid(step)
		}
	case 3:
		if _, ok := tankCount(f.TanksToSpray); !ok {
			return invalid(step)
		}
	case 4:
		if _, err := calendar.Parse(f.SprayingDate); err != nil {
			return invalid(step)
		}
	case 5:
		if !oneOf(f.Agrochemical, Agrochemicals) {
			return invalid(step)
		}
	case 6:
		if !oneOf(f.Crop, Crops) {
			return invalid(step)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	return nil
}

// NextStep validates step and returns the step to show next. done is true
// when the last step passed and the form can be submitted.
func (f Form) NextStep(step int) (next int, done bool, err error) {
	if err := f.ValidateStep(step); err != nil {
		return step, false, err
	}
	if step == Steps {
		return step, true, nil
	}
	return step + 1, false, nil
}

// Validate returns the error of the first failing step.
func (f Form) Validate() error {
	for step := 1; step <= Steps; step++ {
		if err := f.ValidateStep(step); err != nil {
			return err
		}
	}
	return nil
}

// Booking is a validated form with typed values.
type Booking struct {
	Address       string
	Location      *Location
	Acres         float64
	NumberOfTanks int
	TanksToSpray  int
	Date          calendar.Date
	Agrochemical  string
	Crop          string
	Coupon        string
}

// Booking validates f and converts it.
func (f Form) Booking() (Booking, error) {
	if err := f.Validate(); err != nil {
		return Booking{}, err
	}
	acres, _ := positiveFloat(f.Acres)
	tanks, _ := tankCount(f.NumberOfTanks)
	spray, _ := tankCount(f.TanksToSpray)
	date, _ := calendar.Parse(f.SprayingDate)

	return Booking{
		Address:       strings.TrimSpace(f.Address),
		Location:      f.Location,
		Acres:         acres,
		NumberOfTanks: tanks,
		TanksToSpray:  spray,
		Date:          date,
		Agrochemical:  canonical(f.Agrochemical, Agrochemicals),
		Crop:          canonical(f.Crop, Crops),
		Coupon:        strings.ToUpper(strings.TrimSpace(f.Coupon)),
	}, nil
}

func positiveFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	// ParseFloat accepts "NaN" and "Inf"; neither is a usable quantity.
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func tankCount(s string) (int, bool) {
	v, ok := positiveInt(s)
	if !ok || v > MaxTanks {
		return 0, false
	}
	return v, true
}

func positiveInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func oneOf(v string, options []string) bool {
	return canonical(v, options) != ""
}

func canonical(v string, options []string) string {
	v = strings.TrimSpace(v)
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return o
		}
	}
	return ""
}
