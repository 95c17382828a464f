package valueobject

import (
	"errors"
	"strconv"
)

// MetricValue is an optional non-negative engagement counter (Value Object).
// The zero value is absent.
type MetricValue struct {
	value   int64
	present bool
}

// NewMetricValue creates a present value.
func NewMetricValue(value int64) (MetricValue, error) {
	if value < 0 {
		return MetricValue{}, errors.New("value cannot be negative")
	}

	return MetricValue{
		value:   value,
		present: true,
	}, nil
}

// AbsentMetricValue is returned when the API has no value or the fetch failed.
func AbsentMetricValue() MetricValue {
	return MetricValue{}
}

// Get returns the value and whether it is present.
func (mv MetricValue) Get() (int64, bool) {
	return mv.value, mv.present
}

func (mv MetricValue) IsPresent() bool {
	return mv.present
}

// String renders the CSV cell: the decimal value, or empty when absent.
func (mv MetricValue) String() string {
	if !mv.present {
		return ""
	}
	return strconv.FormatInt(mv.value, 10)
}

// Equals compares presence and value.
func (mv MetricValue) Equals(other MetricValue) bool {
	return mv.present == other.present && mv.value == other.value
}
