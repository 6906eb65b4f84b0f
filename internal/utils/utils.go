package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseFloat parses a trimmed decimal and rejects NaN and infinities.
func ParseFloat(value string) (float64, error) {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%q is not a finite number", value)
	}
	return result, nil
}

// FormatFloat renders value with a fixed number of decimals, or the
// shortest exact form when precision is negative.
func FormatFloat(value float64, precision int) string {
	if precision < 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return strconv.FormatFloat(value, 'f', precision, 64)
}

// Seconds converts fractional seconds, as found in configuration, to a
// duration.
func Seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}
