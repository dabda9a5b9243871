package exporter

import (
	"strconv"
)

// formatFloat formats a value with exactly places decimals, so 13.4 is
// written as 13.40 at two places.
func formatFloat(f float64, places int) string {
	return strconv.FormatFloat(f, 'f', places, 64)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatOptional formats a possibly missing value; missing is empty.
func formatOptional(f *float64, places int) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f, places)
}
