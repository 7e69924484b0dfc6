// pkg/cleaner/operations.go
package cleaner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reasons recorded on cleaning operations
const (
	ReasonBlank      = "blank"
	ReasonSentinel   = "sentinel"
	ReasonNonNumeric = "non_numeric"
	ReasonSeparator  = "thousands_separator"
	ReasonNegative   = "negative_value"
)

// Operations recorded on cleaning operations
const (
	OperationZeroFill       = "zero_fill"
	OperationSeparatorStrip = "separator_strip"
	OperationClampZero      = "clamp_zero"
)

// ErrBlank is returned by ParseNumber for an empty cell
var ErrBlank = errors.New("blank cell")

// ErrSentinel is returned by ParseNumber for a suppression marker
var ErrSentinel = errors.New("suppressed cell")

// sentinels are the markers NHS publications use for suppressed or
// unavailable values
var sentinels = map[string]bool{
	"*":   true,
	"-":   true,
	"–":   true,
	"n/a": true,
	"na":  true,
	"..":  true,
	"x":   true,
	":":   true,
}

// IsSentinel reports whether a cell holds a suppression marker
func IsSentinel(raw string) bool {
	return sentinels[strings.ToLower(strings.TrimSpace(raw))]
}

// ParseNumber parses a numeric cell. Thousands separators and surrounding
// whitespace are removed; the second return value reports whether a
// separator had to be stripped.
func ParseNumber(raw string) (float64, bool, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return 0, false, ErrBlank
	}
	if IsSentinel(cleaned) {
		return 0, false, ErrSentinel
	}

	stripped := false
	if strings.ContainsAny(cleaned, ", ") {
		cleaned = strings.NewReplacer(",", "", " ", "").Replace(cleaned)
		stripped = true
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, stripped, fmt.Errorf("cannot parse %q as number: %w", raw, err)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, stripped, fmt.Errorf("cannot parse %q as finite number", raw)
	}
	return val, stripped, nil
}

// reasonFor maps a ParseNumber error to a cleaning reason
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrBlank):
		return ReasonBlank
	case errors.Is(err, ErrSentinel):
		return ReasonSentinel
	default:
		return ReasonNonNumeric
	}
}

// Round rounds a value half away from zero to the given number of decimals
func Round(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
