// Package normalize converts the string-typed, locale-formatted values the
// upstream providers publish into canonical numeric and timestamp forms.
//
// Timestamps are normalized to a naive local wall-clock string in
// "YYYY-MM-DD HH:MM:SS" form. Both providers publish Vietnam civil time
// (UTC+7); the conversion assumes the host clock is in that same zone. The
// storage layer later re-tags the string with the fixed +07:00 offset.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the canonical local wall-clock form emitted by the time parsers.
const TimeLayout = "2006-01-02 15:04:05"

// dotNetTimePattern matches the "/Date(1715136000000+0700)/" encoding.
var dotNetTimePattern = regexp.MustCompile(`/Date\((-?\d+)([+-]\d{4})?\)/`)

// ParseAmount parses a provider-formatted amount such as "25,480.00".
// Grouping commas are stripped before parsing.
//
// An empty string, a placeholder dash and the literal "0.00" all mean the
// provider published no quote; they normalize to an absent value, never to
// numeric zero. Malformed text also yields absent, with a non-nil error so
// the caller can log it.
func ParseAmount(raw string) (decimal.NullDecimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "-" || trimmed == "0.00" {
		return decimal.NullDecimal{}, nil
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(trimmed, ",", ""))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}

	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// ParseDotNetTime parses the "/Date(<ms><offset>)/" encoding used by the
// legacy Vietcombank envelope and returns the canonical local string.
func ParseDotNetTime(raw string) (string, error) {
	m := dotNetTimePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("unrecognized time encoding %q", raw)
	}

	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse epoch millis %q: %w", m[1], err)
	}

	return time.UnixMilli(ms).Local().Format(TimeLayout), nil
}

// ParseISOTime parses an ISO-8601 timestamp (the "UpdatedDate" field of the
// current Vietcombank envelope) and returns the canonical local string.
func ParseISOTime(raw string) (string, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Local().Format(TimeLayout), nil
	}

	// Some responses omit the offset entirely; treat as local wall clock.
	t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local)
	if err != nil {
		return "", fmt.Errorf("parse ISO time %q: %w", raw, err)
	}
	return t.Format(TimeLayout), nil
}

// ParseClockDate parses the "HH:MM DD/MM/YYYY" form used by the SJC price
// service and returns the canonical local string.
func ParseClockDate(raw string) (string, error) {
	t, err := time.ParseInLocation("15:04 02/01/2006", strings.TrimSpace(raw), time.Local)
	if err != nil {
		return "", fmt.Errorf("parse clock date %q: %w", raw, err)
	}
	return t.Format(TimeLayout), nil
}
