package postgres

import (
	"fmt"
	"time"
)

// Providers publish Vietnam civil time; the adapters hand it over as a naive
// "YYYY-MM-DD HH:MM:SS" string which is re-tagged here with the fixed +07:00
// offset before hitting the TIMESTAMPTZ column.
var sourceZone = time.FixedZone("+07", 7*60*60)

const sourceTimeLayout = "2006-01-02 15:04:05"

// sourceTimeToInstant turns the canonical local string into a zone-aware
// instant. An empty string means the provider's publication time is unknown,
// which maps to NULL. A non-empty string that fails to parse also maps to
// NULL, with a non-nil error so the writer can log it.
func sourceTimeToInstant(canonical string) (*time.Time, error) {
	if canonical == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(sourceTimeLayout, canonical, sourceZone)
	if err != nil {
		return nil, fmt.Errorf("parse source time %q: %w", canonical, err)
	}
	return &t, nil
}
