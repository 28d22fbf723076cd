package classifier

import "github.com/Nazarious-ucu/rain-notifier/internal/models"

// RainThreshold is the per-entry amount that counts as rain.
// The unit is whatever the provider reports for the 3h window; the value has never been validated
// against it and is kept as-is.
const RainThreshold = 1.0

// RainyEntries counts entries whose 3h precipitation meets RainThreshold.
// Entries without a rain object, or with one lacking the 3h key, count as zero.
func RainyEntries(data models.ForecastResponse) int {
	count := 0
	for _, entry := range data.List {
		if entry.Rain == nil {
			continue
		}
		if entry.Rain[models.RainWindow] >= RainThreshold {
			count++
		}
	}
	return count
}

// IsRainingThisWeek reports whether at least one entry in the forecast window is rainy.
func IsRainingThisWeek(data models.ForecastResponse) bool {
	return RainyEntries(data) >= 1
}
