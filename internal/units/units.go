// Package units holds the unit conversions used across the telemetry
// pipeline. Reports arrive in aviation units (knots, feet, nautical miles);
// internal rates are per-second.
package units

// SecondsPerHour converts per-hour rates to per-second rates.
const SecondsPerHour = 3600.0

// KnotsToNMPerSecond converts a ground speed in knots to nautical miles per
// second, the rate used by trajectory extrapolation.
func KnotsToNMPerSecond(kts float64) float64 {
	return kts / SecondsPerHour
}
