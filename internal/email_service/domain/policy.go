package domain

import "time"

const millisPerHour = 3_600_000

// EffectiveSpacing returns the gap enforced between two consecutive
// sends in a batch: the stricter of the explicit per-email delay and
// the minimum spacing implied by an hourly cap. hourlyLimit == 0 means
// uncapped, so the branch also guards the division.
func EffectiveSpacing(delaySeconds, hourlyLimit int) time.Duration {
	delayMs := int64(delaySeconds) * 1000
	if hourlyLimit <= 0 {
		return time.Duration(delayMs) * time.Millisecond
	}
	minSpacingMs := int64((millisPerHour + hourlyLimit - 1) / hourlyLimit) // ceil
	if delayMs > minSpacingMs {
		return time.Duration(delayMs) * time.Millisecond
	}
	return time.Duration(minSpacingMs) * time.Millisecond
}

// PlanBatch assigns recipient slot i the timestamp t0 + i*spacing.
// Slot order follows input order; duplicates get their own slots.
func PlanBatch(t0 time.Time, n int, spacing time.Duration) []time.Time {
	slots := make([]time.Time, n)
	for i := 0; i < n; i++ {
		slots[i] = t0.Add(time.Duration(i) * spacing)
	}
	return slots
}
