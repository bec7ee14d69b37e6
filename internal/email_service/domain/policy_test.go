package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveSpacing_UncappedUsesDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, EffectiveSpacing(5, 0))
	assert.Equal(t, time.Duration(0), EffectiveSpacing(0, 0))
}

func TestEffectiveSpacing_ZeroLimitDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = EffectiveSpacing(10, 0)
	})
}

func TestEffectiveSpacing_HourlyCapDominatesShortDelay(t *testing.T) {
	// 100/hour implies at least 36s between sends.
	assert.Equal(t, 36*time.Second, EffectiveSpacing(0, 100))
	assert.Equal(t, 36*time.Second, EffectiveSpacing(10, 100))
}

func TestEffectiveSpacing_LongDelayDominatesCap(t *testing.T) {
	assert.Equal(t, 60*time.Second, EffectiveSpacing(60, 100))
}

func TestEffectiveSpacing_CeilRounding(t *testing.T) {
	// 3600000/7 = 514285.71..., must round up, never down.
	assert.Equal(t, 514286*time.Millisecond, EffectiveSpacing(0, 7))
}

func TestEffectiveSpacing_Properties(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 7, 10, 60, 100, 360, 1000, 3600, 10000} {
		for _, delay := range []int{0, 1, 5, 60, 3600} {
			got := EffectiveSpacing(delay, limit)
			minSpacing := time.Duration((3600000+limit-1)/limit) * time.Millisecond
			assert.GreaterOrEqual(t, got, minSpacing, "limit=%d delay=%d", limit, delay)
			assert.GreaterOrEqual(t, got, time.Duration(delay)*time.Second, "limit=%d delay=%d", limit, delay)
			// Pure function: same inputs, same output.
			assert.Equal(t, got, EffectiveSpacing(delay, limit))
		}
	}
}

func TestPlanBatch_ExactSlots(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	slots := PlanBatch(t0, 4, 36*time.Second)

	assert.Len(t, slots, 4)
	for i, slot := range slots {
		assert.Equal(t, t0.Add(time.Duration(i)*36*time.Second), slot, "slot %d", i)
	}
}

func TestPlanBatch_SingleRecipientAtT0(t *testing.T) {
	t0 := time.Now().UTC().Add(time.Minute)

	slots := PlanBatch(t0, 1, 5*time.Second)

	assert.Len(t, slots, 1)
	assert.True(t, slots[0].Equal(t0))
}

func TestPlanBatch_DelayOnlyScenario(t *testing.T) {
	// delaySeconds=5, hourlyLimit=0, 3 recipients.
	t0 := time.Now().UTC().Add(60 * time.Second)
	spacing := EffectiveSpacing(5, 0)

	slots := PlanBatch(t0, 3, spacing)

	assert.Equal(t, t0, slots[0])
	assert.Equal(t, t0.Add(5000*time.Millisecond), slots[1])
	assert.Equal(t, t0.Add(10000*time.Millisecond), slots[2])
}

func TestPlanBatch_HourlyCapScenario(t *testing.T) {
	// delaySeconds=0, hourlyLimit=100, 3 recipients -> 36s spacing.
	t0 := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	spacing := EffectiveSpacing(0, 100)

	assert.Equal(t, 36000*time.Millisecond, spacing)

	slots := PlanBatch(t0, 3, spacing)
	assert.Equal(t, t0, slots[0])
	assert.Equal(t, t0.Add(36000*time.Millisecond), slots[1])
	assert.Equal(t, t0.Add(72000*time.Millisecond), slots[2])
}
