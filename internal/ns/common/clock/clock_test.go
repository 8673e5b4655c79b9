package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockReflectsWallTime(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestMockClockHoldsSetTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(5 * time.Minute)
	assert.Equal(t, start.Add(5*time.Minute), c.Now())
}

func TestMockClockSet(t *testing.T) {
	c := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	next := time.Date(2027, 6, 15, 12, 0, 0, 0, time.UTC)
	c.Set(next)
	assert.Equal(t, next, c.Now())
}

var _ Clock = RealClock{}
var _ Clock = (*MockClock)(nil)
