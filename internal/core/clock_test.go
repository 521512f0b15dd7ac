package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/core"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestVirtualClockFiresInDeadlineOrder(t *testing.T) {
	clock := core.NewVirtualClock(epoch)
	var fired []string
	clock.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "late") })
	clock.AfterFunc(50*time.Millisecond, func() { fired = append(fired, "early") })
	clock.AfterFunc(50*time.Millisecond, func() { fired = append(fired, "early-second") })

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"early", "early-second"}, fired)
	assert.Equal(t, epoch.Add(100*time.Millisecond), clock.Now())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"early", "early-second", "late"}, fired)
	assert.Zero(t, clock.Pending())
}

func TestVirtualClockCallbacksSeeTheirDeadline(t *testing.T) {
	clock := core.NewVirtualClock(epoch)
	var seen time.Time
	var chained time.Time
	clock.AfterFunc(time.Second, func() {
		seen = clock.Now()
		clock.AfterFunc(time.Second, func() { chained = clock.Now() })
	})
	clock.Advance(5 * time.Second)
	assert.Equal(t, epoch.Add(time.Second), seen)
	assert.Equal(t, epoch.Add(2*time.Second), chained)
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
}

func TestVirtualClockStop(t *testing.T) {
	clock := core.NewVirtualClock(epoch)
	ran := false
	timer := clock.AfterFunc(time.Millisecond, func() { ran = true })
	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	clock.Advance(time.Second)
	assert.False(t, ran)
}

func TestSessionClockStopAll(t *testing.T) {
	base := core.NewVirtualClock(epoch)
	session := core.NewSessionClock(base)
	count := 0
	session.AfterFunc(time.Second, func() { count++ })
	session.AfterFunc(2*time.Second, func() { count++ })
	session.StopAll()
	session.AfterFunc(0, func() { count++ })
	base.Advance(time.Minute)
	assert.Zero(t, count)
	assert.Equal(t, epoch.Add(time.Minute), session.Now())
}
