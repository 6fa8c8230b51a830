package remote

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualScheduler(t *testing.T) {
	s := NewManualScheduler()
	var ran int
	s.Schedule(func() {
		ran++
		s.Schedule(func() { ran += 10 })
	})
	require.Equal(t, 1, s.Pending())
	require.Zero(t, ran)

	require.Equal(t, 1, s.Dispatch())
	require.Equal(t, 1, ran)
	require.Equal(t, 1, s.Pending())

	require.Equal(t, 1, s.Dispatch())
	require.Equal(t, 11, ran)
	require.Equal(t, 2, s.Scheduled())
	require.Zero(t, s.Dispatch())
}

func TestDelayScheduler(t *testing.T) {
	s := NewDelayScheduler(5 * time.Millisecond)
	var ran atomic.Int32
	s.Schedule(func() { ran.Add(1) })
	require.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSchedulerFunc(t *testing.T) {
	var got func()
	var s Scheduler = SchedulerFunc(func(fn func()) { got = fn })
	called := false
	s.Schedule(func() { called = true })
	got()
	require.True(t, called)
}
