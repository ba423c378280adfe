package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStarter struct {
	accept atomic.Bool
	calls  atomic.Int32
}

func (f *fakeStarter) StartScan() bool {
	f.calls.Add(1)
	return f.accept.Load()
}

func newAcceptingStarter() *fakeStarter {
	f := &fakeStarter{}
	f.accept.Store(true)
	return f
}

func TestIntervalSchedule(t *testing.T) {
	assert.Equal(t, "@every 5m0s", IntervalSchedule(5*time.Minute))
	assert.Equal(t, "@every 30s", IntervalSchedule(30*time.Second))
}

func TestAddJobs(t *testing.T) {
	t.Run("interval below one second is rejected", func(t *testing.T) {
		s := New(newAcceptingStarter())
		_, err := s.AddIntervalJob("fast", 500*time.Millisecond)
		assert.Error(t, err)
		assert.Empty(t, s.Jobs())
	})

	t.Run("invalid cron expression is rejected", func(t *testing.T) {
		s := New(newAcceptingStarter())
		_, err := s.AddCronJob("bad", "not a cron")
		assert.Error(t, err)
	})

	t.Run("jobs are listed by name", func(t *testing.T) {
		s := New(newAcceptingStarter())
		_, err := s.AddCronJob("nightly", "0 2 * * *")
		require.NoError(t, err)
		_, err = s.AddIntervalJob("periodic", 5*time.Minute)
		require.NoError(t, err)

		jobs := s.Jobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, "nightly", jobs[0].Name)
		assert.Equal(t, "0 2 * * *", jobs[0].Schedule)
		assert.Equal(t, "periodic", jobs[1].Name)
		assert.True(t, jobs[1].Enabled)
		assert.True(t, jobs[1].NextRun.IsZero(), "next run is unknown before Start")
	})
}

func TestTrigger(t *testing.T) {
	t.Run("counts started and skipped cycles", func(t *testing.T) {
		starter := newAcceptingStarter()
		s := New(starter)
		fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return fixed }

		id, err := s.AddIntervalJob("periodic", time.Minute)
		require.NoError(t, err)

		s.trigger(id)
		starter.accept.Store(false)
		s.trigger(id)
		s.trigger(id)

		jobs := s.Jobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, uint64(1), jobs[0].Runs)
		assert.Equal(t, uint64(2), jobs[0].Skipped)
		assert.Equal(t, fixed, jobs[0].LastRun)
		assert.Equal(t, int32(3), starter.calls.Load())
	})

	t.Run("disabled jobs do not start scans", func(t *testing.T) {
		starter := newAcceptingStarter()
		s := New(starter)
		id, err := s.AddIntervalJob("periodic", time.Minute)
		require.NoError(t, err)

		require.NoError(t, s.DisableJob(id))
		s.trigger(id)
		assert.Equal(t, int32(0), starter.calls.Load())

		require.NoError(t, s.EnableJob(id))
		s.trigger(id)
		assert.Equal(t, int32(1), starter.calls.Load())
	})

	t.Run("removed and unknown jobs are ignored", func(t *testing.T) {
		starter := newAcceptingStarter()
		s := New(starter)
		id, err := s.AddIntervalJob("periodic", time.Minute)
		require.NoError(t, err)

		require.NoError(t, s.RemoveJob(id))
		s.trigger(id)
		s.trigger(uuid.New())
		assert.Equal(t, int32(0), starter.calls.Load())

		assert.Error(t, s.RemoveJob(id))
		assert.Error(t, s.EnableJob(id))
	})
}

func TestStartStop(t *testing.T) {
	starter := newAcceptingStarter()
	s := New(starter)
	_, err := s.AddIntervalJob("periodic", time.Second)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start is refused")

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].NextRun.IsZero())

	require.Eventually(t, func() bool { return starter.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	s.Stop()
	s.Stop()
	calls := starter.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, calls, starter.calls.Load(), "no triggers after Stop")
}
