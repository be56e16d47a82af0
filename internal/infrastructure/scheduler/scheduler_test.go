package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string { return j.name }
func (j *funcJob) Description() string { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

type finished struct {
	job string
	err error
}

type recordingObserver struct {
	mu   sync.Mutex
	runs []finished
}

func (o *recordingObserver) JobFinished(job string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, finished{job: job, err: err})
}

func (o *recordingObserver) snapshot() []finished {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]finished(nil), o.runs...)
}

func ok(name string) *funcJob {
	return &funcJob{name: name, run: func(context.Context) error { return nil }}
}

func TestRegister(t *testing.T) {
	s := New(Config{})

	require.NoError(t, s.Register(ok("a"), "@every 1h"))
	assert.ErrorIs(t, s.Register(ok("a"), "@every 1h"), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(ok("b"), "not a cron spec"), ErrInvalidSchedule)
	assert.ErrorIs(t, s.Register(ok("c"), ""), ErrNilSchedule)
	assert.ErrorIs(t, s.Register(nil, "@hourly"), ErrNilJob)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "@every 1h", jobs[0].Schedule)
}

func TestUnregister(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Register(ok("a"), "@daily"))

	require.NoError(t, s.Unregister("a"))
	assert.Empty(t, s.ListJobs())
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)

	_, err := s.GetJobInfo("a")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNow(t *testing.T) {
	obs := &recordingObserver{}
	s := New(Config{Observer: obs})
	boom := errors.New("boom")

	require.NoError(t, s.Register(ok("good"), "@daily"))
	require.NoError(t, s.Register(&funcJob{name: "bad", run: func(context.Context) error { return boom }}, "@daily"))

	res, err := s.RunNow(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)
	assert.Equal(t, "good", res.JobName)

	res, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	runs := obs.snapshot()
	require.Len(t, runs, 2)
	assert.Equal(t, "good", runs[0].job)
	assert.NoError(t, runs[0].err)
	assert.Equal(t, "bad", runs[1].job)
	assert.ErrorIs(t, runs[1].err, boom)

	info, err := s.GetJobInfo("bad")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.RunCount)
	assert.EqualValues(t, 1, info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.False(t, info.LastResult.Success)
}

func TestRunNowRecoversPanics(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Register(&funcJob{name: "panics", run: func(context.Context) error {
		panic("kaboom")
	}}, "@daily"))

	res, err := s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)
	assert.Contains(t, err.Error(), "kaboom")
	assert.False(t, res.Success)
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(Config{JobTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Register(&funcJob{name: "slow", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}, "@daily"))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHistoryIsBounded(t *testing.T) {
	s := New(Config{MaxHistorySize: 3})
	require.NoError(t, s.Register(ok("a"), "@daily"))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "a")
		require.NoError(t, err)
	}

	assert.Len(t, s.GetHistory(0), 3)
	assert.Len(t, s.GetHistory(2), 2)
}

func TestLifecycle(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	assert.ErrorIs(t, s.Stop(ctx), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
}

func TestScheduledRun(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{})
	require.NoError(t, s.Register(&funcJob{name: "tick", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, "@every 1s"))

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.True(t, info.NextRun.IsZero(), "next run is unknown until the scheduler starts")

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	history := s.GetHistory(0)
	require.NotEmpty(t, history)
	assert.False(t, history[0].Manual)
}
