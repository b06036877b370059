package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNew_ValidTimezone(t *testing.T) {
	s, err := New(context.Background(), "Asia/Shanghai", quietLogger())
	require.NoError(t, err)
	defer s.Stop()
	assert.Equal(t, "Asia/Shanghai", s.location.String())
}

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New(context.Background(), "Invalid/Zone", quietLogger())
	assert.Error(t, err)
}

func TestSchedule_InvalidSpec(t *testing.T) {
	s, err := New(context.Background(), "UTC", quietLogger())
	require.NoError(t, err)
	defer s.Stop()

	noop := func(context.Context) error { return nil }
	assert.Error(t, s.Schedule("prune", "", noop))
	assert.Error(t, s.Schedule("prune", "61 * * * *", noop))
	assert.Error(t, s.Schedule("prune", "not a spec", noop))
	assert.True(t, s.Next("prune").IsZero())
}

func TestSchedule_ReplacesByName(t *testing.T) {
	s, err := New(context.Background(), "UTC", quietLogger())
	require.NoError(t, err)
	defer s.Stop()

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Schedule("prune", "0 4 * * *", noop))
	first := s.entries["prune"]
	require.NoError(t, s.Schedule("prune", "30 5 * * *", noop))

	assert.NotEqual(t, first, s.entries["prune"])
	assert.Len(t, s.entries, 1)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestNext(t *testing.T) {
	s, err := New(context.Background(), "UTC", quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Schedule("compact", "15 3 * * *", func(context.Context) error { return nil }))

	s.Start()
	defer s.Stop()

	next := s.Next("compact")
	require.False(t, next.IsZero())
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 15, next.Minute())
}

func TestJobRunsWithContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "daemon")
	s, err := New(ctx, "UTC", quietLogger())
	require.NoError(t, err)

	var runs, failures atomic.Int32
	require.NoError(t, s.Schedule("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		if ctx.Value(key{}) != "daemon" {
			failures.Add(1)
		}
		return errors.New("logged, not fatal")
	}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	assert.Zero(t, failures.Load())
}
