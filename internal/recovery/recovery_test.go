package recovery

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

type captureRecorder struct {
	events []*models.ErrorEvent
}

func (c *captureRecorder) Record(event *models.ErrorEvent) {
	c.events = append(c.events, event)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var slept []time.Duration
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		Component:    "store",
		sleep:        func(d time.Duration) { slept = append(slept, d) },
	}

	calls := 0
	err := Retry(cfg, arbor.NewLogger(), nil, "write", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("flaky: %w", syscall.EAGAIN)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept,
		"delays double per attempt")
}

func TestRetry_ExhaustionRecordsMediumEvent(t *testing.T) {
	recorder := &captureRecorder{}
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		Component:    "store",
		sleep:        func(time.Duration) {},
	}

	calls := 0
	err := Retry(cfg, arbor.NewLogger(), recorder, "write", func() error {
		calls++
		return syscall.EBUSY
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	require.Len(t, recorder.events, 1)
	assert.Equal(t, models.SeverityMedium, recorder.events[0].Severity)
	assert.Equal(t, "store", recorder.events[0].Component)
}

func TestRetry_NonTransientFailsImmediately(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, sleep: func(time.Duration) {}}

	calls := 0
	err := Retry(cfg, nil, nil, "write", func() error {
		calls++
		return errors.New("corrupt document")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", syscall.ETIMEDOUT)))
	assert.False(t, IsTransient(errors.New("parse error")))
	assert.False(t, IsTransient(nil))
}

func TestBreaker_OpensAndShortCircuits(t *testing.T) {
	b := NewBreaker("network", 2, 50*time.Millisecond, arbor.NewLogger())

	boom := errors.New("down")
	executed, err := b.Call(func() error { return boom })
	assert.True(t, executed)
	assert.Equal(t, boom, err)
	executed, err = b.Call(func() error { return boom })
	assert.True(t, executed)
	assert.Equal(t, boom, err)

	// Threshold reached: the circuit is open, calls are not executed
	executed, err = b.Call(func() error {
		t.Fatal("must not run while open")
		return nil
	})
	assert.False(t, executed)
	assert.NoError(t, err)

	// After the recovery timeout a probe call goes through and closes it
	time.Sleep(60 * time.Millisecond)
	executed, err = b.Call(func() error { return nil })
	assert.True(t, executed)
	assert.NoError(t, err)
}

func TestDegrader_FallbackAndRecovery(t *testing.T) {
	recorder := &captureRecorder{}
	d := NewDegrader(arbor.NewLogger(), recorder)

	value, err := WithFallback(d, "indexer", false, 42, func() (int, error) {
		return 0, errors.New("db locked")
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.True(t, d.IsDegraded("indexer"))
	require.Len(t, recorder.events, 1)
	assert.Equal(t, models.SeverityMedium, recorder.events[0].Severity)

	// Repeat failures do not re-record
	_, _ = WithFallback(d, "indexer", false, 42, func() (int, error) {
		return 0, errors.New("db locked")
	})
	assert.Len(t, recorder.events, 1)

	// Success clears the flag
	value, err = WithFallback(d, "indexer", false, 42, func() (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.False(t, d.IsDegraded("indexer"))
}

func TestDegrader_CriticalBypassesFallback(t *testing.T) {
	d := NewDegrader(nil, nil)
	boom := errors.New("fatal")

	_, err := WithFallback(d, "store", true, "", func() (string, error) {
		return "", boom
	})
	assert.Equal(t, boom, err)
	assert.False(t, d.IsDegraded("store"))
}
