package ldap

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_StartIsIdempotent(t *testing.T) {
	s := NewScheduler()
	s.Start()
	s.Start()

	assert.True(t, s.IsReady())

	require.NoError(t, s.Shutdown())
}

func TestScheduler_NotReadyBeforeStart(t *testing.T) {
	s := NewScheduler()
	assert.False(t, s.IsReady())
}

func TestScheduler_SubmitSync(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer func() { require.NoError(t, s.Shutdown()) }()

	result, err := SubmitSync(s, func() int {
		return 21 + 21
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestScheduler_SubmitSync_BeforeStart(t *testing.T) {
	s := NewScheduler()

	_, err := SubmitSync(s, func() int { return 1 })
	require.Error(t, err)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindFailedToSendJob, kind)
}

func TestScheduler_SubmitAsync(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer func() { require.NoError(t, s.Shutdown()) }()

	var got int32

	doneCh := make(chan struct{})

	err := SubmitAsync(s, func() int {
		return 7
	}, func(_ struct{}, res int) {
		atomic.StoreInt32(&got, int32(res))
		close(doneCh)
	}, struct{}{})
	require.NoError(t, err)

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("async callback never ran")
	}

	assert.Equal(t, int32(7), atomic.LoadInt32(&got))
}

func TestScheduler_ShutdownIsIdempotent(t *testing.T) {
	s := NewScheduler()
	s.Start()

	require.NoError(t, s.Shutdown())
	require.NoError(t, s.Shutdown())
	assert.False(t, s.IsReady())
}

func TestScheduler_ShutdownWithoutStart(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Shutdown())
}

func TestScheduler_RejectsJobsAfterShutdown(t *testing.T) {
	s := NewScheduler()
	s.Start()
	require.NoError(t, s.Shutdown())

	_, err := SubmitSync(s, func() int { return 1 })
	require.Error(t, err)
}
