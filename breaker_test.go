package tuyalan

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectionBreaker_PassesThroughSuccess(t *testing.T) {
	b := newConnectionBreaker("test", BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Second})
	err := b.call(func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, gobreaker.StateClosed, b.state())
}

func TestConnectionBreaker_TripsAfterThreshold(t *testing.T) {
	b := newConnectionBreaker("test", BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	boom := errors.New("boom")

	err := b.call(func() error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, gobreaker.StateClosed, b.state())

	err = b.call(func() error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, gobreaker.StateOpen, b.state())
}

func TestConnectionBreaker_OpenStateTranslatesToErrBreakerOpen(t *testing.T) {
	b := newConnectionBreaker("test", BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute})
	boom := errors.New("boom")

	err := b.call(func() error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, gobreaker.StateOpen, b.state())

	err = b.call(func() error { return nil })
	require.ErrorIs(t, err, ErrBreakerOpen)
}

func TestConnectionBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := newConnectionBreaker("test", BreakerConfig{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})
	boom := errors.New("boom")

	require.ErrorIs(t, b.call(func() error { return boom }), boom)
	require.Equal(t, gobreaker.StateOpen, b.state())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.call(func() error { return nil }))
	require.Equal(t, gobreaker.StateClosed, b.state())
}
