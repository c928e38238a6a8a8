package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPairings struct {
	PairingService
	calls atomic.Int32
	err   error
}

func (c *countingPairings) ExpireOverdue(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestSweeper_RunsPeriodically(t *testing.T) {
	pairings := &countingPairings{}
	sw, err := NewSweeper(pairings, 20*time.Millisecond, discardLogger())
	require.NoError(t, err)

	require.NoError(t, sw.Start(context.Background()))
	assert.Eventually(t, func() bool { return pairings.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sw.Shutdown())
}

func TestSweeper_SweepSurvivesErrors(t *testing.T) {
	pairings := &countingPairings{err: errors.New("db down")}
	sw, err := NewSweeper(pairings, time.Minute, discardLogger())
	require.NoError(t, err)

	sw.Sweep(context.Background())
	assert.Equal(t, int32(1), pairings.calls.Load())
}

func TestNewSweeper_RejectsZeroInterval(t *testing.T) {
	_, err := NewSweeper(&countingPairings{}, 0, discardLogger())
	require.Error(t, err)
}
