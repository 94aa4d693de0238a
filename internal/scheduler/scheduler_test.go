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
	"go.uber.org/zap"
	"payflow/internal/services"
)

type fakeSweeper struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	err     error
}

func (f *fakeSweeper) RunOnce(ctx context.Context) (*services.ExpirationReport, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExpirationReport{Cancelled: 1}, nil
}

func TestTickRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := New(Config{Interval: time.Minute}, sweeper, nil, zap.NewNop())

	s.Tick(context.Background())
	assert.EqualValues(t, 1, sweeper.calls.Load())

	sweeper.err = errors.New("db down")
	s.Tick(context.Background())
	assert.EqualValues(t, 2, sweeper.calls.Load())
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	sweeper := &fakeSweeper{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(Config{Interval: time.Minute}, sweeper, nil, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.job.Run()
	}()
	<-sweeper.started

	// The second run returns immediately while the first one holds the slot.
	s.job.Run()
	assert.EqualValues(t, 1, sweeper.calls.Load())

	close(sweeper.release)
	wg.Wait()

	sweeper.release = nil
	s.job.Run()
	<-sweeper.started
	assert.EqualValues(t, 2, sweeper.calls.Load())
}

func TestStartRejectsBadInterval(t *testing.T) {
	s := New(Config{}, &fakeSweeper{}, nil, zap.NewNop())
	assert.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := New(Config{Interval: time.Hour}, &fakeSweeper{}, nil, zap.NewNop())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
