package sharedfuture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsComputedValue(t *testing.T) {
	f := New(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestWaitReturnsError(t *testing.T) {
	wantErr := errors.New("boom")
	f := New(context.Background(), func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	_, err := f.Wait(context.Background())
	assert.Equal(t, wantErr, err)
}

func TestFnRunsExactlyOnceForMultipleWaiters(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	f := New(context.Background(), func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	})

	results := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, err := f.Wait(context.Background())
			require.NoError(t, err)
			results <- v
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 7, <-results)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestWaitRespectsCallerContext(t *testing.T) {
	f := New(context.Background(), func(ctx context.Context) (int, error) {
		select {}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestPeekAndDone(t *testing.T) {
	release := make(chan struct{})
	f := New(context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	_, _, ready := f.Peek()
	assert.False(t, ready)
	assert.False(t, f.Done())

	close(release)
	_, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Done())

	v, err, ready := f.Peek()
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 1, v)
}
