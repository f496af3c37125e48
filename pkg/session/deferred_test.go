package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferred_ResolveOnce(t *testing.T) {
	d := NewDeferred[int]()

	assert.True(t, d.Resolve(1))
	assert.False(t, d.Resolve(2))
	assert.False(t, d.Reject(errors.New("late")))

	v, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case <-d.Done():
	default:
		t.Error("Done should be closed after Resolve")
	}
}

func TestDeferred_Reject(t *testing.T) {
	d := NewDeferred[string]()
	boom := errors.New("boom")

	assert.True(t, d.Reject(boom))
	v, err := d.Await(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, v)
}

func TestDeferred_AwaitFromOtherGoroutine(t *testing.T) {
	d := NewDeferred[View]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.Resolve(View{Address: "/users"})
	}()

	v, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/users", v.Address)
}

func TestDeferred_AwaitContextDone(t *testing.T) {
	d := NewDeferred[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
