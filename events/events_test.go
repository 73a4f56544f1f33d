package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedDeliversToEverySubscriber(t *testing.T) {
	f := NewFeed[int]()

	a := f.Subscribe()
	b := f.Subscribe()

	f.Publish(1)
	f.Publish(2)

	assert.Equal(t, []int{1, 2}, f.Drain(a))
	assert.Equal(t, []int{1, 2}, f.Drain(b))
	assert.Nil(t, f.Drain(a))
}

func TestFeedNextBlocksUntilPublish(t *testing.T) {
	f := NewFeed[string]()
	s := f.Subscribe()

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Publish("up")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, ok := f.Next(ctx, s)
	require.True(t, ok)
	assert.Equal(t, "up", v)
}

func TestFeedNextHonoursContext(t *testing.T) {
	f := NewFeed[string]()
	s := f.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := f.Next(ctx, s)
	assert.False(t, ok)
}

func TestFeedUnsubscribe(t *testing.T) {
	f := NewFeed[int]()
	s := f.Subscribe()
	f.Unsubscribe(s)

	f.Publish(1)

	_, ok := f.Next(context.Background(), s)
	assert.False(t, ok)
	assert.Nil(t, f.Drain(s))
}
