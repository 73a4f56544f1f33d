package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestLoopSerializesCallbacks(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(ctx)
	})

	results := make(chan int, 3)
	l.AfterFunc(20*time.Millisecond, func() { results <- 2 })
	l.AfterFunc(5*time.Millisecond, func() { results <- 1 })
	stopped := l.AfterFunc(10*time.Millisecond, func() { results <- 99 })
	assert.True(t, stopped.Stop())

	l.Post(func() { results <- 0 })

	got := []int{<-results, <-results, <-results}
	assert.Equal(t, []int{0, 1, 2}, got)

	cancel()
	assert.NoError(t, g.Wait())

	// posting after shutdown must not block
	l.Post(func() {})
}
