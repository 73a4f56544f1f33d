package clock

import (
	"container/heap"
	"time"
)

// Fake is a virtual-time scheduler. Nothing happens until the owner calls Step, Advance or
// RunFor; callbacks scheduled for the same instant run in the order they were scheduled.
type Fake struct {
	now   time.Time
	seq   uint64
	queue entryHeap
	live  int
}

type entry struct {
	at      time.Time
	seq     uint64
	f       func()
	stopped bool
	fired   bool
	index   int
	clock   *Fake
}

func (e *entry) Stop() bool {
	if e.stopped || e.fired {
		return false
	}

	e.stopped = true
	e.clock.live--
	return true
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}

	c.seq++
	e := &entry{
		at:    c.now.Add(d),
		seq:   c.seq,
		f:     f,
		clock: c,
	}

	heap.Push(&c.queue, e)
	c.live++

	return e
}

// Pending returns the number of callbacks that are scheduled and not stopped.
func (c *Fake) Pending() int {
	return c.live
}

// Next returns the time of the earliest pending callback.
func (c *Fake) Next() (time.Time, bool) {
	c.discardStopped()

	if len(c.queue) == 0 {
		return time.Time{}, false
	}

	return c.queue[0].at, true
}

// Step runs the earliest pending callback, moving the clock forward to its deadline.
func (c *Fake) Step() bool {
	c.discardStopped()

	if len(c.queue) == 0 {
		return false
	}

	e := heap.Pop(&c.queue).(*entry)
	if e.at.After(c.now) {
		c.now = e.at
	}

	e.fired = true
	c.live--
	e.f()

	return true
}

// Advance runs every callback due within d, including callbacks scheduled by those
// callbacks, and leaves the clock at now+d.
func (c *Fake) Advance(d time.Duration) {
	end := c.now.Add(d)

	for {
		at, ok := c.Next()
		if !ok || at.After(end) {
			break
		}

		c.Step()
	}

	c.now = end
}

// RunUntilIdle steps until nothing is pending or limit callbacks have run. It returns the
// number of callbacks executed.
func (c *Fake) RunUntilIdle(limit int) int {
	n := 0
	for n < limit && c.Step() {
		n++
	}

	return n
}

func (c *Fake) discardStopped() {
	for len(c.queue) > 0 && c.queue[0].stopped {
		heap.Pop(&c.queue)
	}
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}

	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
