package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type call struct {
	kind      string
	chatID    int64
	messageID int
	text      string
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []call
	next  int
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.calls = append(f.calls, call{kind: "send", chatID: chatID, text: text})
	return f.next, nil
}

func (f *fakeTransport) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: "edit", chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: "delete", chatID: chatID, messageID: messageID})
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newThrottledForTest(inner Transport, limit int, minEdit time.Duration) (*Throttled, *fakeClock) {
	clock := newFakeClock()
	t := NewThrottled(inner, limit, minEdit)
	t.now = clock.now
	t.sleep = clock.sleep
	return t, clock
}

func TestThrottledRateLimitBlocks(t *testing.T) {
	inner := &fakeTransport{}
	throttled, clock := newThrottledForTest(inner, 2, 0)
	ctx := context.Background()

	_, err := throttled.Send(ctx, 1, "a")
	require.NoError(t, err)
	_, err = throttled.Send(ctx, 1, "b")
	require.NoError(t, err)
	require.Empty(t, clock.slept)

	// Third call in the same second must wait for a slot.
	_, err = throttled.Send(ctx, 1, "c")
	require.NoError(t, err)
	require.NotEmpty(t, clock.slept)
	require.Equal(t, 3, inner.callCount())
}

func TestThrottledRateLimitRefills(t *testing.T) {
	inner := &fakeTransport{}
	throttled, clock := newThrottledForTest(inner, 2, 0)
	ctx := context.Background()

	_, _ = throttled.Send(ctx, 1, "a")
	_, _ = throttled.Send(ctx, 1, "b")
	clock.advance(time.Second + time.Millisecond)

	_, err := throttled.Send(ctx, 1, "c")
	require.NoError(t, err)
	require.Empty(t, clock.slept)
}

func TestThrottledPriceEditDroppedInsideInterval(t *testing.T) {
	inner := &fakeTransport{}
	throttled, clock := newThrottledForTest(inner, 30, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, throttled.EditPrice(ctx, 1, 10, "p1"))
	require.Equal(t, 1, inner.callCount())

	clock.advance(time.Second)
	err := throttled.EditPrice(ctx, 1, 10, "p2")
	require.ErrorIs(t, err, ErrDropped)
	require.Equal(t, 1, inner.callCount())

	clock.advance(3 * time.Second)
	require.NoError(t, throttled.EditPrice(ctx, 1, 10, "p3"))
	require.Equal(t, 2, inner.callCount())
}

func TestThrottledContentEditDelayedNotDropped(t *testing.T) {
	inner := &fakeTransport{}
	throttled, clock := newThrottledForTest(inner, 30, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, throttled.Edit(ctx, 1, 10, "v1"))
	require.NoError(t, throttled.Edit(ctx, 1, 10, "v2"))

	// Both edits reached the transport; the second waited out the
	// interval instead of being dropped.
	require.Equal(t, 2, inner.callCount())
	require.NotEmpty(t, clock.slept)
}

func TestThrottledEditIntervalPerMessage(t *testing.T) {
	inner := &fakeTransport{}
	throttled, _ := newThrottledForTest(inner, 30, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, throttled.EditPrice(ctx, 1, 10, "a"))
	// Different message: the interval of message 10 must not apply.
	require.NoError(t, throttled.EditPrice(ctx, 1, 11, "b"))
	require.Equal(t, 2, inner.callCount())
}

func TestThrottledDeleteResetsEditState(t *testing.T) {
	inner := &fakeTransport{}
	throttled, _ := newThrottledForTest(inner, 30, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, throttled.EditPrice(ctx, 1, 10, "a"))
	require.NoError(t, throttled.Delete(ctx, 1, 10))

	// A reused message id starts fresh.
	require.NoError(t, throttled.EditPrice(ctx, 1, 10, "b"))
}

func TestThrottledCancelledContext(t *testing.T) {
	inner := &fakeTransport{}
	throttled, _ := newThrottledForTest(inner, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := throttled.Send(ctx, 1, "a")
	require.NoError(t, err)

	cancel()
	throttled.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	_, err = throttled.Send(ctx, 1, "b")
	require.Error(t, err)
	require.Equal(t, 1, inner.callCount())
}
