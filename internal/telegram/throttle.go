package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Throttled wraps a Transport with two limits: a global token bucket
// over all API calls, and a per-message minimum interval between edits.
//
// Edits carry a tag: price-only edits that arrive inside the interval
// are dropped, because the next swap will refresh the message anyway.
// Content edits are never dropped, only delayed until the interval has
// passed.
type Throttled struct {
	inner    Transport
	limit    int
	interval time.Duration
	minEdit  time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	mu        sync.Mutex
	calls     []time.Time
	lastEdits map[editKey]time.Time
}

type editKey struct {
	chatID    int64
	messageID int
}

// ErrDropped is returned when a price-only edit was skipped by the
// per-message interval. Callers treat it as success.
var ErrDropped = fmt.Errorf("edit dropped by throttle")

// NewThrottled builds the rate limited transport. limit is calls per
// second across every chat; minEdit is the per-message edit interval.
func NewThrottled(inner Transport, limit int, minEdit time.Duration) *Throttled {
	if limit <= 0 {
		limit = 30
	}
	return &Throttled{
		inner:     inner,
		limit:     limit,
		interval:  time.Second,
		minEdit:   minEdit,
		now:       time.Now,
		sleep:     sleepCtx,
		lastEdits: make(map[editKey]time.Time),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Throttled) Send(ctx context.Context, chatID int64, text string) (int, error) {
	if err := t.acquire(ctx); err != nil {
		return 0, err
	}
	return t.inner.Send(ctx, chatID, text)
}

// Edit performs a content edit. Inside the per-message interval it
// waits instead of dropping.
func (t *Throttled) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	key := editKey{chatID: chatID, messageID: messageID}
	for {
		t.mu.Lock()
		wait := t.editWait(key)
		if wait <= 0 {
			t.lastEdits[key] = t.now()
			t.mu.Unlock()
			break
		}
		t.mu.Unlock()
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if err := t.acquire(ctx); err != nil {
		return err
	}
	return t.inner.Edit(ctx, chatID, messageID, text)
}

// EditPrice performs a price-only edit. Inside the per-message interval
// it is dropped with ErrDropped.
func (t *Throttled) EditPrice(ctx context.Context, chatID int64, messageID int, text string) error {
	key := editKey{chatID: chatID, messageID: messageID}

	t.mu.Lock()
	if t.editWait(key) > 0 {
		t.mu.Unlock()
		return ErrDropped
	}
	t.lastEdits[key] = t.now()
	t.mu.Unlock()

	if err := t.acquire(ctx); err != nil {
		return err
	}
	return t.inner.Edit(ctx, chatID, messageID, text)
}

func (t *Throttled) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.lastEdits, editKey{chatID: chatID, messageID: messageID})
	t.mu.Unlock()
	return t.inner.Delete(ctx, chatID, messageID)
}

// editWait returns how long until the message may be edited again.
// Caller holds the mutex.
func (t *Throttled) editWait(key editKey) time.Duration {
	last, ok := t.lastEdits[key]
	if !ok {
		return 0
	}
	elapsed := t.now().Sub(last)
	if elapsed >= t.minEdit {
		return 0
	}
	return t.minEdit - elapsed
}

// acquire blocks until a rate limit slot is free, then records the
// call. The check and the record happen under one lock so concurrent
// callers cannot both claim the last slot.
func (t *Throttled) acquire(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := t.now()
		cutoff := now.Add(-t.interval)
		kept := t.calls[:0]
		for _, c := range t.calls {
			if c.After(cutoff) {
				kept = append(kept, c)
			}
		}
		t.calls = kept

		if len(t.calls) < t.limit {
			t.calls = append(t.calls, now)
			t.mu.Unlock()
			return nil
		}
		wait := t.calls[0].Sub(cutoff)
		t.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
