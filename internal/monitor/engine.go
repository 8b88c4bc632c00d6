package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/model"
	"github.com/dappvibe/defi-lp-manager/internal/storage"
	"github.com/dappvibe/defi-lp-manager/internal/telegram"
)

// Transport is the rate limited chat surface the engine writes through.
// Implemented by telegram.Throttled.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	EditPrice(ctx context.Context, chatID int64, messageID int, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// Engine reconciles desired message content with what is live in chat.
// Per message id it sends once, then edits; identical content is
// short-circuited by checksum, and concurrent reconciliations of the
// same id are dropped rather than queued, since a later cycle always
// carries fresher content.
type Engine struct {
	transport Transport
	store     storage.Store
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewEngine(transport Transport, store storage.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		transport: transport,
		store:     store,
		logger:    logger,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// Reconcile brings the message identified by id in chatID to the given
// text. priceOnly marks low-value updates that may be dropped by the
// edit throttle. meta is persisted with new messages for restore.
func (e *Engine) Reconcile(ctx context.Context, id string, chatID int64, text string, priceOnly bool, meta map[string]string) error {
	if !e.begin(id) {
		return nil
	}
	defer e.end(id)

	sum := checksum(text)

	tracked, ok, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("load message %s: %w", id, err)
	}

	if !ok {
		messageID, err := e.transport.Send(ctx, chatID, text)
		if err != nil {
			return fmt.Errorf("send %s: %w", id, err)
		}
		now := e.now()
		tracked = model.TrackedMessage{
			ID:        id,
			ChatID:    chatID,
			MessageID: messageID,
			Checksum:  sum,
			Meta:      meta,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.store.PutMessage(ctx, tracked); err != nil {
			return fmt.Errorf("persist message %s: %w", id, err)
		}
		return nil
	}

	if tracked.Checksum == sum {
		return nil
	}

	if priceOnly {
		err = e.transport.EditPrice(ctx, tracked.ChatID, tracked.MessageID, text)
		if errors.Is(err, telegram.ErrDropped) {
			// The message keeps its old content, so the old checksum
			// stays valid.
			return nil
		}
	} else {
		err = e.transport.Edit(ctx, tracked.ChatID, tracked.MessageID, text)
	}
	if errors.Is(err, telegram.ErrMessageGone) {
		// The live message was deleted out from under us; keeping the
		// record would retry a hopeless edit on every update.
		e.logger.Warn("tracked message gone, dropping record",
			zap.String("id", id),
			zap.Int64("chat", tracked.ChatID))
		if delErr := e.store.DeleteMessage(ctx, id); delErr != nil {
			return fmt.Errorf("drop message %s: %w", id, delErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit %s: %w", id, err)
	}

	tracked.Checksum = sum
	tracked.UpdatedAt = e.now()
	if err := e.store.PutMessage(ctx, tracked); err != nil {
		return fmt.Errorf("persist message %s: %w", id, err)
	}
	return nil
}

// Remove deletes the live message and its tracking record.
func (e *Engine) Remove(ctx context.Context, id string) error {
	tracked, ok, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("load message %s: %w", id, err)
	}
	if !ok {
		return nil
	}
	if err := e.transport.Delete(ctx, tracked.ChatID, tracked.MessageID); err != nil {
		e.logger.Warn("message delete failed", zap.String("id", id), zap.Error(err))
	}
	if err := e.store.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("drop message %s: %w", id, err)
	}
	return nil
}

func (e *Engine) begin(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Engine) end(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}
