package telegram

import (
	"context"
	"errors"
)

// ErrMessageGone marks a transport failure meaning the target message
// or chat no longer exists. Callers drop their tracking record instead
// of retrying.
var ErrMessageGone = errors.New("message or chat gone")

// Transport is the minimal chat surface the bot needs. Implemented by
// Bot and wrapped by Throttled.
type Transport interface {
	// Send posts a new message and returns its message id.
	Send(ctx context.Context, chatID int64, text string) (int, error)
	// Edit replaces the text of an existing message. Editing to
	// identical content is not an error.
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	// Delete removes a message. Deleting an already gone message is not
	// an error.
	Delete(ctx context.Context, chatID int64, messageID int) error
}
