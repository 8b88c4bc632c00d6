package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Commander is the monitoring surface commands drive. Implemented by
// the monitor service.
type Commander interface {
	TrackPool(ctx context.Context, chatID int64, pool common.Address) error
	WatchWallet(ctx context.Context, chatID int64, wallet common.Address) error
	UnwatchWallet(ctx context.Context, chatID int64, wallet common.Address) error
	AddAlert(ctx context.Context, chatID int64, pool common.Address, target decimal.Decimal) error
	List(ctx context.Context, chatID int64) (string, error)
}

const helpText = `<b>Commands</b>
/pool &lt;address&gt; - track a pool's price in this chat
/wallet &lt;address&gt; - watch a wallet's positions
/unwallet &lt;address&gt; - stop watching a wallet
/notify &lt;pool&gt; &lt;price&gt; - one-shot price alert
/list - show what this chat is tracking`

// Router dispatches chat commands to the monitor service. Errors from
// the service are reported back to the chat, never fatal.
type Router struct {
	bot     *Bot
	out     Transport
	service Commander
	logger  *zap.Logger
}

func NewRouter(bot *Bot, out Transport, service Commander, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{bot: bot, out: out, service: service, logger: logger}
}

// Run consumes updates until the context is done.
func (r *Router) Run(ctx context.Context) error {
	updates := r.bot.Updates()
	defer r.bot.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			r.handle(ctx, update.Message)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	var err error
	switch msg.Command() {
	case "start", "help":
		err = r.reply(ctx, chatID, helpText)
	case "pool":
		err = r.withAddress(ctx, chatID, args, func(addr common.Address) error {
			return r.service.TrackPool(ctx, chatID, addr)
		})
	case "wallet":
		err = r.withAddress(ctx, chatID, args, func(addr common.Address) error {
			return r.service.WatchWallet(ctx, chatID, addr)
		})
	case "unwallet":
		err = r.withAddress(ctx, chatID, args, func(addr common.Address) error {
			return r.service.UnwatchWallet(ctx, chatID, addr)
		})
	case "notify":
		err = r.notify(ctx, chatID, args)
	case "list":
		var text string
		if text, err = r.service.List(ctx, chatID); err == nil {
			err = r.reply(ctx, chatID, text)
		}
	default:
		err = r.reply(ctx, chatID, "Unknown command. Try /help.")
	}

	if err != nil {
		r.logger.Warn("command failed",
			zap.String("command", msg.Command()),
			zap.Int64("chat", chatID),
			zap.Error(err))
		if replyErr := r.reply(ctx, chatID, fmt.Sprintf("Error: %s", err)); replyErr != nil {
			r.logger.Warn("error reply failed", zap.Int64("chat", chatID), zap.Error(replyErr))
		}
	}
}

func (r *Router) withAddress(ctx context.Context, chatID int64, args []string, fn func(common.Address) error) error {
	if len(args) != 1 {
		return r.reply(ctx, chatID, "Usage: one address argument, e.g. 0x...")
	}
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("not a valid address: %s", args[0])
	}
	return fn(common.HexToAddress(args[0]))
}

func (r *Router) notify(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 2 {
		return r.reply(ctx, chatID, "Usage: /notify <pool> <price>")
	}
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("not a valid address: %s", args[0])
	}
	target, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("not a valid price: %s", args[1])
	}
	if !target.IsPositive() {
		return fmt.Errorf("price must be positive")
	}
	return r.service.AddAlert(ctx, chatID, common.HexToAddress(args[0]), target)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) error {
	_, err := r.out.Send(ctx, chatID, text)
	return err
}
