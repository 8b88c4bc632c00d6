package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// Store persists bot state: tracked chat messages, active price alerts,
// and monitored wallets. Implementations must be safe for concurrent
// use.
type Store interface {
	PutMessage(ctx context.Context, msg model.TrackedMessage) error
	GetMessage(ctx context.Context, id string) (model.TrackedMessage, bool, error)
	DeleteMessage(ctx context.Context, id string) error
	// MessagesByPrefix lists messages whose id starts with prefix, used
	// by the restore-on-startup scan.
	MessagesByPrefix(ctx context.Context, prefix string) ([]model.TrackedMessage, error)

	PutAlert(ctx context.Context, alert model.PriceAlert) error
	DeleteAlert(ctx context.Context, id string) error
	AlertsByPool(ctx context.Context, pool common.Address) ([]model.PriceAlert, error)
	Alerts(ctx context.Context) ([]model.PriceAlert, error)

	PutWallet(ctx context.Context, wallet model.MonitoredWallet) error
	GetWallet(ctx context.Context, address common.Address) (model.MonitoredWallet, bool, error)
	DeleteWallet(ctx context.Context, address common.Address) error
	Wallets(ctx context.Context) ([]model.MonitoredWallet, error)

	Close()
}
