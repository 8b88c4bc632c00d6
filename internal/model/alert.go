package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PriceAlert is a one-shot price threshold watch on a pool. Once triggered
// it is removed from the active set and never re-fires.
type PriceAlert struct {
	ID        string          `json:"id"`
	Pool      common.Address  `json:"pool"`
	ChatID    int64           `json:"chatId"`
	Target    decimal.Decimal `json:"target"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AlertID builds the composite store id for an alert.
func AlertID(pool common.Address, chatID int64, target decimal.Decimal) string {
	return fmt.Sprintf("Alert_%s_%d_%s", pool.Hex(), chatID, target.String())
}
