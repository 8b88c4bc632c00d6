package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MonitoredWallet ties a wallet address to the chats tracking it, plus the
// last-seen position snapshot used for change detection. The snapshot is
// replaced wholesale after each poll cycle.
type MonitoredWallet struct {
	Address   common.Address `json:"address"`
	ChatIDs   []int64        `json:"chatIds"`
	Snapshot  []Position     `json:"snapshot,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// WalletID builds the composite store id for a monitored wallet.
func WalletID(address common.Address) string {
	return fmt.Sprintf("Wallet_%s", address.Hex())
}

// HasChat reports whether the chat already tracks this wallet.
func (w MonitoredWallet) HasChat(chatID int64) bool {
	for _, id := range w.ChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
