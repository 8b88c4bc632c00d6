package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Message id categories. The category prefix drives the restore-on-startup
// scan: every live record under a prefix is resolved back to its domain
// entity and re-attached to monitoring.
const (
	CategoryPool     = "Pool"
	CategoryPosition = "Position"
	CategoryRange    = "Range"
)

// TrackedMessage links a domain entity to a live chat message so later
// reconciliations can edit instead of re-send. At most one live record
// exists per composite id.
type TrackedMessage struct {
	ID        string            `json:"id"`
	ChatID    int64             `json:"chatId"`
	MessageID int               `json:"messageId"`
	Checksum  uint64            `json:"checksum"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// PoolMessageID builds the composite id for a pool price message.
func PoolMessageID(pool common.Address) string {
	return fmt.Sprintf("%s_%s", CategoryPool, pool.Hex())
}

// PositionMessageID builds the composite id for a position status message.
func PositionMessageID(id uint64) string {
	return fmt.Sprintf("%s_%d", CategoryPosition, id)
}

// RangeMessageID builds the composite id for an out-of-range alert message.
func RangeMessageID(id uint64) string {
	return fmt.Sprintf("%s_%d", CategoryRange, id)
}
