package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapObserved is a decoded pool Swap event as delivered to listeners.
type SwapObserved struct {
	Pool         common.Address
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	TxHash       common.Hash
	BlockNumber  uint64
}
