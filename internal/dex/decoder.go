package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// SwapDecoder decodes PancakeSwap V3 / Uniswap V3 Swap logs.
type SwapDecoder struct {
	event abi.Event
}

// NewSwapDecoder builds a Swap log decoder from the V3 pool ABI.
func NewSwapDecoder() (*SwapDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	event, ok := poolABI.Events["Swap"]
	if !ok {
		return nil, fmt.Errorf("pool abi missing Swap event")
	}
	return &SwapDecoder{event: event}, nil
}

// Topic0 returns the Swap event signature hash, used as the log filter.
func (d *SwapDecoder) Topic0() common.Hash {
	return d.event.ID
}

// CanDecode checks if the log carries a Swap event.
func (d *SwapDecoder) CanDecode(log types.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == d.event.ID
}

// Decode converts a raw Swap log into a SwapObserved event.
func (d *SwapDecoder) Decode(log types.Log) (model.SwapObserved, error) {
	indexed := indexedArguments(d.event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.SwapObserved{}, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	if log.Topics[0] != d.event.ID {
		return model.SwapObserved{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	var parties struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&parties, indexed, log.Topics[1:]); err != nil {
		return model.SwapObserved{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapObserved{}, fmt.Errorf("unpack swap: %w", err)
	}
	if len(values) != 5 {
		return model.SwapObserved{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.SwapObserved{}, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.SwapObserved{}, err
	}
	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return model.SwapObserved{}, err
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return model.SwapObserved{}, err
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.SwapObserved{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SwapObserved{}, err
	}

	return model.SwapObserved{
		Pool:         log.Address,
		Sender:       parties.Sender,
		Recipient:    parties.Recipient,
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
		TxHash:       log.TxHash,
		BlockNumber:  log.BlockNumber,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
