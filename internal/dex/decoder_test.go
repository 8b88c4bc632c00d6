package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestSwapDecoderDecode(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	log := types.Log{
		Address: pool,
		Topics: []common.Hash{
			decoder.Topic0(),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data:        data,
		TxHash:      common.HexToHash("0xdeadbeef"),
		BlockNumber: 12345,
	}

	if !decoder.CanDecode(log) {
		t.Fatal("CanDecode = false for a swap log")
	}

	swap, err := decoder.Decode(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	if swap.Pool != pool {
		t.Fatalf("pool mismatch: %s", swap.Pool.Hex())
	}
	if swap.Sender != sender || swap.Recipient != recipient {
		t.Fatal("address mismatch")
	}
	if swap.Amount0.Cmp(big.NewInt(-1000)) != 0 || swap.Amount1.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("amounts mismatch: %s / %s", swap.Amount0, swap.Amount1)
	}
	if swap.SqrtPriceX96.Cmp(big.NewInt(123456789)) != 0 {
		t.Fatalf("sqrt price mismatch: %s", swap.SqrtPriceX96)
	}
	if swap.Liquidity.Cmp(big.NewInt(987654321)) != 0 {
		t.Fatalf("liquidity mismatch: %s", swap.Liquidity)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.BlockNumber != 12345 {
		t.Fatalf("block mismatch: %d", swap.BlockNumber)
	}
}

func TestSwapDecoderRejectsForeignTopic(t *testing.T) {
	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	log := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{common.HexToHash("0xabcdef")},
	}
	if decoder.CanDecode(log) {
		t.Fatal("CanDecode = true for a foreign topic")
	}
	if _, err := decoder.Decode(log); err == nil {
		t.Fatal("expected decode error for a foreign topic")
	}
}

func TestSwapDecoderRejectsTruncatedLog(t *testing.T) {
	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	// Right topic, missing indexed parties.
	log := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{decoder.Topic0()},
	}
	if _, err := decoder.Decode(log); err == nil {
		t.Fatal("expected decode error for missing topics")
	}

	// Malformed data payload.
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log.Topics = []common.Hash{
		decoder.Topic0(),
		common.BytesToHash(sender.Bytes()),
		common.BytesToHash(sender.Bytes()),
	}
	log.Data = []byte{0x01, 0x02}
	if _, err := decoder.Decode(log); err == nil {
		t.Fatal("expected decode error for malformed data")
	}
}
