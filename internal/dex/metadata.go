package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/chain"
	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// PoolInfo is the immutable part of a pool: its tokens, fee tier, and
// tick spacing. Fetched once per pool and cached.
type PoolInfo struct {
	Address     common.Address
	Token0      model.Token
	Token1      model.Token
	Fee         uint32
	TickSpacing int32
}

// Slot0 is the mutable price state of a pool at a point in time.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
}

// TokenCache caches token metadata by address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Token
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]model.Token)}
}

func (c *TokenCache) Get(address common.Address) (model.Token, bool) {
	c.mu.RLock()
	token, ok := c.data[address]
	c.mu.RUnlock()
	return token, ok
}

func (c *TokenCache) Set(address common.Address, token model.Token) {
	c.mu.Lock()
	c.data[address] = token
	c.mu.Unlock()
}

// FetchPoolInfo loads immutable pool metadata from chain, resolving both
// tokens through the cache.
func FetchPoolInfo(ctx context.Context, chainClient *chain.Client, pool common.Address, tokenCache *TokenCache, logger *zap.Logger) (PoolInfo, error) {
	if chainClient == nil {
		return PoolInfo{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolInfo{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, chainClient, pool, poolABI, "token0", nil)
	if err != nil {
		return PoolInfo{}, err
	}
	token0Addr, err := asAddress(values[0])
	if err != nil {
		return PoolInfo{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, chainClient, pool, poolABI, "token1", nil)
	if err != nil {
		return PoolInfo{}, err
	}
	token1Addr, err := asAddress(values[0])
	if err != nil {
		return PoolInfo{}, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, chainClient, pool, poolABI, "fee", nil)
	if err != nil {
		return PoolInfo{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return PoolInfo{}, fmt.Errorf("fee: %w", err)
	}

	values, err = callMethod(ctx, chainClient, pool, poolABI, "tickSpacing", nil)
	if err != nil {
		return PoolInfo{}, err
	}
	tickSpacingInt, err := asBigInt(values[0])
	if err != nil {
		return PoolInfo{}, fmt.Errorf("tick spacing: %w", err)
	}
	tickSpacing, err := int24FromBig(tickSpacingInt)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("tick spacing: %w", err)
	}

	token0, err := ResolveToken(ctx, chainClient, token0Addr, tokenCache, logger)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("token0 metadata: %w", err)
	}
	token1, err := ResolveToken(ctx, chainClient, token1Addr, tokenCache, logger)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("token1 metadata: %w", err)
	}

	return PoolInfo{
		Address:     pool,
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(feeInt.Uint64()),
		TickSpacing: tickSpacing,
	}, nil
}

// ResolveToken returns token metadata from the cache, fetching on a miss.
func ResolveToken(ctx context.Context, chainClient *chain.Client, address common.Address, cache *TokenCache, logger *zap.Logger) (model.Token, error) {
	if cache != nil {
		if token, ok := cache.Get(address); ok {
			return token, nil
		}
	}
	token, err := FetchToken(ctx, chainClient, address, logger)
	if err != nil {
		return model.Token{}, err
	}
	if cache != nil {
		cache.Set(address, token)
	}
	return token, nil
}

// FetchSlot0 loads the current price state of a pool.
func FetchSlot0(ctx context.Context, chainClient *chain.Client, pool common.Address) (Slot0, error) {
	if chainClient == nil {
		return Slot0{}, fmt.Errorf("chain client is nil")
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return Slot0{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, chainClient, pool, poolABI, "slot0", nil)
	if err != nil {
		return Slot0{}, err
	}
	if len(values) < 2 {
		return Slot0{}, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return Slot0{}, fmt.Errorf("sqrt price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return Slot0{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return Slot0{}, fmt.Errorf("tick: %w", err)
	}

	state := Slot0{SqrtPriceX96: sqrt, Tick: tick}

	if values, err := callMethod(ctx, chainClient, pool, poolABI, "liquidity", nil); err == nil {
		if liq, err := asBigInt(values[0]); err == nil {
			state.Liquidity = liq
		}
	}

	return state, nil
}

// FetchTokenBalance returns the ERC20 balance a holder has of a token.
func FetchTokenBalance(ctx context.Context, chainClient *chain.Client, token, holder common.Address) (*big.Int, error) {
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := erc20.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := chainClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	values, err := erc20.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return asBigInt(values[0])
}

func callMethod(ctx context.Context, chainClient *chain.Client, target common.Address, parsed abi.ABI, method string, args []interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := chainClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// FetchToken loads token metadata via ERC20 calls. Symbol and name are
// best effort; decimals are mandatory.
func FetchToken(ctx context.Context, chainClient *chain.Client, token common.Address, logger *zap.Logger) (model.Token, error) {
	meta := model.Token{Address: token}
	if chainClient == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, chainClient, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, chainClient, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, chainClient, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, chainClient, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, chainClient, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else if logger != nil {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
