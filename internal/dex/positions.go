package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dappvibe/defi-lp-manager/internal/chain"
)

const positionManagerABIJSON = `[
  {"inputs": [{"type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "address"}, {"type": "uint256"}], "name": "tokenOfOwnerByIndex", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [{"type": "uint256"}],
    "name": "positions",
    "outputs": [
      {"internalType": "uint96", "name": "nonce", "type": "uint96"},
      {"internalType": "address", "name": "operator", "type": "address"},
      {"internalType": "address", "name": "token0", "type": "address"},
      {"internalType": "address", "name": "token1", "type": "address"},
      {"internalType": "uint24", "name": "fee", "type": "uint24"},
      {"internalType": "int24", "name": "tickLower", "type": "int24"},
      {"internalType": "int24", "name": "tickUpper", "type": "int24"},
      {"internalType": "uint128", "name": "liquidity", "type": "uint128"},
      {"internalType": "uint256", "name": "feeGrowthInside0LastX128", "type": "uint256"},
      {"internalType": "uint256", "name": "feeGrowthInside1LastX128", "type": "uint256"},
      {"internalType": "uint128", "name": "tokensOwed0", "type": "uint128"},
      {"internalType": "uint128", "name": "tokensOwed1", "type": "uint128"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const factoryABIJSON = `[
  {"inputs": [{"type": "address"}, {"type": "address"}, {"type": "uint24"}], "name": "getPool", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"}
]`

// MasterChef V3 style staking contract. Staked NFTs are transferred to
// it, so wallet enumeration must cover both the manager and the farm.
const stakingABIJSON = `[
  {"inputs": [{"type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "address"}, {"type": "uint256"}], "name": "tokenOfOwnerByIndex", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}], "name": "pendingCake", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	managerABI      abi.ABI
	managerABIOnce  sync.Once
	managerABIErr   error
	factoryABI      abi.ABI
	factoryABIOnce  sync.Once
	factoryABIErr   error
	stakingABI      abi.ABI
	stakingABIOnce  sync.Once
	stakingABIErr   error
)

func managerABIInstance() (abi.ABI, error) {
	managerABIOnce.Do(func() {
		managerABI, managerABIErr = abi.JSON(strings.NewReader(positionManagerABIJSON))
	})
	return managerABI, managerABIErr
}

func factoryABIInstance() (abi.ABI, error) {
	factoryABIOnce.Do(func() {
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	return factoryABI, factoryABIErr
}

func stakingABIInstance() (abi.ABI, error) {
	stakingABIOnce.Do(func() {
		stakingABI, stakingABIErr = abi.JSON(strings.NewReader(stakingABIJSON))
	})
	return stakingABI, stakingABIErr
}

// RawPosition is a position NFT as read from the position manager,
// before any price math is applied.
type RawPosition struct {
	ID          uint64
	Owner       common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickLower   int32
	TickUpper   int32
	Liquidity   *big.Int
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int
	Reward      *big.Int
	Staked      bool
}

// PositionFetcher enumerates position NFTs owned by a wallet, directly
// or via the staking contract.
type PositionFetcher struct {
	chain   *chain.Client
	manager common.Address
	factory common.Address
	staking common.Address
	logger  *zap.Logger
}

// NewPositionFetcher builds a fetcher. The staking address may be zero,
// in which case staked enumeration is skipped.
func NewPositionFetcher(chainClient *chain.Client, manager, factory, staking common.Address, logger *zap.Logger) *PositionFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionFetcher{
		chain:   chainClient,
		manager: manager,
		factory: factory,
		staking: staking,
		logger:  logger,
	}
}

// WalletPositions lists every position NFT a wallet owns, including ones
// deposited into the staking contract. Positions that fail to load are
// skipped with a warning so one bad NFT does not hide the rest.
func (f *PositionFetcher) WalletPositions(ctx context.Context, wallet common.Address) ([]RawPosition, error) {
	manager, err := managerABIInstance()
	if err != nil {
		return nil, err
	}

	ids, err := f.enumerate(ctx, manager, f.manager, wallet)
	if err != nil {
		return nil, fmt.Errorf("enumerate manager positions: %w", err)
	}

	out := make([]RawPosition, 0, len(ids))
	for _, id := range ids {
		pos, err := f.position(ctx, manager, id, wallet, false)
		if err != nil {
			f.logger.Warn("position load failed",
				zap.Uint64("tokenId", id),
				zap.String("wallet", wallet.Hex()),
				zap.Error(err))
			continue
		}
		out = append(out, pos)
	}

	if f.staking != (common.Address{}) {
		staking, err := stakingABIInstance()
		if err != nil {
			return nil, err
		}
		stakedIDs, err := f.enumerate(ctx, staking, f.staking, wallet)
		if err != nil {
			// Staking enumeration is optional; log and keep the rest.
			f.logger.Warn("enumerate staked positions failed",
				zap.String("wallet", wallet.Hex()),
				zap.Error(err))
			return out, nil
		}
		for _, id := range stakedIDs {
			pos, err := f.position(ctx, manager, id, wallet, true)
			if err != nil {
				f.logger.Warn("staked position load failed",
					zap.Uint64("tokenId", id),
					zap.String("wallet", wallet.Hex()),
					zap.Error(err))
				continue
			}
			if reward, err := f.pendingReward(ctx, id); err == nil {
				pos.Reward = reward
			}
			out = append(out, pos)
		}
	}

	return out, nil
}

// PoolFor resolves a pool address from the factory for a token pair and
// fee tier.
func (f *PositionFetcher) PoolFor(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error) {
	factory, err := factoryABIInstance()
	if err != nil {
		return common.Address{}, err
	}
	values, err := callMethod(ctx, f.chain, f.factory, factory, "getPool",
		[]interface{}{token0, token1, big.NewInt(int64(fee))})
	if err != nil {
		return common.Address{}, err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool: %w", err)
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for pair %s/%s fee %d", token0.Hex(), token1.Hex(), fee)
	}
	return pool, nil
}

func (f *PositionFetcher) enumerate(ctx context.Context, enumABI abi.ABI, contract, wallet common.Address) ([]uint64, error) {
	values, err := callMethod(ctx, f.chain, contract, enumABI, "balanceOf", []interface{}{wallet})
	if err != nil {
		return nil, err
	}
	count, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}

	ids := make([]uint64, 0, count.Uint64())
	for i := uint64(0); i < count.Uint64(); i++ {
		values, err := callMethod(ctx, f.chain, contract, enumABI, "tokenOfOwnerByIndex",
			[]interface{}{wallet, new(big.Int).SetUint64(i)})
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex(%d): %w", i, err)
		}
		id, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex(%d): %w", i, err)
		}
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

func (f *PositionFetcher) position(ctx context.Context, manager abi.ABI, id uint64, owner common.Address, staked bool) (RawPosition, error) {
	values, err := callMethod(ctx, f.chain, f.manager, manager, "positions",
		[]interface{}{new(big.Int).SetUint64(id)})
	if err != nil {
		return RawPosition{}, err
	}
	if len(values) != 12 {
		return RawPosition{}, fmt.Errorf("unexpected positions values: %d", len(values))
	}

	token0, err := asAddress(values[2])
	if err != nil {
		return RawPosition{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return RawPosition{}, fmt.Errorf("token1: %w", err)
	}
	feeInt, err := asBigInt(values[4])
	if err != nil {
		return RawPosition{}, fmt.Errorf("fee: %w", err)
	}
	tickLowerInt, err := asBigInt(values[5])
	if err != nil {
		return RawPosition{}, fmt.Errorf("tickLower: %w", err)
	}
	tickUpperInt, err := asBigInt(values[6])
	if err != nil {
		return RawPosition{}, fmt.Errorf("tickUpper: %w", err)
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return RawPosition{}, fmt.Errorf("liquidity: %w", err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return RawPosition{}, fmt.Errorf("tokensOwed0: %w", err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return RawPosition{}, fmt.Errorf("tokensOwed1: %w", err)
	}

	tickLower, err := int24FromBig(tickLowerInt)
	if err != nil {
		return RawPosition{}, fmt.Errorf("tickLower: %w", err)
	}
	tickUpper, err := int24FromBig(tickUpperInt)
	if err != nil {
		return RawPosition{}, fmt.Errorf("tickUpper: %w", err)
	}

	return RawPosition{
		ID:          id,
		Owner:       owner,
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(feeInt.Uint64()),
		TickLower:   tickLower,
		TickUpper:   tickUpper,
		Liquidity:   liquidity,
		TokensOwed0: owed0,
		TokensOwed1: owed1,
		Staked:      staked,
	}, nil
}

func (f *PositionFetcher) pendingReward(ctx context.Context, id uint64) (*big.Int, error) {
	staking, err := stakingABIInstance()
	if err != nil {
		return nil, err
	}
	values, err := callMethod(ctx, f.chain, f.staking, staking, "pendingCake",
		[]interface{}{new(big.Int).SetUint64(id)})
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
