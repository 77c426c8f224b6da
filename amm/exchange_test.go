// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/settlement/events"
	"github.com/luxfi/settlement/token"
)

var (
	testOwner   = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	testCustody = common.HexToAddress("0x0000000000000000000000000000000000D0D0D0")
	assetX      = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	assetY      = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	lp          = common.HexToAddress("0x1111111111111111111111111111111111111111")
	trader      = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type testExchange struct {
	ex       *Exchange
	vault    *token.Vault
	recorder *events.Recorder
}

func newTestExchange(t *testing.T) *testExchange {
	t.Helper()

	vault := token.NewVault()
	recorder := events.NewRecorder()
	ex, err := NewExchange(ExchangeConfig{
		Owner:   testOwner,
		Custody: testCustody,
		Ledger:  vault,
		Emitter: recorder,
	})
	require.NoError(t, err)
	return &testExchange{ex: ex, vault: vault, recorder: recorder}
}

func (te *testExchange) fund(t *testing.T, account common.Address, amount int64) {
	t.Helper()
	for _, asset := range []common.Address{assetX, assetY} {
		require.NoError(t, te.vault.Mint(asset, account, big.NewInt(amount)))
		require.NoError(t, te.vault.Approve(asset, account, testCustody, big.NewInt(amount)))
	}
}

// seedPool creates a pool and adds initial liquidity from lp.
func (te *testExchange) seedPool(t *testing.T, feeBps uint32, amount0, amount1 int64) *Pool {
	t.Helper()
	pool, err := te.ex.CreatePool(testOwner, assetX, assetY, feeBps)
	require.NoError(t, err)
	te.fund(t, lp, amount0+amount1)
	_, err = te.ex.AddLiquidity(lp, pool.ID, big.NewInt(amount0), big.NewInt(amount1), nil)
	require.NoError(t, err)
	return pool
}

func TestCreatePoolValidation(t *testing.T) {
	te := newTestExchange(t)

	_, err := te.ex.CreatePool(lp, assetX, assetY, 30)
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = te.ex.CreatePool(testOwner, assetX, assetX, 30)
	require.ErrorIs(t, err, ErrIdenticalAssets)

	_, err = te.ex.CreatePool(testOwner, assetX, assetY, MaxFeeBps+1)
	require.ErrorIs(t, err, ErrFeeTooHigh)

	pool, err := te.ex.CreatePool(testOwner, assetX, assetY, 30)
	require.NoError(t, err)
	require.True(t, pool.Active)

	// Same pair in either order is a duplicate.
	_, err = te.ex.CreatePool(testOwner, assetY, assetX, 30)
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestPoolIDOrderIndependent(t *testing.T) {
	require.Equal(t, PoolID(assetX, assetY), PoolID(assetY, assetX))
	require.NotEqual(t, PoolID(assetX, assetY), PoolID(assetX, trader))
}

func TestFirstLiquidityMintsSqrtMinusFloor(t *testing.T) {
	te := newTestExchange(t)
	pool, err := te.ex.CreatePool(testOwner, assetX, assetY, 30)
	require.NoError(t, err)

	te.fund(t, lp, 50_000)
	minted, err := te.ex.AddLiquidity(lp, pool.ID, big.NewInt(10_000), big.NewInt(40_000), nil)
	require.NoError(t, err)

	// floor(sqrt(10000*40000)) - 1000 = 20000 - 1000
	require.Equal(t, big.NewInt(19_000), minted)
	require.Equal(t, big.NewInt(20_000), pool.TotalShares)
	require.Equal(t, big.NewInt(10_000), pool.Reserve0)
	require.Equal(t, big.NewInt(40_000), pool.Reserve1)
}

func TestFirstLiquidityBelowFloorRejected(t *testing.T) {
	te := newTestExchange(t)
	pool, err := te.ex.CreatePool(testOwner, assetX, assetY, 30)
	require.NoError(t, err)

	te.fund(t, lp, 2_000)
	// sqrt(1000*1000) = 1000 = MinimumLiquidity, nothing left to mint.
	_, err = te.ex.AddLiquidity(lp, pool.ID, big.NewInt(1_000), big.NewInt(1_000), nil)
	require.ErrorIs(t, err, ErrInsufficientMinted)
}

func TestSubsequentLiquidityMintsMinRatio(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 10_000) // totalShares 10000, lp holds 9000

	te.fund(t, trader, 30_000)
	// Imbalanced: ratio on asset0 is 1000/10000, on asset1 is 5000/10000.
	// The smaller ratio wins; the excess asset1 is not refunded.
	minted, err := te.ex.AddLiquidity(trader, pool.ID, big.NewInt(1_000), big.NewInt(5_000), nil)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), minted)
	require.Equal(t, big.NewInt(11_000), pool.Reserve0)
	require.Equal(t, big.NewInt(15_000), pool.Reserve1)
	require.Equal(t, big.NewInt(11_000), pool.TotalShares)
}

func TestAddLiquiditySlippageGuard(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 10_000)

	te.fund(t, trader, 2_000)
	_, err := te.ex.AddLiquidity(trader, pool.ID, big.NewInt(1_000), big.NewInt(1_000), big.NewInt(1_001))
	require.ErrorIs(t, err, ErrInsufficientMinted)

	// Failed adds move no funds.
	require.Equal(t, big.NewInt(2_000), te.vault.BalanceOf(assetX, trader))
}

func TestRemoveLiquidityProportional(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 40_000) // lp holds 19000 of 20000 shares

	out0, out1, err := te.ex.RemoveLiquidity(lp, pool.ID, big.NewInt(9_500), nil, nil)
	require.NoError(t, err)
	// 9500/20000 of each reserve.
	require.Equal(t, big.NewInt(4_750), out0)
	require.Equal(t, big.NewInt(19_000), out1)
	require.Equal(t, big.NewInt(5_250), pool.Reserve0)
	require.Equal(t, big.NewInt(21_000), pool.Reserve1)
	require.Equal(t, big.NewInt(10_500), pool.TotalShares)
}

func TestRemoveLiquidityGuards(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 10_000)

	_, _, err := te.ex.RemoveLiquidity(trader, pool.ID, big.NewInt(1), nil, nil)
	require.ErrorIs(t, err, ErrPositionNotFound)

	_, _, err = te.ex.RemoveLiquidity(lp, pool.ID, big.NewInt(9_001), nil, nil)
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = te.ex.RemoveLiquidity(lp, pool.ID, big.NewInt(0), nil, nil)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, _, err = te.ex.RemoveLiquidity(lp, pool.ID, big.NewInt(1_000), big.NewInt(10_000), nil)
	require.ErrorIs(t, err, ErrInsufficientOutput)
}

// addLiquidity(x, y) immediately followed by removeLiquidity of the minted
// shares returns at most (x, y); rounding loss only, never a gain.
func TestLiquidityRoundTripConservation(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 40_000)

	x, y := big.NewInt(3_333), big.NewInt(13_331)
	te.fund(t, trader, 20_000)

	minted, err := te.ex.AddLiquidity(trader, pool.ID, x, y, nil)
	require.NoError(t, err)

	out0, out1, err := te.ex.RemoveLiquidity(trader, pool.ID, minted, nil, nil)
	require.NoError(t, err)

	require.LessOrEqual(t, out0.Cmp(x), 0)
	require.LessOrEqual(t, out1.Cmp(y), 0)
}

func TestSwapReferenceScenario(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 1_000_000, 1_000_000)

	te.fund(t, trader, 1_000)
	out, err := te.ex.Swap(trader, pool.ID, assetX, big.NewInt(1_000), nil)
	require.NoError(t, err)

	// net = 1000*9970/10000 = 997; out = 1e6*997/(1e6+997) = 996
	require.Equal(t, big.NewInt(996), out)
	require.Equal(t, big.NewInt(1_001_000), pool.Reserve0)
	require.Equal(t, big.NewInt(999_004), pool.Reserve1)
	require.Zero(t, te.vault.BalanceOf(assetX, trader).Sign())
	require.Equal(t, big.NewInt(1_996), te.vault.BalanceOf(assetY, trader))
	require.Equal(t, big.NewInt(3), pool.AccumulatedFees0)
}

func TestSwapInvariantProductMonotone(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 1_000_000, 1_000_000)

	te.fund(t, trader, 5_000_000)
	k := new(big.Int).Mul(pool.Reserve0, pool.Reserve1)

	amounts := []int64{1, 17, 999, 10_000, 250_000, 3, 77_777}
	for i, amt := range amounts {
		tokenIn := assetX
		if i%2 == 1 {
			tokenIn = assetY
		}
		_, err := te.ex.Swap(trader, pool.ID, tokenIn, big.NewInt(amt), nil)
		require.NoError(t, err)

		kNext := new(big.Int).Mul(pool.Reserve0, pool.Reserve1)
		require.GreaterOrEqual(t, kNext.Cmp(k), 0, "invariant product decreased after swap %d", i)
		k = kNext
	}
}

func TestSwapZeroFeeInvariantHolds(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 0, 500_000, 750_000)

	te.fund(t, trader, 100_000)
	k := new(big.Int).Mul(pool.Reserve0, pool.Reserve1)
	_, err := te.ex.Swap(trader, pool.ID, assetX, big.NewInt(99_999), nil)
	require.NoError(t, err)
	kAfter := new(big.Int).Mul(pool.Reserve0, pool.Reserve1)
	require.GreaterOrEqual(t, kAfter.Cmp(k), 0)
}

func TestSwapSlippageGuard(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 1_000_000, 1_000_000)

	te.fund(t, trader, 1_000)
	_, err := te.ex.Swap(trader, pool.ID, assetX, big.NewInt(1_000), big.NewInt(997))
	require.ErrorIs(t, err, ErrInsufficientOutput)

	// Rejected swap moves nothing.
	require.Equal(t, big.NewInt(1_000), te.vault.BalanceOf(assetX, trader))
	require.Equal(t, big.NewInt(1_000_000), pool.Reserve0)
}

func TestSwapValidation(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 10_000)
	te.fund(t, trader, 1_000)

	_, err := te.ex.Swap(trader, common.HexToHash("0x01"), assetX, big.NewInt(10), nil)
	require.ErrorIs(t, err, ErrPoolNotFound)

	_, err = te.ex.Swap(trader, pool.ID, trader, big.NewInt(10), nil)
	require.ErrorIs(t, err, ErrAssetNotInPool)

	_, err = te.ex.Swap(trader, pool.ID, assetX, big.NewInt(0), nil)
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestQuoteMatchesSwap(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 50, 123_456, 654_321)

	quote, err := te.ex.Quote(pool.ID, assetX, big.NewInt(7_890))
	require.NoError(t, err)

	te.fund(t, trader, 7_890)
	out, err := te.ex.Swap(trader, pool.ID, assetX, big.NewInt(7_890), nil)
	require.NoError(t, err)
	require.Equal(t, quote, out)
}

func TestDeactivatedPoolRejectsSwapsButAllowsExit(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 10_000)

	require.ErrorIs(t, te.ex.SetPoolActive(lp, pool.ID, false), ErrNotOwner)
	require.NoError(t, te.ex.SetPoolActive(testOwner, pool.ID, false))

	te.fund(t, trader, 1_000)
	_, err := te.ex.Swap(trader, pool.ID, assetX, big.NewInt(100), nil)
	require.ErrorIs(t, err, ErrPoolInactive)

	_, err = te.ex.AddLiquidity(trader, pool.ID, big.NewInt(100), big.NewInt(100), nil)
	require.ErrorIs(t, err, ErrPoolInactive)

	// Providers can still exit a deactivated pool.
	_, _, err = te.ex.RemoveLiquidity(lp, pool.ID, big.NewInt(1_000), nil, nil)
	require.NoError(t, err)
}

func TestPauseBlocksMutations(t *testing.T) {
	te := newTestExchange(t)
	pool := te.seedPool(t, 30, 10_000, 10_000)

	require.NoError(t, te.ex.Pause(testOwner))

	te.fund(t, trader, 1_000)
	_, err := te.ex.Swap(trader, pool.ID, assetX, big.NewInt(100), nil)
	require.ErrorIs(t, err, ErrExchangePaused)

	// Queries still work while paused.
	_, err = te.ex.Quote(pool.ID, assetX, big.NewInt(100))
	require.NoError(t, err)

	require.NoError(t, te.ex.Unpause(testOwner))
	_, err = te.ex.Swap(trader, pool.ID, assetX, big.NewInt(100), nil)
	require.NoError(t, err)
}
