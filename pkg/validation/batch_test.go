package validation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fgcrypto "github.com/uhyunpark/fillguard/pkg/crypto"
	"github.com/uhyunpark/fillguard/pkg/order"
)

func amounts(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestBatchShape(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.sign(t, e.order(200, 100))
	other := e.order(200, 100)
	other.ExchangeContractAddress = common.HexToAddress("0x9000000000000000000000000000000000000009")
	b := e.sign(t, other)

	_, err := e.v.ValidateBatchFill(ctx, nil, nil, takerAddr)
	assert.ErrorIs(t, err, ErrBatchOrdersMustHaveAtLeastOneItem)
	_, err = e.v.ValidateBatchCancel(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrBatchOrdersMustHaveAtLeastOneItem)
	_, err = e.v.ValidateFillUpTo(ctx, nil, big.NewInt(1), takerAddr)
	assert.ErrorIs(t, err, ErrBatchOrdersMustHaveAtLeastOneItem)

	_, err = e.v.ValidateBatchFillOrKill(ctx, []*order.SignedOrder{a, b}, amounts(1, 1), takerAddr)
	assert.ErrorIs(t, err, ErrBatchOrdersMustHaveSameExchangeAddress)
	_, err = e.v.ValidateBatchCancel(ctx, []*order.Order{&a.Order, &b.Order}, amounts(1, 1))
	assert.ErrorIs(t, err, ErrBatchOrdersMustHaveSameExchangeAddress)

	_, err = e.v.ValidateBatchFill(ctx, []*order.SignedOrder{a}, amounts(1, 2), takerAddr)
	require.Error(t, err)
	assert.False(t, isKind(err))
}

func TestBatchCancelMakerUniformity(t *testing.T) {
	e := newEnv(t)
	otherMaker, err := fgcrypto.GenerateKey()
	require.NoError(t, err)

	a := e.order(200, 100)
	b := e.order(1, 1)
	b.Maker = otherMaker.Address()

	for _, amts := range [][]*big.Int{amounts(1, 1), amounts(0, 0), amounts(100, 5)} {
		_, err := e.v.ValidateBatchCancel(context.Background(), []*order.Order{a, b}, amts)
		assert.ErrorIs(t, err, ErrMultipleMakersInSingleCancelBatchDisallowed)
	}
	assert.Zero(t, e.fill.calls)
}

func TestBatchCancelResults(t *testing.T) {
	e := newEnv(t)
	a := e.order(200, 100)
	b := e.order(200, 100)
	b.Salt = big.NewInt(100)
	e.fill.unavailable[order.MustHashOrder(b)] = big.NewInt(100)

	results, err := e.v.ValidateBatchCancel(context.Background(), []*order.Order{a, b}, amounts(40, 40))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(40), results[0].Amount.Int64())
	assert.ErrorIs(t, results[1].Err, ErrOrderAlreadyCancelledOrFilled)
	assert.Equal(t, order.MustHashOrder(b), results[1].OrderHash)
	assert.ErrorIs(t, results.FirstError(), ErrOrderAlreadyCancelledOrFilled)
	assert.Len(t, results.Accepted(), 1)
}

func TestBatchFillPerOrderResults(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	good := e.sign(t, e.order(200, 100))
	expiredOrder := e.order(200, 100)
	expiredOrder.ExpirationUnixTimestampSec = big.NewInt(now.Add(-time.Minute).Unix())
	expired := e.sign(t, expiredOrder)

	results, err := e.v.ValidateBatchFill(context.Background(), []*order.SignedOrder{good, expired}, amounts(30, 30), takerAddr)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrOrderFillExpired)
	assert.Nil(t, results[1].Amount)
	assert.Equal(t, int64(30), results.Total().Int64())

	results, err = e.v.ValidateBatchFillOrKill(context.Background(), []*order.SignedOrder{good}, amounts(101), takerAddr)
	require.NoError(t, err)
	assert.ErrorIs(t, results.FirstError(), ErrInsufficientRemainingFillAmount)
	assert.Empty(t, results.Accepted())
}

func TestFillUpTo(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	first := e.sign(t, e.order(200, 100))
	second := e.order(200, 100)
	second.Salt = big.NewInt(7)
	third := e.order(200, 100)
	third.Salt = big.NewInt(8)
	orders := []*order.SignedOrder{first, e.sign(t, second), e.sign(t, third)}

	results, err := e.v.ValidateFillUpTo(context.Background(), orders, big.NewInt(150), takerAddr)
	require.NoError(t, err)
	require.Len(t, results, 2, "the third order is not needed")
	assert.Equal(t, int64(100), results[0].Amount.Int64())
	assert.Equal(t, int64(50), results[1].Amount.Int64())
	assert.Equal(t, int64(150), results.Total().Int64())
	assert.NoError(t, results.FirstError())
}

func TestFillUpToSkipsRejectedOrders(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	expiredOrder := e.order(200, 100)
	expiredOrder.ExpirationUnixTimestampSec = big.NewInt(now.Add(-time.Minute).Unix())
	orders := []*order.SignedOrder{e.sign(t, expiredOrder), e.sign(t, e.order(200, 100))}

	results, err := e.v.ValidateFillUpTo(context.Background(), orders, big.NewInt(150), takerAddr)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrOrderFillExpired)
	assert.Equal(t, int64(100), results[1].Amount.Int64())
	assert.Equal(t, int64(100), results.Total().Int64())
}

func TestFillUpToTakerTokens(t *testing.T) {
	e := newEnv(t)
	a := e.order(200, 100)
	b := e.order(200, 100)
	b.TakerTokenAddress = zrxToken

	_, err := e.v.ValidateFillUpTo(context.Background(), []*order.SignedOrder{e.sign(t, a), e.sign(t, b)}, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, ErrMultipleTakerTokensInFillUpToDisallowed)
}
