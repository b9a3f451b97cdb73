package validation

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fgcrypto "github.com/uhyunpark/fillguard/pkg/crypto"
	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/util"
)

var (
	now          = time.Unix(1_700_000_000, 0)
	makerToken   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	takerToken   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	zrxToken     = common.HexToAddress("0x3000000000000000000000000000000000000003")
	proxy        = common.HexToAddress("0x4000000000000000000000000000000000000004")
	exchange     = common.HexToAddress("0x5000000000000000000000000000000000000005")
	feeRecipient = common.HexToAddress("0x6000000000000000000000000000000000000006")
	takerAddr    = common.HexToAddress("0x7000000000000000000000000000000000000007")
)

type fakeFillState struct {
	unavailable map[common.Hash]*big.Int
	err         error
	calls       int
	blocks      []*big.Int
}

func (f *fakeFillState) UnavailableTakerAmount(_ context.Context, hash common.Hash, block *big.Int) (*big.Int, error) {
	f.calls++
	f.blocks = append(f.blocks, block)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.unavailable[hash]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

// recordingVerifier accepts every signature and records the blocks it is
// asked about.
type recordingVerifier struct {
	calls  int
	blocks []*big.Int
}

func (r *recordingVerifier) IsValidSignature(ctx context.Context, hash common.Hash, sig order.ECSignature, signer common.Address) (bool, error) {
	return r.IsValidSignatureAt(ctx, hash, sig, signer, nil)
}

func (r *recordingVerifier) IsValidSignatureAt(_ context.Context, _ common.Hash, _ order.ECSignature, _ common.Address, block *big.Int) (bool, error) {
	r.calls++
	r.blocks = append(r.blocks, block)
	return true, nil
}

type fakeBalances struct {
	balances   map[holding]*big.Int
	allowances map[holding]*big.Int
	reads      map[string]int
	err        error
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{
		balances:   make(map[holding]*big.Int),
		allowances: make(map[holding]*big.Int),
		reads:      make(map[string]int),
	}
}

func (f *fakeBalances) fund(token, owner common.Address, amount int64) {
	f.balances[holding{token, owner}] = big.NewInt(amount)
	f.allowances[holding{token, owner}] = big.NewInt(amount)
}

func (f *fakeBalances) BalanceOf(_ context.Context, token, owner common.Address, _ *big.Int) (*big.Int, error) {
	f.reads["balance:"+token.Hex()+owner.Hex()]++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.balances[holding{token, owner}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBalances) Allowance(_ context.Context, token, owner, spender common.Address, _ *big.Int) (*big.Int, error) {
	f.reads["allowance:"+token.Hex()+owner.Hex()]++
	if f.err != nil {
		return nil, f.err
	}
	if spender != proxy {
		return big.NewInt(0), nil
	}
	if v, ok := f.allowances[holding{token, owner}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBalances) totalReads() int {
	n := 0
	for _, c := range f.reads {
		n += c
	}
	return n
}

type env struct {
	signer   *fgcrypto.Signer
	fill     *fakeFillState
	balances *fakeBalances
	v        *Validator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	e := &env{
		signer:   signer,
		fill:     &fakeFillState{unavailable: make(map[common.Hash]*big.Int)},
		balances: newFakeBalances(),
	}
	e.v = NewValidator(Config{
		Verifier:        fgcrypto.NewLocalVerifier(),
		FillState:       e.fill,
		Balances:        e.balances,
		Clock:           util.FixedClock{T: now},
		ProxyAddress:    proxy,
		FeeTokenAddress: zrxToken,
	})
	return e
}

func (e *env) order(makerAmount, takerAmount int64) *order.Order {
	return &order.Order{
		Maker:                      e.signer.Address(),
		MakerFee:                   big.NewInt(0),
		TakerFee:                   big.NewInt(0),
		MakerTokenAmount:           big.NewInt(makerAmount),
		TakerTokenAmount:           big.NewInt(takerAmount),
		MakerTokenAddress:          makerToken,
		TakerTokenAddress:          takerToken,
		Salt:                       big.NewInt(99),
		ExchangeContractAddress:    exchange,
		ExpirationUnixTimestampSec: big.NewInt(now.Add(time.Hour).Unix()),
	}
}

func (e *env) sign(t *testing.T, o *order.Order) *order.SignedOrder {
	t.Helper()
	signed, err := e.signer.SignOrder(o)
	require.NoError(t, err)
	return signed
}

func (e *env) fundAll(amount int64) {
	for _, tok := range []common.Address{makerToken, takerToken, zrxToken} {
		e.balances.fund(tok, e.signer.Address(), amount)
		e.balances.fund(tok, takerAddr, amount)
	}
}

func TestFillScenario(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	signed := e.sign(t, e.order(200, 100))
	ctx := context.Background()

	fill, err := e.v.ValidateFill(ctx, signed, big.NewInt(50), takerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(50), fill.Int64())

	e.fill.unavailable[order.MustHashOrder(&signed.Order)] = big.NewInt(50)

	fill, err = e.v.ValidateFill(ctx, signed, big.NewInt(60), takerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(50), fill.Int64(), "fill should be capped at the remaining amount")

	err = e.v.ValidateFillOrKill(ctx, signed, big.NewInt(60), takerAddr)
	assert.ErrorIs(t, err, ErrInsufficientRemainingFillAmount)

	require.NoError(t, e.v.ValidateFillOrKill(ctx, signed, big.NewInt(50), takerAddr))
}

func TestFillMakerPayoutRequirement(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	e.balances.fund(makerToken, e.signer.Address(), 100)
	signed := e.sign(t, e.order(200, 100))

	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(50), takerAddr)
	require.NoError(t, err, "maker payout of exactly 100 should be covered")

	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(51), takerAddr)
	assert.ErrorIs(t, err, ErrInsufficientMakerBalance)
}

func TestSignatureCheckedFirst(t *testing.T) {
	e := newEnv(t)
	o := e.order(200, 100)
	o.ExpirationUnixTimestampSec = big.NewInt(now.Add(-time.Hour).Unix())
	signed := e.sign(t, o)

	other, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	signed.Maker = other.Address()

	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, e.fill.calls)
	assert.Zero(t, e.balances.totalReads())
}

func TestNullMakerRejected(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	verifier := &recordingVerifier{}
	e.v.cfg.Verifier = verifier

	o := e.order(200, 100)
	o.Maker = order.NullAddress
	signed := &order.SignedOrder{
		Order:       *o,
		ECSignature: order.ECSignature{V: 27},
	}

	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	err = e.v.ValidateFillOrKill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, verifier.calls, "verifier must not be consulted for a null maker")
	assert.Zero(t, e.fill.calls)
}

func TestExpiredBeforeStateReads(t *testing.T) {
	e := newEnv(t)
	o := e.order(200, 100)
	o.ExpirationUnixTimestampSec = big.NewInt(now.Unix() - 1)
	signed := e.sign(t, o)

	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, ErrOrderFillExpired)
	assert.Zero(t, e.fill.calls)
	assert.Zero(t, e.balances.totalReads())
}

func TestExpirationAtNowIsStillFillable(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	o := e.order(200, 100)
	o.ExpirationUnixTimestampSec = big.NewInt(now.Unix())

	_, err := e.v.ValidateFill(context.Background(), e.sign(t, o), big.NewInt(10), takerAddr)
	assert.NoError(t, err)
}

func TestRestrictedTaker(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	o := e.order(200, 100)
	o.Taker = common.HexToAddress("0x8000000000000000000000000000000000000008")
	signed := e.sign(t, o)

	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, ErrTransactionSenderIsNotFillOrderTaker)

	e.fundAll(1_000)
	e.balances.fund(takerToken, o.Taker, 1_000)
	e.balances.fund(zrxToken, o.Taker, 1_000)
	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(10), o.Taker)
	assert.NoError(t, err)
}

func TestRemainingAmountZero(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	signed := e.sign(t, e.order(200, 100))
	hash := order.MustHashOrder(&signed.Order)

	for _, unavailable := range []int64{100, 150} {
		e.fill.unavailable[hash] = big.NewInt(unavailable)
		_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
		assert.ErrorIs(t, err, ErrOrderRemainingFillAmountZero, "unavailable=%d", unavailable)
		err = e.v.ValidateFillOrKill(context.Background(), signed, big.NewInt(10), takerAddr)
		assert.ErrorIs(t, err, ErrOrderRemainingFillAmountZero, "unavailable=%d", unavailable)
	}
	assert.Zero(t, e.balances.totalReads())
}

func TestFillAmountZero(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	signed := e.sign(t, e.order(200, 100))

	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(0), takerAddr)
	assert.ErrorIs(t, err, ErrOrderFillAmountZero)
	err = e.v.ValidateFillOrKill(context.Background(), signed, big.NewInt(0), takerAddr)
	assert.ErrorIs(t, err, ErrOrderFillAmountZero)
}

func TestFillRoundingError(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)

	_, err := e.v.ValidateFill(context.Background(), e.sign(t, e.order(1, 3)), big.NewInt(1), takerAddr)
	assert.ErrorIs(t, err, ErrOrderFillRoundingError)
	assert.Zero(t, e.balances.totalReads())

	_, err = e.v.ValidateFill(context.Background(), e.sign(t, e.order(1000, 1000)), big.NewInt(999), takerAddr)
	assert.NoError(t, err)
}

func TestMalformedAmounts(t *testing.T) {
	e := newEnv(t)
	signed := e.sign(t, e.order(200, 100))

	_, err := e.v.ValidateFill(context.Background(), signed, nil, takerAddr)
	require.Error(t, err)
	assert.False(t, isKind(err))

	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(-1), takerAddr)
	require.Error(t, err)
	assert.False(t, isKind(err))

	_, err = e.v.ValidateFill(context.Background(), nil, big.NewInt(1), takerAddr)
	assert.Error(t, err)
}

func TestInsufficientFunds(t *testing.T) {
	// fill 50 of 100/200 with fees of 10 each: maker pays 100 + 5 fee,
	// taker pays 50 + 5 fee.
	tests := []struct {
		name      string
		starve    func(e *env)
		wantError ExchangeContractErr
	}{
		{"maker balance", func(e *env) { e.balances.balances[holding{makerToken, e.signer.Address()}] = big.NewInt(99) }, ErrInsufficientMakerBalance},
		{"maker allowance", func(e *env) { e.balances.allowances[holding{makerToken, e.signer.Address()}] = big.NewInt(99) }, ErrInsufficientMakerAllowance},
		{"maker fee balance", func(e *env) { e.balances.balances[holding{zrxToken, e.signer.Address()}] = big.NewInt(4) }, ErrInsufficientMakerFeeBalance},
		{"maker fee allowance", func(e *env) { e.balances.allowances[holding{zrxToken, e.signer.Address()}] = big.NewInt(4) }, ErrInsufficientMakerFeeAllowance},
		{"taker balance", func(e *env) { e.balances.balances[holding{takerToken, takerAddr}] = big.NewInt(49) }, ErrInsufficientTakerBalance},
		{"taker allowance", func(e *env) { e.balances.allowances[holding{takerToken, takerAddr}] = big.NewInt(49) }, ErrInsufficientTakerAllowance},
		{"taker fee balance", func(e *env) { e.balances.balances[holding{zrxToken, takerAddr}] = big.NewInt(4) }, ErrInsufficientTakerFeeBalance},
		{"taker fee allowance", func(e *env) { e.balances.allowances[holding{zrxToken, takerAddr}] = big.NewInt(4) }, ErrInsufficientTakerFeeAllowance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.fundAll(1_000)
			o := e.order(200, 100)
			o.MakerFee = big.NewInt(10)
			o.TakerFee = big.NewInt(10)
			o.FeeRecipient = feeRecipient
			signed := e.sign(t, o)

			_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(50), takerAddr)
			require.NoError(t, err)

			tt.starve(e)
			_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(50), takerAddr)
			assert.ErrorIs(t, err, tt.wantError)
			kind, ok := AsExchangeContractErr(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantError, kind)
		})
	}
}

func TestFeesNeedFeeRecipient(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	e.balances.fund(zrxToken, e.signer.Address(), 0)
	e.balances.fund(zrxToken, takerAddr, 0)
	o := e.order(200, 100)
	o.MakerFee = big.NewInt(10)
	o.TakerFee = big.NewInt(10)

	_, err := e.v.ValidateFill(context.Background(), e.sign(t, o), big.NewInt(50), takerAddr)
	assert.NoError(t, err)
}

func TestMakerTokenIsFeeToken(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	e.balances.fund(zrxToken, e.signer.Address(), 104)
	o := e.order(200, 100)
	o.MakerTokenAddress = zrxToken
	o.MakerFee = big.NewInt(10)
	o.FeeRecipient = feeRecipient
	signed := e.sign(t, o)

	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(50), takerAddr)
	assert.ErrorIs(t, err, ErrInsufficientMakerFeeBalance)
	assert.Equal(t, 1, e.balances.reads["balance:"+zrxToken.Hex()+e.signer.Address().Hex()],
		"a balance shared by base and fee transfers should be read once")

	e.balances.fund(zrxToken, e.signer.Address(), 105)
	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(50), takerAddr)
	assert.NoError(t, err)
}

func TestOracleErrorsPropagate(t *testing.T) {
	boom := errors.New("rpc unavailable")

	e := newEnv(t)
	e.fill.err = boom
	signed := e.sign(t, e.order(200, 100))
	_, err := e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, boom)
	assert.False(t, isKind(err))
	assert.Equal(t, 1, e.fill.calls, "no retries")

	e = newEnv(t)
	e.balances.err = boom
	signed = e.sign(t, e.order(200, 100))
	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	assert.ErrorIs(t, err, boom)
}

func TestWithBlock(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	signed := e.sign(t, e.order(200, 100))

	pinned := e.v.WithBlock(big.NewInt(12345))
	_, err := pinned.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	require.NoError(t, err)
	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	require.NoError(t, err)

	require.Len(t, e.fill.blocks, 2)
	assert.Equal(t, int64(12345), e.fill.blocks[0].Int64())
	assert.Nil(t, e.fill.blocks[1])
}

func TestWithBlockPinsSignatureCheck(t *testing.T) {
	e := newEnv(t)
	e.fundAll(1_000)
	verifier := &recordingVerifier{}
	e.v.cfg.Verifier = verifier
	signed := e.sign(t, e.order(200, 100))

	_, err := e.v.WithBlock(big.NewInt(777)).ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	require.NoError(t, err)
	_, err = e.v.ValidateFill(context.Background(), signed, big.NewInt(10), takerAddr)
	require.NoError(t, err)

	require.Len(t, verifier.blocks, 2)
	assert.Equal(t, int64(777), verifier.blocks[0].Int64())
	assert.Nil(t, verifier.blocks[1])
}

func TestValidateCancel(t *testing.T) {
	e := newEnv(t)
	o := e.order(200, 100)
	hash := order.MustHashOrder(o)
	ctx := context.Background()

	amount, err := e.v.ValidateCancel(ctx, o, big.NewInt(150))
	require.NoError(t, err)
	assert.Equal(t, int64(100), amount.Int64())

	e.fill.unavailable[hash] = big.NewInt(70)
	amount, err = e.v.ValidateCancel(ctx, o, big.NewInt(20))
	require.NoError(t, err)
	assert.Equal(t, int64(20), amount.Int64())

	_, err = e.v.ValidateCancel(ctx, o, big.NewInt(0))
	assert.ErrorIs(t, err, ErrOrderCancelAmountZero)

	e.fill.unavailable[hash] = big.NewInt(100)
	_, err = e.v.ValidateCancel(ctx, o, big.NewInt(1))
	assert.ErrorIs(t, err, ErrOrderAlreadyCancelledOrFilled)

	expired := e.order(200, 100)
	expired.ExpirationUnixTimestampSec = big.NewInt(now.Unix() - 1)
	calls := e.fill.calls
	_, err = e.v.ValidateCancel(ctx, expired, big.NewInt(0))
	assert.ErrorIs(t, err, ErrOrderCancelExpired)
	assert.Equal(t, calls, e.fill.calls)
}
