package validation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/pkg/numeric"
	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/util"
)

// Config wires the validator to its collaborators.
type Config struct {
	Verifier  SignatureVerifier
	FillState FillStateOracle
	Balances  BalanceOracle
	Clock     util.Clock // nil uses wall time

	// ProxyAddress is the spender whose allowance the exchange draws on.
	ProxyAddress common.Address
	// FeeTokenAddress is the token fees are paid in (ZRX).
	FeeTokenAddress common.Address

	Logger *zap.SugaredLogger
}

// Validator reproduces the exchange contract's acceptance rules for fills
// and cancels. It holds no mutable state; every call reads its own snapshot
// from the oracles and is safe for concurrent use.
type Validator struct {
	cfg   Config
	block *big.Int
	log   *zap.SugaredLogger
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg, log: util.OrNop(cfg.Logger)}
}

// WithBlock returns a validator whose oracle reads are pinned to block.
// nil means latest.
func (v *Validator) WithBlock(block *big.Int) *Validator {
	cp := *v
	if block != nil {
		cp.block = new(big.Int).Set(block)
	} else {
		cp.block = nil
	}
	return &cp
}

// ValidateFill checks that filling up to requested taker units of signed by
// taker would succeed. It returns the amount that would actually fill, which
// is capped at what remains of the order.
func (v *Validator) ValidateFill(ctx context.Context, signed *order.SignedOrder, requested *big.Int, taker common.Address) (*big.Int, error) {
	fill, _, err := v.validateFill(ctx, signed, requested, taker, false)
	return fill, err
}

// ValidateFillOrKill is ValidateFill without the cap: the whole requested
// amount must still be available.
func (v *Validator) ValidateFillOrKill(ctx context.Context, signed *order.SignedOrder, amount *big.Int, taker common.Address) error {
	_, _, err := v.validateFill(ctx, signed, amount, taker, true)
	return err
}

// ValidateCancel checks that the maker can cancel cancelAmount taker units of
// o. It returns the amount that would actually be cancelled.
func (v *Validator) ValidateCancel(ctx context.Context, o *order.Order, cancelAmount *big.Int) (*big.Int, error) {
	amount, _, err := v.validateCancel(ctx, o, cancelAmount)
	return amount, err
}

func (v *Validator) validateFill(ctx context.Context, signed *order.SignedOrder, requested *big.Int, taker common.Address, fillOrKill bool) (*big.Int, common.Hash, error) {
	if signed == nil {
		return nil, common.Hash{}, fmt.Errorf("nil signed order")
	}
	if requested == nil || requested.Sign() < 0 {
		return nil, common.Hash{}, fmt.Errorf("invalid fill amount: %v", requested)
	}
	o := &signed.Order
	hash, err := order.HashOrder(o)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to hash order: %w", err)
	}

	if err := v.checkSignature(ctx, hash, signed); err != nil {
		return nil, hash, err
	}
	if v.expired(o) {
		return nil, hash, v.reject("fill", hash, ErrOrderFillExpired)
	}
	if !order.IsNullAddress(o.Taker) && o.Taker != taker {
		return nil, hash, v.reject("fill", hash, ErrTransactionSenderIsNotFillOrderTaker)
	}

	remaining, err := v.remaining(ctx, hash, o)
	if err != nil {
		return nil, hash, err
	}
	if remaining.Sign() <= 0 {
		return nil, hash, v.reject("fill", hash, ErrOrderRemainingFillAmountZero)
	}

	var fill *big.Int
	if fillOrKill {
		if remaining.Cmp(requested) < 0 {
			return nil, hash, v.reject("fill", hash, ErrInsufficientRemainingFillAmount)
		}
		fill = new(big.Int).Set(requested)
	} else {
		fill = numeric.Min(requested, remaining)
	}
	if fill.Sign() == 0 {
		return nil, hash, v.reject("fill", hash, ErrOrderFillAmountZero)
	}

	rounding, err := numeric.IsRoundingError(fill, o.TakerTokenAmount, o.MakerTokenAmount)
	if err != nil {
		return nil, hash, err
	}
	if rounding {
		return nil, hash, v.reject("fill", hash, ErrOrderFillRoundingError)
	}

	if err := v.checkBalances(ctx, o, fill, taker); err != nil {
		if kind, ok := AsExchangeContractErr(err); ok {
			return nil, hash, v.reject("fill", hash, kind)
		}
		return nil, hash, err
	}

	v.log.Debugw("fill_validated",
		"order_hash", hash.Hex(),
		"fill_taker_amount", fill.String(),
		"fill_or_kill", fillOrKill,
	)
	return fill, hash, nil
}

func (v *Validator) validateCancel(ctx context.Context, o *order.Order, cancelAmount *big.Int) (*big.Int, common.Hash, error) {
	if o == nil {
		return nil, common.Hash{}, fmt.Errorf("nil order")
	}
	if cancelAmount == nil || cancelAmount.Sign() < 0 {
		return nil, common.Hash{}, fmt.Errorf("invalid cancel amount: %v", cancelAmount)
	}
	hash, err := order.HashOrder(o)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to hash order: %w", err)
	}

	if v.expired(o) {
		return nil, hash, v.reject("cancel", hash, ErrOrderCancelExpired)
	}
	if cancelAmount.Sign() == 0 {
		return nil, hash, v.reject("cancel", hash, ErrOrderCancelAmountZero)
	}
	remaining, err := v.remaining(ctx, hash, o)
	if err != nil {
		return nil, hash, err
	}
	if remaining.Sign() <= 0 {
		return nil, hash, v.reject("cancel", hash, ErrOrderAlreadyCancelledOrFilled)
	}

	amount := numeric.Min(cancelAmount, remaining)
	v.log.Debugw("cancel_validated",
		"order_hash", hash.Hex(),
		"cancel_taker_amount", amount.String(),
	)
	return amount, hash, nil
}

// checkSignature rejects a null maker outright: ecrecover returns the zero
// address for malformed signatures, so any junk would verify against it.
func (v *Validator) checkSignature(ctx context.Context, hash common.Hash, signed *order.SignedOrder) error {
	if order.IsNullAddress(signed.Maker) {
		return v.reject("fill", hash, ErrInvalidSignature)
	}
	var (
		ok  bool
		err error
	)
	if bv, pinned := v.cfg.Verifier.(BlockSignatureVerifier); pinned {
		ok, err = bv.IsValidSignatureAt(ctx, hash, signed.ECSignature, signed.Maker, v.block)
	} else {
		ok, err = v.cfg.Verifier.IsValidSignature(ctx, hash, signed.ECSignature, signed.Maker)
	}
	if err != nil {
		return err
	}
	if !ok {
		return v.reject("fill", hash, ErrInvalidSignature)
	}
	return nil
}

func (v *Validator) expired(o *order.Order) bool {
	if o.ExpirationUnixTimestampSec == nil {
		return true
	}
	now := big.NewInt(util.UnixSec(v.cfg.Clock))
	return o.ExpirationUnixTimestampSec.Cmp(now) < 0
}

// remaining returns takerTokenAmount minus what is already filled or
// cancelled. It may be negative if the oracle reports more than the order.
func (v *Validator) remaining(ctx context.Context, hash common.Hash, o *order.Order) (*big.Int, error) {
	unavailable, err := v.cfg.FillState.UnavailableTakerAmount(ctx, hash, v.block)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(o.TakerTokenAmount, unavailable), nil
}

func (v *Validator) reject(op string, hash common.Hash, kind ExchangeContractErr) error {
	v.log.Debugw(op+"_rejected",
		"order_hash", hash.Hex(),
		"reason", string(kind),
	)
	return kind
}

// chargesFee mirrors the contract: fees move only with a fee recipient set.
func chargesFee(o *order.Order, fee *big.Int) bool {
	return fee != nil && fee.Sign() > 0 && !order.IsNullAddress(o.FeeRecipient)
}
