package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/fillguard/pkg/chain"
	"github.com/uhyunpark/fillguard/pkg/numeric"
	"github.com/uhyunpark/fillguard/pkg/order"
)

// fill validates against state and stages the settlement into it.
func (m *Manager) fill(ctx context.Context, state *overlay, signed *order.SignedOrder, amount *big.Int, taker common.Address, fillOrKill bool) (*chain.LogFill, error) {
	v := m.validator(state)
	var fill *big.Int
	if fillOrKill {
		if err := v.ValidateFillOrKill(ctx, signed, amount, taker); err != nil {
			return nil, err
		}
		fill = new(big.Int).Set(amount)
	} else {
		var err error
		if fill, err = v.ValidateFill(ctx, signed, amount, taker); err != nil {
			return nil, err
		}
	}

	o := &signed.Order
	hash, err := order.HashOrder(o)
	if err != nil {
		return nil, err
	}
	makerFill, err := numeric.PartialAmount(fill, o.TakerTokenAmount, o.MakerTokenAmount)
	if err != nil {
		return nil, err
	}
	paidMakerFee, paidTakerFee := new(big.Int), new(big.Int)
	if !order.IsNullAddress(o.FeeRecipient) {
		if paidMakerFee, err = numeric.PartialAmount(fill, o.TakerTokenAmount, o.MakerFee); err != nil {
			return nil, err
		}
		if paidTakerFee, err = numeric.PartialAmount(fill, o.TakerTokenAmount, o.TakerFee); err != nil {
			return nil, err
		}
	}

	proxy := m.cfg.ProxyAddress
	feeToken := m.cfg.FeeTokenAddress
	transfers := []struct {
		token, from, to common.Address
		amount          *big.Int
	}{
		{o.MakerTokenAddress, o.Maker, taker, makerFill},
		{o.TakerTokenAddress, taker, o.Maker, fill},
		{feeToken, o.Maker, o.FeeRecipient, paidMakerFee},
		{feeToken, taker, o.FeeRecipient, paidTakerFee},
	}
	for _, t := range transfers {
		if err := state.transferFrom(t.token, t.from, t.to, proxy, t.amount); err != nil {
			return nil, fmt.Errorf("settle fill %s: %w", hash.Hex(), err)
		}
	}
	if err := state.addFilled(hash, fill); err != nil {
		return nil, err
	}

	return &chain.LogFill{
		Maker:                  o.Maker,
		Taker:                  taker,
		FeeRecipient:           o.FeeRecipient,
		MakerToken:             o.MakerTokenAddress,
		TakerToken:             o.TakerTokenAddress,
		FilledMakerTokenAmount: makerFill,
		FilledTakerTokenAmount: fill,
		PaidMakerFee:           paidMakerFee,
		PaidTakerFee:           paidTakerFee,
		Tokens:                 tokenPair(o),
		OrderHash:              hash,
	}, nil
}

func (m *Manager) cancel(ctx context.Context, state *overlay, o *order.Order, amount *big.Int) (*chain.LogCancel, error) {
	cancelled, err := m.validator(state).ValidateCancel(ctx, o, amount)
	if err != nil {
		return nil, err
	}
	hash, err := order.HashOrder(o)
	if err != nil {
		return nil, err
	}
	if err := state.addCancelled(hash, cancelled); err != nil {
		return nil, err
	}
	makerCancelled, err := numeric.PartialAmount(cancelled, o.TakerTokenAmount, o.MakerTokenAmount)
	if err != nil {
		return nil, err
	}

	return &chain.LogCancel{
		Maker:                     o.Maker,
		FeeRecipient:              o.FeeRecipient,
		MakerToken:                o.MakerTokenAddress,
		TakerToken:                o.TakerTokenAddress,
		CancelledMakerTokenAmount: makerCancelled,
		CancelledTakerTokenAmount: cancelled,
		Tokens:                    tokenPair(o),
		OrderHash:                 hash,
	}, nil
}

// record journals and logs a settlement. Call only after it is committed.
func (m *Manager) record(ev chain.Event) {
	switch e := ev.(type) {
	case *chain.LogFill:
		m.journal.Append(fmt.Sprintf("fill %s taker=%s taker_amount=%s maker_amount=%s",
			e.Hash().Hex(), e.Taker.Hex(), e.FilledTakerTokenAmount, e.FilledMakerTokenAmount))
		m.log.Infow("order_filled",
			"order_hash", e.Hash().Hex(),
			"taker", e.Taker.Hex(),
			"filled_taker_amount", e.FilledTakerTokenAmount.String(),
			"filled_maker_amount", e.FilledMakerTokenAmount.String(),
		)
	case *chain.LogCancel:
		m.journal.Append(fmt.Sprintf("cancel %s taker_amount=%s", e.Hash().Hex(), e.CancelledTakerTokenAmount))
		m.log.Infow("order_cancelled",
			"order_hash", e.Hash().Hex(),
			"cancelled_taker_amount", e.CancelledTakerTokenAmount.String(),
		)
	}
}

// tokenPair is the indexed tokens topic the exchange emits:
// keccak256(makerToken || takerToken).
func tokenPair(o *order.Order) [32]byte {
	return crypto.Keccak256Hash(o.MakerTokenAddress.Bytes(), o.TakerTokenAddress.Bytes())
}
