package validation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/numeric"
	"github.com/uhyunpark/fillguard/pkg/order"
)

type holding struct {
	token common.Address
	owner common.Address
}

// snapshot memoizes oracle reads so a single validation never asks for the
// same balance or allowance twice.
type snapshot struct {
	v          *Validator
	balances   map[holding]*big.Int
	allowances map[holding]*big.Int
}

func (v *Validator) newSnapshot() *snapshot {
	return &snapshot{
		v:          v,
		balances:   make(map[holding]*big.Int),
		allowances: make(map[holding]*big.Int),
	}
}

func (s *snapshot) balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	key := holding{token, owner}
	if b, ok := s.balances[key]; ok {
		return b, nil
	}
	b, err := s.v.cfg.Balances.BalanceOf(ctx, token, owner, s.v.block)
	if err != nil {
		return nil, err
	}
	s.balances[key] = b
	return b, nil
}

func (s *snapshot) allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	key := holding{token, owner}
	if a, ok := s.allowances[key]; ok {
		return a, nil
	}
	a, err := s.v.cfg.Balances.Allowance(ctx, token, owner, s.v.cfg.ProxyAddress, s.v.block)
	if err != nil {
		return nil, err
	}
	s.allowances[key] = a
	return a, nil
}

// transfer describes one token movement a fill requires from owner.
type transfer struct {
	token        common.Address
	owner        common.Address
	amount       *big.Int
	balanceErr   ExchangeContractErr
	allowanceErr ExchangeContractErr
}

// checkBalances verifies that maker and taker can fund a fill of fill taker
// units, including proportional fees. When a side's base token is the fee
// token, the fee requirement includes the base amount.
func (v *Validator) checkBalances(ctx context.Context, o *order.Order, fill *big.Int, taker common.Address) error {
	transfers, err := v.fillTransfers(o, fill, taker)
	if err != nil {
		return err
	}
	snap := v.newSnapshot()
	for _, t := range transfers {
		bal, err := snap.balance(ctx, t.token, t.owner)
		if err != nil {
			return err
		}
		if bal.Cmp(t.amount) < 0 {
			return t.balanceErr
		}
		allowance, err := snap.allowance(ctx, t.token, t.owner)
		if err != nil {
			return err
		}
		if allowance.Cmp(t.amount) < 0 {
			return t.allowanceErr
		}
	}
	return nil
}

func (v *Validator) fillTransfers(o *order.Order, fill *big.Int, taker common.Address) ([]transfer, error) {
	makerFill, err := numeric.PartialAmount(fill, o.TakerTokenAmount, o.MakerTokenAmount)
	if err != nil {
		return nil, err
	}
	feeToken := v.cfg.FeeTokenAddress

	transfers := []transfer{{
		token:        o.MakerTokenAddress,
		owner:        o.Maker,
		amount:       makerFill,
		balanceErr:   ErrInsufficientMakerBalance,
		allowanceErr: ErrInsufficientMakerAllowance,
	}}
	if chargesFee(o, o.MakerFee) {
		paid, err := numeric.PartialAmount(fill, o.TakerTokenAmount, o.MakerFee)
		if err != nil {
			return nil, err
		}
		if o.MakerTokenAddress == feeToken {
			paid.Add(paid, makerFill)
		}
		transfers = append(transfers, transfer{
			token:        feeToken,
			owner:        o.Maker,
			amount:       paid,
			balanceErr:   ErrInsufficientMakerFeeBalance,
			allowanceErr: ErrInsufficientMakerFeeAllowance,
		})
	}

	transfers = append(transfers, transfer{
		token:        o.TakerTokenAddress,
		owner:        taker,
		amount:       new(big.Int).Set(fill),
		balanceErr:   ErrInsufficientTakerBalance,
		allowanceErr: ErrInsufficientTakerAllowance,
	})
	if chargesFee(o, o.TakerFee) {
		paid, err := numeric.PartialAmount(fill, o.TakerTokenAmount, o.TakerFee)
		if err != nil {
			return nil, err
		}
		if o.TakerTokenAddress == feeToken {
			paid.Add(paid, fill)
		}
		transfers = append(transfers, transfer{
			token:        feeToken,
			owner:        taker,
			amount:       paid,
			balanceErr:   ErrInsufficientTakerFeeBalance,
			allowanceErr: ErrInsufficientTakerFeeAllowance,
		})
	}
	return transfers, nil
}
