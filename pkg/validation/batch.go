package validation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// OrderResult is the outcome of validating one order of a batch.
// Amount is set only when Err is nil.
type OrderResult struct {
	OrderHash common.Hash
	Amount    *big.Int
	Err       error
}

// Results holds per-order outcomes in batch order. Whether a failure aborts
// the batch (atomic) or is skipped (partial) is the submitter's decision.
type Results []OrderResult

// FirstError returns the first rejection, or nil if every order passed.
func (r Results) FirstError() error {
	for i, res := range r {
		if res.Err != nil {
			return fmt.Errorf("order %d (%s): %w", i, res.OrderHash.Hex(), res.Err)
		}
	}
	return nil
}

// Accepted returns the orders that passed.
func (r Results) Accepted() Results {
	out := make(Results, 0, len(r))
	for _, res := range r {
		if res.Err == nil {
			out = append(out, res)
		}
	}
	return out
}

// Total sums the amounts of accepted orders.
func (r Results) Total() *big.Int {
	total := new(big.Int)
	for _, res := range r {
		if res.Err == nil && res.Amount != nil {
			total.Add(total, res.Amount)
		}
	}
	return total
}

// ValidateBatchFill validates each fill independently.
func (v *Validator) ValidateBatchFill(ctx context.Context, orders []*order.SignedOrder, amounts []*big.Int, taker common.Address) (Results, error) {
	return v.batchFill(ctx, orders, amounts, taker, false)
}

// ValidateBatchFillOrKill validates each fill with fill-or-kill semantics.
func (v *Validator) ValidateBatchFillOrKill(ctx context.Context, orders []*order.SignedOrder, amounts []*big.Int, taker common.Address) (Results, error) {
	return v.batchFill(ctx, orders, amounts, taker, true)
}

func (v *Validator) batchFill(ctx context.Context, orders []*order.SignedOrder, amounts []*big.Int, taker common.Address, fillOrKill bool) (Results, error) {
	if err := checkSignedShape(orders); err != nil {
		return nil, err
	}
	if len(amounts) != len(orders) {
		return nil, fmt.Errorf("got %d amounts for %d orders", len(amounts), len(orders))
	}

	results := make(Results, len(orders))
	for i, signed := range orders {
		fill, hash, err := v.validateFill(ctx, signed, amounts[i], taker, fillOrKill)
		if err != nil && !isKind(err) {
			return nil, err
		}
		results[i] = OrderResult{OrderHash: hash, Amount: fill, Err: err}
	}
	return results, nil
}

// ValidateBatchCancel validates cancels for orders that must all share one
// maker.
func (v *Validator) ValidateBatchCancel(ctx context.Context, orders []*order.Order, amounts []*big.Int) (Results, error) {
	if len(orders) == 0 {
		return nil, ErrBatchOrdersMustHaveAtLeastOneItem
	}
	if len(amounts) != len(orders) {
		return nil, fmt.Errorf("got %d amounts for %d orders", len(amounts), len(orders))
	}
	for _, o := range orders {
		if o == nil {
			return nil, fmt.Errorf("nil order in batch")
		}
		if o.ExchangeContractAddress != orders[0].ExchangeContractAddress {
			return nil, ErrBatchOrdersMustHaveSameExchangeAddress
		}
		if o.Maker != orders[0].Maker {
			return nil, ErrMultipleMakersInSingleCancelBatchDisallowed
		}
	}

	results := make(Results, len(orders))
	for i, o := range orders {
		amount, hash, err := v.validateCancel(ctx, o, amounts[i])
		if err != nil && !isKind(err) {
			return nil, err
		}
		results[i] = OrderResult{OrderHash: hash, Amount: amount, Err: err}
	}
	return results, nil
}

// ValidateFillUpTo walks orders in sequence, filling each with what is still
// outstanding of total, until total is covered. Rejected orders contribute
// nothing and the walk continues. Orders after the point where total is
// covered are not included in the results.
func (v *Validator) ValidateFillUpTo(ctx context.Context, orders []*order.SignedOrder, total *big.Int, taker common.Address) (Results, error) {
	if err := checkSignedShape(orders); err != nil {
		return nil, err
	}
	if total == nil || total.Sign() < 0 {
		return nil, fmt.Errorf("invalid fill amount: %v", total)
	}
	for _, signed := range orders {
		if signed.TakerTokenAddress != orders[0].TakerTokenAddress {
			return nil, ErrMultipleTakerTokensInFillUpToDisallowed
		}
	}

	outstanding := new(big.Int).Set(total)
	results := make(Results, 0, len(orders))
	for _, signed := range orders {
		if outstanding.Sign() == 0 {
			break
		}
		fill, hash, err := v.validateFill(ctx, signed, outstanding, taker, false)
		if err != nil && !isKind(err) {
			return nil, err
		}
		results = append(results, OrderResult{OrderHash: hash, Amount: fill, Err: err})
		if err == nil {
			outstanding.Sub(outstanding, fill)
		}
	}
	return results, nil
}

func checkSignedShape(orders []*order.SignedOrder) error {
	if len(orders) == 0 {
		return ErrBatchOrdersMustHaveAtLeastOneItem
	}
	for _, signed := range orders {
		if signed == nil {
			return fmt.Errorf("nil order in batch")
		}
		if signed.ExchangeContractAddress != orders[0].ExchangeContractAddress {
			return ErrBatchOrdersMustHaveSameExchangeAddress
		}
	}
	return nil
}

func isKind(err error) bool {
	_, ok := AsExchangeContractErr(err)
	return ok
}
