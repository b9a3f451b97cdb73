package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/uhyunpark/fillguard/pkg/numeric"
	"github.com/uhyunpark/fillguard/pkg/storage"
)

type holding struct {
	token, owner common.Address
}

type grant struct {
	token, owner, spender common.Address
}

// overlay stages state changes on top of the store. Reads see staged
// values first, so a batch of settlements can validate against its own
// earlier effects before anything is committed.
type overlay struct {
	store      *storage.Store
	balances   map[holding]*big.Int
	allowances map[grant]*big.Int
	filled     map[common.Hash]*big.Int
	cancelled  map[common.Hash]*big.Int
}

func newOverlay(store *storage.Store) *overlay {
	return &overlay{
		store:      store,
		balances:   make(map[holding]*big.Int),
		allowances: make(map[grant]*big.Int),
		filled:     make(map[common.Hash]*big.Int),
		cancelled:  make(map[common.Hash]*big.Int),
	}
}

// fork copies the staged changes so a failed step can be discarded.
func (o *overlay) fork() *overlay {
	cp := newOverlay(o.store)
	for k, v := range o.balances {
		cp.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range o.allowances {
		cp.allowances[k] = new(big.Int).Set(v)
	}
	for k, v := range o.filled {
		cp.filled[k] = new(big.Int).Set(v)
	}
	for k, v := range o.cancelled {
		cp.cancelled[k] = new(big.Int).Set(v)
	}
	return cp
}

func (o *overlay) balance(token, owner common.Address) (*big.Int, error) {
	if v, ok := o.balances[holding{token, owner}]; ok {
		return new(big.Int).Set(v), nil
	}
	return o.store.Balance(token, owner)
}

func (o *overlay) allowance(token, owner, spender common.Address) (*big.Int, error) {
	if v, ok := o.allowances[grant{token, owner, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return o.store.Allowance(token, owner, spender)
}

func (o *overlay) filledAmount(hash common.Hash) (*big.Int, error) {
	if v, ok := o.filled[hash]; ok {
		return new(big.Int).Set(v), nil
	}
	return o.store.Filled(hash)
}

func (o *overlay) cancelledAmount(hash common.Hash) (*big.Int, error) {
	if v, ok := o.cancelled[hash]; ok {
		return new(big.Int).Set(v), nil
	}
	return o.store.Cancelled(hash)
}

// The ledger has no history, so block pins are ignored.

func (o *overlay) UnavailableTakerAmount(_ context.Context, hash common.Hash, _ *big.Int) (*big.Int, error) {
	filled, err := o.filledAmount(hash)
	if err != nil {
		return nil, err
	}
	cancelled, err := o.cancelledAmount(hash)
	if err != nil {
		return nil, err
	}
	return filled.Add(filled, cancelled), nil
}

func (o *overlay) BalanceOf(_ context.Context, token, owner common.Address, _ *big.Int) (*big.Int, error) {
	return o.balance(token, owner)
}

func (o *overlay) Allowance(_ context.Context, token, owner, spender common.Address, _ *big.Int) (*big.Int, error) {
	return o.allowance(token, owner, spender)
}

func (o *overlay) credit(token, owner common.Address, amount *big.Int) error {
	bal, err := o.balance(token, owner)
	if err != nil {
		return err
	}
	next := bal.Add(bal, amount)
	if !numeric.FitsUint256(next) {
		return errors.Errorf("balance of %s in %s overflows", owner.Hex(), token.Hex())
	}
	o.balances[holding{token, owner}] = next
	return nil
}

func (o *overlay) approve(token, owner, spender common.Address, amount *big.Int) {
	o.allowances[grant{token, owner, spender}] = new(big.Int).Set(amount)
}

// transferFrom moves amount of token from→to on behalf of spender, the way
// an unlimited-allowance ERC20 does: a MaxUint256 allowance never shrinks.
func (o *overlay) transferFrom(token, from, to, spender common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := o.balance(token, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return errors.Errorf("transfer of %s %s from %s exceeds balance %s", amount, token.Hex(), from.Hex(), bal)
	}
	allowance, err := o.allowance(token, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return errors.Errorf("transfer of %s %s from %s exceeds allowance %s", amount, token.Hex(), from.Hex(), allowance)
	}

	o.balances[holding{token, from}] = bal.Sub(bal, amount)
	if allowance.Cmp(numeric.UnlimitedAllowance) != 0 {
		o.allowances[grant{token, from, spender}] = allowance.Sub(allowance, amount)
	}
	return o.credit(token, to, amount)
}

func (o *overlay) addFilled(hash common.Hash, amount *big.Int) error {
	filled, err := o.filledAmount(hash)
	if err != nil {
		return err
	}
	o.filled[hash] = filled.Add(filled, amount)
	return nil
}

func (o *overlay) addCancelled(hash common.Hash, amount *big.Int) error {
	cancelled, err := o.cancelledAmount(hash)
	if err != nil {
		return err
	}
	o.cancelled[hash] = cancelled.Add(cancelled, amount)
	return nil
}

// commit writes every staged change in one atomic batch.
func (o *overlay) commit() error {
	bw := o.store.NewBatch()
	defer bw.Close()

	for k, v := range o.balances {
		if err := bw.SetBalance(k.token, k.owner, v); err != nil {
			return err
		}
	}
	for k, v := range o.allowances {
		if err := bw.SetAllowance(k.token, k.owner, k.spender, v); err != nil {
			return err
		}
	}
	for k, v := range o.filled {
		if err := bw.SetFilled(k, v); err != nil {
			return err
		}
	}
	for k, v := range o.cancelled {
		if err := bw.SetCancelled(k, v); err != nil {
			return err
		}
	}
	return bw.Commit()
}
