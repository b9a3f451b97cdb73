package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Tokens reads ERC20 state for any token address.
// It implements validation.BalanceOracle.
type Tokens struct {
	caller ethereum.ContractCaller
}

func NewTokens(caller ethereum.ContractCaller) *Tokens {
	return &Tokens{caller: caller}
}

func (t *Tokens) bind(token common.Address) *boundContract {
	return &boundContract{abi: ERC20ABI, address: token, caller: t.caller}
}

func (t *Tokens) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	return t.bind(token).callBigInt(ctx, block, "balanceOf", owner)
}

func (t *Tokens) Allowance(ctx context.Context, token, owner, spender common.Address, block *big.Int) (*big.Int, error) {
	return t.bind(token).callBigInt(ctx, block, "allowance", owner, spender)
}

func (t *Tokens) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := t.bind(token).call(ctx, nil, "decimals")
	if err != nil {
		return 0, err
	}
	out, ok := values[0].(uint8)
	if !ok {
		return 0, errors.Errorf("decimals: unexpected return type %T", values[0])
	}
	return out, nil
}
