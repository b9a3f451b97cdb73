package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// Exchange reads order state from a deployed exchange contract.
// It implements validation.FillStateOracle.
type Exchange struct {
	contract boundContract
}

func NewExchange(address common.Address, caller ethereum.ContractCaller) *Exchange {
	return &Exchange{contract: boundContract{abi: ExchangeABI, address: address, caller: caller}}
}

func (e *Exchange) Address() common.Address { return e.contract.address }

// UnavailableTakerAmount returns filled plus cancelled taker units.
func (e *Exchange) UnavailableTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error) {
	return e.contract.callBigInt(ctx, block, "getUnavailableTakerTokenAmount", [32]byte(orderHash))
}

func (e *Exchange) FilledTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error) {
	return e.contract.callBigInt(ctx, block, "filled", [32]byte(orderHash))
}

func (e *Exchange) CancelledTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error) {
	return e.contract.callBigInt(ctx, block, "cancelled", [32]byte(orderHash))
}

// OrderHash asks the contract to hash o. Useful to cross-check
// order.HashOrder against a deployment.
func (e *Exchange) OrderHash(ctx context.Context, o *order.Order) (common.Hash, error) {
	values, err := e.contract.call(ctx, nil, "getOrderHash", o.OrderAddresses(), o.OrderValues())
	if err != nil {
		return common.Hash{}, err
	}
	out, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, errors.Errorf("getOrderHash: unexpected return type %T", values[0])
	}
	return common.Hash(out), nil
}

func (e *Exchange) IsRoundingError(ctx context.Context, numerator, denominator, target *big.Int) (bool, error) {
	return e.contract.callBool(ctx, nil, "isRoundingError", numerator, denominator, target)
}

func (e *Exchange) PartialAmount(ctx context.Context, numerator, denominator, target *big.Int) (*big.Int, error) {
	return e.contract.callBigInt(ctx, nil, "getPartialAmount", numerator, denominator, target)
}

// TokenTransferProxy returns the spender that fills draw allowances from.
func (e *Exchange) TokenTransferProxy(ctx context.Context) (common.Address, error) {
	return e.contract.callAddress(ctx, "TOKEN_TRANSFER_PROXY_CONTRACT")
}

// ZRXToken returns the fee token.
func (e *Exchange) ZRXToken(ctx context.Context) (common.Address, error) {
	return e.contract.callAddress(ctx, "ZRX_TOKEN_CONTRACT")
}

// ContractVerifier checks signatures with the exchange's own
// isValidSignature. It implements validation.BlockSignatureVerifier.
type ContractVerifier struct {
	exchange *Exchange
}

func NewContractVerifier(exchange *Exchange) *ContractVerifier {
	return &ContractVerifier{exchange: exchange}
}

func (c *ContractVerifier) IsValidSignature(ctx context.Context, orderHash common.Hash, sig order.ECSignature, signer common.Address) (bool, error) {
	return c.IsValidSignatureAt(ctx, orderHash, sig, signer, nil)
}

// IsValidSignatureAt evaluates isValidSignature at block; nil means latest.
func (c *ContractVerifier) IsValidSignatureAt(ctx context.Context, orderHash common.Hash, sig order.ECSignature, signer common.Address, block *big.Int) (bool, error) {
	return c.exchange.contract.callBool(ctx, block, "isValidSignature",
		signer, [32]byte(orderHash), sig.V, [32]byte(sig.R), [32]byte(sig.S))
}
