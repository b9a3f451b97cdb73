package validation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// Oracle reads take a block number to pin the snapshot; nil means latest.

// FillStateOracle reports how much of an order's taker amount is already
// filled or cancelled.
type FillStateOracle interface {
	UnavailableTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error)
}

// BalanceOracle reads token balances and allowances.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address, block *big.Int) (*big.Int, error)
}

// SignatureVerifier decides whether sig over orderHash was produced by signer.
// A mismatch is (false, nil); errors are reserved for malformed input or
// failed reads.
type SignatureVerifier interface {
	IsValidSignature(ctx context.Context, orderHash common.Hash, sig order.ECSignature, signer common.Address) (bool, error)
}

// BlockSignatureVerifier is a SignatureVerifier whose answer depends on
// chain state. A pinned Validator passes its block through to it.
type BlockSignatureVerifier interface {
	SignatureVerifier
	IsValidSignatureAt(ctx context.Context, orderHash common.Hash, sig order.ECSignature, signer common.Address, block *big.Int) (bool, error)
}
