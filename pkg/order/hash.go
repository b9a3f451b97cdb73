package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// HashOrder computes the order hash exactly as the exchange contract's
// getOrderHash does: keccak256 over the tightly packed fields
//
//	exchange, maker, taker, makerToken, takerToken, feeRecipient (20 bytes each)
//	makerTokenAmount, takerTokenAmount, makerFee, takerFee, expiration, salt (32-byte big-endian words)
//
// The signature is not part of the hash. Amounts must fit in a uint256.
func HashOrder(o *Order) (common.Hash, error) {
	if o == nil {
		return common.Hash{}, fmt.Errorf("nil order")
	}

	h := sha3.NewLegacyKeccak256()
	for _, addr := range []common.Address{
		o.ExchangeContractAddress,
		o.Maker,
		o.Taker,
		o.MakerTokenAddress,
		o.TakerTokenAddress,
		o.FeeRecipient,
	} {
		h.Write(addr.Bytes())
	}

	words := []struct {
		name string
		v    *big.Int
	}{
		{"makerTokenAmount", o.MakerTokenAmount},
		{"takerTokenAmount", o.TakerTokenAmount},
		{"makerFee", o.MakerFee},
		{"takerFee", o.TakerFee},
		{"expirationUnixTimestampSec", o.ExpirationUnixTimestampSec},
		{"salt", o.Salt},
	}
	for _, w := range words {
		word, err := toWord(w.v)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%s: %w", w.name, err)
		}
		h.Write(word[:])
	}

	var out common.Hash
	h.Sum(out[:0])
	return out, nil
}

// MustHashOrder is HashOrder for orders already known to be well formed.
func MustHashOrder(o *Order) common.Hash {
	h, err := HashOrder(o)
	if err != nil {
		panic(err)
	}
	return h
}

// HashHex returns the 0x-prefixed hex order hash.
func HashHex(o *Order) (string, error) {
	h, err := HashOrder(o)
	if err != nil {
		return "", err
	}
	return h.Hex(), nil
}

func toWord(v *big.Int) ([32]byte, error) {
	if v == nil {
		return [32]byte{}, fmt.Errorf("missing value")
	}
	if v.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("negative value %s", v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return [32]byte{}, fmt.Errorf("value %s overflows uint256", v)
	}
	return u.Bytes32(), nil
}
