// Package order defines the exchange order format, its canonical hash and
// its JSON wire form.
package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

// NullAddress is the Solidity zero address. An order whose Taker is the
// NullAddress may be filled by anyone.
var NullAddress = common.Address{}

// Order is an unsigned exchange order. Amounts are in token base units.
type Order struct {
	Maker                      common.Address
	Taker                      common.Address
	MakerFee                   *big.Int
	TakerFee                   *big.Int
	MakerTokenAmount           *big.Int
	TakerTokenAmount           *big.Int
	MakerTokenAddress          common.Address
	TakerTokenAddress          common.Address
	Salt                       *big.Int
	ExchangeContractAddress    common.Address
	FeeRecipient               common.Address
	ExpirationUnixTimestampSec *big.Int
}

// ECSignature is a secp256k1 signature over an order hash. V is 27 or 28.
type ECSignature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// SignedOrder is an Order together with the maker's signature.
type SignedOrder struct {
	Order
	ECSignature ECSignature
}

// IsNullAddress reports whether addr is the zero address.
func IsNullAddress(addr common.Address) bool {
	return addr == NullAddress
}

// OrderAddresses returns the address tuple the exchange contract methods take:
// maker, taker, makerToken, takerToken, feeRecipient.
func (o *Order) OrderAddresses() [5]common.Address {
	return [5]common.Address{o.Maker, o.Taker, o.MakerTokenAddress, o.TakerTokenAddress, o.FeeRecipient}
}

// OrderValues returns the uint256 tuple the exchange contract methods take:
// makerTokenAmount, takerTokenAmount, makerFee, takerFee, expiration, salt.
func (o *Order) OrderValues() [6]*big.Int {
	return [6]*big.Int{o.MakerTokenAmount, o.TakerTokenAmount, o.MakerFee, o.TakerFee, o.ExpirationUnixTimestampSec, o.Salt}
}

var maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)

// GeneratePseudoRandomSalt returns a random 256-bit salt. Two orders that
// differ only by salt hash differently.
func GeneratePseudoRandomSalt() (*big.Int, error) {
	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

var orderHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsValidOrderHash reports whether s has the format of an order hash. It says
// nothing about whether such an order exists.
func IsValidOrderHash(s string) bool {
	return orderHashRe.MatchString(s)
}

// ParseOrderHash decodes a 0x-prefixed 32-byte hex order hash.
func ParseOrderHash(s string) (common.Hash, error) {
	if !IsValidOrderHash(s) {
		return common.Hash{}, fmt.Errorf("invalid order hash: %q", s)
	}
	return common.HexToHash(s), nil
}
