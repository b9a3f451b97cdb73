package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// Signer holds a secp256k1 key used to sign order hashes.
// Meant for tests, devnets and the sign-order tool, not for custody.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(privateKey)
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	if len(hexKey) > 1 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newSigner(privateKey)
}

func newSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address returns the Ethereum address derived from the public key
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// SignOrderHash signs an order hash the way eth_sign does: the signed digest
// is keccak256("\x19Ethereum Signed Message:\n32" || orderHash).
// V is returned as 27 or 28, the form the exchange contract's ecrecover expects.
func (s *Signer) SignOrderHash(orderHash common.Hash) (order.ECSignature, error) {
	sig, err := crypto.Sign(accounts.TextHash(orderHash.Bytes()), s.privateKey)
	if err != nil {
		return order.ECSignature{}, fmt.Errorf("failed to sign: %w", err)
	}
	return order.ECSignature{
		V: sig[64] + 27,
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

// SignOrder hashes o and signs the hash.
func (s *Signer) SignOrder(o *order.Order) (*order.SignedOrder, error) {
	hash, err := order.HashOrder(o)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}
	sig, err := s.SignOrderHash(hash)
	if err != nil {
		return nil, err
	}
	return &order.SignedOrder{Order: *o, ECSignature: sig}, nil
}
