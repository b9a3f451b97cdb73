package crypto

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// RecoverSigner recovers the address that produced sig over orderHash.
// It fails when V is not 27/28 or r/s do not describe a curve point.
func RecoverSigner(orderHash common.Hash, sig order.ECSignature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %d", sig.V)
	}

	raw := make([]byte, 65)
	copy(raw[:32], sig.R.Bytes())
	copy(raw[32:64], sig.S.Bytes())
	raw[64] = sig.V - 27

	publicKeyBytes, err := crypto.Ecrecover(accounts.TextHash(orderHash.Bytes()), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}

// LocalVerifier checks order signatures by recovering the signer in process.
type LocalVerifier struct{}

func NewLocalVerifier() *LocalVerifier { return &LocalVerifier{} }

// IsValidSignature reports whether sig over orderHash was made by signer.
// A signature that does not recover, or recovers to someone else, is simply
// invalid; it is not an error.
func (LocalVerifier) IsValidSignature(_ context.Context, orderHash common.Hash, sig order.ECSignature, signer common.Address) (bool, error) {
	recovered, err := RecoverSigner(orderHash, sig)
	if err != nil {
		return false, nil
	}
	return recovered == signer, nil
}

// VerifyHex is IsValidSignature for a hex-encoded hash, as received from
// user input. A hash that is not 32 bytes is an error.
func (v LocalVerifier) VerifyHex(hashHex string, sig order.ECSignature, signer common.Address) (bool, error) {
	hash, err := order.ParseOrderHash(hashHex)
	if err != nil {
		return false, err
	}
	return v.IsValidSignature(context.Background(), hash, sig, signer)
}
