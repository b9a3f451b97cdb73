package crypto

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/order"
)

func testOrder(maker common.Address) *order.Order {
	return &order.Order{
		Maker:                      maker,
		MakerFee:                   big.NewInt(0),
		TakerFee:                   big.NewInt(0),
		MakerTokenAmount:           big.NewInt(200),
		TakerTokenAmount:           big.NewInt(100),
		MakerTokenAddress:          common.HexToAddress("0x01"),
		TakerTokenAddress:          common.HexToAddress("0x02"),
		Salt:                       big.NewInt(7),
		ExchangeContractAddress:    common.HexToAddress("0x03"),
		ExpirationUnixTimestampSec: big.NewInt(2000000000),
	}
}

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	if len(signer.PrivateKeyHex()) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(signer.PrivateKeyHex()))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	other, _ := GenerateKey()

	signed, err := signer.SignOrder(testOrder(signer.Address()))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if signed.ECSignature.V != 27 && signed.ECSignature.V != 28 {
		t.Errorf("V = %d, want 27 or 28", signed.ECSignature.V)
	}

	hash := order.MustHashOrder(&signed.Order)
	v := NewLocalVerifier()

	ok, err := v.IsValidSignature(context.Background(), hash, signed.ECSignature, signer.Address())
	if err != nil || !ok {
		t.Errorf("valid signature rejected: ok=%v err=%v", ok, err)
	}

	ok, err = v.IsValidSignature(context.Background(), hash, signed.ECSignature, other.Address())
	if err != nil || ok {
		t.Errorf("signature accepted for wrong signer: ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsTamperedOrder(t *testing.T) {
	signer, _ := GenerateKey()
	signed, _ := signer.SignOrder(testOrder(signer.Address()))

	tampered := signed.Order
	tampered.Salt = big.NewInt(8)

	ok, err := NewLocalVerifier().IsValidSignature(context.Background(), order.MustHashOrder(&tampered), signed.ECSignature, signer.Address())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("signature should not cover a different salt")
	}
}

func TestRecoverSigner(t *testing.T) {
	signer, _ := GenerateKey()
	hash := common.HexToHash("0x6927e990021d23b1eb7b8789f6a6feaf98fe104bb0cf8259421b79f9a34222b0")

	sig, err := signer.SignOrderHash(hash)
	if err != nil {
		t.Fatal(err)
	}
	got, err := RecoverSigner(hash, sig)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("recovered address = %s, want %s", got.Hex(), signer.Address().Hex())
	}
}

func TestInvalidSignature(t *testing.T) {
	signer, _ := GenerateKey()
	hash := common.BytesToHash([]byte("test"))
	sig, _ := signer.SignOrderHash(hash)
	v := NewLocalVerifier()

	badV := sig
	badV.V = 29
	if ok, err := v.IsValidSignature(context.Background(), hash, badV, signer.Address()); ok || err != nil {
		t.Errorf("bad V: ok=%v err=%v, want false, nil", ok, err)
	}

	zero := order.ECSignature{V: 27}
	if ok, err := v.IsValidSignature(context.Background(), hash, zero, signer.Address()); ok || err != nil {
		t.Errorf("zero r/s: ok=%v err=%v, want false, nil", ok, err)
	}

	if _, err := v.VerifyHex("0x1234", sig, signer.Address()); err == nil {
		t.Error("short hash should be an error")
	}
	ok, err := v.VerifyHex(hash.Hex(), sig, signer.Address())
	if err != nil || !ok {
		t.Errorf("VerifyHex: ok=%v err=%v", ok, err)
	}
}
