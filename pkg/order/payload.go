package order

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// OrderPayload is the JSON form of an Order. Amounts are decimal strings so
// 256-bit values survive JavaScript clients.
type OrderPayload struct {
	Maker                      string `json:"maker"`
	Taker                      string `json:"taker"`
	MakerFee                   string `json:"makerFee"`
	TakerFee                   string `json:"takerFee"`
	MakerTokenAmount           string `json:"makerTokenAmount"`
	TakerTokenAmount           string `json:"takerTokenAmount"`
	MakerTokenAddress          string `json:"makerTokenAddress"`
	TakerTokenAddress          string `json:"takerTokenAddress"`
	Salt                       string `json:"salt"`
	ExchangeContractAddress    string `json:"exchangeContractAddress"`
	FeeRecipient               string `json:"feeRecipient"`
	ExpirationUnixTimestampSec string `json:"expirationUnixTimestampSec"`
}

// SignaturePayload is the JSON form of an ECSignature.
type SignaturePayload struct {
	V uint8  `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// SignedOrderPayload is the JSON form of a SignedOrder.
type SignedOrderPayload struct {
	OrderPayload
	ECSignature SignaturePayload `json:"ecSignature"`
}

// ToOrder parses and checks every field of the payload.
func (p *OrderPayload) ToOrder() (*Order, error) {
	o := &Order{}
	var err error

	addrs := []struct {
		name string
		in   string
		out  *common.Address
	}{
		{"maker", p.Maker, &o.Maker},
		{"taker", p.Taker, &o.Taker},
		{"makerTokenAddress", p.MakerTokenAddress, &o.MakerTokenAddress},
		{"takerTokenAddress", p.TakerTokenAddress, &o.TakerTokenAddress},
		{"exchangeContractAddress", p.ExchangeContractAddress, &o.ExchangeContractAddress},
		{"feeRecipient", p.FeeRecipient, &o.FeeRecipient},
	}
	for _, a := range addrs {
		if *a.out, err = parseAddress(a.in); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", a.name, err)
		}
	}

	nums := []struct {
		name string
		in   string
		out  **big.Int
	}{
		{"makerFee", p.MakerFee, &o.MakerFee},
		{"takerFee", p.TakerFee, &o.TakerFee},
		{"makerTokenAmount", p.MakerTokenAmount, &o.MakerTokenAmount},
		{"takerTokenAmount", p.TakerTokenAmount, &o.TakerTokenAmount},
		{"salt", p.Salt, &o.Salt},
		{"expirationUnixTimestampSec", p.ExpirationUnixTimestampSec, &o.ExpirationUnixTimestampSec},
	}
	for _, n := range nums {
		if *n.out, err = parseAmount(n.in); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", n.name, err)
		}
	}

	return o, nil
}

// ToSignedOrder parses the order and its signature.
func (p *SignedOrderPayload) ToSignedOrder() (*SignedOrder, error) {
	o, err := p.OrderPayload.ToOrder()
	if err != nil {
		return nil, err
	}
	sig, err := ParseSignature(p.ECSignature.V, p.ECSignature.R, p.ECSignature.S)
	if err != nil {
		return nil, err
	}
	return &SignedOrder{Order: *o, ECSignature: sig}, nil
}

// FromOrder converts an Order to its JSON form.
func FromOrder(o *Order) OrderPayload {
	return OrderPayload{
		Maker:                      hexAddr(o.Maker),
		Taker:                      hexAddr(o.Taker),
		MakerFee:                   decString(o.MakerFee),
		TakerFee:                   decString(o.TakerFee),
		MakerTokenAmount:           decString(o.MakerTokenAmount),
		TakerTokenAmount:           decString(o.TakerTokenAmount),
		MakerTokenAddress:          hexAddr(o.MakerTokenAddress),
		TakerTokenAddress:          hexAddr(o.TakerTokenAddress),
		Salt:                       decString(o.Salt),
		ExchangeContractAddress:    hexAddr(o.ExchangeContractAddress),
		FeeRecipient:               hexAddr(o.FeeRecipient),
		ExpirationUnixTimestampSec: decString(o.ExpirationUnixTimestampSec),
	}
}

// FromSignedOrder converts a SignedOrder to its JSON form.
func FromSignedOrder(so *SignedOrder) SignedOrderPayload {
	return SignedOrderPayload{
		OrderPayload: FromOrder(&so.Order),
		ECSignature: SignaturePayload{
			V: so.ECSignature.V,
			R: so.ECSignature.R.Hex(),
			S: so.ECSignature.S.Hex(),
		},
	}
}

// MarshalJSON encodes the order in its payload form.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(FromOrder(&o))
}

// UnmarshalJSON decodes and validates the payload form.
func (o *Order) UnmarshalJSON(data []byte) error {
	var p OrderPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	parsed, err := p.ToOrder()
	if err != nil {
		return err
	}
	*o = *parsed
	return nil
}

func (so SignedOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(FromSignedOrder(&so))
}

func (so *SignedOrder) UnmarshalJSON(data []byte) error {
	var p SignedOrderPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	parsed, err := p.ToSignedOrder()
	if err != nil {
		return err
	}
	*so = *parsed
	return nil
}

// ParseSignature builds an ECSignature from hex r and s. Each must decode to
// exactly 32 bytes.
func ParseSignature(v uint8, r, s string) (ECSignature, error) {
	rb, err := decodeWord(r)
	if err != nil {
		return ECSignature{}, fmt.Errorf("invalid signature r: %w", err)
	}
	sb, err := decodeWord(s)
	if err != nil {
		return ECSignature{}, fmt.Errorf("invalid signature s: %w", err)
	}
	return ECSignature{V: v, R: common.BytesToHash(rb), S: common.BytesToHash(sb)}, nil
}

func decodeWord(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", s)
	}
	return v, nil
}

func hexAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func decString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
