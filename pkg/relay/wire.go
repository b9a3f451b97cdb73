package relay

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/order"
)

func init() {
	gob.Register(Envelope{})
}

type MsgKind uint8

const (
	MsgOrder MsgKind = iota + 1
	MsgCancel
)

// Envelope is the gossip payload. Order carries a signed order in its JSON
// wire form; OrderHash names an order a peer saw fully filled or cancelled.
type Envelope struct {
	Kind      MsgKind
	Order     []byte
	OrderHash [32]byte
}

func orderEnvelope(so *order.SignedOrder) (Envelope, error) {
	data, err := json.Marshal(so)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: MsgOrder, Order: data}, nil
}

func cancelEnvelope(hash common.Hash) Envelope {
	return Envelope{Kind: MsgCancel, OrderHash: hash}
}

func (e Envelope) signedOrder() (*order.SignedOrder, error) {
	if e.Kind != MsgOrder {
		return nil, fmt.Errorf("envelope kind %d carries no order", e.Kind)
	}
	var so order.SignedOrder
	if err := json.Unmarshal(e.Order, &so); err != nil {
		return nil, err
	}
	return &so, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
