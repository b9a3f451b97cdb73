package storage

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// Amounts are stored as minimal big-endian bytes; an absent key reads as zero.
func encodeAmount(v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 {
		return nil, errors.Errorf("cannot store amount %v", v)
	}
	return v.Bytes(), nil
}

func decodeAmount(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func encodeOrder(so *order.SignedOrder) ([]byte, error) {
	data, err := json.Marshal(so)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order")
	}
	return data, nil
}

func decodeOrder(b []byte) (*order.SignedOrder, error) {
	var so order.SignedOrder
	if err := json.Unmarshal(b, &so); err != nil {
		return nil, errors.Wrap(err, "unmarshal order")
	}
	return &so, nil
}
