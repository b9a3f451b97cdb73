package main

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatExpiration(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	twoTo64 := new(big.Int).Lsh(big.NewInt(1), 64)

	assert.Equal(t, "2023-11-14T22:13:20Z", formatExpiration(big.NewInt(1_700_000_000)))
	assert.Equal(t, maxUint256.String(), formatExpiration(maxUint256))
	assert.Equal(t, twoTo64.String(), formatExpiration(twoTo64))
	assert.Equal(t, "253402300800", formatExpiration(big.NewInt(maxFormattableUnix+1)))
	assert.Equal(t, "unset", formatExpiration(nil))
}
