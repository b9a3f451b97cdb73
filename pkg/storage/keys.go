package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	ord:<orderHash>                 → signed order (JSON)
//	bal:<token>:<owner>             → balance
//	alw:<token>:<owner>:<spender>   → allowance
//	fil:<orderHash>                 → filled taker amount
//	cxl:<orderHash>                 → cancelled taker amount
const (
	prefixOrder     = "ord:"
	prefixBalance   = "bal:"
	prefixAllowance = "alw:"
	prefixFilled    = "fil:"
	prefixCancelled = "cxl:"
)

func orderKey(hash common.Hash) []byte {
	return []byte(prefixOrder + hash.Hex())
}

func balanceKey(token, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, token.Hex(), owner.Hex()))
}

func allowanceKey(token, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, token.Hex(), owner.Hex(), spender.Hex()))
}

func filledKey(hash common.Hash) []byte {
	return []byte(prefixFilled + hash.Hex())
}

func cancelledKey(hash common.Hash) []byte {
	return []byte(prefixCancelled + hash.Hex())
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
