package chain

import (
	"bytes"
	"context"
	_ "embed"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

//go:embed abi/exchange.json
var exchangeABIJSON []byte

//go:embed abi/erc20.json
var erc20ABIJSON []byte

var (
	ExchangeABI = mustParseABI(exchangeABIJSON)
	ERC20ABI    = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw []byte) *abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return &parsed
}

// Dial connects to an Ethereum JSON-RPC endpoint (http, ws or ipc).
// The returned client satisfies ethereum.ContractCaller and
// ethereum.LogFilterer.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return client, nil
}

// boundContract packs calls for one contract address.
type boundContract struct {
	abi     *abi.ABI
	address common.Address
	caller  ethereum.ContractCaller
}

// call runs an eth_call against block (nil = latest) and unpacks the outputs.
func (c *boundContract) call(ctx context.Context, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: callData}
	result, err := c.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s on %s", method, c.address.Hex())
	}

	values, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(values) == 0 {
		return nil, errors.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (c *boundContract) callBigInt(ctx context.Context, block *big.Int, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, block, method, args...)
	if err != nil {
		return nil, err
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return out, nil
}

func (c *boundContract) callBool(ctx context.Context, block *big.Int, method string, args ...interface{}) (bool, error) {
	values, err := c.call(ctx, block, method, args...)
	if err != nil {
		return false, err
	}
	out, ok := values[0].(bool)
	if !ok {
		return false, errors.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return out, nil
}

func (c *boundContract) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := c.call(ctx, nil, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	out, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return out, nil
}
