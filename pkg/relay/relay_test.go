package relay

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	fgcrypto "github.com/uhyunpark/fillguard/pkg/crypto"
	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

func signedOrder(t *testing.T, signer *fgcrypto.Signer, salt int64) *order.SignedOrder {
	t.Helper()
	so, err := signer.SignOrder(&order.Order{
		Maker:                      signer.Address(),
		MakerFee:                   big.NewInt(0),
		TakerFee:                   big.NewInt(0),
		MakerTokenAmount:           big.NewInt(200),
		TakerTokenAmount:           big.NewInt(100),
		MakerTokenAddress:          common.HexToAddress("0x01"),
		TakerTokenAddress:          common.HexToAddress("0x02"),
		Salt:                       big.NewInt(salt),
		ExchangeContractAddress:    common.HexToAddress("0x03"),
		ExpirationUnixTimestampSec: big.NewInt(time.Now().Add(time.Hour).Unix()),
	})
	require.NoError(t, err)
	return so
}

type fakeFillState map[common.Hash]*big.Int

func (f fakeFillState) UnavailableTakerAmount(_ context.Context, hash common.Hash, _ *big.Int) (*big.Int, error) {
	if v, ok := f[hash]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func offlineNode(fill validation.FillStateOracle) *Node {
	return &Node{
		cfg: Config{
			Verifier:  fgcrypto.NewLocalVerifier(),
			FillState: fill,
			Pool:      NewPool(0),
		},
		log: zap.NewNop().Sugar(),
	}
}

func encode(t *testing.T, env Envelope) []byte {
	t.Helper()
	data, err := gobEncode(env)
	require.NoError(t, err)
	return data
}

func TestPool(t *testing.T) {
	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	p := NewPool(2)

	var hashes []common.Hash
	for i := int64(1); i <= 3; i++ {
		so := signedOrder(t, signer, i)
		h := order.MustHashOrder(&so.Order)
		hashes = append(hashes, h)
		assert.True(t, p.Add(h, so))
	}
	assert.Equal(t, 2, p.Len(), "oldest order should be dropped at the limit")
	_, ok := p.Get(hashes[0])
	assert.False(t, ok)

	so, _ := p.Get(hashes[1])
	assert.False(t, p.Add(hashes[1], so), "duplicate admission")

	list := p.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, hashes[1], list[0].Hash)
	assert.Equal(t, hashes[2], list[1].Hash)
	assert.Len(t, p.List(1), 1)

	assert.True(t, p.Remove(hashes[1]))
	assert.False(t, p.Remove(hashes[1]))
	assert.Equal(t, 1, p.Len())

	removed := p.Prune(func(h common.Hash, _ *order.SignedOrder) bool { return h == hashes[2] })
	assert.Equal(t, 1, removed)
	assert.Zero(t, p.Len())
}

func TestPoolPruneExpired(t *testing.T) {
	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	expirations := []*big.Int{
		maxUint256,
		new(big.Int).Lsh(big.NewInt(1), 64),
		big.NewInt(now.Unix()),
		big.NewInt(now.Unix() - 1),
	}
	var hashes []common.Hash
	p := NewPool(0)
	for i, exp := range expirations {
		so := signedOrder(t, signer, int64(i+1))
		so.ExpirationUnixTimestampSec = exp
		h := order.MustHashOrder(&so.Order)
		hashes = append(hashes, h)
		require.True(t, p.Add(h, so))
	}

	assert.Equal(t, 1, p.PruneExpired(now))
	assert.Equal(t, 3, p.Len())
	for _, h := range hashes[:3] {
		_, ok := p.Get(h)
		assert.True(t, ok, "order %s should survive", h.Hex())
	}
	_, ok := p.Get(hashes[3])
	assert.False(t, ok)
}

func TestHandleOrderMessage(t *testing.T) {
	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	n := offlineNode(nil)

	var admitted []common.Hash
	n.cfg.OnOrder = func(h common.Hash, _ *order.SignedOrder) { admitted = append(admitted, h) }

	so := signedOrder(t, signer, 1)
	env, err := orderEnvelope(so)
	require.NoError(t, err)
	n.handleMessage(context.Background(), "", encode(t, env))
	n.handleMessage(context.Background(), "", encode(t, env))

	assert.Equal(t, 1, n.Pool().Len())
	require.Len(t, admitted, 1, "a duplicate should not be announced twice")
	assert.Equal(t, order.MustHashOrder(&so.Order), admitted[0])
}

func TestHandleOrderMessageRejectsBadSignature(t *testing.T) {
	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	n := offlineNode(nil)

	forged := signedOrder(t, signer, 1)
	forged.MakerTokenAmount = big.NewInt(1_000_000)
	env, err := orderEnvelope(forged)
	require.NoError(t, err)
	n.handleMessage(context.Background(), "", encode(t, env))
	n.handleMessage(context.Background(), "", []byte("garbage"))

	assert.Zero(t, n.Pool().Len())

	_, _, err = n.Admit(context.Background(), forged)
	assert.ErrorIs(t, err, validation.ErrInvalidSignature)
}

func TestHandleCancelNeedsConfirmation(t *testing.T) {
	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	fill := fakeFillState{}
	n := offlineNode(fill)

	so := signedOrder(t, signer, 1)
	hash, added, err := n.Admit(context.Background(), so)
	require.NoError(t, err)
	require.True(t, added)

	n.handleMessage(context.Background(), "", encode(t, cancelEnvelope(hash)))
	assert.Equal(t, 1, n.Pool().Len(), "unconfirmed cancel must not evict")

	fill[hash] = big.NewInt(100)
	n.handleMessage(context.Background(), "", encode(t, cancelEnvelope(hash)))
	assert.Zero(t, n.Pool().Len())
}

func TestNodePublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := NewNode(ctx, Config{
		ListenAddr: "/ip4/127.0.0.1/tcp/0",
		Verifier:   fgcrypto.NewLocalVerifier(),
	})
	require.NoError(t, err)
	defer n.Close()

	signer, err := fgcrypto.GenerateKey()
	require.NoError(t, err)
	so := signedOrder(t, signer, 7)

	hash, err := n.PublishOrder(ctx, so)
	require.NoError(t, err)
	assert.Equal(t, order.MustHashOrder(&so.Order), hash)
	assert.Equal(t, 1, n.Pool().Len())

	require.NoError(t, n.PublishCancel(ctx, hash))
	assert.Zero(t, n.Pool().Len())
}
