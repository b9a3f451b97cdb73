package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/util"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

const DefaultTopic = "fillguard-orders/1"

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string

	Verifier  validation.SignatureVerifier
	FillState validation.FillStateOracle // optional; enables cancel notices
	Pool      *Pool
	Logger    *zap.SugaredLogger

	// OnOrder, if set, is called for every newly admitted order.
	OnOrder func(common.Hash, *order.SignedOrder)
}

// Node gossips signed orders over libp2p pubsub. Orders arriving from peers
// are hash- and signature-checked before they enter the pool.
type Node struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	cfg   Config
	log   *zap.SugaredLogger
}

func NewNode(ctx context.Context, cfg Config) (*Node, error) {
	if cfg.Pool == nil {
		cfg.Pool = NewPool(0)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid listen address: %w", err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	n := &Node{h: h, ps: ps, cfg: cfg, log: util.OrNop(cfg.Logger)}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			n.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if n.topic, err = ps.Join(cfg.Topic); err != nil {
		h.Close()
		return nil, err
	}
	if n.sub, err = n.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	go n.handleMessages(ctx)

	n.log.Infow("relay_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return n, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return h.Connect(ctx, *info)
}

func (n *Node) Host() host.Host { return n.h }
func (n *Node) Pool() *Pool     { return n.cfg.Pool }

func (n *Node) Close() error {
	n.sub.Cancel()
	if err := n.topic.Close(); err != nil {
		n.log.Warnw("relay_topic_close_failed", "err", err)
	}
	return n.h.Close()
}

// PublishOrder admits so locally and gossips it.
func (n *Node) PublishOrder(ctx context.Context, so *order.SignedOrder) (common.Hash, error) {
	hash, _, err := n.Admit(ctx, so)
	if err != nil {
		return common.Hash{}, err
	}
	env, err := orderEnvelope(so)
	if err != nil {
		return hash, err
	}
	data, err := gobEncode(env)
	if err != nil {
		return hash, err
	}
	return hash, n.topic.Publish(ctx, data)
}

// PublishCancel tells peers hash is no longer fillable and evicts it locally.
func (n *Node) PublishCancel(ctx context.Context, hash common.Hash) error {
	n.cfg.Pool.Remove(hash)
	data, err := gobEncode(cancelEnvelope(hash))
	if err != nil {
		return err
	}
	return n.topic.Publish(ctx, data)
}

// Admit checks so's signature and adds it to the pool. added is false for
// an order already pooled.
func (n *Node) Admit(ctx context.Context, so *order.SignedOrder) (hash common.Hash, added bool, err error) {
	hash, err = order.HashOrder(&so.Order)
	if err != nil {
		return common.Hash{}, false, err
	}
	ok, err := n.cfg.Verifier.IsValidSignature(ctx, hash, so.ECSignature, so.Maker)
	if err != nil {
		return hash, false, err
	}
	if !ok {
		return hash, false, validation.ErrInvalidSignature
	}
	if !n.cfg.Pool.Add(hash, so) {
		return hash, false, nil
	}
	if n.cfg.OnOrder != nil {
		n.cfg.OnOrder(hash, so)
	}
	return hash, true, nil
}

func (n *Node) handleMessages(ctx context.Context) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		n.handleMessage(ctx, msg.ReceivedFrom, msg.Data)
	}
}

func (n *Node) handleMessage(ctx context.Context, from peer.ID, data []byte) {
	var env Envelope
	if err := gobDecode(data, &env); err != nil {
		n.log.Debugw("relay_decode_failed", "peer", from.String(), "err", err)
		return
	}

	switch env.Kind {
	case MsgOrder:
		so, err := env.signedOrder()
		if err != nil {
			n.log.Debugw("relay_order_invalid", "peer", from.String(), "err", err)
			return
		}
		hash, added, err := n.Admit(ctx, so)
		if err != nil {
			n.log.Warnw("relay_order_rejected", "peer", from.String(), "order_hash", hash.Hex(), "err", err)
			return
		}
		if added {
			n.log.Debugw("relay_order_admitted", "peer", from.String(), "order_hash", hash.Hex())
		}
	case MsgCancel:
		n.handleCancel(ctx, from, common.Hash(env.OrderHash))
	default:
		n.log.Debugw("relay_unknown_kind", "peer", from.String(), "kind", env.Kind)
	}
}

// handleCancel evicts an order only once the fill-state oracle confirms
// nothing remains of it; a peer's word alone is not enough.
func (n *Node) handleCancel(ctx context.Context, from peer.ID, hash common.Hash) {
	so, ok := n.cfg.Pool.Get(hash)
	if !ok || n.cfg.FillState == nil {
		return
	}
	unavailable, err := n.cfg.FillState.UnavailableTakerAmount(ctx, hash, nil)
	if err != nil {
		n.log.Warnw("relay_cancel_check_failed", "order_hash", hash.Hex(), "err", err)
		return
	}
	if unavailable.Cmp(so.TakerTokenAmount) >= 0 {
		n.cfg.Pool.Remove(hash)
		n.log.Debugw("relay_order_evicted", "peer", from.String(), "order_hash", hash.Hex())
	}
}
