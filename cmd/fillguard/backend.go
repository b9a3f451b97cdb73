package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/params"
	"github.com/uhyunpark/fillguard/pkg/api"
	"github.com/uhyunpark/fillguard/pkg/chain"
	"github.com/uhyunpark/fillguard/pkg/crypto"
	"github.com/uhyunpark/fillguard/pkg/ledger"
	"github.com/uhyunpark/fillguard/pkg/storage"
	"github.com/uhyunpark/fillguard/pkg/util"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

// backend bundles the oracles a node validates against.
type backend struct {
	fillState validation.FillStateOracle
	balances  validation.BalanceOracle
	state     api.OrderStateReader
	verifier  validation.SignatureVerifier
	settler   api.Settler // ledger only

	// start begins streaming exchange events into sink.
	start func(ctx context.Context, sink func(chain.Event))
	close func()
}

// newSignatureVerifier picks the signature strategy. The contract strategy
// needs a live exchange binding.
func newSignatureVerifier(strategy string, exchange *chain.Exchange) (validation.SignatureVerifier, error) {
	switch strategy {
	case params.SignatureLocal:
		return crypto.NewLocalVerifier(), nil
	case params.SignatureContract:
		if exchange == nil {
			return nil, fmt.Errorf("signature strategy %q needs the rpc backend", strategy)
		}
		return chain.NewContractVerifier(exchange), nil
	default:
		return nil, fmt.Errorf("unknown signature strategy %q", strategy)
	}
}

func newBackend(ctx context.Context, cfg params.Config, store *storage.Store, journal storage.Journal, log *zap.SugaredLogger) (*backend, error) {
	switch cfg.Validation.Backend {
	case params.BackendRPC:
		return newRPCBackend(ctx, cfg, log)
	case params.BackendLedger:
		return newLedgerBackend(cfg, store, journal, log)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Validation.Backend)
	}
}

func newRPCBackend(ctx context.Context, cfg params.Config, log *zap.SugaredLogger) (*backend, error) {
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	if err := checkChain(ctx, client, cfg, log); err != nil {
		client.Close()
		return nil, err
	}

	exchange := chain.NewExchange(cfg.ExchangeAddress(), client)
	checkExchangeConfig(ctx, exchange, cfg, log)

	verifier, err := newSignatureVerifier(cfg.Validation.Signature, exchange)
	if err != nil {
		client.Close()
		return nil, err
	}
	watcher := chain.NewWatcher(exchange.Address(), client, log)

	return &backend{
		fillState: exchange,
		balances:  chain.NewTokens(client),
		state:     exchange,
		verifier:  verifier,
		start: func(ctx context.Context, sink func(chain.Event)) {
			go func() {
				if err := watcher.Watch(ctx, sink); err != nil && ctx.Err() == nil {
					log.Errorw("event_watch_failed", "err", err)
				}
			}()
		},
		close: client.Close,
	}, nil
}

func checkChain(ctx context.Context, client *ethclient.Client, cfg params.Config, log *zap.SugaredLogger) error {
	id, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if id.Cmp(big.NewInt(cfg.Chain.ChainID)) != 0 {
		return fmt.Errorf("rpc chain id %s, configured %d", id, cfg.Chain.ChainID)
	}
	log.Infow("chain_connected", "rpc", cfg.Chain.RPCURL, "chain_id", id)
	return nil
}

// checkExchangeConfig warns when the configured proxy or ZRX address
// disagrees with what the exchange contract reports.
func checkExchangeConfig(ctx context.Context, exchange *chain.Exchange, cfg params.Config, log *zap.SugaredLogger) {
	for _, c := range []struct {
		name string
		want common.Address
		read func(context.Context) (common.Address, error)
	}{
		{"proxy", cfg.ProxyAddress(), exchange.TokenTransferProxy},
		{"zrx", cfg.ZRXAddress(), exchange.ZRXToken},
	} {
		got, err := c.read(ctx)
		if err != nil {
			log.Warnw("exchange_config_read_failed", "field", c.name, "err", err)
			continue
		}
		if got != c.want {
			log.Warnw("exchange_config_mismatch", "field", c.name, "configured", c.want.Hex(), "contract", got.Hex())
		}
	}
}

func newLedgerBackend(cfg params.Config, store *storage.Store, journal storage.Journal, log *zap.SugaredLogger) (*backend, error) {
	verifier, err := newSignatureVerifier(cfg.Validation.Signature, nil)
	if err != nil {
		return nil, err
	}
	m := ledger.NewManager(ledger.Config{
		Store:           store,
		Verifier:        verifier,
		Clock:           util.RealClock{},
		ProxyAddress:    cfg.ProxyAddress(),
		FeeTokenAddress: cfg.ZRXAddress(),
		Journal:         journal,
		Logger:          log,
	})
	return &backend{
		fillState: m,
		balances:  m,
		state:     m,
		verifier:  verifier,
		settler:   m,
		start: func(_ context.Context, sink func(chain.Event)) {
			m.Subscribe(sink)
		},
		close: func() {},
	}, nil
}
