package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/pkg/chain"
	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/storage"
	"github.com/uhyunpark/fillguard/pkg/util"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

// ErrSenderNotMaker is returned when someone other than the maker cancels.
var ErrSenderNotMaker = fmt.Errorf("only the maker can cancel an order")

type Config struct {
	Store           *storage.Store
	Verifier        validation.SignatureVerifier
	Clock           util.Clock
	ProxyAddress    common.Address
	FeeTokenAddress common.Address
	Journal         storage.Journal
	Logger          *zap.SugaredLogger
}

// Manager is a local stand-in for the exchange contract: it holds token
// balances, allowances and per-order fill/cancel counters in Pebble and
// settles fills and cancels after validating them with the same rules a
// client would apply against the real contract.
//
// Manager implements validation.FillStateOracle and validation.BalanceOracle
// over its committed state.
type Manager struct {
	mu        sync.RWMutex
	store     *storage.Store
	cfg       Config
	journal   storage.Journal
	log       *zap.SugaredLogger
	listeners []func(chain.Event)
}

func NewManager(cfg Config) *Manager {
	journal := cfg.Journal
	if journal == nil {
		journal = storage.NewNopJournal()
	}
	return &Manager{
		store:   cfg.Store,
		cfg:     cfg,
		journal: journal,
		log:     util.OrNop(cfg.Logger),
	}
}

// Subscribe registers fn for every settled fill and cancel. fn runs after
// the settlement is committed, outside the ledger lock.
func (m *Manager) Subscribe(fn func(chain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) validator(state *overlay) *validation.Validator {
	return validation.NewValidator(validation.Config{
		Verifier:        m.cfg.Verifier,
		FillState:       state,
		Balances:        state,
		Clock:           m.cfg.Clock,
		ProxyAddress:    m.cfg.ProxyAddress,
		FeeTokenAddress: m.cfg.FeeTokenAddress,
		Logger:          m.log,
	})
}

// Credit mints amount of token to owner.
func (m *Manager) Credit(token, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid credit amount: %v", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state := newOverlay(m.store)
	if err := state.credit(token, owner, amount); err != nil {
		return err
	}
	if err := state.commit(); err != nil {
		return err
	}
	m.log.Infow("ledger_credit", "token", token.Hex(), "owner", owner.Hex(), "amount", amount.String())
	return nil
}

// Approve sets owner's allowance for spender.
func (m *Manager) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid allowance: %v", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state := newOverlay(m.store)
	state.approve(token, owner, spender, amount)
	return state.commit()
}

func (m *Manager) UnavailableTakerAmount(ctx context.Context, hash common.Hash, block *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newOverlay(m.store).UnavailableTakerAmount(ctx, hash, block)
}

func (m *Manager) FilledTakerAmount(_ context.Context, hash common.Hash, _ *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Filled(hash)
}

func (m *Manager) CancelledTakerAmount(_ context.Context, hash common.Hash, _ *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Cancelled(hash)
}

func (m *Manager) BalanceOf(_ context.Context, token, owner common.Address, _ *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Balance(token, owner)
}

func (m *Manager) Allowance(_ context.Context, token, owner, spender common.Address, _ *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Allowance(token, owner, spender)
}

// Fill validates and settles a fill of up to requested taker units.
func (m *Manager) Fill(ctx context.Context, signed *order.SignedOrder, requested *big.Int, taker common.Address) (*chain.LogFill, error) {
	return m.fillOne(ctx, signed, requested, taker, false)
}

// FillOrKill settles exactly amount taker units or nothing.
func (m *Manager) FillOrKill(ctx context.Context, signed *order.SignedOrder, amount *big.Int, taker common.Address) (*chain.LogFill, error) {
	return m.fillOne(ctx, signed, amount, taker, true)
}

func (m *Manager) fillOne(ctx context.Context, signed *order.SignedOrder, amount *big.Int, taker common.Address, fillOrKill bool) (*chain.LogFill, error) {
	m.mu.Lock()
	state := newOverlay(m.store)
	ev, err := m.fill(ctx, state, signed, amount, taker, fillOrKill)
	if err == nil {
		err = state.commit()
	}
	listeners := m.listeners
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	m.record(ev)
	m.publish(listeners, ev)
	return ev, nil
}

// Cancel validates and records a cancel of up to amount taker units by sender.
func (m *Manager) Cancel(ctx context.Context, o *order.Order, amount *big.Int, sender common.Address) (*chain.LogCancel, error) {
	if o != nil && sender != o.Maker {
		return nil, ErrSenderNotMaker
	}
	m.mu.Lock()
	state := newOverlay(m.store)
	ev, err := m.cancel(ctx, state, o, amount)
	if err == nil {
		err = state.commit()
	}
	listeners := m.listeners
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	m.record(ev)
	m.publish(listeners, ev)
	return ev, nil
}

// BatchFill settles several fills. With atomic set, any rejection leaves the
// ledger untouched and is returned as the error; otherwise rejected orders
// are skipped and reported in the results. Later orders see the effects of
// earlier ones.
func (m *Manager) BatchFill(ctx context.Context, orders []*order.SignedOrder, amounts []*big.Int, taker common.Address, fillOrKill, atomic bool) (validation.Results, error) {
	if len(amounts) != len(orders) {
		return nil, fmt.Errorf("got %d amounts for %d orders", len(amounts), len(orders))
	}
	return m.batch(ctx, orders, atomic, func(i int, state *overlay) (chain.Event, *big.Int, error) {
		ev, err := m.fill(ctx, state, orders[i], amounts[i], taker, fillOrKill)
		if err != nil {
			return nil, nil, err
		}
		return ev, ev.FilledTakerTokenAmount, nil
	})
}

// FillUpTo fills orders in sequence until total taker units are filled.
// Rejected orders are skipped.
func (m *Manager) FillUpTo(ctx context.Context, orders []*order.SignedOrder, total *big.Int, taker common.Address) (validation.Results, error) {
	if total == nil || total.Sign() < 0 {
		return nil, fmt.Errorf("invalid fill amount: %v", total)
	}
	for _, so := range orders {
		if so != nil && orders[0] != nil && so.TakerTokenAddress != orders[0].TakerTokenAddress {
			return nil, validation.ErrMultipleTakerTokensInFillUpToDisallowed
		}
	}
	outstanding := new(big.Int).Set(total)
	return m.batch(ctx, orders, false, func(i int, state *overlay) (chain.Event, *big.Int, error) {
		if outstanding.Sign() == 0 {
			return nil, nil, errStop
		}
		ev, err := m.fill(ctx, state, orders[i], outstanding, taker, false)
		if err != nil {
			return nil, nil, err
		}
		outstanding.Sub(outstanding, ev.FilledTakerTokenAmount)
		return ev, ev.FilledTakerTokenAmount, nil
	})
}

// BatchCancel cancels several orders of one maker.
func (m *Manager) BatchCancel(ctx context.Context, orders []*order.Order, amounts []*big.Int, sender common.Address) (validation.Results, error) {
	if len(amounts) != len(orders) {
		return nil, fmt.Errorf("got %d amounts for %d orders", len(amounts), len(orders))
	}
	if len(orders) == 0 {
		return nil, validation.ErrBatchOrdersMustHaveAtLeastOneItem
	}
	for _, o := range orders {
		if o == nil {
			return nil, fmt.Errorf("nil order in batch")
		}
		if o.Maker != orders[0].Maker {
			return nil, validation.ErrMultipleMakersInSingleCancelBatchDisallowed
		}
		if o.ExchangeContractAddress != orders[0].ExchangeContractAddress {
			return nil, validation.ErrBatchOrdersMustHaveSameExchangeAddress
		}
	}
	if sender != orders[0].Maker {
		return nil, ErrSenderNotMaker
	}

	signed := make([]*order.SignedOrder, len(orders))
	for i, o := range orders {
		signed[i] = &order.SignedOrder{Order: *o}
	}
	return m.batch(ctx, signed, false, func(i int, state *overlay) (chain.Event, *big.Int, error) {
		ev, err := m.cancel(ctx, state, orders[i], amounts[i])
		if err != nil {
			return nil, nil, err
		}
		return ev, ev.CancelledTakerTokenAmount, nil
	})
}

var errStop = fmt.Errorf("stop")

type step func(i int, state *overlay) (chain.Event, *big.Int, error)

// batch runs one step per order against a shared overlay. Each step works on
// a fork so a rejected step leaves no partial effects.
func (m *Manager) batch(ctx context.Context, orders []*order.SignedOrder, atomic bool, run step) (validation.Results, error) {
	if len(orders) == 0 {
		return nil, validation.ErrBatchOrdersMustHaveAtLeastOneItem
	}
	for _, so := range orders {
		if so == nil {
			return nil, fmt.Errorf("nil order in batch")
		}
		if so.ExchangeContractAddress != orders[0].ExchangeContractAddress {
			return nil, validation.ErrBatchOrdersMustHaveSameExchangeAddress
		}
	}

	m.mu.Lock()
	state := newOverlay(m.store)
	results := make(validation.Results, 0, len(orders))
	var events []chain.Event
	for i, so := range orders {
		if err := ctx.Err(); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		hash, err := order.HashOrder(&so.Order)
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		attempt := state.fork()
		ev, amount, err := run(i, attempt)
		if err == errStop {
			break
		}
		if err != nil {
			if _, isKind := validation.AsExchangeContractErr(err); !isKind {
				m.mu.Unlock()
				return nil, err
			}
			results = append(results, validation.OrderResult{OrderHash: hash, Err: err})
			if atomic {
				m.mu.Unlock()
				return results, results.FirstError()
			}
			continue
		}
		state = attempt
		events = append(events, ev)
		results = append(results, validation.OrderResult{OrderHash: hash, Amount: amount})
	}

	err := state.commit()
	listeners := m.listeners
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		m.record(ev)
		m.publish(listeners, ev)
	}
	return results, nil
}

func (m *Manager) publish(listeners []func(chain.Event), ev chain.Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}
