package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/pkg/util"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

// Event is a decoded exchange log.
type Event interface {
	Name() string
	Hash() common.Hash
}

type LogFill struct {
	Maker                  common.Address
	Taker                  common.Address
	FeeRecipient           common.Address
	MakerToken             common.Address
	TakerToken             common.Address
	FilledMakerTokenAmount *big.Int
	FilledTakerTokenAmount *big.Int
	PaidMakerFee           *big.Int
	PaidTakerFee           *big.Int
	Tokens                 [32]byte
	OrderHash              [32]byte
	Raw                    types.Log
}

func (*LogFill) Name() string        { return "LogFill" }
func (e *LogFill) Hash() common.Hash { return common.Hash(e.OrderHash) }

type LogCancel struct {
	Maker                     common.Address
	FeeRecipient              common.Address
	MakerToken                common.Address
	TakerToken                common.Address
	CancelledMakerTokenAmount *big.Int
	CancelledTakerTokenAmount *big.Int
	Tokens                    [32]byte
	OrderHash                 [32]byte
	Raw                       types.Log
}

func (*LogCancel) Name() string        { return "LogCancel" }
func (e *LogCancel) Hash() common.Hash { return common.Hash(e.OrderHash) }

type LogError struct {
	ErrorId   uint8
	OrderHash [32]byte
	Raw       types.Log
}

func (*LogError) Name() string        { return "LogError" }
func (e *LogError) Hash() common.Hash { return common.Hash(e.OrderHash) }

// Kind maps the logged error id to a validation kind.
func (e *LogError) Kind() (validation.ExchangeContractErr, bool) {
	return validation.FromErrorCode(validation.ExchangeContractErrCode(e.ErrorId))
}

// DecodeLog decodes an exchange log into its typed event.
func DecodeLog(log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, errors.New("log has no topics")
	}
	ev, err := ExchangeABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, errors.Wrapf(err, "unknown event %s", log.Topics[0].Hex())
	}

	var out Event
	switch ev.Name {
	case "LogFill":
		out = &LogFill{Raw: log}
	case "LogCancel":
		out = &LogCancel{Raw: log}
	case "LogError":
		out = &LogError{Raw: log}
	default:
		return nil, errors.Errorf("unhandled event %s", ev.Name)
	}

	if len(log.Data) > 0 {
		if err := ExchangeABI.UnpackIntoInterface(out, ev.Name, log.Data); err != nil {
			return nil, errors.Wrapf(err, "unpack %s", ev.Name)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
		return nil, errors.Wrapf(err, "parse %s topics", ev.Name)
	}
	return out, nil
}

func eventTopics() [][]common.Hash {
	return [][]common.Hash{{
		ExchangeABI.Events["LogFill"].ID,
		ExchangeABI.Events["LogCancel"].ID,
		ExchangeABI.Events["LogError"].ID,
	}}
}

// Watcher follows exchange events.
type Watcher struct {
	exchange common.Address
	filterer ethereum.LogFilterer
	log      *zap.SugaredLogger
}

func NewWatcher(exchange common.Address, filterer ethereum.LogFilterer, log *zap.SugaredLogger) *Watcher {
	return &Watcher{exchange: exchange, filterer: filterer, log: util.OrNop(log)}
}

// Past returns decoded events between from and to (nil = latest).
func (w *Watcher) Past(ctx context.Context, from, to *big.Int) ([]Event, error) {
	logs, err := w.filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{w.exchange},
		Topics:    eventTopics(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "filter exchange logs")
	}

	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		ev, err := DecodeLog(l)
		if err != nil {
			w.log.Warnw("event_decode_failed", "tx", l.TxHash.Hex(), "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Watch subscribes to new exchange events and hands each to sink until ctx
// is done or the subscription fails. Removed (reorged) logs are skipped.
func (w *Watcher) Watch(ctx context.Context, sink func(Event)) error {
	ch := make(chan types.Log, 64)
	sub, err := w.filterer.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{w.exchange},
		Topics:    eventTopics(),
	}, ch)
	if err != nil {
		return errors.Wrap(err, "subscribe exchange logs")
	}
	defer sub.Unsubscribe()

	w.log.Infow("event_watch_started", "exchange", w.exchange.Hex())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return errors.Wrap(err, "exchange log subscription")
		case l := <-ch:
			if l.Removed {
				continue
			}
			ev, err := DecodeLog(l)
			if err != nil {
				w.log.Warnw("event_decode_failed", "tx", l.TxHash.Hex(), "err", err)
				continue
			}
			sink(ev)
		}
	}
}
