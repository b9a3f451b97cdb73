package storage

import (
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// Store provides Pebble-based persistence for signed orders and simulated
// exchange state (balances, allowances, fill and cancel counters).
// Callers serialize writes; Store adds no locking of its own.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		MaxOpenFiles:             500,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble db at %s", dbPath)
	}
	return &Store{db: db}, nil
}

// NewMemStore opens a Pebble database backed by an in-memory filesystem.
// Contents are lost on Close.
func NewMemStore() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory pebble db")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveOrder persists a signed order under its hash.
func (s *Store) SaveOrder(so *order.SignedOrder) (common.Hash, error) {
	hash, err := order.HashOrder(&so.Order)
	if err != nil {
		return common.Hash{}, err
	}
	data, err := encodeOrder(so)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.db.Set(orderKey(hash), data, pebble.Sync); err != nil {
		return common.Hash{}, errors.Wrap(err, "save order")
	}
	return hash, nil
}

// LoadOrder returns nil if the order is unknown.
func (s *Store) LoadOrder(hash common.Hash) (*order.SignedOrder, error) {
	data, closer, err := s.db.Get(orderKey(hash))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	defer closer.Close()
	return decodeOrder(data)
}

func (s *Store) DeleteOrder(hash common.Hash) error {
	if err := s.db.Delete(orderKey(hash), pebble.Sync); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

// LoadOrders returns every stored order, in hash order.
func (s *Store) LoadOrders() ([]*order.SignedOrder, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	defer iter.Close()

	var orders []*order.SignedOrder
	for iter.First(); iter.Valid(); iter.Next() {
		so, err := decodeOrder(iter.Value())
		if err != nil {
			continue // Skip invalid entries
		}
		orders = append(orders, so)
	}
	return orders, nil
}

func (s *Store) Balance(token, owner common.Address) (*big.Int, error) {
	return s.amount(balanceKey(token, owner))
}

func (s *Store) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	return s.amount(allowanceKey(token, owner, spender))
}

func (s *Store) Filled(hash common.Hash) (*big.Int, error) {
	return s.amount(filledKey(hash))
}

func (s *Store) Cancelled(hash common.Hash) (*big.Int, error) {
	return s.amount(cancelledKey(hash))
}

func (s *Store) amount(key []byte) (*big.Int, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	defer closer.Close()
	return decodeAmount(data), nil
}

// BatchWrite groups state changes so a settlement lands atomically.
type BatchWrite struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *BatchWrite {
	return &BatchWrite{batch: s.db.NewBatch()}
}

func (bw *BatchWrite) SetBalance(token, owner common.Address, v *big.Int) error {
	return bw.setAmount(balanceKey(token, owner), v)
}

func (bw *BatchWrite) SetAllowance(token, owner, spender common.Address, v *big.Int) error {
	return bw.setAmount(allowanceKey(token, owner, spender), v)
}

func (bw *BatchWrite) SetFilled(hash common.Hash, v *big.Int) error {
	return bw.setAmount(filledKey(hash), v)
}

func (bw *BatchWrite) SetCancelled(hash common.Hash, v *big.Int) error {
	return bw.setAmount(cancelledKey(hash), v)
}

func (bw *BatchWrite) setAmount(key []byte, v *big.Int) error {
	data, err := encodeAmount(v)
	if err != nil {
		return err
	}
	return bw.batch.Set(key, data, nil)
}

// Commit writes the batch to Pebble atomically
func (bw *BatchWrite) Commit() error {
	if err := bw.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	return nil
}

// Close releases the batch; uncommitted writes are discarded.
func (bw *BatchWrite) Close() error {
	return bw.batch.Close()
}
