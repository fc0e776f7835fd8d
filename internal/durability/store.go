package durability

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store is the embedded-KV durable sink. Keys are prefixed by record kind
// so that a cold-start replay can range-scan just the orders, or just the
// trades, without decoding unrelated records.
type Store struct {
	db *pebble.DB
}

// Key prefixes, one byte each to keep keys compact.
const (
	prefixOrderAccepted byte = 'a'
	prefixOrderCanceled byte = 'c'
	prefixOrderFilled   byte = 'f'
	prefixTrade         byte = 't'
)

// OpenStore opens (or creates) a pebble database at path.
func OpenStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("durability: open pebble store: %w", err)
	}
	return &Store{db: db}, nil
}

func seqKey(prefix byte, seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PutOrderAccepted persists an accepted-order record durably (fsync'd).
func (s *Store) PutOrderAccepted(r *OrderAcceptedRecord) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	return s.db.Set(seqKey(prefixOrderAccepted, r.SequenceNum), data, pebble.Sync)
}

// PutOrderCanceled persists a canceled-order record durably.
func (s *Store) PutOrderCanceled(r *OrderCanceledRecord) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	return s.db.Set(seqKey(prefixOrderCanceled, r.SequenceNum), data, pebble.Sync)
}

// PutOrderFilled persists a filled-order record durably.
func (s *Store) PutOrderFilled(r *OrderFilledRecord) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	return s.db.Set(seqKey(prefixOrderFilled, r.SequenceNum), data, pebble.Sync)
}

// PutTrade persists a trade record durably.
func (s *Store) PutTrade(r *TradeExecutedRecord) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	return s.db.Set(seqKey(prefixTrade, r.SequenceNum), data, pebble.Sync)
}

// LastTradeSequence scans backward from the end of the trade keyspace to
// find the highest persisted trade sequence number, used to seed counters
// on restart. Returns 0 if the store holds no trades.
func (s *Store) LastTradeSequence() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixTrade},
		UpperBound: []byte{prefixTrade + 1},
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	key := iter.Key()
	if len(key) != 9 {
		return 0, fmt.Errorf("durability: malformed trade key")
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
