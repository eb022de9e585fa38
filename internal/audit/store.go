// Package audit keeps an append-only trail of emergency link scans.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/medrex/zeronet/pkg/types"
)

const (
	keyPrefix    = "scan:"
	walletPrefix = "wallet:"
)

// Store persists scan events in LevelDB, ordered by scan time
type Store struct {
	db  *leveldb.DB
	now func() time.Time
}

// Open opens or creates the store at path
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenMemory opens a store that lives only in memory
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends event, assigning an ID and scan time when missing
func (s *Store) Record(event *types.ScanEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.ScannedAt.IsZero() {
		event.ScannedAt = s.now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal scan event: %w", err)
	}

	key := eventKey(event)
	batch := new(leveldb.Batch)
	batch.Put(key, value)
	if event.WalletAddress != "" {
		batch.Put(walletIndexKey(event.WalletAddress, key), key)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write scan event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first
func (s *Store) Recent(limit int) ([]*types.ScanEvent, error) {
	return s.collect([]byte(keyPrefix), limit, func(iter iterator.Iterator) ([]byte, error) {
		return iter.Value(), nil
	})
}

// RecentForWallet returns up to limit events scanned for walletAddress,
// newest first. Matching is case-insensitive.
func (s *Store) RecentForWallet(walletAddress string, limit int) ([]*types.ScanEvent, error) {
	prefix := []byte(walletPrefix + normalizeWallet(walletAddress) + ":")
	return s.collect(prefix, limit, func(iter iterator.Iterator) ([]byte, error) {
		value, err := s.db.Get(iter.Value(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read indexed scan event %q: %w", iter.Value(), err)
		}
		return value, nil
	})
}

// collect walks keys under prefix backwards and decodes what value returns
func (s *Store) collect(prefix []byte, limit int, value func(iterator.Iterator) ([]byte, error)) ([]*types.ScanEvent, error) {
	events := make([]*types.ScanEvent, 0)
	if limit <= 0 {
		return events, nil
	}

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for ok := iter.Last(); ok && len(events) < limit; ok = iter.Prev() {
		raw, err := value(iter)
		if err != nil {
			return nil, err
		}
		var event types.ScanEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan event %q: %w", iter.Key(), err)
		}
		events = append(events, &event)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate scan events: %w", err)
	}

	return events, nil
}

// eventKey sorts lexically by time: scan:{unixnano, zero padded}:{id}
func eventKey(event *types.ScanEvent) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefix, event.ScannedAt.UnixNano(), event.ID))
}

// walletIndexKey is wallet:{wallet}:{event key}, pointing at the event key
func walletIndexKey(walletAddress string, eventKey []byte) []byte {
	return []byte(walletPrefix + normalizeWallet(walletAddress) + ":" + string(eventKey))
}

func normalizeWallet(walletAddress string) string {
	return strings.ToLower(strings.TrimSpace(walletAddress))
}
