package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore is an embedded on-disk Store. Values are prefixed with an
// 8-byte big-endian expiry (unix seconds, 0 for none).
type LevelDBStore struct {
	db     *leveldb.DB
	incrMu sync.Mutex
}

// OpenLevelDBStore opens (creating if needed) the database directory at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: short leveldb record", ErrInvalidEntry)
	}
	if expires := int64(binary.BigEndian.Uint64(raw[:8])); expires > 0 && time.Now().Unix() >= expires {
		return nil, ErrCacheMiss
	}
	return raw[8:], nil
}

func (s *LevelDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.db.Put([]byte(key), levelRecord(value, ttl), nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Incr(ctx context.Context, key string) (int64, error) {
	s.incrMu.Lock()
	defer s.incrMu.Unlock()

	var current int64
	value, err := s.Get(ctx, key)
	switch {
	case errors.Is(err, ErrCacheMiss):
	case err != nil:
		return 0, err
	default:
		if current, err = strconv.ParseInt(string(value), 10, 64); err != nil {
			return 0, fmt.Errorf("leveldb incr: %w", err)
		}
	}

	current++
	if err := s.Set(ctx, key, []byte(strconv.FormatInt(current, 10)), 0); err != nil {
		return 0, err
	}
	return current, nil
}

func (s *LevelDBStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	s.incrMu.Lock()
	defer s.incrMu.Unlock()
	if _, err := s.Get(ctx, key); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return false, err
	}
	if err := s.Set(ctx, key, value, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LevelDBStore) Ping(ctx context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func levelRecord(value []byte, ttl time.Duration) []byte {
	record := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(record[:8], uint64(time.Now().Add(ttl).Unix()))
	}
	copy(record[8:], value)
	return record
}
