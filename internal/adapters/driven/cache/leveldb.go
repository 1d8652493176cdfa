package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

var entryPrefix = []byte("e:")

// FileStore persists entries in a LevelDB database under a directory, so
// they survive across process runs.
type FileStore struct {
	path   string
	db     *leveldb.DB
	logger *zap.Logger
}

// NewFileStore opens (or creates) the database at path. A corrupted
// database is recovered rather than rejected.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := leveldb.OpenFile(path, nil)
	if lderrors.IsCorrupted(err) {
		logger.Warn("cache database corrupted, recovering", zap.String("path", path), zap.Error(err))
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, domain.CacheError(domain.ErrCodeCacheUnavailable, path, err)
	}
	return &FileStore{path: path, db: db, logger: logger}, nil
}

func entryKey(key string) []byte {
	return append(append([]byte(nil), entryPrefix...), key...)
}

// Get reads and decodes the entry stored under key.
func (s *FileStore) Get(_ context.Context, key string) (*domain.CacheEntry, error) {
	b, err := s.db.Get(entryKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, domain.CacheError(domain.ErrCodeCacheUnavailable, key, err)
	}
	return decodeEntry(key, b)
}

// Put encodes and writes entry.
func (s *FileStore) Put(_ context.Context, entry *domain.CacheEntry) error {
	b, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := s.db.Put(entryKey(entry.Key), b, nil); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, entry.Key, err)
	}
	return nil
}

// Delete removes key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := s.db.Delete(entryKey(key), nil); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, key, err)
	}
	return nil
}

// Prune removes prunable entries in one batch. Entries that no longer
// decode are removed as well.
func (s *FileStore) Prune(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	return s.deleteWhere(ctx, func(key string, value []byte) bool {
		entry, err := decodeEntry(key, value)
		if err != nil {
			s.logger.Debug("pruning undecodable cache entry", zap.String("key", key), zap.Error(err))
			return true
		}
		return entry.Prunable(now, grace)
	})
}

// Clear removes every entry.
func (s *FileStore) Clear(ctx context.Context) error {
	_, err := s.deleteWhere(ctx, func(string, []byte) bool { return true })
	return err
}

func (s *FileStore) deleteWhere(ctx context.Context, match func(key string, value []byte) bool) (int, error) {
	it := s.db.NewIterator(util.BytesPrefix(entryPrefix), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		key := string(bytes.TrimPrefix(it.Key(), entryPrefix))
		if match(key, it.Value()) {
			batch.Delete(append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Error(); err != nil {
		return 0, domain.CacheError(domain.ErrCodeCacheUnavailable, s.path, err)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, domain.CacheError(domain.ErrCodeCacheUnavailable, s.path, err)
	}
	return batch.Len(), nil
}

// Path returns the database directory.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Name() string { return string(KindFile) }

// Close closes the database.
func (s *FileStore) Close() error {
	return s.db.Close()
}

var _ ports.CacheStore = (*FileStore)(nil)
