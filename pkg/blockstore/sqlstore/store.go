// Package sqlstore keeps blocks and progress scalars in a sqlite database
package sqlstore

import (
	"context"
	"database/sql"

	"github.com/nearfs/gateway/pkg/blockstore"
)

type SQLBlockStore struct {
	db *sql.DB
}

var _ blockstore.Store = (*SQLBlockStore)(nil)

func NewSQLBlockStore(db *sql.DB) *SQLBlockStore {
	return &SQLBlockStore{db: db}
}

// Open opens the database at dbPath and makes sure its tables exist
func Open(ctx context.Context, dbPath string) (*SQLBlockStore, error) {
	db, err := SqlDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := CreateTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLBlockStore(db), nil
}

func (s *SQLBlockStore) Get(ctx context.Context, digest []byte) ([]byte, error) {
	if err := blockstore.CheckDigest(digest); err != nil {
		return nil, err
	}
	return BlockData(ctx, s.db, digest)
}

func (s *SQLBlockStore) Put(ctx context.Context, digest []byte, data []byte) error {
	if err := blockstore.VerifyDigest(digest, data); err != nil {
		return err
	}
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		has, size, err := BlockSize(ctx, tx, digest)
		if err != nil {
			return err
		}
		if has {
			_, err := blockstore.CheckExisting(digest, size, len(data))
			return err
		}
		return InsertBlock(ctx, tx, &Block{
			Digest: digest,
			Size:   int64(len(data)),
			Data:   data,
		})
	})
}

func (s *SQLBlockStore) LatestHeight(ctx context.Context) (uint64, bool, error) {
	has, value, err := Progress(ctx, s.db, blockstore.LatestHeightKey)
	return uint64(value), has, err
}

func (s *SQLBlockStore) SetLatestHeight(ctx context.Context, height uint64) error {
	return SetProgress(ctx, s.db, &ProgressValue{Name: blockstore.LatestHeightKey, Value: int64(height)})
}

func (s *SQLBlockStore) LatestTimestamp(ctx context.Context) (int64, bool, error) {
	has, value, err := Progress(ctx, s.db, blockstore.LatestTimestampKey)
	return value, has, err
}

func (s *SQLBlockStore) SetLatestTimestamp(ctx context.Context, timestamp int64) error {
	return SetProgress(ctx, s.db, &ProgressValue{Name: blockstore.LatestTimestampKey, Value: timestamp})
}

func (s *SQLBlockStore) Close() error {
	return s.db.Close()
}

func withTransaction(ctx context.Context, db *sql.DB, f func(*sql.Tx) error) (err error) {
	var tx *sql.Tx
	tx, err = db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	err = f(tx)
	return
}
