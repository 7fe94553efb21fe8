package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

var (
	errRowMissing      = fmt.Errorf("%w: row does not exist", txn.ErrConflict)
	errVersionMismatch = fmt.Errorf("%w: version mismatch", txn.ErrConflict)
)

// Store 基于 badger 读写事务的事务端口实现
type Store struct {
	db     *DB
	logger *slog.Logger
}

var _ repo.Store = (*Store)(nil)

func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Execute(ctx context.Context, tx *txn.Transaction) txn.Result {
	if i, err := tx.Validate(); err != nil {
		return txn.Failure(i, err)
	}
	if err := ctx.Err(); err != nil {
		return txn.Failure(-1, err)
	}

	btx := s.db.NewTransaction(true)
	defer btx.Discard()

	for i, op := range tx.Ops() {
		if err := apply(btx, op); err != nil {
			if errors.Is(err, txn.ErrConflict) {
				return txn.Conflict(i, err)
			}
			return txn.Failure(i, err)
		}
	}

	switch tx.Mode {
	case txn.Express:
		// 前置条件已同步校验，提交结果异步确认
		ops := tx.Len()
		btx.CommitWith(func(err error) {
			if err != nil {
				s.logger.Error("badger async commit failed", slog.Int("ops", ops), slog.String("error", err.Error()))
			}
		})
		return txn.Committed()
	default:
		if err := btx.Commit(); err != nil {
			return commitResult(err)
		}
	}
	if tx.Mode == txn.Strong {
		if err := s.db.Sync(); err != nil {
			// 已提交，只是刷盘失败
			s.logger.Warn("badger sync after strong commit failed", slog.String("error", err.Error()))
		}
	}
	return txn.Committed()
}

func commitResult(err error) txn.Result {
	if errors.Is(err, badger.ErrConflict) {
		return txn.Conflict(-1, err)
	}
	return txn.Failure(-1, err)
}

func apply(btx *badger.Txn, op txn.Op) error {
	switch op.Table.Kind {
	case schema.KindCount:
		return applyCount(btx, op)
	case schema.KindRank:
		return applyRank(btx, op)
	default:
		return applyRow(btx, op)
	}
}

func exists(btx *badger.Txn, key []byte) (*badger.Item, error) {
	item, err := btx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return item, err
}

func applyRow(btx *badger.Txn, op txn.Op) error {
	key := rowKey(op.Table, op.Partition, op.Row)
	item, err := exists(btx, key)
	if err != nil {
		return err
	}
	object := op.Table.Kind == schema.KindObject

	var version int64
	if item != nil && object {
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		version, _ = decodeObject(raw)
	}

	switch op.Kind {
	case txn.OpInsert:
		if item != nil {
			return txn.ErrRowExists
		}
	case txn.OpReplace:
		if item == nil {
			return errRowMissing
		}
		if op.IfVersion > 0 && op.IfVersion != version {
			return fmt.Errorf("%w: stored %d, expected %d", errVersionMismatch, version, op.IfVersion)
		}
	case txn.OpInsertOrReplace:
	case txn.OpDelete:
		if item == nil {
			return errRowMissing
		}
		return btx.Delete(key)
	case txn.OpDeleteIfExists:
		if item == nil {
			return nil
		}
		return btx.Delete(key)
	default:
		return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
	}

	if object {
		return btx.Set(key, encodeObject(version+1, op.Value))
	}
	return btx.Set(key, append([]byte(nil), op.Value...))
}

func applyCount(btx *badger.Txn, op txn.Op) error {
	key := rowKey(op.Table, op.Partition, op.Row)
	item, err := exists(btx, key)
	if err != nil {
		return err
	}
	switch op.Kind {
	case txn.OpDelete, txn.OpDeleteIfExists:
		if item == nil {
			if op.Kind == txn.OpDelete {
				return errRowMissing
			}
			return nil
		}
		return btx.Delete(key)
	case txn.OpIncrement:
		if item == nil {
			return errRowMissing
		}
	case txn.OpInsertOrIncrement:
	default:
		return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
	}
	var n int64
	if item != nil {
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		n = decodeCount(raw)
	}
	return btx.Set(key, encodeCount(n+op.Delta))
}

func applyRank(btx *badger.Txn, op txn.Op) error {
	mkey := memberKey(op.Table, op.Partition, op.Row)
	item, err := exists(btx, mkey)
	if err != nil {
		return err
	}
	var old float64
	if item != nil {
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		old = decodeScore(raw)
	}

	switch op.Kind {
	case txn.OpInsert:
		if item != nil {
			return txn.ErrRowExists
		}
	case txn.OpReplace:
		if item == nil {
			return errRowMissing
		}
	case txn.OpInsertOrReplace:
	case txn.OpDelete, txn.OpDeleteIfExists:
		if item == nil {
			if op.Kind == txn.OpDelete {
				return errRowMissing
			}
			return nil
		}
		if err := btx.Delete(indexKey(op.Table, op.Partition, op.Row, old)); err != nil {
			return err
		}
		return btx.Delete(mkey)
	default:
		return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
	}

	if item != nil {
		if err := btx.Delete(indexKey(op.Table, op.Partition, op.Row, old)); err != nil {
			return err
		}
	}
	if err := btx.Set(mkey, encodeScore(op.Score)); err != nil {
		return err
	}
	return btx.Set(indexKey(op.Table, op.Partition, op.Row, op.Score), nil)
}
