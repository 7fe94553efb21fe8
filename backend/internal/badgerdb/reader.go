package badgerdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
)

func (s *Store) view(ctx context.Context, fn func(btx *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) GetRow(ctx context.Context, t schema.Table, pk, rk string) (*repo.Row, error) {
	var row *repo.Row
	err := s.view(ctx, func(btx *badger.Txn) error {
		item, err := btx.Get(rowKey(t, pk, rk))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		row = decodeRow(t, rk, raw)
		return nil
	})
	return row, err
}

func decodeRow(t schema.Table, rk string, raw []byte) *repo.Row {
	if t.Kind == schema.KindObject {
		version, value := decodeObject(raw)
		return &repo.Row{Key: rk, Value: value, Version: version}
	}
	return &repo.Row{Key: rk, Value: raw}
}

func (s *Store) ListRows(ctx context.Context, t schema.Table, pk, cursor string, limit int) ([]repo.Row, error) {
	prefix := partitionPrefix(t, pk)
	var rows []repo.Row
	err := s.view(ctx, func(btx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := btx.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if cursor != "" {
			seek = append(append([]byte(nil), prefix...), cursor...)
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			rk := string(it.Item().Key()[len(prefix):])
			if rk == cursor {
				continue
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rows = append(rows, *decodeRow(t, rk, raw))
			if limit > 0 && len(rows) >= limit {
				break
			}
		}
		return nil
	})
	return rows, err
}

func (s *Store) GetCount(ctx context.Context, t schema.Table, pk, counter string) (int64, error) {
	var n int64
	err := s.view(ctx, func(btx *badger.Txn) error {
		item, err := btx.Get(rowKey(t, pk, counter))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n = decodeCount(val)
			return nil
		})
	})
	return n, err
}

func (s *Store) GetScore(ctx context.Context, t schema.Table, pk, item string) (float64, bool, error) {
	var (
		score float64
		ok    bool
	)
	err := s.view(ctx, func(btx *badger.Txn) error {
		it, err := btx.Get(memberKey(t, pk, item))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return it.Value(func(val []byte) error {
			score = decodeScore(val)
			return nil
		})
	})
	return score, ok, err
}

func parseIndexKey(prefix, key []byte) (repo.ScoredRow, bool) {
	rest := key[len(prefix):]
	if len(rest) < 8 {
		return repo.ScoredRow{}, false
	}
	return repo.ScoredRow{
		Key:   string(rest[8:]),
		Score: scoreFromSortable(binary.BigEndian.Uint64(rest[:8])),
	}, true
}

func (s *Store) ScoredBelow(ctx context.Context, t schema.Table, pk string, below float64, limit int) ([]repo.ScoredRow, error) {
	prefix := indexPrefix(t, pk)
	var out []repo.ScoredRow
	err := s.view(ctx, func(btx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := btx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			r, ok := parseIndexKey(prefix, it.Item().Key())
			if !ok {
				continue
			}
			if r.Score >= below {
				break
			}
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) RevRange(ctx context.Context, t schema.Table, pk string, after *repo.ScoredRow, limit int) ([]repo.ScoredRow, error) {
	prefix := indexPrefix(t, pk)
	var out []repo.ScoredRow
	err := s.view(ctx, func(btx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		opts.Reverse = true
		it := btx.NewIterator(opts)
		defer it.Close()

		seek := indexEnd(t, pk)
		var skip []byte
		if after != nil {
			seek = indexKey(t, pk, after.Key, after.Score)
			skip = seek
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if skip != nil && bytes.Equal(it.Item().Key(), skip) {
				continue
			}
			r, ok := parseIndexKey(prefix, it.Item().Key())
			if !ok {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) Cardinality(ctx context.Context, t schema.Table, pk string) (int64, error) {
	prefix := memberPrefix(t, pk)
	var n int64
	err := s.view(ctx, func(btx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := btx.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
