package mysqldb

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"social-graph-service/backend/internal/entity"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
)

func (s *mysqlStore) table(ctx context.Context, t schema.Table) *gorm.DB {
	return s.db.WithContext(ctx).Table(t.Physical)
}

func (s *mysqlStore) GetRow(ctx context.Context, t schema.Table, pk, rk string) (*repo.Row, error) {
	if t.Kind == schema.KindObject {
		var row entity.ObjectRow
		err := s.table(ctx, t).Where("partition_key = ? AND row_key = ?", pk, rk).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil // 没找到，返回 nil, nil
			}
			return nil, err
		}
		return &repo.Row{Key: row.RowKey, Value: row.Value, Version: row.Version}, nil
	}
	var row entity.FeedRow
	err := s.table(ctx, t).Where("partition_key = ? AND row_key = ?", pk, rk).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &repo.Row{Key: row.RowKey, Value: row.Value}, nil
}

func (s *mysqlStore) ListRows(ctx context.Context, t schema.Table, pk, cursor string, limit int) ([]repo.Row, error) {
	q := s.table(ctx, t).Where("partition_key = ?", pk)
	if cursor != "" {
		q = q.Where("row_key > ?", cursor)
	}
	q = q.Order("row_key ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if t.Kind == schema.KindObject {
		var rows []entity.ObjectRow
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]repo.Row, len(rows))
		for i, r := range rows {
			out[i] = repo.Row{Key: r.RowKey, Value: r.Value, Version: r.Version}
		}
		return out, nil
	}
	var rows []entity.FeedRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]repo.Row, len(rows))
	for i, r := range rows {
		out[i] = repo.Row{Key: r.RowKey, Value: r.Value}
	}
	return out, nil
}

func (s *mysqlStore) GetCount(ctx context.Context, t schema.Table, pk, counter string) (int64, error) {
	var row entity.CountRow
	err := s.table(ctx, t).Where("partition_key = ? AND counter_key = ?", pk, counter).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Value, nil
}

func (s *mysqlStore) GetScore(ctx context.Context, t schema.Table, pk, item string) (float64, bool, error) {
	var row entity.RankRow
	err := s.table(ctx, t).Where("partition_key = ? AND item = ?", pk, item).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.Score, true, nil
}

func toScored(rows []entity.RankRow) []repo.ScoredRow {
	out := make([]repo.ScoredRow, len(rows))
	for i, r := range rows {
		out[i] = repo.ScoredRow{Key: r.Item, Score: r.Score}
	}
	return out
}

func (s *mysqlStore) ScoredBelow(ctx context.Context, t schema.Table, pk string, below float64, limit int) ([]repo.ScoredRow, error) {
	q := s.table(ctx, t).Where("partition_key = ? AND score < ?", pk, below).Order("score ASC, item ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []entity.RankRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toScored(rows), nil
}

func (s *mysqlStore) RevRange(ctx context.Context, t schema.Table, pk string, after *repo.ScoredRow, limit int) ([]repo.ScoredRow, error) {
	q := s.table(ctx, t).Where("partition_key = ?", pk)
	if after != nil {
		q = q.Where("(score < ? OR (score = ? AND item < ?))", after.Score, after.Score, after.Key)
	}
	q = q.Order("score DESC, item DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []entity.RankRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toScored(rows), nil
}

func (s *mysqlStore) Cardinality(ctx context.Context, t schema.Table, pk string) (int64, error) {
	var n int64
	err := s.table(ctx, t).Where("partition_key = ?", pk).Count(&n).Error
	return n, err
}
