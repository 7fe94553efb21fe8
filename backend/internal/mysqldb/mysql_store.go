package mysqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"social-graph-service/backend/internal/entity"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

const (
	errDuplicateEntry = 1062
	errLockWait       = 1205
	errDeadlock       = 1213
)

var (
	errRowMissing      = fmt.Errorf("%w: row does not exist", txn.ErrConflict)
	errVersionMismatch = fmt.Errorf("%w: row missing or version mismatch", txn.ErrConflict)
)

// NormalizeDSN 打开 clientFoundRows，让 RowsAffected 统计匹配行而不是变化行
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func Open(dsn string) (*gorm.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	return gorm.Open(mysql.Open(normalized), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// Migrate 每张逻辑表建一张物理表
func Migrate(ctx context.Context, db *gorm.DB, tables []schema.Table) error {
	for _, t := range tables {
		model := entity.ModelFor(t.Kind)
		if model == nil {
			return fmt.Errorf("no model for table %s kind %q", t, t.Kind)
		}
		if err := db.WithContext(ctx).Table(t.Physical).AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %s: %w", t.Physical, err)
		}
	}
	return nil
}

type mysqlStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewMySQLStore(db *gorm.DB, logger *slog.Logger) repo.Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &mysqlStore{db: db, logger: logger}
}

func isolation(m txn.ConsistencyMode) sql.IsolationLevel {
	switch m {
	case txn.Eventual:
		return sql.LevelRepeatableRead
	case txn.Express:
		return sql.LevelReadCommitted
	default:
		return sql.LevelSerializable
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

// isConflict 唯一键冲突和前置条件不满足归为冲突
//
// 死锁、锁等待超时不是：它们与数据无关，按失败返回交给调用方重试
func isConflict(err error) bool {
	return errors.Is(err, txn.ErrConflict) || isDuplicate(err)
}

// isTransient 死锁 / 锁等待超时
func isTransient(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == errDeadlock || mysqlErr.Number == errLockWait
	}
	return false
}

// classify 把事务错误转成 Result
func classify(failedAt int, err error) txn.Result {
	switch {
	case isTransient(err):
		return txn.Failure(failedAt, err)
	case isDuplicate(err):
		return txn.Conflict(failedAt, fmt.Errorf("%w: %w", txn.ErrRowExists, err))
	case isConflict(err):
		return txn.Conflict(failedAt, err)
	}
	return txn.Failure(failedAt, err)
}

func (s *mysqlStore) Execute(ctx context.Context, tx *txn.Transaction) txn.Result {
	if i, err := tx.Validate(); err != nil {
		return txn.Failure(i, err)
	}
	failedAt := -1
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		for i, op := range tx.Ops() {
			if err := apply(gtx, op); err != nil {
				failedAt = i
				return err
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: isolation(tx.Mode)})
	if err == nil {
		return txn.Committed()
	}
	return classify(failedAt, err)
}

func where(gtx *gorm.DB, t schema.Table, pk, rk string) *gorm.DB {
	key := "row_key"
	switch t.Kind {
	case schema.KindCount:
		key = "counter_key"
	case schema.KindRank:
		key = "item"
	}
	return gtx.Table(t.Physical).Where("partition_key = ? AND "+key+" = ?", pk, rk)
}

func affected(res *gorm.DB, missing error) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missing
	}
	return nil
}

func apply(gtx *gorm.DB, op txn.Op) error {
	now := time.Now()
	t := op.Table
	switch op.Kind {
	case txn.OpDelete:
		return affected(where(gtx, t, op.Partition, op.Row).Delete(entity.ModelFor(t.Kind)), errRowMissing)
	case txn.OpDeleteIfExists:
		return where(gtx, t, op.Partition, op.Row).Delete(entity.ModelFor(t.Kind)).Error
	}

	switch t.Kind {
	case schema.KindObject:
		return applyObject(gtx, op, now)
	case schema.KindFeed:
		return applyFeed(gtx, op, now)
	case schema.KindCount:
		return applyCount(gtx, op, now)
	case schema.KindRank:
		return applyRank(gtx, op, now)
	}
	return fmt.Errorf("%w: table %s kind %q", txn.ErrInvalidArgument, t, t.Kind)
}

func applyObject(gtx *gorm.DB, op txn.Op, now time.Time) error {
	row := entity.ObjectRow{PartitionKey: op.Partition, RowKey: op.Row, Value: op.Value, Version: 1, CreatedAt: now, UpdatedAt: now}
	bump := map[string]interface{}{"value": op.Value, "version": gorm.Expr("version + 1"), "updated_at": now}
	switch op.Kind {
	case txn.OpInsert:
		return gtx.Table(op.Table.Physical).Create(&row).Error
	case txn.OpReplace:
		q := where(gtx, op.Table, op.Partition, op.Row)
		missing := errRowMissing
		if op.IfVersion > 0 {
			q = q.Where("version = ?", op.IfVersion)
			missing = errVersionMismatch
		}
		return affected(q.Updates(bump), missing)
	case txn.OpInsertOrReplace:
		return gtx.Table(op.Table.Physical).
			Clauses(clause.OnConflict{DoUpdates: clause.Assignments(bump)}).
			Create(&row).Error
	}
	return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
}

func applyFeed(gtx *gorm.DB, op txn.Op, now time.Time) error {
	row := entity.FeedRow{PartitionKey: op.Partition, RowKey: op.Row, Value: op.Value, CreatedAt: now}
	switch op.Kind {
	case txn.OpInsert:
		return gtx.Table(op.Table.Physical).Create(&row).Error
	case txn.OpReplace:
		return affected(where(gtx, op.Table, op.Partition, op.Row).Update("value", op.Value), errRowMissing)
	case txn.OpInsertOrReplace:
		return gtx.Table(op.Table.Physical).
			Clauses(clause.OnConflict{DoUpdates: clause.Assignments(map[string]interface{}{"value": op.Value})}).
			Create(&row).Error
	}
	return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
}

func applyCount(gtx *gorm.DB, op txn.Op, now time.Time) error {
	incr := map[string]interface{}{"value": gorm.Expr("value + ?", op.Delta), "updated_at": now}
	switch op.Kind {
	case txn.OpIncrement:
		return affected(where(gtx, op.Table, op.Partition, op.Row).Updates(incr), errRowMissing)
	case txn.OpInsertOrIncrement:
		row := entity.CountRow{PartitionKey: op.Partition, CounterKey: op.Row, Value: op.Delta, UpdatedAt: now}
		return gtx.Table(op.Table.Physical).
			Clauses(clause.OnConflict{DoUpdates: clause.Assignments(incr)}).
			Create(&row).Error
	}
	return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
}

func applyRank(gtx *gorm.DB, op txn.Op, now time.Time) error {
	row := entity.RankRow{PartitionKey: op.Partition, Item: op.Row, Score: op.Score, UpdatedAt: now}
	rescore := map[string]interface{}{"score": op.Score, "updated_at": now}
	switch op.Kind {
	case txn.OpInsert:
		return gtx.Table(op.Table.Physical).Create(&row).Error
	case txn.OpReplace:
		return affected(where(gtx, op.Table, op.Partition, op.Row).Updates(rescore), errRowMissing)
	case txn.OpInsertOrReplace:
		return gtx.Table(op.Table.Physical).
			Clauses(clause.OnConflict{DoUpdates: clause.Assignments(rescore)}).
			Create(&row).Error
	}
	return fmt.Errorf("%w: %s on %s", txn.ErrInvalidArgument, op.Kind, op.Table)
}
