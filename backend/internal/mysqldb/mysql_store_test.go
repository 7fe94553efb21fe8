package mysqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(&mysqldriver.MySQLError{Number: errDuplicateEntry}))
	assert.True(t, isConflict(errVersionMismatch))
	assert.False(t, isConflict(fmt.Errorf("wrapped: %w", &mysqldriver.MySQLError{Number: errDeadlock})))
	assert.False(t, isConflict(&mysqldriver.MySQLError{Number: errLockWait}))
	assert.False(t, isConflict(&mysqldriver.MySQLError{Number: 1146}))
	assert.False(t, isConflict(errors.New("connection refused")))
}

func TestClassify(t *testing.T) {
	dup := classify(0, &mysqldriver.MySQLError{Number: errDuplicateEntry})
	assert.True(t, dup.RowExistsAt(0))

	missing := classify(1, errRowMissing)
	assert.True(t, missing.ConflictAt(1))
	assert.False(t, missing.RowExistsAt(1))

	// 死锁和锁等待超时落在 feed 插入上也不能当成重复
	for _, n := range []uint16{errDeadlock, errLockWait} {
		res := classify(0, fmt.Errorf("insert feed: %w", &mysqldriver.MySQLError{Number: n}))
		assert.Equal(t, txn.OutcomeFailed, res.Outcome, "errno %d", n)
		assert.False(t, res.ConflictAt(0))
		assert.ErrorIs(t, res.Err(), txn.ErrTransactionFailed)
	}
}

func TestIsolation(t *testing.T) {
	assert.Equal(t, sql.LevelSerializable, isolation(txn.Strong))
	assert.Equal(t, sql.LevelRepeatableRead, isolation(txn.Eventual))
	assert.Equal(t, sql.LevelReadCommitted, isolation(txn.Express))
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("root:pw@tcp(127.0.0.1:3306)/social?charset=utf8mb4")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")

	_, err = NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

// 需要真实 MySQL：SOCIAL_TEST_MYSQL_DSN=user:pw@tcp(host:3306)/db
func newIntegrationStore(t *testing.T) (repo.Store, map[schema.Kind]schema.Table) {
	t.Helper()
	dsn := os.Getenv("SOCIAL_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SOCIAL_TEST_MYSQL_DSN not set, skip mysql integration test")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Skipf("mysql not available: %v", err)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	tables := map[schema.Kind]schema.Table{}
	var list []schema.Table
	for _, k := range []schema.Kind{schema.KindObject, schema.KindFeed, schema.KindCount, schema.KindRank} {
		tb := schema.Table{Container: "it", Name: string(k), Physical: fmt.Sprintf("it_%s_%s", k, suffix), Kind: k}
		tables[k] = tb
		list = append(list, tb)
	}
	require.NoError(t, Migrate(context.Background(), db, list))
	t.Cleanup(func() {
		for _, tb := range list {
			_ = db.Migrator().DropTable(tb.Physical)
		}
	})
	return NewMySQLStore(db, nil), tables
}

func TestMySQLStorePortSemantics(t *testing.T) {
	s, tables := newIntegrationStore(t)
	ctx := context.Background()
	obj, feed, cnt, rank := tables[schema.KindObject], tables[schema.KindFeed], tables[schema.KindCount], tables[schema.KindRank]
	run := func(ops ...txn.Op) txn.Result { return s.Execute(ctx, txn.New(txn.Strong).Add(ops...)) }

	require.True(t, run(txn.Insert(obj, "p", "r", []byte("v1")), txn.InsertOrIncrement(cnt, "p", "c", 1)).OK())
	assert.True(t, run(txn.Insert(obj, "p", "r", nil)).RowExistsAt(0))

	row, err := s.GetRow(ctx, obj, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Version)

	require.True(t, run(txn.ReplaceIfVersion(obj, "p", "r", []byte("v2"), 1)).OK())
	assert.True(t, run(txn.ReplaceIfVersion(obj, "p", "r", []byte("v3"), 1)).ConflictAt(0))

	// 后面的操作失败，前面的不落地
	res := run(txn.Insert(feed, "p", "a", nil), txn.Increment(cnt, "p", "c", 1), txn.Delete(feed, "p", "missing"))
	assert.True(t, res.ConflictAt(2))
	rows, err := s.ListRows(ctx, feed, "p", "", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	n, err := s.GetCount(ctx, cnt, "p", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.True(t, run(txn.Scored(rank, "p", "x", 10), txn.Scored(rank, "p", "y", 20), txn.Scored(rank, "p", "x", 30)).OK())
	top, err := s.RevRange(ctx, rank, "p", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "x", Score: 30}, {Key: "y", Score: 20}}, top)
	below, err := s.ScoredBelow(ctx, rank, "p", 30, 0)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "y", Score: 20}}, below)
	card, err := s.Cardinality(ctx, rank, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)
}
