package entity

import (
	"time"

	"social-graph-service/backend/internal/schema"
)

// ObjectRow 状态记录/唯一标记表，Version 插入为 1，每次覆盖 +1
type ObjectRow struct {
	PartitionKey string `gorm:"primaryKey;type:varchar(191)"`
	RowKey       string `gorm:"primaryKey;type:varchar(191)"`
	Value        []byte `gorm:"type:blob"`
	Version      int64  `gorm:"not null;default:1"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type FeedRow struct {
	PartitionKey string `gorm:"primaryKey;type:varchar(191)"`
	RowKey       string `gorm:"primaryKey;type:varchar(191)"`
	Value        []byte `gorm:"type:blob"`
	CreatedAt    time.Time
}

type CountRow struct {
	PartitionKey string `gorm:"primaryKey;type:varchar(191)"`
	CounterKey   string `gorm:"primaryKey;type:varchar(191)"`
	Value        int64  `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

type RankRow struct {
	PartitionKey string  `gorm:"primaryKey;type:varchar(191);index:idx_partition_score,priority:1"`
	Item         string  `gorm:"primaryKey;type:varchar(191)"`
	Score        float64 `gorm:"not null;index:idx_partition_score,priority:2"`
	UpdatedAt    time.Time
}

// ModelFor 表类型对应的 gorm 模型，用于 AutoMigrate
func ModelFor(k schema.Kind) interface{} {
	switch k {
	case schema.KindObject:
		return &ObjectRow{}
	case schema.KindFeed:
		return &FeedRow{}
	case schema.KindCount:
		return &CountRow{}
	case schema.KindRank:
		return &RankRow{}
	}
	return nil
}
