package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind 表的物理形态
type Kind string

const (
	// KindObject 单行键值表（状态记录、去重标记）
	KindObject Kind = "object"
	// KindFeed 按分区有序的多行表（feed）
	KindFeed Kind = "feed"
	// KindCount 每个键一个计数器
	KindCount Kind = "count"
	// KindRank 按分数排序的多行表（排行榜、过期索引）
	KindRank Kind = "rank"
)

func (k Kind) Valid() bool {
	switch k {
	case KindObject, KindFeed, KindCount, KindRank:
		return true
	}
	return false
}

var (
	ErrUnknownTable   = errors.New("schema: unknown table")
	ErrDuplicateTable = errors.New("schema: duplicate table")
	ErrInvalidTable   = errors.New("schema: invalid table definition")
)

// Table 逻辑表 (container, name) 对应的物理句柄和容量提示
type Table struct {
	Container string
	Name      string
	// Physical 物理表名：mysql 表名 / badger key 前缀 / redis key 前缀
	Physical string
	Kind     Kind
	// MaxFeedLength 容量提示，0 表示不限
	MaxFeedLength int
}

func (t Table) IsZero() bool { return t.Container == "" && t.Name == "" }

func (t Table) String() string { return t.Container + "." + t.Name }

func (t Table) validate() error {
	if t.Container == "" || t.Name == "" {
		return fmt.Errorf("%w: empty container or name", ErrInvalidTable)
	}
	if t.Physical == "" || strings.ContainsRune(t.Physical, 0) {
		return fmt.Errorf("%w: %s: bad physical name %q", ErrInvalidTable, t, t.Physical)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidTable, t, t.Kind)
	}
	if t.MaxFeedLength < 0 {
		return fmt.Errorf("%w: %s: negative max feed length", ErrInvalidTable, t)
	}
	return nil
}

type tableKey struct{ container, name string }

// Registry 启动时构建一次，之后只读；通过依赖注入传给各组件
type Registry struct {
	tables map[tableKey]Table
}

func NewRegistry(defs ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[tableKey]Table, len(defs))}
	physical := make(map[string]Table, len(defs))
	for _, t := range defs {
		if err := t.validate(); err != nil {
			return nil, err
		}
		k := tableKey{t.Container, t.Name}
		if _, ok := r.tables[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTable, t)
		}
		// 物理名也不能重复，否则两张逻辑表会写到同一片 key 空间
		if other, ok := physical[t.Physical]; ok {
			return nil, fmt.Errorf("%w: %s and %s share physical name %q", ErrDuplicateTable, other, t, t.Physical)
		}
		r.tables[k] = t
		physical[t.Physical] = t
	}
	return r, nil
}

func (r *Registry) Table(container, name string) (Table, error) {
	t, ok := r.tables[tableKey{container, name}]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrUnknownTable, container, name)
	}
	return t, nil
}

// MustTable 只用于启动期装配
func (r *Registry) MustTable(container, name string) Table {
	t, err := r.Table(container, name)
	if err != nil {
		panic(err)
	}
	return t
}

// Tables 按物理名排序返回全部表（建表、迁移用）
func (r *Registry) Tables() []Table {
	out := make([]Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Physical < out[j].Physical })
	return out
}
