// Package repository provides database persistence for rendered flame
// graphs.
package repository

import "time"

// Graph kinds as stored in the kind column.
const (
	KindSingle = "single"
	KindDiff   = "diff"
)

// FlameGraphRecord represents the flame_graphs table. For single
// profiles TotalAfter is zero and TotalBefore holds the sample count.
type FlameGraphRecord struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UUID        string    `gorm:"column:uuid;type:varchar(64);uniqueIndex"`
	Title       string    `gorm:"column:title;type:varchar(256)"`
	Kind        string    `gorm:"column:kind;type:varchar(16)"`
	TotalBefore int64     `gorm:"column:total_before"`
	TotalAfter  int64     `gorm:"column:total_after"`
	MaxDepth    int       `gorm:"column:max_depth"`
	StorageKey  string    `gorm:"column:storage_key;type:varchar(512)"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for FlameGraphRecord.
func (FlameGraphRecord) TableName() string {
	return "flame_graphs"
}
