package db

import (
	"time"
)

// Checkpoint is a full copy of the registry and auction state.
type Checkpoint struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Registry  string `gorm:"type:text"` // JSON registry.Snapshot
	Auctions  string `gorm:"type:text"` // JSON auction.Snapshot
	Records   int
}

// Domain is the queryable projection of one domain record. The checkpoint is
// authoritative; this table is rewritten from it.
type Domain struct {
	Node        string `gorm:"primarykey;size:66"`
	Label       string `gorm:"size:63;index"`
	Parent      string `gorm:"size:66;index"`
	Owner       string `gorm:"size:42;index"`
	RecordStore string `gorm:"size:42"`
	Expiry      uint64 `gorm:"index"`
	TokenID     uint64 `gorm:"uniqueIndex"`
	UpdatedAt   time.Time
}

type Event struct {
	Seq     uint   `gorm:"primarykey"`
	EventID string `gorm:"size:36;uniqueIndex"`
	Kind    string `gorm:"size:32;index"`
	Node    string `gorm:"size:66;index"`
	Label   string `gorm:"size:63"`
	Actor   string `gorm:"size:42"`
	Owner   string `gorm:"size:42"`
	Amount  string `gorm:"size:80"`
	Refund  string `gorm:"size:80"`
	Expiry  uint64
	Data    string `gorm:"type:text"` // JSON object
	At      uint64 `gorm:"index"`
}
