package db

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	insertBatchSize   = 200
)

type database struct {
	db *gorm.DB
}

// New creates a new database connection
func New(ctx context.Context, dialect string, dsn string, config *gorm.Config) (Database, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	var db *gorm.DB
	var err error

	if dialect == "sqlite" {
		db, err = gorm.Open(sqlite.Open(dsn), config)
	} else if dialect == "mysql" {
		db, err = gorm.Open(mysql.Open(dsn), config)
	} else {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	if err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&Checkpoint{},
		&Domain{},
		&Event{},
	); err != nil {
		return nil, err
	}

	d := &database{
		db: db,
	}
	return d, nil
}

func (d *database) SaveCheckpoint(registry, auctions []byte, records int) (Checkpoint, error) {
	cp := Checkpoint{
		Registry: string(registry),
		Auctions: string(auctions),
		Records:  records,
	}
	sql := d.db.Create(&cp)
	return cp, sql.Error
}

func (d *database) LatestCheckpoint() (Checkpoint, bool, error) {
	var cps []Checkpoint
	sql := d.db.Order("id desc").Limit(1).Find(&cps)
	if sql.Error != nil {
		return Checkpoint{}, false, sql.Error
	}
	if len(cps) == 0 {
		return Checkpoint{}, false, nil
	}
	return cps[0], true, nil
}

// PurgeCheckpoints deletes all but the newest keep checkpoints.
func (d *database) PurgeCheckpoints(keep int) (int64, error) {
	var ids []uint
	sql := d.db.Model(&Checkpoint{}).Order("id desc").Pluck("id", &ids)
	if sql.Error != nil {
		return 0, sql.Error
	}
	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return 0, nil
	}
	sql = d.db.Delete(&Checkpoint{}, ids[keep:])
	return sql.RowsAffected, sql.Error
}

// ReplaceDomains upserts every given domain and drops rows for nodes no
// longer present.
func (d *database) ReplaceDomains(domains []Domain) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		nodes := make([]string, 0, len(domains))
		for _, dom := range domains {
			nodes = append(nodes, dom.Node)
		}

		del := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if len(nodes) > 0 {
			del = del.Where("node NOT IN ?", nodes)
		}
		if sql := del.Delete(&Domain{}); sql.Error != nil {
			return sql.Error
		}
		if len(domains) == 0 {
			return nil
		}

		sql := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "node"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner", "record_store", "expiry", "token_id", "updated_at"}),
		}).CreateInBatches(&domains, insertBatchSize)
		return sql.Error
	})
}

func (d *database) ListDomainsByOwner(owner string) ([]Domain, error) {
	var domains []Domain
	sql := d.db.Where("owner = ?", owner).Order("token_id").Find(&domains)
	return domains, sql.Error
}

func (d *database) ListDomainsExpiringBefore(at uint64) ([]Domain, error) {
	var domains []Domain
	sql := d.db.Where("expiry < ?", at).Order("expiry").Find(&domains)
	return domains, sql.Error
}

func (d *database) AppendEvents(evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	rows := make([]Event, 0, len(evs))
	for _, ev := range evs {
		row, err := FromEvent(ev)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	sql := d.db.CreateInBatches(&rows, insertBatchSize)
	return sql.Error
}

func (d *database) ListEvents(filter EventFilter) ([]events.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	q := d.db.Model(&Event{}).Order("seq").Limit(limit)
	if filter.Kind != "" {
		q = q.Where("kind = ?", string(filter.Kind))
	}
	if filter.Node != "" {
		q = q.Where("node = ?", filter.Node)
	}
	if filter.Since > 0 {
		q = q.Where("at >= ?", filter.Since)
	}

	var rows []Event
	if sql := q.Find(&rows); sql.Error != nil {
		return nil, sql.Error
	}

	out := make([]events.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.ToEvent()
		if err != nil {
			logrus.Warnf("skipping unreadable event %s: %v", row.EventID, err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (d *database) PurgeEventsBefore(at uint64) (int64, error) {
	sql := d.db.Where("at < ?", at).Delete(&Event{})
	return sql.RowsAffected, sql.Error
}

// FromEvent flattens ev into a row.
func FromEvent(ev events.Event) (Event, error) {
	row := Event{
		EventID: ev.ID,
		Kind:    string(ev.Kind),
		Node:    ev.Node.Hex(),
		Label:   ev.Label,
		Actor:   ev.Actor.Hex(),
		Owner:   ev.Owner.Hex(),
		Expiry:  ev.Expiry,
		At:      ev.At,
	}
	if ev.Amount != nil {
		row.Amount = ev.Amount.String()
	}
	if ev.Refund != nil {
		row.Refund = ev.Refund.String()
	}
	if len(ev.Data) > 0 {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return Event{}, err
		}
		row.Data = string(data)
	}
	return row, nil
}

// ToEvent reverses FromEvent.
func (e Event) ToEvent() (events.Event, error) {
	ev := events.Event{
		ID:     e.EventID,
		Kind:   events.Kind(e.Kind),
		Node:   common.HexToHash(e.Node),
		Label:  e.Label,
		Actor:  common.HexToAddress(e.Actor),
		Owner:  common.HexToAddress(e.Owner),
		Expiry: e.Expiry,
		At:     e.At,
	}
	var ok bool
	if e.Amount != "" {
		if ev.Amount, ok = new(big.Int).SetString(e.Amount, 10); !ok {
			return ev, fmt.Errorf("bad amount %q", e.Amount)
		}
	}
	if e.Refund != "" {
		if ev.Refund, ok = new(big.Int).SetString(e.Refund, 10); !ok {
			return ev, fmt.Errorf("bad refund %q", e.Refund)
		}
	}
	if e.Data != "" {
		if err := json.Unmarshal([]byte(e.Data), &ev.Data); err != nil {
			return ev, err
		}
	}
	return ev, nil
}
