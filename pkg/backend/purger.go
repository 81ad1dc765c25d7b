package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/acorn-io/acorn-names/pkg/db"
	"github.com/acorn-io/acorn-names/pkg/registry"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

func (b *backend) StartCheckpointDaemon(stopCh <-chan struct{}) {
	logrus.Infof("starting checkpoint daemon. Interval: %v, checkpoints kept: %v, event retention: %v",
		b.checkpointInterval, b.keepCheckpoints, b.eventRetention)
	wait.JitterUntil(func() {
		if err := b.Checkpoint(); err != nil {
			logrus.Errorf("checkpoint failed: %v", err)
		}
	}, b.checkpointInterval, .002, true, stopCh)
	// One last checkpoint on the way out.
	if err := b.Checkpoint(); err != nil {
		logrus.Errorf("final checkpoint failed: %v", err)
	}
}

// Checkpoint saves the registry and the auction engine together, rewrites
// the domain projection, and purges old checkpoints and events.
func (b *backend) Checkpoint() error {
	b.auctionMu.Lock()
	regSnap := b.registry.Snapshot()
	aucSnap := b.engine.Snapshot()
	b.auctionMu.Unlock()

	regData, err := json.Marshal(regSnap)
	if err != nil {
		return fmt.Errorf("encode registry snapshot: %w", err)
	}
	aucData, err := json.Marshal(aucSnap)
	if err != nil {
		return fmt.Errorf("encode auction snapshot: %w", err)
	}
	cp, err := b.db.SaveCheckpoint(regData, aucData, len(regSnap.Records))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	logrus.Debugf("saved checkpoint %d with %d records", cp.ID, cp.Records)

	if err := b.db.ReplaceDomains(projection(regSnap.Records)); err != nil {
		return fmt.Errorf("rewrite domain projection: %w", err)
	}

	purged, err := b.db.PurgeCheckpoints(b.keepCheckpoints)
	if err != nil {
		logrus.Errorf("problem purging old checkpoints: %v", err)
	} else if purged > 0 {
		logrus.Infof("Checkpoints purged from DB: %v", purged)
	}

	if b.eventRetention > 0 {
		retention := uint64(b.eventRetention / time.Second)
		if now := b.registry.Now(); now > retention {
			purged, err := b.db.PurgeEventsBefore(now - retention)
			if err != nil {
				logrus.Errorf("problem purging old events: %v", err)
			} else if purged > 0 {
				logrus.Infof("Events purged from DB: %v", purged)
			}
		}
	}
	return nil
}

func projection(records []registry.Record) []db.Domain {
	out := make([]db.Domain, 0, len(records))
	for _, rec := range records {
		if !rec.Exists {
			continue
		}
		expiry := rec.Expiry
		if expiry > math.MaxInt64 {
			// The root never expires; sql drivers reject uint64 with the high bit set.
			expiry = math.MaxInt64
		}
		out = append(out, db.Domain{
			Node:        rec.Node.Hex(),
			Label:       rec.Label,
			Parent:      rec.Parent.Hex(),
			Owner:       rec.Owner.Hex(),
			RecordStore: rec.RecordStore.Hex(),
			Expiry:      expiry,
			TokenID:     rec.TokenID,
		})
	}
	return out
}
