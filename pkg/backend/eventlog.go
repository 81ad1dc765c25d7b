package backend

import (
	"github.com/acorn-io/acorn-names/pkg/db"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/sirupsen/logrus"
)

// eventLog appends every event to the database. A failed write is logged;
// the operation that produced the event has already applied.
type eventLog struct {
	db db.Database
}

func (l *eventLog) Emit(evs ...events.Event) {
	if err := l.db.AppendEvents(evs...); err != nil {
		logrus.Errorf("failed to persist %d events: %v", len(evs), err)
	}
}
