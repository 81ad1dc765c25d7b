package db

import (
	"github.com/acorn-io/acorn-names/pkg/events"
)

type Database interface {
	SaveCheckpoint(registry, auctions []byte, records int) (Checkpoint, error)
	LatestCheckpoint() (Checkpoint, bool, error)
	PurgeCheckpoints(keep int) (int64, error)
	ReplaceDomains(domains []Domain) error
	ListDomainsByOwner(owner string) ([]Domain, error)
	ListDomainsExpiringBefore(at uint64) ([]Domain, error)
	AppendEvents(evs ...events.Event) error
	ListEvents(filter EventFilter) ([]events.Event, error)
	PurgeEventsBefore(at uint64) (int64, error)
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	Kind  events.Kind
	Node  string
	Since uint64
	Limit int
}
