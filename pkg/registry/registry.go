// Package registry is the registration and expiry state machine for names.
//
// Every node moves through Available -> Active -> Expired (grace) and back to
// Available, or to Active again when renewed in time. The registry owns the
// domain records and the ownership ledger and is the only writer of either;
// the owner field and the token holder change together in setOwner.
//
// Operations on one node are serialised on a per-node lock. Operations on
// different nodes run in parallel.
package registry

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/clock"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/keylock"
	"github.com/acorn-io/acorn-names/pkg/ledger"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	Day uint64 = 24 * 60 * 60

	DefaultMinDuration = 28 * Day
	DefaultMaxDuration = 10 * pricing.OneYear
	DefaultGracePeriod = 90 * Day
)

type Config struct {
	// Admin holds the admin capability and owns the root node.
	Admin       common.Address
	MinDuration uint64
	MaxDuration uint64
	GracePeriod uint64

	Pricing *pricing.Config
	Clock   clock.Clock
	Events  events.Sink
	Log     *logrus.Entry
}

func (c *Config) complete() error {
	if c.Admin == (common.Address{}) {
		return fmt.Errorf("admin address is required")
	}
	if c.MinDuration == 0 {
		c.MinDuration = DefaultMinDuration
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.MinDuration > c.MaxDuration {
		return fmt.Errorf("%w: min duration %d above max duration %d", model.ErrInvalidDuration, c.MinDuration, c.MaxDuration)
	}
	if c.Pricing == nil {
		c.Pricing = pricing.DefaultConfig()
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	c.Pricing = c.Pricing.Clone()
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.Events == nil {
		c.Events = events.Discard
	}
	if c.Log == nil {
		c.Log = logrus.WithField("component", "registry")
	}
	return nil
}

// Record is the stored state of one registered node.
type Record struct {
	Node        common.Hash    `json:"node"`
	Label       string         `json:"label"`
	Parent      common.Hash    `json:"parent"`
	Owner       common.Address `json:"owner"`
	RecordStore common.Address `json:"recordStore"`
	Expiry      uint64         `json:"expiry"`
	Exists      bool           `json:"exists"`
	TokenID     uint64         `json:"tokenId"`
}

// Receipt reports what an operation charged and what it handed back.
type Receipt struct {
	Node    common.Hash `json:"node"`
	TokenID uint64      `json:"tokenId"`
	Expiry  uint64      `json:"expiry"`
	Charged *big.Int    `json:"charged"`
	Refund  *big.Int    `json:"refund"`
}

// Reservations tells the registry which nodes are held back for another
// process. Reserved reports whether node may not be registered by by.
type Reservations interface {
	Reserved(node common.Hash, by common.Address) bool
}

type Registry struct {
	minDuration uint64
	maxDuration uint64
	gracePeriod uint64
	clock       clock.Clock
	sink        events.Sink
	log         *logrus.Entry

	caps   *capability.Set
	ledger *ledger.Ledger
	locks  keylock.Locks

	// opMu is held shared by every mutation and exclusively by Snapshot.
	opMu sync.RWMutex

	mu           sync.RWMutex
	records      map[common.Hash]Record
	halted       map[common.Hash]bool
	pricing      *pricing.Config
	paused       bool
	reservations Reservations

	poolMu sync.Mutex
	pool   *big.Int
}

// New builds a registry whose root node is owned by cfg.Admin and never
// expires.
func New(cfg Config) (*Registry, error) {
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	r := newRegistry(cfg)
	id, _ := r.ledger.Assign(namehash.Root, cfg.Admin)
	r.records[namehash.Root] = Record{
		Node:    namehash.Root,
		Label:   namehash.RootLabel,
		Parent:  namehash.Zero,
		Owner:   cfg.Admin,
		Expiry:  math.MaxUint64,
		Exists:  true,
		TokenID: id,
	}
	return r, nil
}

func newRegistry(cfg Config) *Registry {
	return &Registry{
		minDuration: cfg.MinDuration,
		maxDuration: cfg.MaxDuration,
		gracePeriod: cfg.GracePeriod,
		clock:       cfg.Clock,
		sink:        cfg.Events,
		log:         cfg.Log,
		caps:        capability.NewSet(cfg.Admin),
		ledger:      ledger.New(),
		records:     map[common.Hash]Record{},
		halted:      map[common.Hash]bool{},
		pricing:     cfg.Pricing,
		pool:        new(big.Int),
	}
}

// SetReservations installs the reservation hook consulted by register.
func (r *Registry) SetReservations(res Reservations) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservations = res
}

func (r *Registry) Now() uint64 {
	return r.clock.Now()
}

func (r *Registry) GracePeriod() uint64 {
	return r.gracePeriod
}

// DurationBounds returns the accepted [min, max] registration duration.
func (r *Registry) DurationBounds() (uint64, uint64) {
	return r.minDuration, r.maxDuration
}

// Record returns a copy of node's record.
func (r *Registry) Record(node common.Hash) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[node]
	return rec, ok
}

// Records returns a copy of every record.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// Name rebuilds the dotted name of a registered node, e.g. "www.foo.acorn".
func (r *Registry) Name(node common.Hash) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var labels []string
	for node != namehash.Zero {
		rec, ok := r.records[node]
		if !ok {
			return "", false
		}
		labels = append(labels, rec.Label)
		node = rec.Parent
	}
	return strings.Join(labels, "."), len(labels) > 0
}

// OwnerOf returns the recorded owner of node, or the zero address. Record
// stores must also check IsExpired before accepting writes from the owner.
func (r *Registry) OwnerOf(node common.Hash) common.Address {
	rec, _ := r.Record(node)
	return rec.Owner
}

// TokenOf returns node's ownership token id.
func (r *Registry) TokenOf(node common.Hash) (uint64, bool) {
	return r.ledger.TokenOf(node)
}

// TokenHolder returns the holder of node's ownership token.
func (r *Registry) TokenHolder(node common.Hash) (common.Address, bool) {
	return r.ledger.Holder(node)
}

// Token returns the node and holder of a token by id.
func (r *Registry) Token(id uint64) (common.Hash, common.Address, bool) {
	node, ok := r.ledger.NodeOf(id)
	if !ok {
		return common.Hash{}, common.Address{}, false
	}
	holder, _ := r.ledger.HolderOf(id)
	return node, holder, true
}

// BalanceOf counts the tokens owner holds.
func (r *Registry) BalanceOf(owner common.Address) int {
	return r.ledger.BalanceOf(owner)
}

// Minted returns the number of tokens ever minted, the root's included.
func (r *Registry) Minted() uint64 {
	return r.ledger.Minted()
}

func (r *Registry) Approved(node common.Hash) common.Address {
	return r.ledger.Approved(node)
}

func (r *Registry) IsApprovedForAll(owner, operator common.Address) bool {
	return r.ledger.IsOperator(owner, operator)
}

// NonceUsed reports whether owner already spent a transfer permit nonce.
func (r *Registry) NonceUsed(owner common.Address, nonce uint64) bool {
	return r.ledger.NonceUsed(owner, nonce)
}

// IsAvailable is true for nodes never registered and for nodes whose grace
// period has elapsed.
func (r *Registry) IsAvailable(node common.Hash) bool {
	rec, ok := r.Record(node)
	return r.available(rec, ok, r.clock.Now())
}

func (r *Registry) IsExpired(node common.Hash) bool {
	rec, ok := r.Record(node)
	return ok && r.clock.Now() > rec.Expiry
}

// IsInGracePeriod is true between expiry and the end of the grace period.
func (r *Registry) IsInGracePeriod(node common.Hash) bool {
	rec, ok := r.Record(node)
	if !ok {
		return false
	}
	now := r.clock.Now()
	return now > rec.Expiry && now <= clock.AddSat(rec.Expiry, r.gracePeriod)
}

func (r *Registry) available(rec Record, ok bool, now uint64) bool {
	return !ok || !rec.Exists || now > clock.AddSat(rec.Expiry, r.gracePeriod)
}

// PriceOf is the registration cost of label directly under the root.
func (r *Registry) PriceOf(label string, duration uint64) (*big.Int, error) {
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pricing.PriceOf(label, node, duration), nil
}

// RenewalPriceOf is the renewal cost of a registered node.
func (r *Registry) RenewalPriceOf(node common.Hash, duration uint64) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[node]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", model.ErrNotFound, node.Hex())
	}
	return r.pricing.RenewalPriceOf(rec.Label, node, duration), nil
}

// Pricing returns a copy of the current pricing table.
func (r *Registry) Pricing() *pricing.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pricing.Clone()
}

func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// Collected returns the payments collected and not yet withdrawn.
func (r *Registry) Collected() *big.Int {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	return new(big.Int).Set(r.pool)
}

func (r *Registry) HasCapability(who common.Address, c capability.Capability) bool {
	return r.caps.Has(who, c)
}

// Halted reports whether node was frozen after its owner and token holder
// were found out of sync.
func (r *Registry) Halted(node common.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.halted[node]
}

// lockNode takes the per-node lock plus the shared operation lock.
func (r *Registry) lockNode(node common.Hash) func() {
	r.opMu.RLock()
	unlock := r.locks.Lock(node[:])
	return func() {
		unlock()
		r.opMu.RUnlock()
	}
}

// Hold runs fn under node's lock while the registry is running and node is
// available, so a registration of node either lands before fn or sees what
// fn reserved.
func (r *Registry) Hold(node common.Hash, fn func() error) error {
	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return err
	}
	if r.Halted(node) {
		return fmt.Errorf("%w: node %s is halted", model.ErrInvariantViolation, node.Hex())
	}
	if !r.IsAvailable(node) {
		return fmt.Errorf("%w: node %s", model.ErrNameUnavailable, node.Hex())
	}
	return fn()
}

// Guard runs fn under node's lock while the registry is running.
func (r *Registry) Guard(node common.Hash, fn func() error) error {
	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return err
	}
	return fn()
}

func (r *Registry) checkRunning() error {
	if r.Paused() {
		return model.ErrSystemPaused
	}
	return nil
}

func (r *Registry) checkDuration(duration uint64) error {
	if duration < r.minDuration || duration > r.maxDuration {
		return fmt.Errorf("%w: %d not in [%d, %d]", model.ErrInvalidDuration, duration, r.minDuration, r.maxDuration)
	}
	return nil
}

// loadLive returns node's record, failing for unknown or halted nodes.
func (r *Registry) loadLive(node common.Hash) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.halted[node] {
		return Record{}, fmt.Errorf("%w: node %s is halted", model.ErrInvariantViolation, node.Hex())
	}
	rec, ok := r.records[node]
	if !ok || !rec.Exists {
		return Record{}, fmt.Errorf("%w: node %s", model.ErrNotFound, node.Hex())
	}
	return rec, nil
}

func (r *Registry) store(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Node] = rec
}

func (r *Registry) collect(amount *big.Int) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	r.pool.Add(r.pool, amount)
}

func (r *Registry) emit(evs ...events.Event) {
	r.sink.Emit(evs...)
}

func refund(payment, price *big.Int) *big.Int {
	return new(big.Int).Sub(payment, price)
}

func amount(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
