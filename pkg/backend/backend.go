package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/acorn-io/acorn-names/pkg/auction"
	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/db"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/ledger"
	"github.com/acorn-io/acorn-names/pkg/metrics"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/acorn-io/acorn-names/pkg/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

const resolverCacheSize = 4096

type Backend interface {
	GetName(name string) (model.NameResponse, error)
	GetPrice(label string, duration uint64) (model.PriceResponse, error)
	Buy(caller common.Address, req model.BuyRequest) (model.ReceiptResponse, error)
	Register(caller common.Address, req model.RegisterRequest) (model.ReceiptResponse, error)
	Renew(caller common.Address, name string, req model.RenewRequest) (model.ReceiptResponse, error)
	Transfer(caller common.Address, name string, req model.TransferRequest) error
	TransferWithPermit(caller common.Address, req model.PermitRequest) error
	SetRecordStore(caller common.Address, name string, req model.RecordStoreRequest) error
	Approve(caller common.Address, name string, req model.ApproveRequest) error
	SetOperator(caller common.Address, req model.OperatorRequest) error
	GetOperator(owner, operator common.Address) model.OperatorResponse

	GetToken(id uint64) (model.TokenResponse, error)
	GetRegistry() model.RegistryResponse
	ListNamesByOwner(owner common.Address) (model.OwnerResponse, error)
	ListNamesExpiringBefore(at uint64) ([]model.DomainResponse, error)

	StartAuction(caller common.Address, req model.StartAuctionRequest) (model.AuctionResponse, error)
	GetAuction(label string) (model.AuctionResponse, error)
	CommitBid(caller common.Address, label string, req model.CommitRequest) error
	RevealBid(caller common.Address, label string, req model.RevealRequest) (model.RevealResponse, error)
	FinalizeAuction(caller common.Address, label string, req model.FinalizeRequest) (model.SettlementResponse, error)

	ListEvents(filter db.EventFilter) ([]model.EventResponse, error)

	Pause(caller common.Address) error
	Unpause(caller common.Address) error
	Withdraw(caller common.Address) (model.WithdrawResponse, error)
	SetPricing(caller common.Address, file pricing.File) error
	SetCapability(caller common.Address, req model.CapabilityRequest) error

	Checkpoint() error
	StartCheckpointDaemon(stopCh <-chan struct{})
	StartPublisher(stopCh <-chan struct{})
}

type Config struct {
	Registry registry.Config
	// AuctionAddress is the auction engine's identity; it is granted the
	// registrar capability.
	AuctionAddress common.Address

	Database db.Database
	Metrics  *metrics.Metrics
	// Publisher is optional.
	Publisher *Publisher

	CheckpointInterval time.Duration
	KeepCheckpoints    int
	EventRetention     time.Duration
}

type backend struct {
	log      *logrus.Entry
	db       db.Database
	resolver *namehash.Resolver
	registry *registry.Registry
	engine   *auction.Engine
	pub      *Publisher

	checkpointInterval time.Duration
	keepCheckpoints    int
	eventRetention     time.Duration

	// auctionMu is held exclusively while a checkpoint snapshots the
	// registry and the engine together.
	auctionMu sync.RWMutex
}

// NewBackend restores the newest checkpoint when there is one and starts
// from an empty registry otherwise.
func NewBackend(cfg Config) (Backend, error) {
	return newBackend(cfg)
}

func newBackend(cfg Config) (*backend, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	resolver, err := namehash.NewResolver(resolverCacheSize)
	if err != nil {
		return nil, err
	}

	b := &backend{
		log:                logrus.WithField("component", "backend"),
		db:                 cfg.Database,
		resolver:           resolver,
		pub:                cfg.Publisher,
		checkpointInterval: cfg.CheckpointInterval,
		keepCheckpoints:    cfg.KeepCheckpoints,
		eventRetention:     cfg.EventRetention,
	}
	if b.checkpointInterval <= 0 {
		b.checkpointInterval = time.Minute
	}
	if b.keepCheckpoints <= 0 {
		b.keepCheckpoints = 10
	}

	sinks := []events.Sink{&eventLog{db: cfg.Database}}
	if cfg.Metrics != nil {
		sinks = append(sinks, cfg.Metrics)
	}
	if cfg.Publisher != nil {
		sinks = append(sinks, cfg.Publisher)
	}
	regCfg := cfg.Registry
	regCfg.Events = events.Multi(sinks...)
	auctionCfg := auction.Config{
		Address: cfg.AuctionAddress,
		Clock:   regCfg.Clock,
		Events:  regCfg.Events,
	}

	cp, ok, err := cfg.Database.LatestCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok {
		var regSnap registry.Snapshot
		if err := json.Unmarshal([]byte(cp.Registry), &regSnap); err != nil {
			return nil, fmt.Errorf("decode registry checkpoint %d: %w", cp.ID, err)
		}
		var aucSnap auction.Snapshot
		if cp.Auctions != "" {
			if err := json.Unmarshal([]byte(cp.Auctions), &aucSnap); err != nil {
				return nil, fmt.Errorf("decode auction checkpoint %d: %w", cp.ID, err)
			}
		}
		if b.registry, err = registry.Restore(regCfg, regSnap); err != nil {
			return nil, err
		}
		if b.engine, err = auction.Restore(auctionCfg, b.registry, aucSnap); err != nil {
			return nil, err
		}
		b.log.Infof("restored checkpoint %d from %v with %d records", cp.ID, cp.CreatedAt, cp.Records)
	} else {
		if b.registry, err = registry.New(regCfg); err != nil {
			return nil, err
		}
		if b.engine, err = auction.New(auctionCfg, b.registry); err != nil {
			return nil, err
		}
	}

	if !b.registry.HasCapability(cfg.AuctionAddress, capability.Registrar) {
		if err := b.registry.GrantCapability(regCfg.Admin, cfg.AuctionAddress, capability.Registrar); err != nil {
			return nil, fmt.Errorf("grant auction engine registrar: %w", err)
		}
	}
	if b.pub != nil {
		b.pub.names = b.registry
	}
	return b, nil
}

// nodeOf resolves a dotted name. Names without the root label get it
// appended, so "foo" and "foo.acorn" are the same name.
func (b *backend) nodeOf(name string) (common.Hash, error) {
	if name != namehash.RootLabel && !strings.HasSuffix(name, "."+namehash.RootLabel) {
		name = name + "." + namehash.RootLabel
	}
	return b.resolver.Resolve(name)
}

func (b *backend) GetName(name string) (model.NameResponse, error) {
	node, err := b.nodeOf(name)
	if err != nil {
		return model.NameResponse{}, err
	}
	resp := model.NameResponse{
		Name:      name,
		Node:      node,
		Available: b.registry.IsAvailable(node),
	}
	rec, ok := b.registry.Record(node)
	if !ok {
		return resp, nil
	}
	if full, ok := b.registry.Name(node); ok {
		resp.Name = full
	}
	resp.Label = rec.Label
	resp.Parent = rec.Parent
	resp.Owner = rec.Owner
	resp.RecordStore = rec.RecordStore
	resp.Approved = b.registry.Approved(node)
	resp.Expiry = rec.Expiry
	resp.TokenID = rec.TokenID
	resp.Registered = rec.Exists
	resp.Expired = b.registry.IsExpired(node)
	resp.InGracePeriod = b.registry.IsInGracePeriod(node)
	return resp, nil
}

func (b *backend) GetPrice(label string, duration uint64) (model.PriceResponse, error) {
	if duration == 0 {
		duration = pricing.OneYear
	}
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return model.PriceResponse{}, err
	}
	price, err := b.registry.PriceOf(label, duration)
	if err != nil {
		return model.PriceResponse{}, err
	}
	cfg := b.registry.Pricing()
	return model.PriceResponse{
		Label:        label,
		Node:         node,
		Duration:     duration,
		Price:        (*hexutil.Big)(price),
		RenewalPrice: (*hexutil.Big)(cfg.RenewalPriceOf(label, node, duration)),
	}, nil
}

func (b *backend) Buy(caller common.Address, req model.BuyRequest) (model.ReceiptResponse, error) {
	rcpt, err := b.registry.BuyAtListedPrice(caller, req.Label, req.RecordStore, req.Duration, toInt(req.Payment))
	if err != nil {
		return model.ReceiptResponse{}, err
	}
	return receipt(rcpt), nil
}

func (b *backend) Register(caller common.Address, req model.RegisterRequest) (model.ReceiptResponse, error) {
	parent := namehash.Root
	if req.Parent != "" {
		var err error
		if parent, err = b.nodeOf(req.Parent); err != nil {
			return model.ReceiptResponse{}, err
		}
	}
	rcpt, err := b.registry.Register(caller, registry.RegisterRequest{
		Label:       req.Label,
		Parent:      parent,
		Owner:       req.Owner,
		Duration:    req.Duration,
		RecordStore: req.RecordStore,
	})
	if err != nil {
		return model.ReceiptResponse{}, err
	}
	return receipt(rcpt), nil
}

func (b *backend) Renew(caller common.Address, name string, req model.RenewRequest) (model.ReceiptResponse, error) {
	node, err := b.nodeOf(name)
	if err != nil {
		return model.ReceiptResponse{}, err
	}
	rcpt, err := b.registry.Renew(caller, node, req.Duration, toInt(req.Payment))
	if err != nil {
		return model.ReceiptResponse{}, err
	}
	return receipt(rcpt), nil
}

func (b *backend) Transfer(caller common.Address, name string, req model.TransferRequest) error {
	node, err := b.nodeOf(name)
	if err != nil {
		return err
	}
	return b.registry.Transfer(caller, node, req.From, req.To)
}

func (b *backend) TransferWithPermit(caller common.Address, req model.PermitRequest) error {
	return b.registry.TransferWithPermit(caller, ledger.Permit{
		Node:      req.Node,
		From:      req.From,
		To:        req.To,
		Nonce:     req.Nonce,
		Deadline:  req.Deadline,
		Signature: req.Signature,
	})
}

func (b *backend) SetRecordStore(caller common.Address, name string, req model.RecordStoreRequest) error {
	node, err := b.nodeOf(name)
	if err != nil {
		return err
	}
	return b.registry.SetRecordStore(caller, node, req.RecordStore)
}

func (b *backend) Approve(caller common.Address, name string, req model.ApproveRequest) error {
	node, err := b.nodeOf(name)
	if err != nil {
		return err
	}
	return b.registry.Approve(caller, node, req.Delegate)
}

func (b *backend) SetOperator(caller common.Address, req model.OperatorRequest) error {
	return b.registry.SetApprovalForAll(caller, req.Operator, req.Approved)
}

func (b *backend) GetOperator(owner, operator common.Address) model.OperatorResponse {
	return model.OperatorResponse{
		Owner:    owner,
		Operator: operator,
		Approved: b.registry.IsApprovedForAll(owner, operator),
	}
}

func (b *backend) GetToken(id uint64) (model.TokenResponse, error) {
	node, holder, ok := b.registry.Token(id)
	if !ok {
		return model.TokenResponse{}, fmt.Errorf("%w: token %d", model.ErrNotFound, id)
	}
	name, _ := b.registry.Name(node)
	return model.TokenResponse{
		TokenID: id,
		Node:    node,
		Name:    name,
		Holder:  holder,
	}, nil
}

func (b *backend) GetRegistry() model.RegistryResponse {
	minDuration, maxDuration := b.registry.DurationBounds()
	return model.RegistryResponse{
		Root:        namehash.Root,
		MinDuration: minDuration,
		MaxDuration: maxDuration,
		GracePeriod: b.registry.GracePeriod(),
		Tokens:      b.registry.Minted(),
		Paused:      b.registry.Paused(),
	}
}

// ListNamesByOwner reads the domain table, so names bought since the last
// checkpoint are not listed yet. The balance is live.
func (b *backend) ListNamesByOwner(owner common.Address) (model.OwnerResponse, error) {
	rows, err := b.db.ListDomainsByOwner(owner.Hex())
	if err != nil {
		return model.OwnerResponse{}, err
	}
	return model.OwnerResponse{
		Owner:   owner,
		Balance: b.registry.BalanceOf(owner),
		Names:   b.domains(rows),
	}, nil
}

func (b *backend) ListNamesExpiringBefore(at uint64) ([]model.DomainResponse, error) {
	rows, err := b.db.ListDomainsExpiringBefore(at)
	if err != nil {
		return nil, err
	}
	return b.domains(rows), nil
}

func (b *backend) domains(rows []db.Domain) []model.DomainResponse {
	out := make([]model.DomainResponse, 0, len(rows))
	for _, row := range rows {
		node := common.HexToHash(row.Node)
		name, _ := b.registry.Name(node)
		out = append(out, model.DomainResponse{
			Name:        name,
			Node:        node,
			Label:       row.Label,
			Parent:      common.HexToHash(row.Parent),
			Owner:       common.HexToAddress(row.Owner),
			RecordStore: common.HexToAddress(row.RecordStore),
			Expiry:      row.Expiry,
			TokenID:     row.TokenID,
		})
	}
	return out
}

func (b *backend) StartAuction(caller common.Address, req model.StartAuctionRequest) (model.AuctionResponse, error) {
	b.auctionMu.RLock()
	defer b.auctionMu.RUnlock()
	a, err := b.engine.StartAuction(caller, req.Label, req.CommitDuration, req.RevealDuration)
	if err != nil {
		return model.AuctionResponse{}, err
	}
	return b.auctionResponse(a), nil
}

func (b *backend) GetAuction(label string) (model.AuctionResponse, error) {
	a, err := b.engine.Auction(label)
	if err != nil {
		return model.AuctionResponse{}, err
	}
	return b.auctionResponse(a), nil
}

func (b *backend) CommitBid(caller common.Address, label string, req model.CommitRequest) error {
	b.auctionMu.RLock()
	defer b.auctionMu.RUnlock()
	return b.engine.CommitBid(caller, label, req.Commitment)
}

func (b *backend) RevealBid(caller common.Address, label string, req model.RevealRequest) (model.RevealResponse, error) {
	b.auctionMu.RLock()
	defer b.auctionMu.RUnlock()
	rcpt, err := b.engine.RevealBid(caller, label, toInt(req.Amount), req.Salt, toInt(req.Payment))
	if err != nil {
		return model.RevealResponse{}, err
	}
	return model.RevealResponse{
		Escrowed: (*hexutil.Big)(rcpt.Escrowed),
		Refund:   (*hexutil.Big)(rcpt.Refund),
	}, nil
}

func (b *backend) FinalizeAuction(caller common.Address, label string, req model.FinalizeRequest) (model.SettlementResponse, error) {
	b.auctionMu.RLock()
	defer b.auctionMu.RUnlock()
	s, err := b.engine.Finalize(caller, label, req.Duration, req.RecordStore)
	if err != nil {
		return model.SettlementResponse{}, err
	}
	return settlement(&s), nil
}

func (b *backend) ListEvents(filter db.EventFilter) ([]model.EventResponse, error) {
	evs, err := b.db.ListEvents(filter)
	if err != nil {
		return nil, err
	}
	out := make([]model.EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, model.EventResponse{
			ID:     ev.ID,
			Kind:   string(ev.Kind),
			Node:   ev.Node,
			Label:  ev.Label,
			Actor:  ev.Actor,
			Owner:  ev.Owner,
			Amount: (*hexutil.Big)(ev.Amount),
			Refund: (*hexutil.Big)(ev.Refund),
			Expiry: ev.Expiry,
			Data:   ev.Data,
			At:     ev.At,
		})
	}
	return out, nil
}

func (b *backend) Pause(caller common.Address) error {
	return b.registry.Pause(caller)
}

func (b *backend) Unpause(caller common.Address) error {
	return b.registry.Unpause(caller)
}

// Withdraw drains both the registry's payments and the auction proceeds.
func (b *backend) Withdraw(caller common.Address) (model.WithdrawResponse, error) {
	fromRegistry, err := b.registry.Withdraw(caller)
	if err != nil {
		return model.WithdrawResponse{}, err
	}
	b.auctionMu.RLock()
	defer b.auctionMu.RUnlock()
	fromAuction, err := b.engine.Withdraw(caller)
	if err != nil {
		return model.WithdrawResponse{}, err
	}
	return model.WithdrawResponse{
		Registry: (*hexutil.Big)(fromRegistry),
		Auction:  (*hexutil.Big)(fromAuction),
	}, nil
}

func (b *backend) SetPricing(caller common.Address, file pricing.File) error {
	cfg, err := file.Config()
	if err != nil {
		if errors.Is(err, model.ErrInvalidPricing) {
			return err
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidPricing, err)
	}
	return b.registry.SetPricing(caller, cfg)
}

func (b *backend) SetCapability(caller common.Address, req model.CapabilityRequest) error {
	c := capability.Capability(req.Capability)
	if err := c.IsValid(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidCapability, err)
	}
	if req.Revoke {
		return b.registry.RevokeCapability(caller, req.Address, c)
	}
	return b.registry.GrantCapability(caller, req.Address, c)
}

// StartPublisher runs the Route53 publisher, if one is configured, until
// stopCh closes.
func (b *backend) StartPublisher(stopCh <-chan struct{}) {
	if b.pub == nil {
		return
	}
	b.pub.Run(stopCh)
}

func (b *backend) auctionResponse(a auction.Auction) model.AuctionResponse {
	resp := model.AuctionResponse{
		Label:          a.Label,
		Node:           a.Node,
		Phase:          string(a.PhaseAt(b.registry.Now())),
		CommitDeadline: a.CommitDeadline,
		RevealDeadline: a.RevealDeadline,
		Commitments:    len(a.Commitments),
		Reveals:        len(a.Reveals),
	}
	if a.Outcome.Reveals > 0 {
		bidder := a.Outcome.HighestBidder
		resp.HighestBidder = &bidder
		resp.HighestBid = (*hexutil.Big)(a.Outcome.HighestBid)
		resp.SecondHighestBid = (*hexutil.Big)(a.Outcome.SecondHighestBid)
	}
	if a.Settlement != nil {
		s := settlement(a.Settlement)
		resp.Settlement = &s
	}
	return resp
}

func settlement(s *auction.Settlement) model.SettlementResponse {
	refunds := make(map[common.Address]*hexutil.Big, len(s.Refunds))
	for who, amt := range s.Refunds {
		refunds[who] = (*hexutil.Big)(amt)
	}
	return model.SettlementResponse{
		Winner:  s.Winner,
		Price:   (*hexutil.Big)(s.Price),
		Refunds: refunds,
		TokenID: s.TokenID,
		Expiry:  s.Expiry,
		Voided:  s.Voided,
	}
}

func receipt(r registry.Receipt) model.ReceiptResponse {
	return model.ReceiptResponse{
		Node:    r.Node,
		TokenID: r.TokenID,
		Expiry:  r.Expiry,
		Charged: (*hexutil.Big)(r.Charged),
		Refund:  (*hexutil.Big)(r.Refund),
	}
}

func toInt(x *hexutil.Big) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x.ToInt())
}
