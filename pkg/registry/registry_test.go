package registry

import (
	"math/big"
	"testing"
	"time"

	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/clock"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/ledger"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"
)

const start uint64 = 1_700_000_000

var (
	admin     = common.HexToAddress("0xad")
	alice     = common.HexToAddress("0xa1")
	bob       = common.HexToAddress("0xb0")
	carol     = common.HexToAddress("0xc0")
	registrar = common.HexToAddress("0x5e")
	store     = common.HexToAddress("0x57")
)

type RegistrySuite struct {
	suite.Suite
	clock  *clock.Manual
	events *events.Recorder
	reg    *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = clock.NewManual(start)
	s.events = &events.Recorder{}
	reg, err := New(Config{
		Admin:       admin,
		GracePeriod: DefaultGracePeriod,
		Clock:       s.clock,
		Events:      s.events,
	})
	s.Require().NoError(err)
	s.reg = reg
}

// price is the listed one-year price of a five-plus character label.
func (s *RegistrySuite) price() *big.Int {
	return new(big.Int).Mul(big.NewInt(10), pricing.Milli)
}

func (s *RegistrySuite) buy(who common.Address, label string) Receipt {
	rcpt, err := s.reg.BuyAtListedPrice(who, label, store, pricing.OneYear, s.price())
	s.Require().NoError(err)
	return rcpt
}

func (s *RegistrySuite) requireInSync() {
	for _, rec := range s.reg.Records() {
		holder, ok := s.reg.TokenHolder(rec.Node)
		s.Require().True(ok, rec.Label)
		s.Require().Equal(rec.Owner, holder, rec.Label)
	}
}

// ---------- registration ----------

func (s *RegistrySuite) TestRootIsRegistered() {
	rec, ok := s.reg.Record(namehash.Root)
	s.Require().True(ok)
	s.Equal(admin, rec.Owner)
	s.Equal(uint64(1), rec.TokenID)
	s.False(s.reg.IsAvailable(namehash.Root))
	s.clock.Advance(100 * pricing.OneYear)
	s.False(s.reg.IsExpired(namehash.Root))
}

func (s *RegistrySuite) TestBuyExactPaymentRefundsZero() {
	rcpt := s.buy(alice, "alice")

	s.Equal("0", rcpt.Refund.String())
	s.Equal(s.price().String(), rcpt.Charged.String())
	s.Equal(uint64(2), rcpt.TokenID)
	s.Equal(start+pricing.OneYear, rcpt.Expiry)
	s.Equal(alice, s.reg.OwnerOf(rcpt.Node))
	s.Equal(s.price().String(), s.reg.Collected().String())

	rec, _ := s.reg.Record(rcpt.Node)
	s.Equal(store, rec.RecordStore)
	s.requireInSync()
}

func (s *RegistrySuite) TestBuyOverpaymentRefundsExactly() {
	extra := big.NewInt(12345)
	payment := new(big.Int).Add(s.price(), extra)

	rcpt, err := s.reg.BuyAtListedPrice(alice, "alice", store, pricing.OneYear, payment)
	s.Require().NoError(err)
	s.Equal(extra.String(), rcpt.Refund.String())
	s.Equal(s.price().String(), s.reg.Collected().String())

	evs := s.events.OfKind(events.KindRegistered)
	s.Require().Len(evs, 1)
	s.Equal(extra.String(), evs[0].Refund.String())
	s.Equal("alice", evs[0].Label)
}

func (s *RegistrySuite) TestBuyFailuresLeaveNoState() {
	short := new(big.Int).Sub(s.price(), big.NewInt(1))
	_, err := s.reg.BuyAtListedPrice(alice, "alice", store, pricing.OneYear, short)
	s.ErrorIs(err, model.ErrInsufficientPay)

	_, err = s.reg.BuyAtListedPrice(alice, "alice", store, Day, s.price())
	s.ErrorIs(err, model.ErrInvalidDuration)

	_, err = s.reg.BuyAtListedPrice(alice, "-alice", store, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrInvalidLabel)

	node, _ := namehash.NodeID(namehash.Root, "alice")
	s.True(s.reg.IsAvailable(node))
	s.Equal("0", s.reg.Collected().String())
	s.Empty(s.events.Events())
}

func (s *RegistrySuite) TestBuyTakenNameIsUnavailable() {
	s.buy(alice, "alice")
	_, err := s.reg.BuyAtListedPrice(bob, "alice", store, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrNameUnavailable)
}

func (s *RegistrySuite) TestRegisterRequiresRegistrar() {
	req := RegisterRequest{Label: "bob", Owner: bob, Duration: pricing.OneYear}
	_, err := s.reg.Register(registrar, req)
	s.ErrorIs(err, model.ErrNotAuthorized)

	s.Require().NoError(s.reg.GrantCapability(admin, registrar, capability.Registrar))
	rcpt, err := s.reg.Register(registrar, req)
	s.Require().NoError(err)
	s.Equal("0", rcpt.Charged.String())
	s.Equal(bob, s.reg.OwnerOf(rcpt.Node))

	req.Label = "nobody"
	req.Owner = common.Address{}
	_, err = s.reg.Register(registrar, req)
	s.ErrorIs(err, model.ErrInvalidRecipient)
}

func (s *RegistrySuite) TestRegisterUnderParent() {
	s.Require().NoError(s.reg.GrantCapability(admin, registrar, capability.Registrar))
	parent := s.buy(alice, "alice").Node

	rcpt, err := s.reg.Register(registrar, RegisterRequest{Label: "www", Parent: parent, Owner: bob, Duration: Day * 30})
	s.Require().NoError(err)
	want, _ := namehash.NameHash("www.alice." + namehash.RootLabel)
	s.Equal(want, rcpt.Node)
	name, ok := s.reg.Name(rcpt.Node)
	s.True(ok)
	s.Equal("www.alice."+namehash.RootLabel, name)

	missing := common.HexToHash("0x1234")
	_, err = s.reg.Register(registrar, RegisterRequest{Label: "www", Parent: missing, Owner: bob, Duration: Day * 30})
	s.ErrorIs(err, model.ErrNotFound)

	s.clock.Advance(pricing.OneYear + 1)
	_, err = s.reg.Register(registrar, RegisterRequest{Label: "mail", Parent: parent, Owner: bob, Duration: Day * 30})
	s.ErrorIs(err, model.ErrDomainExpired)
}

// ---------- renewal and expiry ----------

func (s *RegistrySuite) TestRenewExtendsFromPriorExpiry() {
	rcpt := s.buy(alice, "alice")
	s.clock.Advance(pricing.OneYear / 2)

	renewal, err := s.reg.RenewalPriceOf(rcpt.Node, pricing.OneYear)
	s.Require().NoError(err)
	payment := new(big.Int).Add(renewal, big.NewInt(7))

	out, err := s.reg.Renew(alice, rcpt.Node, pricing.OneYear, payment)
	s.Require().NoError(err)
	s.Equal(rcpt.Expiry+pricing.OneYear, out.Expiry)
	s.Equal(renewal.String(), out.Charged.String())
	s.Equal("7", out.Refund.String())
	s.Equal(uint64(2), out.TokenID)
}

func (s *RegistrySuite) TestRenewFailures() {
	rcpt := s.buy(alice, "alice")

	_, err := s.reg.Renew(bob, rcpt.Node, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrNotAuthorized)

	_, err = s.reg.Renew(alice, rcpt.Node, pricing.OneYear, big.NewInt(1))
	s.ErrorIs(err, model.ErrInsufficientPay)

	_, err = s.reg.Renew(alice, common.HexToHash("0x99"), pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrNotFound)

	s.clock.Set(rcpt.Expiry + DefaultGracePeriod + 1)
	_, err = s.reg.Renew(alice, rcpt.Node, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrGracePeriodExpired)
}

func (s *RegistrySuite) TestAvailabilityBoundary() {
	rcpt := s.buy(alice, "alice")

	s.clock.Set(rcpt.Expiry)
	s.False(s.reg.IsExpired(rcpt.Node))
	s.False(s.reg.IsInGracePeriod(rcpt.Node))

	s.clock.Set(rcpt.Expiry + 1)
	s.True(s.reg.IsExpired(rcpt.Node))
	s.True(s.reg.IsInGracePeriod(rcpt.Node))
	s.False(s.reg.IsAvailable(rcpt.Node))

	s.clock.Set(rcpt.Expiry + DefaultGracePeriod)
	s.True(s.reg.IsInGracePeriod(rcpt.Node))
	s.False(s.reg.IsAvailable(rcpt.Node))

	s.clock.Set(rcpt.Expiry + DefaultGracePeriod + 1)
	s.False(s.reg.IsInGracePeriod(rcpt.Node))
	s.True(s.reg.IsAvailable(rcpt.Node))
}

func (s *RegistrySuite) TestGraceBlocksReRegistration() {
	rcpt := s.buy(alice, "alice")

	s.clock.Set(rcpt.Expiry + DefaultGracePeriod)
	_, err := s.reg.BuyAtListedPrice(bob, "alice", store, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrNameUnavailable)

	s.clock.Advance(1)
	again := s.buy(bob, "alice")
	s.Equal(rcpt.TokenID, again.TokenID)
	s.Equal(bob, s.reg.OwnerOf(again.Node))
	s.requireInSync()
}

// ---------- transfers ----------

func (s *RegistrySuite) TestTransferInGraceThenRenew() {
	rcpt := s.buy(alice, "alice")
	s.clock.Set(rcpt.Expiry + 10)

	err := s.reg.Transfer(alice, rcpt.Node, alice, bob)
	s.ErrorIs(err, model.ErrDomainExpired)
	s.ErrorIs(s.reg.SetRecordStore(alice, rcpt.Node, carol), model.ErrDomainExpired)
	s.ErrorIs(s.reg.Approve(alice, rcpt.Node, carol), model.ErrDomainExpired)

	_, err = s.reg.Renew(alice, rcpt.Node, pricing.OneYear, s.price())
	s.Require().NoError(err)

	s.Require().NoError(s.reg.Transfer(alice, rcpt.Node, alice, bob))
	s.Equal(bob, s.reg.OwnerOf(rcpt.Node))
	s.requireInSync()
}

func (s *RegistrySuite) TestTransferAuthorization() {
	node := s.buy(alice, "alice").Node

	s.ErrorIs(s.reg.Transfer(bob, node, alice, bob), model.ErrNotAuthorized)
	s.ErrorIs(s.reg.Transfer(alice, node, bob, carol), model.ErrNotAuthorized)
	s.ErrorIs(s.reg.Transfer(alice, node, alice, common.Address{}), model.ErrInvalidRecipient)

	s.Require().NoError(s.reg.Approve(alice, node, bob))
	s.Require().NoError(s.reg.Transfer(bob, node, alice, carol))
	s.Equal(carol, s.reg.OwnerOf(node))
	s.Equal(common.Address{}, s.reg.Approved(node))

	// The approval does not survive the move.
	s.ErrorIs(s.reg.Transfer(bob, node, carol, bob), model.ErrNotAuthorized)

	s.Require().NoError(s.reg.SetApprovalForAll(carol, bob, true))
	s.Require().NoError(s.reg.SetRecordStore(bob, node, common.HexToAddress("0x42")))
	s.Require().NoError(s.reg.Transfer(bob, node, carol, bob))
	s.Equal(bob, s.reg.OwnerOf(node))

	evs := s.events.OfKind(events.KindTransferred)
	s.Require().Len(evs, 2)
	s.Equal(alice.Hex(), evs[0].Data["from"])
	s.Equal(carol, evs[0].Owner)
	s.requireInSync()
}

func (s *RegistrySuite) TestTransferWithPermit() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	node := s.buy(owner, "signer").Node

	p := ledger.Permit{Node: node, From: owner, To: bob, Nonce: 1, Deadline: start + 60}
	s.Require().NoError(p.Sign(key))

	s.Require().NoError(s.reg.TransferWithPermit(carol, p))
	s.Equal(bob, s.reg.OwnerOf(node))
	s.True(s.reg.NonceUsed(owner, 1))
	s.requireInSync()

	s.Require().NoError(s.reg.Transfer(bob, node, bob, owner))
	s.ErrorIs(s.reg.TransferWithPermit(carol, p), model.ErrNonceReused)

	late := ledger.Permit{Node: node, From: owner, To: bob, Nonce: 2, Deadline: start - 1}
	s.Require().NoError(late.Sign(key))
	s.ErrorIs(s.reg.TransferWithPermit(carol, late), model.ErrExpired)

	other, err := crypto.GenerateKey()
	s.Require().NoError(err)
	forged := ledger.Permit{Node: node, From: owner, To: carol, Nonce: 3, Deadline: start + 60}
	s.Require().NoError(forged.Sign(other))
	s.ErrorIs(s.reg.TransferWithPermit(carol, forged), model.ErrInvalidSignature)
	s.False(s.reg.NonceUsed(owner, 3))
	s.Equal(owner, s.reg.OwnerOf(node))
}

// ---------- administration ----------

func (s *RegistrySuite) TestPauseBlocksMutationsNotAdmin() {
	node := s.buy(alice, "alice").Node

	s.ErrorIs(s.reg.Pause(alice), model.ErrNotAuthorized)
	s.Require().NoError(s.reg.Pause(admin))
	s.True(s.reg.Paused())

	_, err := s.reg.BuyAtListedPrice(bob, "bobby", store, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrSystemPaused)
	_, err = s.reg.Renew(alice, node, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrSystemPaused)
	s.ErrorIs(s.reg.Transfer(alice, node, alice, bob), model.ErrSystemPaused)
	s.ErrorIs(s.reg.SetRecordStore(alice, node, bob), model.ErrSystemPaused)

	s.NoError(s.reg.SetBasePrice(admin, big.NewInt(1)))
	_, err = s.reg.Withdraw(admin)
	s.NoError(err)

	s.Require().NoError(s.reg.Unpause(admin))
	s.NoError(s.reg.Transfer(alice, node, alice, bob))
}

func (s *RegistrySuite) TestHoldAndGuard() {
	node := s.buy(alice, "alice").Node
	free, _ := namehash.NodeID(namehash.Root, "free")

	ran := false
	s.ErrorIs(s.reg.Hold(node, func() error { ran = true; return nil }), model.ErrNameUnavailable)
	s.False(ran)
	s.Require().NoError(s.reg.Hold(free, func() error { ran = true; return nil }))
	s.True(ran)

	s.Require().NoError(s.reg.Pause(admin))
	s.ErrorIs(s.reg.Hold(free, func() error { return nil }), model.ErrSystemPaused)
	s.ErrorIs(s.reg.Guard(node, func() error { return nil }), model.ErrSystemPaused)
}

func (s *RegistrySuite) TestPauseWaitsForMutationInFlight() {
	node := s.buy(alice, "alice").Node
	done := make(chan struct{})

	s.Require().NoError(s.reg.Guard(node, func() error {
		go func() {
			defer close(done)
			s.NoError(s.reg.Pause(admin))
		}()
		select {
		case <-done:
			s.Fail("pause completed while a mutation held its node")
		case <-time.After(20 * time.Millisecond):
		}
		return nil
	}))
	<-done
	s.True(s.reg.Paused())
	s.ErrorIs(s.reg.Transfer(alice, node, alice, bob), model.ErrSystemPaused)
}

func (s *RegistrySuite) TestWithdrawDrainsPool() {
	s.buy(alice, "alice")
	s.buy(bob, "bobby")

	_, err := s.reg.Withdraw(alice)
	s.ErrorIs(err, model.ErrNotAuthorized)

	taken, err := s.reg.Withdraw(admin)
	s.Require().NoError(err)
	s.Equal(new(big.Int).Mul(s.price(), big.NewInt(2)).String(), taken.String())
	s.Equal("0", s.reg.Collected().String())
}

func (s *RegistrySuite) TestPricingAdmin() {
	s.ErrorIs(s.reg.SetBasePrice(alice, big.NewInt(1)), model.ErrNotAuthorized)
	s.ErrorIs(s.reg.SetBasePrice(admin, big.NewInt(0)), model.ErrInvalidPricing)
	s.ErrorIs(s.reg.SetDurationMultiplier(admin, 2, 20_000), model.ErrInvalidPricing)
	s.ErrorIs(s.reg.SetPremium(admin, 5, big.NewInt(1)), model.ErrInvalidPricing)
	s.ErrorIs(s.reg.SetPremium(admin, 2, pricing.Ether), model.ErrInvalidPricing)

	node, _ := namehash.NodeID(namehash.Root, "vip")
	s.Require().NoError(s.reg.SetCustomPrice(admin, node, big.NewInt(5)))
	price, err := s.reg.PriceOf("vip", pricing.OneYear)
	s.Require().NoError(err)
	s.Equal("5", price.String())

	s.Require().NoError(s.reg.SetFixedPrice(admin, "cheap", big.NewInt(3)))
	price, err = s.reg.PriceOf("cheap", 2*pricing.OneYear)
	s.Require().NoError(err)
	s.Equal("3", price.String())

	s.Require().NoError(s.reg.SetCustomPrice(admin, node, nil))
	price, err = s.reg.PriceOf("vip", pricing.OneYear)
	s.Require().NoError(err)
	s.Equal(pricing.DefaultConfig().PriceOf("vip", node, pricing.OneYear).String(), price.String())

	s.Len(s.events.OfKind(events.KindPriceChanged), 3)
}

func (s *RegistrySuite) TestCapabilities() {
	s.ErrorIs(s.reg.GrantCapability(alice, bob, capability.Admin), model.ErrNotAuthorized)
	s.Require().NoError(s.reg.GrantCapability(admin, bob, capability.Admin))
	s.True(s.reg.HasCapability(bob, capability.Admin))
	s.Require().NoError(s.reg.RevokeCapability(bob, admin, capability.Admin))
	s.False(s.reg.HasCapability(admin, capability.Admin))
	s.ErrorIs(s.reg.Pause(admin), model.ErrNotAuthorized)
}

type reserveAll struct{ except common.Address }

func (r reserveAll) Reserved(_ common.Hash, by common.Address) bool {
	return by != r.except
}

func (s *RegistrySuite) TestReservationsBlockOthers() {
	s.Require().NoError(s.reg.GrantCapability(admin, registrar, capability.Registrar))
	s.reg.SetReservations(reserveAll{except: registrar})

	_, err := s.reg.BuyAtListedPrice(alice, "alice", store, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrNameUnavailable)

	_, err = s.reg.Register(registrar, RegisterRequest{Label: "alice", Owner: alice, Duration: pricing.OneYear})
	s.NoError(err)
}

// ---------- snapshots and invariants ----------

func (s *RegistrySuite) TestSnapshotRestore() {
	node := s.buy(alice, "alice").Node
	s.buy(bob, "bobby")
	s.Require().NoError(s.reg.Approve(alice, node, carol))
	s.Require().NoError(s.reg.SetFixedPrice(admin, "cheap", big.NewInt(3)))
	s.Require().NoError(s.reg.Pause(admin))

	snap := s.reg.Snapshot()
	restored, err := Restore(Config{Admin: admin, GracePeriod: DefaultGracePeriod, Clock: s.clock}, snap)
	s.Require().NoError(err)

	s.Equal(snap, restored.Snapshot())
	s.True(restored.Paused())
	s.Equal(carol, restored.Approved(node))
	s.Equal(s.reg.Collected().String(), restored.Collected().String())

	s.Require().NoError(restored.Unpause(admin))
	rcpt, err := restored.BuyAtListedPrice(carol, "carol", store, pricing.OneYear, s.price())
	s.Require().NoError(err)
	s.Equal(uint64(4), rcpt.TokenID)
}

func (s *RegistrySuite) TestDesyncHaltsNode() {
	node := s.buy(alice, "alice").Node

	// Corrupt the token side directly.
	s.reg.ledger.Assign(node, carol)

	err := s.reg.Transfer(alice, node, alice, bob)
	s.ErrorIs(err, model.ErrNotAuthorized)

	s.reg.ledger.Assign(node, alice)
	s.reg.mu.Lock()
	rec := s.reg.records[node]
	rec.Owner = bob
	s.reg.records[node] = rec
	s.reg.mu.Unlock()

	s.Require().NoError(s.reg.SetApprovalForAll(alice, bob, true))
	err = s.reg.Transfer(bob, node, bob, carol)
	s.ErrorIs(err, model.ErrInvariantViolation)
	s.True(s.reg.Halted(node))

	_, err = s.reg.Renew(bob, node, pricing.OneYear, s.price())
	s.ErrorIs(err, model.ErrInvariantViolation)
}
