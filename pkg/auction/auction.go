// Package auction runs sealed-bid, second-price auctions for labels
// directly under the root.
//
// An auction commits, reveals and finalizes. Bidders commit
// keccak(amount ++ salt ++ bidder) before the commit deadline, reveal the
// amount and salt with the full amount escrowed before the reveal deadline,
// and after that anyone may finalize. The winner pays the second-highest
// revealed bid and is registered through the registry.
package auction

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Phase string

const (
	PhaseNone       Phase = "none"
	PhaseCommitting Phase = "committing"
	// PhaseRevealing starts at the commit deadline; reveals are accepted
	// strictly after it.
	PhaseRevealing Phase = "revealing"
	// PhaseEnded waits for finalize.
	PhaseEnded     Phase = "ended"
	PhaseLapsed    Phase = "lapsed"
	PhaseFinalized Phase = "finalized"
	// PhaseVoided closed without a winner because the name could not be
	// registered at finalize; every escrow was refunded.
	PhaseVoided Phase = "voided"
)

type Bid struct {
	Bidder     common.Address `json:"bidder"`
	Amount     *big.Int       `json:"amount"`
	RevealedAt uint64         `json:"revealedAt"`
}

// Outcome is the running result of the revealed bids.
type Outcome struct {
	HighestBid       *big.Int       `json:"highestBid"`
	HighestBidder    common.Address `json:"highestBidder"`
	SecondHighestBid *big.Int       `json:"secondHighestBid"`
	Reveals          int            `json:"reveals"`
}

// Apply folds one more revealed bid in. A strictly greater bid takes the
// lead and pushes the old leader to second; a tie keeps the earlier leader.
func (o Outcome) Apply(b Bid) Outcome {
	switch {
	case o.Reveals == 0 || b.Amount.Cmp(o.HighestBid) > 0:
		if o.Reveals > 0 {
			o.SecondHighestBid = o.HighestBid
		}
		o.HighestBid = b.Amount
		o.HighestBidder = b.Bidder
	case o.SecondHighestBid == nil || b.Amount.Cmp(o.SecondHighestBid) > 0:
		o.SecondHighestBid = b.Amount
	}
	o.Reveals++
	return o
}

// Price is what the winner pays: the second-highest bid, or the only bid.
func (o Outcome) Price() *big.Int {
	if o.Reveals == 0 {
		return new(big.Int)
	}
	if o.Reveals == 1 || o.SecondHighestBid == nil {
		return new(big.Int).Set(o.HighestBid)
	}
	return new(big.Int).Set(o.SecondHighestBid)
}

// Tally folds bids in reveal order.
func Tally(bids []Bid) Outcome {
	var o Outcome
	for _, b := range bids {
		o = o.Apply(b)
	}
	return o
}

type Settlement struct {
	Winner  common.Address              `json:"winner"`
	Price   *big.Int                    `json:"price"`
	Refunds map[common.Address]*big.Int `json:"refunds"`
	TokenID uint64                      `json:"tokenId"`
	Expiry  uint64                      `json:"expiry"`
	At      uint64                      `json:"at"`
	Voided  bool                        `json:"voided,omitempty"`
}

type Auction struct {
	Label          string                         `json:"label"`
	Node           common.Hash                    `json:"node"`
	StartedBy      common.Address                 `json:"startedBy"`
	StartedAt      uint64                         `json:"startedAt"`
	CommitDeadline uint64                         `json:"commitDeadline"`
	RevealDeadline uint64                         `json:"revealDeadline"`
	Commitments    map[common.Address]common.Hash `json:"commitments"`
	Reveals        []Bid                          `json:"reveals"`
	Outcome        Outcome                        `json:"outcome"`
	Finalized      bool                           `json:"finalized"`
	Settlement     *Settlement                    `json:"settlement,omitempty"`
}

// PhaseAt reports where the auction stands at now.
func (a *Auction) PhaseAt(now uint64) Phase {
	switch {
	case a.Finalized && a.Settlement != nil && a.Settlement.Voided:
		return PhaseVoided
	case a.Finalized:
		return PhaseFinalized
	case now < a.CommitDeadline:
		return PhaseCommitting
	case now <= a.RevealDeadline:
		return PhaseRevealing
	case len(a.Reveals) == 0:
		return PhaseLapsed
	default:
		return PhaseEnded
	}
}

func (a *Auction) revealed(bidder common.Address) bool {
	for _, b := range a.Reveals {
		if b.Bidder == bidder {
			return true
		}
	}
	return false
}

func (a *Auction) clone() Auction {
	out := *a
	out.Commitments = make(map[common.Address]common.Hash, len(a.Commitments))
	for k, v := range a.Commitments {
		out.Commitments[k] = v
	}
	out.Reveals = make([]Bid, len(a.Reveals))
	for i, b := range a.Reveals {
		b.Amount = new(big.Int).Set(b.Amount)
		out.Reveals[i] = b
	}
	out.Outcome = Tally(out.Reveals)
	if a.Settlement != nil {
		s := *a.Settlement
		s.Price = new(big.Int).Set(s.Price)
		s.Refunds = make(map[common.Address]*big.Int, len(a.Settlement.Refunds))
		for k, v := range a.Settlement.Refunds {
			s.Refunds[k] = new(big.Int).Set(v)
		}
		out.Settlement = &s
	}
	return out
}

// Commitment is the sealed form of a bid.
func Commitment(amount *big.Int, salt common.Hash, bidder common.Address) common.Hash {
	return crypto.Keccak256Hash(
		common.LeftPadBytes(amount.Bytes(), 32),
		salt[:],
		bidder[:],
	)
}
