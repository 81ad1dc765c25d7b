package auction

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCommitmentBindsEveryField(t *testing.T) {
	base := Commitment(big.NewInt(5), salt(1), bidA)
	assert.Equal(t, base, Commitment(big.NewInt(5), salt(1), bidA))
	assert.NotEqual(t, base, Commitment(big.NewInt(6), salt(1), bidA))
	assert.NotEqual(t, base, Commitment(big.NewInt(5), salt(2), bidA))
	assert.NotEqual(t, base, Commitment(big.NewInt(5), salt(1), bidB))
}

func TestTallyEmpty(t *testing.T) {
	o := Tally(nil)
	assert.Equal(t, 0, o.Reveals)
	assert.Equal(t, "0", o.Price().String())
}

func TestSettlementNeverExceedsBids(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "bids")
		bids := make([]Bid, n)
		for i := range bids {
			bids[i] = Bid{
				Bidder: common.BigToAddress(big.NewInt(int64(i + 1))),
				Amount: new(big.Int).SetUint64(rapid.Uint64Range(0, 1_000).Draw(rt, "amount")),
			}
		}

		o := Tally(bids)
		price := o.Price()

		// The winner holds the first maximal bid.
		first := 0
		for i, b := range bids {
			if b.Amount.Cmp(bids[first].Amount) > 0 {
				first = i
			}
		}
		if o.HighestBidder != bids[first].Bidder {
			rt.Fatalf("winner %s, want %s", o.HighestBidder.Hex(), bids[first].Bidder.Hex())
		}
		if price.Cmp(o.HighestBid) > 0 {
			rt.Fatalf("price %s above winning bid %s", price, o.HighestBid)
		}
		if n == 1 {
			return
		}

		var bestLoser *big.Int
		for i, b := range bids {
			if i == first {
				continue
			}
			if bestLoser == nil || b.Amount.Cmp(bestLoser) > 0 {
				bestLoser = b.Amount
			}
		}
		if price.Cmp(bestLoser) != 0 {
			rt.Fatalf("price %s, highest losing bid %s", price, bestLoser)
		}
	})
}
