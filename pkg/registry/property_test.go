package registry

import (
	"math/big"
	"testing"

	"github.com/acorn-io/acorn-names/pkg/clock"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"
)

func TestOwnerAndTokenStayInSync(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clk := clock.NewManual(start)
		reg, err := New(Config{Admin: admin, GracePeriod: DefaultGracePeriod, Clock: clk})
		if err != nil {
			rt.Fatalf("new registry: %v", err)
		}
		people := []common.Address{alice, bob, carol}
		labels := []string{"alpha", "bravo", "charlie", "abc"}
		payment := new(big.Int).Set(pricing.Ether)

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			who := rapid.SampledFrom(people).Draw(rt, "who")
			label := rapid.SampledFrom(labels).Draw(rt, "label")
			node, _ := namehash.NodeID(namehash.Root, label)

			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0:
				_, _ = reg.BuyAtListedPrice(who, label, common.Address{}, pricing.OneYear, payment)
			case 1:
				to := rapid.SampledFrom(people).Draw(rt, "to")
				_ = reg.Transfer(who, node, reg.OwnerOf(node), to)
			case 2:
				_, _ = reg.Renew(who, node, pricing.OneYear, payment)
			case 3:
				_ = reg.Approve(who, node, rapid.SampledFrom(people).Draw(rt, "delegate"))
			case 4:
				_ = reg.SetApprovalForAll(who, rapid.SampledFrom(people).Draw(rt, "operator"), rapid.Bool().Draw(rt, "approved"))
			case 5:
				clk.Advance(rapid.Uint64Range(0, 2*pricing.OneYear).Draw(rt, "advance"))
			}

			for _, rec := range reg.Records() {
				holder, ok := reg.TokenHolder(rec.Node)
				if !ok || holder != rec.Owner {
					rt.Fatalf("%s: owner %s, token holder %s", rec.Label, rec.Owner.Hex(), holder.Hex())
				}
				if reg.Halted(rec.Node) {
					rt.Fatalf("%s halted", rec.Label)
				}
			}
		}
	})
}

func TestRefundIsExactOverpayment(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg, err := New(Config{Admin: admin, Clock: clock.NewManual(start)})
		if err != nil {
			rt.Fatalf("new registry: %v", err)
		}
		label := rapid.StringMatching(`[a-z][a-z0-9]{0,9}`).Draw(rt, "label")
		years := rapid.Uint64Range(1, 10).Draw(rt, "years")
		extra := new(big.Int).SetUint64(rapid.Uint64().Draw(rt, "extra"))

		price, err := reg.PriceOf(label, years*pricing.OneYear)
		if err != nil {
			rt.Fatalf("price: %v", err)
		}
		rcpt, err := reg.BuyAtListedPrice(alice, label, common.Address{}, years*pricing.OneYear, new(big.Int).Add(price, extra))
		if err != nil {
			rt.Fatalf("buy: %v", err)
		}
		if rcpt.Refund.Cmp(extra) != 0 || rcpt.Charged.Cmp(price) != 0 {
			rt.Fatalf("charged %s refund %s, want %s and %s", rcpt.Charged, rcpt.Refund, price, extra)
		}
	})
}
