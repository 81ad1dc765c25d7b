package metrics

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEmitCountsEventsAndAmounts(t *testing.T) {
	m := New()

	reg := events.New(events.KindRegistered, common.Address{}, 1)
	reg.Amount = new(big.Int).Div(pricing.Ether, big.NewInt(4))
	reg.Refund = new(big.Int).Div(pricing.Ether, big.NewInt(2))
	withdrawn := events.New(events.KindWithdrawn, common.Address{}, 2)
	withdrawn.Amount = new(big.Int).Set(pricing.Ether)

	m.Emit(reg, reg, withdrawn)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("registered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("withdrawn")))
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.Charged.WithLabelValues("registered")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Refunded.WithLabelValues("registered")), 1e-9)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Charged.WithLabelValues("withdrawn")))
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, http.StatusOK, time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}
