package db

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) Database {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "names.sqlite")
	d, err := New(context.Background(), "sqlite", dsn, &gorm.Config{Logger: NewLogger("error")})
	require.NoError(t, err)
	return d
}

func TestUnsupportedDialect(t *testing.T) {
	_, err := New(context.Background(), "postgres", "", nil)
	assert.Error(t, err)
}

func TestCheckpoints(t *testing.T) {
	d := newTestDB(t)

	_, ok, err := d.LatestCheckpoint()
	require.NoError(t, err)
	assert.False(t, ok)

	for _, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		_, err := d.SaveCheckpoint([]byte(body), []byte(`{}`), 1)
		require.NoError(t, err)
	}

	cp, ok, err := d.LatestCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"n":3}`, cp.Registry)

	purged, err := d.PurgeCheckpoints(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	cp, ok, err = d.LatestCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"n":3}`, cp.Registry)
}

func TestReplaceDomains(t *testing.T) {
	d := newTestDB(t)
	alice := common.HexToAddress("0xa1").Hex()
	bob := common.HexToAddress("0xb0").Hex()

	require.NoError(t, d.ReplaceDomains([]Domain{
		{Node: "0x01", Label: "one", Owner: alice, Expiry: 100, TokenID: 2},
		{Node: "0x02", Label: "two", Owner: alice, Expiry: 200, TokenID: 3},
	}))
	require.NoError(t, d.ReplaceDomains([]Domain{
		{Node: "0x02", Label: "two", Owner: bob, Expiry: 300, TokenID: 3},
		{Node: "0x03", Label: "three", Owner: alice, Expiry: 50, TokenID: 4},
	}))

	bobs, err := d.ListDomainsByOwner(bob)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "0x02", bobs[0].Node)
	assert.Equal(t, uint64(300), bobs[0].Expiry)

	expiring, err := d.ListDomainsExpiringBefore(1000)
	require.NoError(t, err)
	require.Len(t, expiring, 2, "0x01 was dropped by the second replace")

	owned, err := d.ListDomainsByOwner(alice)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "three", owned[0].Label)

	expiring, err = d.ListDomainsExpiringBefore(250)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "0x03", expiring[0].Node)

	require.NoError(t, d.ReplaceDomains(nil))
	owned, err = d.ListDomainsByOwner(alice)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestEventLog(t *testing.T) {
	d := newTestDB(t)
	node := common.HexToHash("0xabc")

	reg := events.New(events.KindRegistered, common.HexToAddress("0x1"), 10)
	reg.Node = node
	reg.Label = "abc"
	reg.Amount = big.NewInt(500)
	reg.Refund = big.NewInt(0)
	reg.Data = map[string]string{"tokenId": "2"}

	renew := events.New(events.KindRenewed, common.HexToAddress("0x1"), 20)
	renew.Node = node
	paused := events.New(events.KindPaused, common.HexToAddress("0x2"), 30)

	require.NoError(t, d.AppendEvents(reg, renew, paused))
	require.NoError(t, d.AppendEvents())

	all, err := d.ListEvents(EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, reg.ID, all[0].ID)
	assert.Equal(t, "500", all[0].Amount.String())
	assert.Equal(t, "0", all[0].Refund.String())
	assert.Equal(t, "2", all[0].Data["tokenId"])
	assert.Nil(t, all[1].Amount)

	byNode, err := d.ListEvents(EventFilter{Node: node.Hex()})
	require.NoError(t, err)
	assert.Len(t, byNode, 2)

	byKind, err := d.ListEvents(EventFilter{Kind: events.KindPaused})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, paused.ID, byKind[0].ID)

	since, err := d.ListEvents(EventFilter{Since: 20, Limit: 1})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, renew.ID, since[0].ID)

	purged, err := d.PurgeEventsBefore(25)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}
