package ledger

import (
	"testing"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	nodeA = common.HexToHash("0x0a")
	nodeB = common.HexToHash("0x0b")
	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb0")
	carol = common.HexToAddress("0xc0")
)

func TestAssignMintsSequentially(t *testing.T) {
	l := New()

	id, minted := l.Assign(nodeA, alice)
	assert.Equal(t, uint64(1), id)
	assert.True(t, minted)

	id, minted = l.Assign(nodeB, bob)
	assert.Equal(t, uint64(2), id)
	assert.True(t, minted)

	// Re-assigning keeps the token id.
	id, minted = l.Assign(nodeA, carol)
	assert.Equal(t, uint64(1), id)
	assert.False(t, minted)

	holder, ok := l.Holder(nodeA)
	require.True(t, ok)
	assert.Equal(t, carol, holder)

	node, ok := l.NodeOf(2)
	require.True(t, ok)
	assert.Equal(t, nodeB, node)
	assert.Equal(t, uint64(2), l.Minted())
	assert.Equal(t, 1, l.BalanceOf(carol))
}

func TestMoveRequiresHolder(t *testing.T) {
	l := New()
	l.Assign(nodeA, alice)

	assert.ErrorIs(t, l.Move(nodeA, bob, carol), model.ErrNotAuthorized)
	assert.ErrorIs(t, l.Move(nodeB, alice, carol), model.ErrNotFound)

	require.NoError(t, l.Move(nodeA, alice, bob))
	holder, _ := l.HolderOf(1)
	assert.Equal(t, bob, holder)
}

func TestApprovalsAndOperators(t *testing.T) {
	l := New()
	l.Assign(nodeA, alice)

	assert.False(t, l.CanMove(nodeA, bob))
	require.NoError(t, l.Approve(nodeA, bob))
	assert.True(t, l.CanMove(nodeA, bob))
	assert.Equal(t, bob, l.Approved(nodeA))

	// Moving the token clears the approval.
	require.NoError(t, l.Move(nodeA, alice, carol))
	assert.False(t, l.CanMove(nodeA, bob))
	assert.Equal(t, common.Address{}, l.Approved(nodeA))

	l.SetOperator(carol, bob, true)
	assert.True(t, l.CanMove(nodeA, bob))
	l.SetOperator(carol, bob, false)
	assert.False(t, l.CanMove(nodeA, bob))

	assert.ErrorIs(t, l.Approve(nodeB, bob), model.ErrNotFound)
}

func TestUseNonce(t *testing.T) {
	l := New()
	require.NoError(t, l.UseNonce(alice, 7))
	assert.True(t, l.NonceUsed(alice, 7))
	assert.False(t, l.NonceUsed(bob, 7))
	assert.ErrorIs(t, l.UseNonce(alice, 7), model.ErrNonceReused)
	assert.NoError(t, l.UseNonce(alice, 3))
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	l.Assign(nodeA, alice)
	l.Assign(nodeB, bob)
	require.NoError(t, l.Approve(nodeB, carol))
	l.SetOperator(alice, carol, true)
	require.NoError(t, l.UseNonce(bob, 9))

	r := Restore(l.Snapshot())

	assert.Equal(t, l.Snapshot(), r.Snapshot())
	id, minted := r.Assign(common.HexToHash("0x0c"), carol)
	assert.Equal(t, uint64(3), id)
	assert.True(t, minted)
	assert.True(t, r.CanMove(nodeB, carol))
	assert.True(t, r.IsOperator(alice, carol))
	assert.ErrorIs(t, r.UseNonce(bob, 9), model.ErrNonceReused)
}

func TestPermitVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	p := Permit{Node: nodeA, From: owner, To: bob, Nonce: 1, Deadline: 100}
	require.NoError(t, p.Sign(key))
	assert.NoError(t, p.Verify(100))

	assert.ErrorIs(t, p.Verify(101), model.ErrExpired)

	tampered := p
	tampered.To = carol
	assert.ErrorIs(t, tampered.Verify(50), model.ErrInvalidSignature)

	short := p
	short.Signature = p.Signature[:10]
	assert.ErrorIs(t, short.Verify(50), model.ErrInvalidSignature)

	// 27/28 style recovery ids are accepted.
	legacy := p
	legacy.Signature = append([]byte{}, p.Signature...)
	legacy.Signature[64] += 27
	assert.NoError(t, legacy.Verify(50))
}
