package ledger

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const permitDomain = "acorn-names:transfer"

// Permit is a transfer pre-authorised by from and submitted by anyone.
type Permit struct {
	Node      common.Hash    `json:"node"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Nonce     uint64         `json:"nonce"`
	Deadline  uint64         `json:"deadline"`
	Signature []byte         `json:"signature"`
}

// Digest is the 32-byte message from signs.
func (p Permit) Digest() common.Hash {
	return crypto.Keccak256Hash(
		[]byte(permitDomain),
		p.Node[:],
		p.From[:],
		p.To[:],
		word(p.Nonce),
		word(p.Deadline),
	)
}

// Sign fills in the signature with key.
func (p *Permit) Sign(key *ecdsa.PrivateKey) error {
	digest := p.Digest()
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// Verify checks the deadline and that the signature recovers to From.
func (p Permit) Verify(now uint64) error {
	if now > p.Deadline {
		return fmt.Errorf("%w: permit deadline %d passed", model.ErrExpired, p.Deadline)
	}
	signer, err := Recover(p.Digest(), p.Signature)
	if err != nil {
		return err
	}
	if signer != p.From {
		return fmt.Errorf("%w: signed by %s, not %s", model.ErrInvalidSignature, signer.Hex(), p.From.Hex())
	}
	return nil
}

// Recover returns the address that produced a 65-byte [R || S || V]
// signature over digest. V may be 0/1 or 27/28.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", model.ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func word(n uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], n)
	return w[:]
}
