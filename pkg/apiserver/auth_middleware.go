package apiserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/acorn-io/acorn-names/pkg/ledger"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/rand"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

type ContextKey string

const Caller ContextKey = "caller"

const (
	HeaderAddress   = "X-Names-Address"
	HeaderTimestamp = "X-Names-Timestamp"
	HeaderSignature = "X-Names-Signature"
	HeaderNonce     = "X-Names-Nonce"

	maxClockSkew   = 5 * time.Minute
	maxBodyBytes   = 1 << 20
	maxNonceLength = 128

	replayCacheSize = 1 << 16
)

// RequestDigest is what a caller signs:
// keccak(method ++ path ++ timestamp ++ nonce ++ body).
func RequestDigest(method, path, timestamp, nonce string, body []byte) common.Hash {
	return crypto.Keccak256Hash([]byte(method), []byte(path), []byte(timestamp), []byte(nonce), body)
}

// SignRequest sets the signature headers on req for body, which must be the
// request's entire body. Every call picks a fresh nonce.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	nonce := rand.Salt().Hex()
	digest := RequestDigest(req.Method, req.URL.Path, ts, nonce, body)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

// replayGuard remembers the digest of every accepted request. Once the cache
// evicts an entry, requests signed at or before that entry's timestamp are
// refused, so a digest is never accepted twice inside the skew window.
type replayGuard struct {
	seen  *lru.Cache
	floor atomic.Int64
}

func newReplayGuard(size int) (*replayGuard, error) {
	g := &replayGuard{}
	seen, err := lru.NewWithEvict(size, func(_, v interface{}) {
		g.raiseFloor(v.(int64))
	})
	if err != nil {
		return nil, err
	}
	g.seen = seen
	return g, nil
}

func (g *replayGuard) raiseFloor(ts int64) {
	for {
		cur := g.floor.Load()
		if ts <= cur || g.floor.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// admit records digest and fails if it was already accepted.
func (g *replayGuard) admit(digest common.Hash, ts int64) error {
	if ts <= g.floor.Load() {
		return fmt.Errorf("%w: requests signed at or before %d are no longer accepted", model.ErrInvalidSignature, g.floor.Load())
	}
	if seen, _ := g.seen.ContainsOrAdd(digest, ts); seen {
		return fmt.Errorf("%w: request %s was already used", model.ErrInvalidSignature, digest.Hex())
	}
	return nil
}

// signatureAuthMiddleware recovers the signer of the request and puts it in
// the request context as the caller.
func signatureAuthMiddleware(now func() time.Time, guard *replayGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logrus.Debugf("request URL path: %s", r.URL.Path)

			caller, err := authenticate(r, now(), guard)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			ctx := context.WithValue(r.Context(), Caller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, now time.Time, guard *replayGuard) (common.Address, error) {
	addr := r.Header.Get(HeaderAddress)
	ts := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)
	sigHex := r.Header.Get(HeaderSignature)
	if addr == "" || ts == "" || nonce == "" || sigHex == "" {
		return common.Address{}, fmt.Errorf("%w: missing %s, %s, %s or %s header", model.ErrInvalidSignature, HeaderAddress, HeaderTimestamp, HeaderNonce, HeaderSignature)
	}
	if len(nonce) > maxNonceLength {
		return common.Address{}, fmt.Errorf("%w: nonce longer than %d bytes", model.ErrInvalidSignature, maxNonceLength)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: bad address %q", model.ErrInvalidSignature, addr)
	}

	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad timestamp %q", model.ErrInvalidSignature, ts)
	}
	if skew := now.Sub(time.Unix(secs, 0)); skew > maxClockSkew || skew < -maxClockSkew {
		return common.Address{}, fmt.Errorf("%w: timestamp %s outside allowed skew", model.ErrInvalidSignature, ts)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return common.Address{}, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	digest := RequestDigest(r.Method, r.URL.Path, ts, nonce, body)
	signer, err := ledger.Recover(digest, sig)
	if err != nil {
		return common.Address{}, err
	}
	if signer != common.HexToAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: signed by %s, not %s", model.ErrInvalidSignature, signer.Hex(), addr)
	}
	if err := guard.admit(digest, secs); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

func callerFromContext(ctx context.Context) (common.Address, error) {
	caller, ok := ctx.Value(Caller).(common.Address)
	if !ok {
		return common.Address{}, errors.New("no authenticated caller")
	}
	return caller, nil
}
