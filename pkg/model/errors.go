package model

import "errors"

// Registry, ledger and auction failures. Operations wrap these with context;
// match with errors.Is.
var (
	ErrInvalidLabel       = errors.New("invalid label")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrNameUnavailable    = errors.New("name unavailable")
	ErrDomainExpired      = errors.New("domain expired")
	ErrGracePeriodExpired = errors.New("grace period expired")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInsufficientPay    = errors.New("insufficient payment")
	ErrSystemPaused       = errors.New("system paused")
	ErrAuctionActive      = errors.New("auction active")
	ErrCommitClosed       = errors.New("commit closed")
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	ErrAlreadyFinalized   = errors.New("already finalized")
	ErrNoBids             = errors.New("no bids")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrNonceReused        = errors.New("nonce reused")
	ErrExpired            = errors.New("expired")

	ErrNotFound           = errors.New("not found")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrInvalidPricing     = errors.New("invalid pricing")
	ErrInvalidCapability  = errors.New("invalid capability")
	ErrInvalidWindow      = errors.New("invalid auction window")
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrRevealNotOpen      = errors.New("reveal not open")
	ErrRevealClosed       = errors.New("reveal closed")
	ErrAlreadyRevealed    = errors.New("already revealed")
	ErrAuctionNotEnded    = errors.New("auction not ended")
	ErrInvariantViolation = errors.New("owner and token out of sync")
)
